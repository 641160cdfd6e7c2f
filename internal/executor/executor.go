// Package executor runs planned output tasks through the transcoder,
// isolating per-task failures, and packages the results.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/tailor-media/tailor/internal/issues"
	"github.com/tailor-media/tailor/internal/logging"
	"github.com/tailor-media/tailor/internal/media"
	"github.com/tailor-media/tailor/internal/naming"
	"github.com/tailor-media/tailor/internal/packaging"
)

// DefaultZipThreshold is the total output size at which results are archived.
const DefaultZipThreshold int64 = 500 * 1024 * 1024

const partialPrefix = ".partial-"

const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Packager bundles files into one archive. Entries are relative to root.
type Packager interface {
	Archive(ctx context.Context, root string, files []string, archivePath string) error
}

type Options struct {
	// Workers bounds concurrent transcodes. 0 or 1 runs tasks one at a time.
	Workers int
	// ZipThreshold in bytes; 0 means DefaultZipThreshold, negative disables packaging.
	ZipThreshold int64
	ArchiveName  string
	Codec        media.CodecOptions
	// TaskTimeout bounds each transcode; 0 means no limit.
	TaskTimeout time.Duration
	OnProgress  func(Progress)
}

type Progress struct {
	Done    int
	Total   int
	Outcome Outcome
}

type Outcome struct {
	Task     naming.OutputTask `json:"task"`
	Status   string            `json:"status"`
	Bytes    int64             `json:"bytes"`
	Err      error             `json:"-"`
	Duration time.Duration     `json:"duration"`
}

// Failure pairs a task with the reason it produced no output.
type Failure struct {
	Task   naming.OutputTask `json:"task"`
	Reason string            `json:"reason"`
}

type Result struct {
	Outcomes   []Outcome `json:"outcomes"`
	Succeeded  []string  `json:"succeeded"`
	Failed     []Failure `json:"failed"`
	TotalBytes int64     `json:"total_bytes"`
	OutputRoot string    `json:"output_root"`
	// ArchivePath is set only when packaging ran and succeeded.
	ArchivePath string `json:"archive_path,omitempty"`
	// DeliveredPath is the archive when one was produced, otherwise OutputRoot.
	DeliveredPath string `json:"delivered_path"`
	PackagingErr  error  `json:"-"`
}

type Executor struct {
	transcoder media.Transcoder
	packager   Packager
	logger     *slog.Logger
	opts       Options
	sizeOf     func(path string) (int64, error)
}

func New(transcoder media.Transcoder, packager Packager, logger *slog.Logger, opts Options) *Executor {
	if opts.ZipThreshold == 0 {
		opts.ZipThreshold = DefaultZipThreshold
	}
	if opts.ArchiveName == "" {
		opts.ArchiveName = packaging.DefaultArchiveName
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Executor{
		transcoder: transcoder,
		packager:   packager,
		logger:     logger,
		opts:       opts,
		sizeOf:     fileSize,
	}
}

// SetSizeFunc replaces how produced file sizes are measured.
func (e *Executor) SetSizeFunc(fn func(path string) (int64, error)) {
	e.sizeOf = fn
}

// Execute runs tasks in plan order into root. Directory creation happens
// before any transcode and is the only fatal step. A failed task is recorded
// and the batch continues. Cancelling ctx stops dispatch; tasks not started
// are reported as cancelled.
func (e *Executor) Execute(ctx context.Context, root string, tasks []naming.OutputTask) (*Result, error) {
	if err := ensureDirs(root, tasks); err != nil {
		return nil, err
	}

	e.logger.Info("executing batch", "tasks", len(tasks), "workers", e.opts.Workers, "output_root", root)

	outcomes := make([]Outcome, len(tasks))
	var (
		mu   sync.Mutex
		done int
	)
	record := func(i int, out Outcome) {
		outcomes[i] = out
		if e.opts.OnProgress == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		done++
		e.opts.OnProgress(Progress{Done: done, Total: len(tasks), Outcome: out})
	}

	var g errgroup.Group
	g.SetLimit(e.opts.Workers)
	for i, task := range tasks {
		if ctx.Err() != nil {
			for j := i; j < len(tasks); j++ {
				record(j, Outcome{
					Task:   tasks[j],
					Status: StatusCancelled,
					Err:    fmt.Errorf("%w: not started", issues.ErrCancelled),
				})
			}
			break
		}
		if e.opts.Workers == 1 {
			record(i, e.runTask(ctx, task))
			continue
		}
		g.Go(func() error {
			record(i, e.runTask(ctx, task))
			return nil
		})
	}
	g.Wait()

	result := e.collect(root, outcomes)
	e.pack(ctx, result)

	e.logger.Info("batch finished",
		"succeeded", len(result.Succeeded),
		"failed", len(result.Failed),
		"total_bytes", result.TotalBytes,
		"total_size", humanize.Bytes(uint64(result.TotalBytes)),
		"delivered", result.DeliveredPath,
	)
	return result, nil
}

func (e *Executor) runTask(ctx context.Context, task naming.OutputTask) Outcome {
	start := time.Now()
	out := Outcome{Task: task}
	logger := logging.WithVideo(e.logger, task.VideoID, task.VideoPath)

	fail := func(status string, err error) Outcome {
		out.Status = status
		out.Err = err
		out.Duration = time.Since(start)
		logger.Warn("task failed",
			"seq", task.Seq,
			"subject", string(task.SubjectID),
			"bin", task.BinIndex,
			"error", err,
		)
		return out
	}

	tmp := PartialPath(task.OutputPath)
	os.Remove(tmp)

	taskCtx := ctx
	if e.opts.TaskTimeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, e.opts.TaskTimeout)
		defer cancel()
	}

	err := e.transcoder.Transcode(taskCtx, media.TranscodeRequest{
		InputPath:  task.VideoPath,
		Range:      task.Range,
		Crop:       task.Crop,
		OutputPath: tmp,
		Codec:      e.opts.Codec,
	})
	if err != nil {
		os.Remove(tmp)
		if ctx.Err() != nil {
			return fail(StatusCancelled, fmt.Errorf("%w: %v", issues.ErrCancelled, err))
		}
		return fail(StatusFailed, fmt.Errorf("%w: %v", issues.ErrTranscode, err))
	}

	if info, err := os.Stat(tmp); err != nil || info.Size() == 0 {
		os.Remove(tmp)
		return fail(StatusFailed, fmt.Errorf("%w: transcoder produced no output", issues.ErrTranscode))
	}
	if err := os.Rename(tmp, task.OutputPath); err != nil {
		os.Remove(tmp)
		return fail(StatusFailed, fmt.Errorf("%w: finalize output: %v", issues.ErrTranscode, err))
	}

	size, err := e.sizeOf(task.OutputPath)
	if err != nil {
		logger.Warn("cannot measure output", "path", logging.SanitizePath(task.OutputPath), "error", err)
	}

	out.Status = StatusSucceeded
	out.Bytes = size
	out.Duration = time.Since(start)
	logger.Info("task completed",
		"seq", task.Seq,
		"file", task.RelPath,
		"range", task.Range.String(),
		"size", humanize.Bytes(uint64(size)),
		"duration_ms", out.Duration.Milliseconds(),
	)
	return out
}

func (e *Executor) collect(root string, outcomes []Outcome) *Result {
	succeeded := lo.Filter(outcomes, func(o Outcome, _ int) bool {
		return o.Status == StatusSucceeded
	})
	failed := lo.Filter(outcomes, func(o Outcome, _ int) bool {
		return o.Status != StatusSucceeded
	})

	return &Result{
		Outcomes: outcomes,
		Succeeded: lo.Map(succeeded, func(o Outcome, _ int) string {
			return o.Task.OutputPath
		}),
		Failed: lo.Map(failed, func(o Outcome, _ int) Failure {
			return Failure{Task: o.Task, Reason: errorText(o.Err)}
		}),
		TotalBytes: lo.SumBy(succeeded, func(o Outcome) int64 {
			return o.Bytes
		}),
		OutputRoot:    root,
		DeliveredPath: root,
	}
}

func (e *Executor) pack(ctx context.Context, result *Result) {
	if e.opts.ZipThreshold < 0 || e.packager == nil || len(result.Succeeded) == 0 {
		return
	}
	if result.TotalBytes < e.opts.ZipThreshold {
		return
	}
	if ctx.Err() != nil {
		e.logger.Info("batch cancelled, skipping packaging")
		return
	}

	archivePath := filepath.Join(result.OutputRoot, e.opts.ArchiveName)
	e.logger.Info("packaging outputs",
		"files", len(result.Succeeded),
		"total_size", humanize.Bytes(uint64(result.TotalBytes)),
		"threshold", humanize.Bytes(uint64(e.opts.ZipThreshold)),
		"archive", archivePath,
	)

	if err := e.packager.Archive(ctx, result.OutputRoot, result.Succeeded, archivePath); err != nil {
		result.PackagingErr = fmt.Errorf("%w: %v", issues.ErrPackaging, err)
		e.logger.Warn("packaging failed, outputs left in place", "output_root", result.OutputRoot, "error", err)
		return
	}
	result.ArchivePath = archivePath
	result.DeliveredPath = archivePath
}

// PartialPath is the temporary name a task writes to before it is renamed.
// The extension is kept so the transcoder can pick the container.
func PartialPath(outputPath string) string {
	return filepath.Join(filepath.Dir(outputPath), partialPrefix+filepath.Base(outputPath))
}

func ensureDirs(root string, tasks []naming.OutputTask) error {
	dirs := lo.Uniq(append([]string{root}, lo.Map(tasks, func(t naming.OutputTask, _ int) string {
		return filepath.Dir(t.OutputPath)
	})...))
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory %s: %w", dir, err)
		}
	}
	return nil
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// IsCancelled reports whether the outcome was skipped by cancellation.
func (o Outcome) IsCancelled() bool {
	return o.Status == StatusCancelled || errors.Is(o.Err, issues.ErrCancelled)
}
