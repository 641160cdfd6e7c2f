// Package pipeline ties a manifest to planning and execution: durations are
// probed, the naming plan is built, collisions are checked, and tasks are
// run into a prepared output root.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/ansel1/merry/v2"
	"github.com/samber/lo"

	"github.com/tailor-media/tailor/internal/bins"
	"github.com/tailor-media/tailor/internal/executor"
	"github.com/tailor-media/tailor/internal/issues"
	"github.com/tailor-media/tailor/internal/logging"
	"github.com/tailor-media/tailor/internal/manifest"
	"github.com/tailor-media/tailor/internal/media"
	"github.com/tailor-media/tailor/internal/naming"
	"github.com/tailor-media/tailor/internal/report"
	"github.com/tailor-media/tailor/internal/timemodel"
)

var ErrEmptyPlan = merry.Sentinel("plan has no tasks")

const ReportFilename = "report.csv"

type Options struct {
	Workers      int
	ZipThreshold int64
	TaskTimeout  time.Duration
	// ReportDir receives one report per run; empty disables reports.
	ReportDir string
}

// Hooks let callers observe a run. All fields are optional.
type Hooks struct {
	// BatchID names the report directory and tags log lines.
	BatchID string
	// OnPlanned fires once, after collision checks and before any transcode,
	// with tasks already rebased to the resolved output root.
	OnPlanned  func(plan naming.Plan, outputRoot string)
	OnProgress func(executor.Progress)
}

// Preview is the dry-run result of Plan.
type Preview struct {
	Videos []media.Video `json:"videos"`
	Plan   naming.Plan   `json:"plan"`
	Job    *manifest.Job `json:"-"`
}

// BatchResult is what a run delivered.
type BatchResult struct {
	Plan       naming.Plan      `json:"plan"`
	Result     *executor.Result `json:"result,omitempty"`
	Warnings   []issues.Warning `json:"warnings"`
	ReportPath string           `json:"report_path,omitempty"`
}

type Pipeline struct {
	prober     media.Prober
	planner    *naming.Planner
	transcoder media.Transcoder
	packager   executor.Packager
	logger     *slog.Logger
	opts       Options
	now        func() time.Time
}

func New(prober media.Prober, transcoder media.Transcoder, packager executor.Packager, logger *slog.Logger, opts Options) *Pipeline {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{
		prober:     prober,
		planner:    naming.NewPlanner(logger),
		transcoder: transcoder,
		packager:   packager,
		logger:     logger,
		opts:       opts,
		now:        time.Now,
	}
}

// Plan probes durations and builds the naming plan without touching the
// output directory. Each call probes afresh.
func (p *Pipeline) Plan(ctx context.Context, m *manifest.Manifest) (*Preview, error) {
	job, err := manifest.Build(m)
	if err != nil {
		return nil, err
	}

	videos, probeWarnings := media.NewDurationCache(p.prober, p.logger).Resolve(ctx, job.Request.Videos)
	job.Request.Videos = videos

	plan := p.planner.Plan(job.Request)
	plan.Warnings = lo.Flatten([][]issues.Warning{
		job.Warnings,
		probeWarnings,
		footageWarnings(job.Request, probeWarnings),
		plan.Warnings,
	})

	return &Preview{Videos: videos, Plan: plan, Job: job}, nil
}

// Run plans m and executes it. A blocked collision and a failure to prepare
// the output root are returned before any transcode starts; per-task
// failures are reported in the result.
func (p *Pipeline) Run(ctx context.Context, m *manifest.Manifest, hooks Hooks) (*BatchResult, error) {
	logger := p.logger
	if hooks.BatchID != "" {
		logger = logging.WithBatchID(logger, hooks.BatchID)
	}

	preview, err := p.Plan(ctx, m)
	if err != nil {
		return nil, err
	}
	plan := preview.Plan
	out := &BatchResult{Plan: plan, Warnings: plan.Warnings}
	issues.Log(logger, plan.Warnings)

	if preview.Job.OnCollision == manifest.ActionBlock && plan.Collisions.HasConflicts() {
		return out, fmt.Errorf("%w: %d conflicting file names", issues.ErrFilenameCollision, len(plan.Collisions.Conflicts))
	}
	if len(plan.Tasks) == 0 {
		return out, ErrEmptyPlan
	}

	root, err := executor.PrepareOutputRoot(m.OutputDir, preview.Job.DirPolicy, p.now())
	if err != nil {
		return out, err
	}
	if root != filepath.Clean(m.OutputDir) {
		logger.Info("output directory not empty, writing to sibling", "requested", m.OutputDir, "output_root", root)
	}
	plan.Tasks = naming.Rebase(plan.Tasks, root)
	out.Plan = plan

	if hooks.OnPlanned != nil {
		hooks.OnPlanned(plan, root)
	}

	ex := executor.New(p.transcoder, p.packager, logger, executor.Options{
		Workers:      p.opts.Workers,
		ZipThreshold: p.opts.ZipThreshold,
		Codec:        preview.Job.Codec,
		TaskTimeout:  p.opts.TaskTimeout,
		OnProgress:   hooks.OnProgress,
	})
	result, err := ex.Execute(ctx, root, plan.Tasks)
	if err != nil {
		return out, err
	}
	out.Result = result
	out.Warnings = append(out.Warnings, executionWarnings(result)...)

	if p.opts.ReportDir != "" {
		name := hooks.BatchID
		if name == "" {
			name = p.now().Format("20060102_150405")
		}
		path := filepath.Join(p.opts.ReportDir, name, ReportFilename)
		if err := report.Write(path, result.Outcomes); err != nil {
			logger.Warn("failed to write report", "path", path, "error", err)
		} else {
			out.ReportPath = path
		}
	}

	return out, nil
}

// footageWarnings flags videos whose bin is longer than the footage after
// the start offset. Planning still yields a single truncated bin for them.
func footageWarnings(req naming.Request, probeWarnings []issues.Warning) []issues.Warning {
	if !req.Mode.Trims() {
		return nil
	}
	unprobed := lo.Associate(probeWarnings, func(w issues.Warning) (string, struct{}) {
		return w.VideoID, struct{}{}
	})

	var warnings []issues.Warning
	for _, v := range req.Videos {
		if _, ok := unprobed[v.ID]; ok {
			continue
		}
		cfg := bins.DefaultConfig()
		if req.SharedBins != nil {
			cfg = *req.SharedBins
		} else if c, ok := req.Bins[v.ID]; ok {
			cfg = c
		}
		if cfg.StartOffset >= v.Duration || cfg.Accept(v.Duration) == nil {
			continue
		}
		warnings = append(warnings, issues.Warning{
			Kind:    issues.KindBinExceedsFootage,
			VideoID: v.ID,
			Message: fmt.Sprintf("bin length %s exceeds the %s of footage after %s; one shorter segment will be produced",
				timemodel.FormatHMS(cfg.BinLength),
				timemodel.FormatHMS(v.Duration-cfg.StartOffset),
				timemodel.FormatHMS(cfg.StartOffset)),
		})
	}
	return warnings
}

func executionWarnings(result *executor.Result) []issues.Warning {
	warnings := lo.FilterMap(result.Outcomes, func(o executor.Outcome, _ int) (issues.Warning, bool) {
		if o.Status != executor.StatusFailed {
			return issues.Warning{}, false
		}
		return issues.Warning{
			Kind:      issues.KindTranscodeError,
			VideoID:   o.Task.VideoID,
			SubjectID: string(o.Task.SubjectID),
			BinIndex:  o.Task.BinIndex,
			Message:   fmt.Sprintf("%s: %v", o.Task.RelPath, o.Err),
		}, true
	})
	if result.PackagingErr != nil {
		warnings = append(warnings, issues.Warning{
			Kind:    issues.KindPackagingError,
			Message: fmt.Sprintf("outputs left in %s: %v", result.OutputRoot, result.PackagingErr),
		})
	}
	return warnings
}
