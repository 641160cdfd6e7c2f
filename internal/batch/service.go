package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ansel1/merry/v2"
	"github.com/samber/lo"

	"github.com/tailor-media/tailor/internal/executor"
	"github.com/tailor-media/tailor/internal/issues"
	"github.com/tailor-media/tailor/internal/logging"
	"github.com/tailor-media/tailor/internal/manifest"
	"github.com/tailor-media/tailor/internal/naming"
	"github.com/tailor-media/tailor/internal/pipeline"
)

var (
	ErrNotFound       = merry.Sentinel("batch not found")
	ErrNotCancellable = merry.Sentinel("batch is not pending or running")
	ErrNoPipeline     = merry.Sentinel("ffmpeg is not available")
)

type BatchService interface {
	Submit(ctx context.Context, m *manifest.Manifest) (*Batch, error)
	Plan(ctx context.Context, m *manifest.Manifest) (*pipeline.Preview, error)
	Cancel(ctx context.Context, batchID string) error
	Get(ctx context.Context, id string) (*Batch, error)
	List(ctx context.Context, limit int) ([]*Batch, error)
	Tasks(ctx context.Context, batchID string) ([]*Task, error)
	Task(ctx context.Context, batchID string, seq int) (*Task, error)
}

type Service struct {
	repo     Repository
	pipeline *pipeline.Pipeline
	logger   *slog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewService wires the repository to a pipeline. pipe may be nil when ffmpeg
// is missing: batches can still be submitted, but Plan and Execute fail.
func NewService(repo Repository, pipe *pipeline.Pipeline, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		repo:     repo,
		pipeline: pipe,
		logger:   logging.WithComponent(logger, "batches"),
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Submit stores a validated manifest as a pending batch for the runner.
func (s *Service) Submit(ctx context.Context, m *manifest.Manifest) (*Batch, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC().Truncate(time.Second)
	b := &Batch{
		ID:        NewID(),
		Status:    StatusPending,
		Mode:      m.Mode.Value,
		Manifest:  m,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateBatch(ctx, b); err != nil {
		return nil, err
	}

	s.logger.Info("batch submitted", "batch_id", b.ID, "mode", b.Mode, "videos", len(m.Videos))
	return b, nil
}

// Plan is a dry run: durations are probed and names resolved, nothing is
// written.
func (s *Service) Plan(ctx context.Context, m *manifest.Manifest) (*pipeline.Preview, error) {
	if s.pipeline == nil {
		return nil, ErrNoPipeline
	}
	return s.pipeline.Plan(ctx, m)
}

// Execute claims a pending batch, runs it to completion and records the
// outcome. A batch that is no longer pending is left alone. The returned
// error is the one stored on the batch, if any.
func (s *Service) Execute(ctx context.Context, batchID string) error {
	b, err := s.repo.GetBatch(ctx, batchID)
	if err != nil {
		return err
	}
	if b == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, batchID)
	}

	// Registered before the claim so a concurrent Cancel always finds either
	// the pending row or the cancel func.
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancels[batchID] = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.cancels, batchID)
		s.mu.Unlock()
		cancel()
	}()

	claimed, err := s.repo.TransitionBatch(ctx, batchID, StatusPending, StatusRunning, "")
	if err != nil {
		return err
	}
	if !claimed {
		s.logger.Info("batch no longer pending, skipping", "batch_id", batchID)
		return nil
	}
	if s.pipeline == nil {
		s.fail(ctx, b, ErrNoPipeline)
		return ErrNoPipeline
	}
	if runCtx.Err() != nil {
		s.finishCancelled(ctx, b, nil)
		return nil
	}

	logger := logging.WithBatchID(s.logger, batchID)
	logger.Info("batch started", "mode", b.Mode)

	res, err := s.pipeline.Run(runCtx, b.Manifest, pipeline.Hooks{
		BatchID: batchID,
		OnPlanned: func(plan naming.Plan, root string) {
			tasks := lo.Map(plan.Tasks, func(t naming.OutputTask, _ int) *Task {
				return TaskFromPlan(batchID, t)
			})
			if err := s.repo.ReplaceTasks(ctx, batchID, root, tasks); err != nil {
				logger.Error("failed to store planned tasks", "error", err)
			}
		},
		OnProgress: func(p executor.Progress) {
			o := p.Outcome
			errMsg := ""
			if o.Err != nil {
				errMsg = o.Err.Error()
			}
			if err := s.repo.UpdateTaskOutcome(ctx, batchID, o.Task.Seq, o.Status, o.Bytes, errMsg); err != nil {
				logger.Error("failed to store task outcome", "seq", o.Task.Seq, "error", err)
			}
		},
	})
	if err != nil {
		if runCtx.Err() != nil && ctx.Err() == nil {
			s.finishCancelled(ctx, b, res)
			return nil
		}
		s.fail(ctx, b, err)
		return err
	}

	b.OutputPath = res.Result.OutputRoot
	b.ArchivePath = res.Result.ArchivePath
	b.ReportPath = res.ReportPath
	b.TotalTasks = len(res.Result.Outcomes)
	b.Succeeded = len(res.Result.Succeeded)
	b.Failed = len(res.Result.Failed)
	b.TotalBytes = res.Result.TotalBytes

	switch {
	case runCtx.Err() != nil:
		b.Status = StatusCancelled
		b.Error = "cancelled"
	case b.TotalTasks > 0 && b.Succeeded == 0:
		b.Status = StatusFailed
		b.Error = fmt.Sprintf("all %d tasks failed", b.TotalTasks)
	default:
		b.Status = StatusCompleted
		if b.Failed > 0 {
			b.Error = fmt.Sprintf("%d of %d tasks failed", b.Failed, b.TotalTasks)
		}
	}
	if err := s.repo.FinishBatch(ctx, b); err != nil {
		return err
	}

	logger.Info("batch finished",
		"status", b.Status,
		"succeeded", b.Succeeded,
		"failed", b.Failed,
		"delivered", b.DeliveredPath(),
	)
	return nil
}

func (s *Service) finishCancelled(ctx context.Context, b *Batch, res *pipeline.BatchResult) {
	b.Status = StatusCancelled
	b.Error = "cancelled"
	if res != nil && res.Result != nil {
		b.OutputPath = res.Result.OutputRoot
		b.Succeeded = len(res.Result.Succeeded)
	}
	if err := s.repo.FinishBatch(ctx, b); err != nil {
		s.logger.Error("failed to store cancelled batch", "batch_id", b.ID, "error", err)
	}
}

func (s *Service) fail(ctx context.Context, b *Batch, cause error) {
	s.logger.Error("batch failed", "batch_id", b.ID, "error", cause)
	if err := s.repo.UpdateBatchStatus(ctx, b.ID, StatusFailed, cause.Error()); err != nil {
		s.logger.Error("failed to store batch failure", "batch_id", b.ID, "error", err)
	}
}

// Cancel stops a running batch or withdraws a pending one.
func (s *Service) Cancel(ctx context.Context, batchID string) error {
	if s.cancelRunning(batchID) {
		return nil
	}

	b, err := s.repo.GetBatch(ctx, batchID)
	if err != nil {
		return err
	}
	if b == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, batchID)
	}
	if b.Status != StatusPending {
		return fmt.Errorf("%w: %s is %s", ErrNotCancellable, batchID, b.Status)
	}

	withdrawn, err := s.repo.TransitionBatch(ctx, batchID, StatusPending, StatusCancelled, "cancelled before start")
	if err != nil {
		return err
	}
	if !withdrawn {
		// Claimed by the runner since the read above.
		if s.cancelRunning(batchID) {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrNotCancellable, batchID)
	}
	s.logger.Info("pending batch cancelled", "batch_id", batchID)
	return nil
}

func (s *Service) cancelRunning(batchID string) bool {
	s.mu.Lock()
	cancel, running := s.cancels[batchID]
	s.mu.Unlock()
	if !running {
		return false
	}
	cancel()
	s.logger.Info("batch cancel requested", "batch_id", batchID)
	return true
}

func (s *Service) Get(ctx context.Context, id string) (*Batch, error) {
	return s.repo.GetBatch(ctx, id)
}

func (s *Service) List(ctx context.Context, limit int) ([]*Batch, error) {
	return s.repo.ListBatches(ctx, limit)
}

func (s *Service) Tasks(ctx context.Context, batchID string) ([]*Task, error) {
	return s.repo.ListTasks(ctx, batchID)
}

func (s *Service) Task(ctx context.Context, batchID string, seq int) (*Task, error) {
	return s.repo.GetTask(ctx, batchID, seq)
}

// IsRunning reports whether batchID is executing in this process.
func (s *Service) IsRunning(batchID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.cancels[batchID]
	return ok
}

// IsBlocked reports whether err stopped a batch before any transcode.
func IsBlocked(err error) bool {
	return errors.Is(err, manifest.ErrInvalidManifest) || errors.Is(err, pipeline.ErrEmptyPlan) ||
		errors.Is(err, issues.ErrFilenameCollision)
}
