package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/tailor-media/tailor/internal/ffmpeg"
	"github.com/tailor-media/tailor/internal/logging"
)

// Runner polls for pending batches and executes them one at a time.
type Runner struct {
	service      *Service
	repo         Repository
	doctor       *ffmpeg.CachedDoctor
	logger       *slog.Logger
	pollInterval time.Duration
	running      atomic.Bool
	paused       atomic.Bool
	active       atomic.Int32
}

func NewRunner(service *Service, repo Repository, doctor *ffmpeg.CachedDoctor, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{
		service:      service,
		repo:         repo,
		doctor:       doctor,
		logger:       logging.WithComponent(logger, "runner"),
		pollInterval: 5 * time.Second,
	}
}

func (r *Runner) Start(ctx context.Context) {
	if r.running.Swap(true) {
		return
	}

	r.logger.Info("batch runner started")

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("batch runner stopping")
			r.running.Store(false)
			return
		case <-ticker.C:
			if !r.paused.Load() {
				r.processNextBatch(ctx)
			}
		}
	}
}

func (r *Runner) Pause() {
	r.paused.Store(true)
	r.logger.Info("batch runner paused")
}

func (r *Runner) Resume() {
	r.paused.Store(false)
	r.logger.Info("batch runner resumed")
}

func (r *Runner) IsPaused() bool {
	return r.paused.Load()
}

func (r *Runner) IsRunning() bool {
	return r.running.Load()
}

// ActiveBatchCount is the number of batches executing right now.
func (r *Runner) ActiveBatchCount() int {
	return int(r.active.Load())
}

// processNextBatch runs the oldest pending batch, if any.
func (r *Runner) processNextBatch(ctx context.Context) {
	batches, err := r.repo.ListPendingBatches(ctx)
	if err != nil {
		r.logger.Error("failed to list pending batches", "error", err)
		return
	}
	if len(batches) == 0 {
		return
	}

	b := batches[0]
	r.logger.Info("processing batch", "batch_id", b.ID, "mode", b.Mode)

	if r.doctor != nil {
		caps, err := r.doctor.Get(ctx)
		if err != nil {
			r.failPending(ctx, b.ID, fmt.Sprintf("ffmpeg check failed: %v", err))
			return
		}
		if !caps.Ready() {
			r.failPending(ctx, b.ID, "ffmpeg or ffprobe not available")
			return
		}
	}

	r.active.Add(1)
	defer r.active.Add(-1)

	if err := r.service.Execute(ctx, b.ID); err != nil {
		r.logger.Error("batch failed", "batch_id", b.ID, "error", err)
	}
}

func (r *Runner) failPending(ctx context.Context, batchID, reason string) {
	r.logger.Error("batch rejected before start", "batch_id", batchID, "reason", reason)
	if _, err := r.repo.TransitionBatch(ctx, batchID, StatusPending, StatusFailed, reason); err != nil {
		r.logger.Error("failed to store batch failure", "batch_id", batchID, "error", err)
	}
}
