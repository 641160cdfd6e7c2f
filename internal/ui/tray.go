package ui

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/getlantern/systray"

	"github.com/tailor-media/tailor/internal/batch"
)

const refreshInterval = 5 * time.Second

type Tray struct {
	batches batch.BatchService
	runner  *batch.Runner
	logger  *slog.Logger

	statusItem *systray.MenuItem
	lastItem   *systray.MenuItem
	pauseItem  *systray.MenuItem

	mu sync.Mutex

	onOpenOutputs func(path string) error
	onQuit        func()
}

type TrayConfig struct {
	Batches       batch.BatchService
	Runner        *batch.Runner
	Logger        *slog.Logger
	OnOpenOutputs func(path string) error
	OnQuit        func()
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		batches:       cfg.Batches,
		runner:        cfg.Runner,
		logger:        cfg.Logger,
		onOpenOutputs: cfg.OnOpenOutputs,
		onQuit:        cfg.OnQuit,
	}
}

// Run blocks until the tray exits. The menu is refreshed from the batch
// service until ctx is done.
func (t *Tray) Run(ctx context.Context) {
	systray.Run(func() { t.onReady(ctx) }, t.onExit)
}

func (t *Tray) onReady(ctx context.Context) {
	systray.SetIcon(iconBytes)
	systray.SetTitle("Tailor")
	systray.SetTooltip("Tailor batch segmenter")

	t.statusItem = systray.AddMenuItem("Status: Idle", "Current batch status")
	t.statusItem.Disable()

	t.lastItem = systray.AddMenuItem("Last batch: none", "Most recent batch")
	t.lastItem.Disable()

	systray.AddSeparator()

	t.pauseItem = systray.AddMenuItem("Pause", "Pause batch processing")

	openItem := systray.AddMenuItem("Open Outputs", "Open the last batch's outputs")

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit Tailor")

	go t.refreshLoop(ctx)

	go func() {
		for {
			select {
			case <-t.pauseItem.ClickedCh:
				t.togglePause()
			case <-openItem.ClickedCh:
				t.handleOpenOutputs(ctx)
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			}
		}
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	t.logger.Info("system tray exiting")
}

func (t *Tray) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	t.refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.refresh(ctx)
		}
	}
}

func (t *Tray) refresh(ctx context.Context) {
	recent, err := t.batches.List(ctx, 20)
	if err != nil {
		t.logger.Warn("tray refresh failed", "error", err)
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	paused := t.runner != nil && t.runner.IsPaused()
	t.statusItem.SetTitle("Status: " + statusLine(recent, paused))
	t.lastItem.SetTitle("Last batch: " + lastBatchLine(recent))
}

func (t *Tray) togglePause() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.runner == nil {
		return
	}

	if t.runner.IsPaused() {
		t.runner.Resume()
		t.pauseItem.SetTitle("Pause")
		t.statusItem.SetTitle("Status: Idle")
	} else {
		t.runner.Pause()
		t.pauseItem.SetTitle("Resume")
		t.statusItem.SetTitle("Status: Paused")
	}
}

func (t *Tray) handleOpenOutputs(ctx context.Context) {
	if t.onOpenOutputs == nil {
		return
	}
	recent, err := t.batches.List(ctx, 1)
	if err != nil || len(recent) == 0 {
		t.logger.Info("no batch outputs to open")
		return
	}
	path := recent[0].DeliveredPath()
	if path == "" {
		return
	}
	if err := t.onOpenOutputs(path); err != nil {
		t.logger.Error("failed to open outputs", "path", path, "error", err)
	}
}

func (t *Tray) Quit() {
	systray.Quit()
}

// statusLine summarizes recent batches, newest first.
func statusLine(recent []*batch.Batch, paused bool) string {
	pending, running := 0, 0
	for _, b := range recent {
		switch b.Status {
		case batch.StatusPending:
			pending++
		case batch.StatusRunning:
			running++
		}
	}

	switch {
	case paused && pending > 0:
		return fmt.Sprintf("Paused (%d queued)", pending)
	case paused:
		return "Paused"
	case running > 0 && pending > 0:
		return fmt.Sprintf("Running (%d queued)", pending)
	case running > 0:
		return "Running"
	case pending > 0:
		return fmt.Sprintf("Queued (%d)", pending)
	default:
		return "Idle"
	}
}

func lastBatchLine(recent []*batch.Batch) string {
	for _, b := range recent {
		switch b.Status {
		case batch.StatusCompleted:
			line := fmt.Sprintf("%d/%d files, %s", b.Succeeded, b.TotalTasks, humanize.Bytes(uint64(max(b.TotalBytes, 0))))
			if b.Failed > 0 {
				line += fmt.Sprintf(", %d failed", b.Failed)
			}
			return line
		case batch.StatusFailed:
			return "failed"
		case batch.StatusCancelled:
			return "cancelled"
		}
	}
	return "none"
}
