package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const (
	defaultCacheTTL = 5 * time.Minute
	doctorTimeout   = 15 * time.Second
)

// Doctor probes tool availability.
type Doctor interface {
	RunDoctor(ctx context.Context) (*Capabilities, error)
}

// RunDoctor asks both tools for their version and checks for libx264.
func (r *Runner) RunDoctor(ctx context.Context) (*Capabilities, error) {
	ctx, cancel := context.WithTimeout(ctx, doctorTimeout)
	defer cancel()

	caps := &Capabilities{
		FFmpeg:   r.toolInfo(ctx, r.ffmpeg),
		FFprobe:  r.toolInfo(ctx, r.ffprobe),
		ProbedAt: time.Now(),
	}
	if caps.FFmpeg.Available {
		var out bytes.Buffer
		if res := r.exec(ctx, r.ffmpeg, &out, "-hide_banner", "-encoders"); res.IsSuccess() {
			caps.HasLibx264 = strings.Contains(out.String(), "libx264")
		}
	}
	if !caps.Ready() {
		return caps, fmt.Errorf("ffmpeg tools unavailable: ffmpeg=%t ffprobe=%t",
			caps.FFmpeg.Available, caps.FFprobe.Available)
	}
	return caps, nil
}

func (r *Runner) toolInfo(ctx context.Context, bin string) ToolInfo {
	var out bytes.Buffer
	res := r.exec(ctx, bin, &out, "-version")
	if !res.IsSuccess() {
		return ToolInfo{Path: bin, Error: truncate(res.StderrTail, 256)}
	}
	return ToolInfo{Available: true, Path: bin, Version: parseVersion(out.String())}
}

// parseVersion extracts "6.1.1" from "ffmpeg version 6.1.1 Copyright ...".
func parseVersion(output string) string {
	line, _, _ := strings.Cut(output, "\n")
	fields := strings.Fields(line)
	for i, f := range fields {
		if f == "version" && i+1 < len(fields) {
			return fields[i+1]
		}
	}
	return strings.TrimSpace(line)
}

// CachedDoctor wraps a Doctor to cache probe results with a TTL.
type CachedDoctor struct {
	doctor Doctor
	ttl    time.Duration
	logger *slog.Logger

	mu     sync.RWMutex
	cached *Capabilities
}

func NewCachedDoctor(doctor Doctor, logger *slog.Logger) *CachedDoctor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &CachedDoctor{
		doctor: doctor,
		ttl:    defaultCacheTTL,
		logger: logger,
	}
}

// Get returns cached capabilities if fresh, otherwise re-probes.
func (d *CachedDoctor) Get(ctx context.Context) (*Capabilities, error) {
	d.mu.RLock()
	if d.cached != nil && time.Since(d.cached.ProbedAt) < d.ttl {
		caps := d.cached
		d.mu.RUnlock()
		return caps, nil
	}
	d.mu.RUnlock()

	return d.Refresh(ctx)
}

func (d *CachedDoctor) Peek() *Capabilities {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cached
}

// Refresh forces a new probe regardless of cache freshness.
func (d *CachedDoctor) Refresh(ctx context.Context) (*Capabilities, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	caps, err := d.doctor.RunDoctor(ctx)
	if err != nil {
		d.logger.Warn("doctor probe failed", "error", err)
		// Return stale cache if available
		if d.cached != nil {
			d.logger.Info("returning stale capabilities cache")
			return d.cached, nil
		}
		return caps, err
	}

	d.cached = caps
	return caps, nil
}

// Invalidate clears the cached capabilities.
func (d *CachedDoctor) Invalidate() {
	d.mu.Lock()
	d.cached = nil
	d.mu.Unlock()
}
