package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/tailor-media/tailor/internal/logging"
)

const (
	maxStderrBytes = 8 * 1024 // 8 KB tail of stderr kept for diagnostics
)

// Config holds the runner's configuration.
type Config struct {
	FFmpegPath   string        // path or name of ffmpeg; empty = PATH lookup
	FFprobePath  string        // path or name of ffprobe; empty = PATH lookup
	ProbeTimeout time.Duration // timeout for a single ffprobe call
	Logger       *slog.Logger
	DebugPaths   bool // if true, log full file paths; otherwise sanitise
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig(logger *slog.Logger) Config {
	return Config{
		ProbeTimeout: 30 * time.Second,
		Logger:       logger,
	}
}

// Runner executes ffmpeg and ffprobe as subprocesses. It implements
// media.Prober and media.Transcoder.
type Runner struct {
	cfg     Config
	ffmpeg  string
	ffprobe string
}

// NewRunner resolves both binaries up front.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 30 * time.Second
	}

	ffmpegBin, err := resolveBinary(cfg.FFmpegPath, "ffmpeg")
	if err != nil {
		return nil, err
	}
	ffprobeBin, err := resolveBinary(cfg.FFprobePath, "ffprobe")
	if err != nil {
		return nil, err
	}

	cfg.Logger.Info("ffmpeg runner initialised", "ffmpeg", ffmpegBin, "ffprobe", ffprobeBin)

	return &Runner{cfg: cfg, ffmpeg: ffmpegBin, ffprobe: ffprobeBin}, nil
}

// exec runs bin with args. stdout receives the process output; stderr keeps
// only its tail.
func (r *Runner) exec(ctx context.Context, bin string, stdout io.Writer, args ...string) RunResult {
	start := time.Now()

	cmd := exec.CommandContext(ctx, bin, args...)

	var stderrBuf bytes.Buffer
	cmd.Stderr = &limitedWriter{w: &stderrBuf, limit: maxStderrBytes}
	if stdout == nil {
		stdout = io.Discard
	}
	cmd.Stdout = stdout

	r.cfg.Logger.Debug("executing command", "bin", filepath.Base(bin), "args", args)

	err := cmd.Run()
	elapsed := time.Since(start)

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	stderrTail := stderrBuf.String()
	if exitCode != 0 && stderrTail == "" && err != nil {
		stderrTail = err.Error()
	}

	if exitCode != 0 {
		r.cfg.Logger.Warn("command failed",
			"bin", filepath.Base(bin),
			"exit_code", exitCode,
			"duration_ms", elapsed.Milliseconds(),
			"stderr_tail", truncate(stderrTail, 512),
		)
	}

	return RunResult{
		ExitCode:   exitCode,
		StderrTail: stderrTail,
		Duration:   elapsed,
	}
}

func (r *Runner) safePath(path string) string {
	if r.cfg.DebugPaths {
		return path
	}
	if sanitized := logging.SanitizePath(path); sanitized != path {
		return sanitized
	}
	return filepath.Base(path)
}

// resolveBinary finds a configured tool or falls back to its name on PATH.
func resolveBinary(preferred, name string) (string, error) {
	if preferred != "" {
		if p, err := exec.LookPath(preferred); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("configured %s %q not found", name, preferred)
	}
	if p, err := exec.LookPath(name); err == nil {
		return p, nil
	}
	return "", fmt.Errorf("no %s binary found on PATH", name)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		b := lw.w.Bytes()
		tail := append([]byte(nil), b[len(b)-lw.limit:]...)
		lw.w.Reset()
		lw.w.Write(tail)
	}
	return n, nil
}

// lineWriter splits a stream into lines for fn.
type lineWriter struct {
	buf []byte
	fn  func(line string)
}

func (lw *lineWriter) Write(p []byte) (int, error) {
	lw.buf = append(lw.buf, p...)
	for {
		i := bytes.IndexByte(lw.buf, '\n')
		if i < 0 {
			break
		}
		lw.fn(strings.TrimRight(string(lw.buf[:i]), "\r"))
		lw.buf = lw.buf[i+1:]
	}
	return len(p), nil
}
