// Package config provides configuration management for tailor.
// Configuration is loaded from environment variables with sensible defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	// Default values
	DefaultPort     = 8797
	DefaultLogLevel = "info"
	DefaultDataDir  = ".tailor"

	// Environment variable names
	EnvPort     = "TAILOR_PORT"
	EnvLogLevel = "TAILOR_LOG_LEVEL"
	EnvDataDir  = "TAILOR_DATA_DIR"

	// Tool and execution environment variable names
	EnvFFmpeg           = "TAILOR_FFMPEG"
	EnvFFprobe          = "TAILOR_FFPROBE"
	EnvWorkers          = "TAILOR_WORKERS"
	EnvZipThresholdMB   = "TAILOR_ZIP_THRESHOLD_MB"
	EnvTranscodeTimeout = "TAILOR_TRANSCODE_TIMEOUT"
	EnvHeadless         = "TAILOR_HEADLESS"

	// Database filename
	DBFilename = "tailor.db"

	// Execution defaults
	DefaultWorkers          = 1
	DefaultZipThresholdMB   = 500
	DefaultTranscodeTimeout = 3600 // seconds, per segment
	maxWorkers              = 16
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	ReportsDir() string
	FFmpegPath() string
	FFprobePath() string
	Workers() int
	ZipThresholdBytes() int64
	TranscodeTimeout() time.Duration
	Headless() bool
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port     int
	logLevel string
	dataDir  string

	ffmpegPath       string
	ffprobePath      string
	workers          int
	zipThresholdMB   int64
	transcodeTimeout time.Duration
	headless         bool
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:             DefaultPort,
		logLevel:         DefaultLogLevel,
		dataDir:          defaultDataDir(),
		workers:          DefaultWorkers,
		zipThresholdMB:   DefaultZipThresholdMB,
		transcodeTimeout: DefaultTranscodeTimeout * time.Second,
	}

	// Override port from environment
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	// Override log level from environment
	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}

	// Override data directory from environment
	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	cfg.ffmpegPath = os.Getenv(EnvFFmpeg)
	cfg.ffprobePath = os.Getenv(EnvFFprobe)

	if w := os.Getenv(EnvWorkers); w != "" {
		workers, err := strconv.Atoi(w)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvWorkers, err)
		}
		if workers < 1 || workers > maxWorkers {
			return nil, fmt.Errorf("invalid %s: must be between 1 and %d", EnvWorkers, maxWorkers)
		}
		cfg.workers = workers
	}

	// A negative threshold disables packaging.
	if z := os.Getenv(EnvZipThresholdMB); z != "" {
		mb, err := strconv.ParseInt(z, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvZipThresholdMB, err)
		}
		cfg.zipThresholdMB = mb
	}

	if ts := os.Getenv(EnvTranscodeTimeout); ts != "" {
		secs, err := strconv.Atoi(ts)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvTranscodeTimeout, err)
		}
		if secs < 0 {
			return nil, fmt.Errorf("invalid %s: must not be negative", EnvTranscodeTimeout)
		}
		cfg.transcodeTimeout = time.Duration(secs) * time.Second
	}

	if h := os.Getenv(EnvHeadless); h != "" {
		headless, err := strconv.ParseBool(h)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvHeadless, err)
		}
		cfg.headless = headless
	}

	return cfg, nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// ReportsDir is where per-batch CSV reports are written
func (c *EnvConfig) ReportsDir() string {
	return filepath.Join(c.dataDir, "reports")
}

func (c *EnvConfig) FFmpegPath() string {
	return c.ffmpegPath
}

func (c *EnvConfig) FFprobePath() string {
	return c.ffprobePath
}

func (c *EnvConfig) Workers() int {
	return c.workers
}

// ZipThresholdBytes returns the packaging threshold; negative disables it.
func (c *EnvConfig) ZipThresholdBytes() int64 {
	if c.zipThresholdMB < 0 {
		return -1
	}
	return c.zipThresholdMB * 1024 * 1024
}

func (c *EnvConfig) TranscodeTimeout() time.Duration {
	return c.transcodeTimeout
}

// Headless disables the system tray.
func (c *EnvConfig) Headless() bool {
	return c.headless
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
