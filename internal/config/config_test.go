package config

import (
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{
		EnvPort, EnvLogLevel, EnvDataDir, EnvFFmpeg, EnvFFprobe,
		EnvWorkers, EnvZipThresholdMB, EnvTranscodeTimeout, EnvHeadless,
	} {
		t.Setenv(k, "")
	}
}

func TestNew_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != DefaultPort {
		t.Errorf("Port = %d, want %d", cfg.Port(), DefaultPort)
	}
	if cfg.Workers() != 1 {
		t.Errorf("Workers = %d, want 1", cfg.Workers())
	}
	if cfg.ZipThresholdBytes() != 500*1024*1024 {
		t.Errorf("ZipThresholdBytes = %d, want 500 MiB", cfg.ZipThresholdBytes())
	}
	if cfg.TranscodeTimeout() != time.Hour {
		t.Errorf("TranscodeTimeout = %v, want 1h", cfg.TranscodeTimeout())
	}
	if cfg.Headless() {
		t.Error("Headless should default to false")
	}
	if filepath.Base(cfg.DBPath()) != DBFilename {
		t.Errorf("DBPath = %q, want file %q", cfg.DBPath(), DBFilename)
	}
}

func TestNew_FromEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv(EnvPort, "9000")
	t.Setenv(EnvDataDir, dir)
	t.Setenv(EnvFFmpeg, "/opt/ffmpeg/bin/ffmpeg")
	t.Setenv(EnvWorkers, "4")
	t.Setenv(EnvZipThresholdMB, "-1")
	t.Setenv(EnvTranscodeTimeout, "120")
	t.Setenv(EnvHeadless, "true")

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Port())
	}
	if cfg.ReportsDir() != filepath.Join(dir, "reports") {
		t.Errorf("ReportsDir = %q", cfg.ReportsDir())
	}
	if cfg.FFmpegPath() != "/opt/ffmpeg/bin/ffmpeg" {
		t.Errorf("FFmpegPath = %q", cfg.FFmpegPath())
	}
	if cfg.Workers() != 4 {
		t.Errorf("Workers = %d, want 4", cfg.Workers())
	}
	if cfg.ZipThresholdBytes() >= 0 {
		t.Errorf("ZipThresholdBytes = %d, want negative (disabled)", cfg.ZipThresholdBytes())
	}
	if cfg.TranscodeTimeout() != 2*time.Minute {
		t.Errorf("TranscodeTimeout = %v, want 2m", cfg.TranscodeTimeout())
	}
	if !cfg.Headless() {
		t.Error("Headless = false, want true")
	}
}

func TestNew_InvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{EnvPort, "abc"},
		{EnvPort, "70000"},
		{EnvWorkers, "0"},
		{EnvWorkers, "99"},
		{EnvZipThresholdMB, "lots"},
		{EnvTranscodeTimeout, "-5"},
		{EnvHeadless, "maybe"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			if _, err := New(); err == nil {
				t.Errorf("expected error for %s=%q", tt.key, tt.value)
			}
		})
	}
}
