package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tailor-media/tailor/internal/api"
	"github.com/tailor-media/tailor/internal/batch"
	"github.com/tailor-media/tailor/internal/config"
	"github.com/tailor-media/tailor/internal/db"
	"github.com/tailor-media/tailor/internal/ffmpeg"
	"github.com/tailor-media/tailor/internal/logging"
	"github.com/tailor-media/tailor/internal/packaging"
	"github.com/tailor-media/tailor/internal/pipeline"
	"github.com/tailor-media/tailor/internal/playback"
	"github.com/tailor-media/tailor/internal/ui"
)

func newServeCmd() *cobra.Command {
	var headless bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local batch service with its HTTP API and tray icon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(headless)
		},
	}
	cmd.Flags().BoolVar(&headless, "headless", false, "do not show the system tray")
	return cmd
}

func serve(headless bool) error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := os.MkdirAll(cfg.ReportsDir(), 0755); err != nil {
		return fmt.Errorf("failed to create reports dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting tailor", "version", config.Version, "data_dir", cfg.DataDir())

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := batch.NewRepository(database.Conn())

	authToken, err := ensureAuthToken(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	fmt.Println()
	fmt.Printf("  tailor %s\n", config.Version)
	fmt.Printf("  API URL:    http://127.0.0.1:%d\n", cfg.Port())
	fmt.Printf("  Auth Token: %s\n", authToken)
	fmt.Println()

	var pipe *pipeline.Pipeline
	var doctor *ffmpeg.CachedDoctor

	tools, err := ffmpeg.NewRunner(ffmpeg.Config{
		FFmpegPath:  cfg.FFmpegPath(),
		FFprobePath: cfg.FFprobePath(),
		Logger:      logger,
		DebugPaths:  cfg.LogLevel() == "debug",
	})
	if err != nil {
		logger.Warn("ffmpeg unavailable, batches will not run", "error", err)
	} else {
		doctor = ffmpeg.NewCachedDoctor(tools, logger)

		initCtx, initCancel := context.WithTimeout(context.Background(), 20*time.Second)
		if caps, err := doctor.Refresh(initCtx); err != nil {
			logger.Warn("initial doctor probe failed", "error", err)
		} else {
			logger.Info("ffmpeg capabilities detected",
				"ffmpeg", caps.FFmpeg.Version,
				"ffprobe", caps.FFprobe.Version,
				"libx264", caps.HasLibx264,
			)
		}
		initCancel()

		pipe = pipeline.New(tools, tools, packaging.NewZipPackager(logger), logger, pipeline.Options{
			Workers:      cfg.Workers(),
			ZipThreshold: cfg.ZipThresholdBytes(),
			TaskTimeout:  cfg.TranscodeTimeout(),
			ReportDir:    cfg.ReportsDir(),
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	service := batch.NewService(repo, pipe, logger)
	runner := batch.NewRunner(service, repo, doctor, logger)
	go runner.Start(ctx)

	apiServer := api.NewServer(api.ServerConfig{
		Port:           cfg.Port(),
		Batches:        service,
		Repository:     repo,
		PlaybackServer: playback.NewServer(logger),
		Runner:         runner,
		Doctor:         doctor,
		Logger:         logger,
		StartTime:      startTime,
		Version:        config.Version,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	quitCh := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			close(quitCh)
		case <-quitCh:
		}
	}()

	if headless || cfg.Headless() {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray := ui.NewTray(ui.TrayConfig{
			Batches:       service,
			Runner:        runner,
			Logger:        logger,
			OnOpenOutputs: openPath,
			OnQuit: func() {
				close(quitCh)
			},
		})
		go tray.Run(ctx)
	}

	<-quitCh

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func ensureAuthToken(repo batch.Repository) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, api.TokenConfigKey)
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := repo.SetConfig(ctx, api.TokenConfigKey, token); err != nil {
		return "", err
	}

	return token, nil
}

// openPath reveals path in the platform file browser.
func openPath(path string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", path)
	default:
		cmd = exec.Command("xdg-open", path)
	}
	return cmd.Start()
}
