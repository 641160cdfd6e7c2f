package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tailor-media/tailor/internal/config"
	"github.com/tailor-media/tailor/internal/ffmpeg"
	"github.com/tailor-media/tailor/internal/logging"
	"github.com/tailor-media/tailor/internal/packaging"
	"github.com/tailor-media/tailor/internal/pipeline"
)

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	root := &cobra.Command{
		Use:           "tailor",
		Short:         "Batch crop and trim planner for long recordings",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newServeCmd(),
		newPlanCmd(),
		newRunCmd(),
		newScanCmd(),
		newDoctorCmd(),
		newVersionCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tailor %s (commit %s, built %s)\n",
				config.Version, config.GitCommit, config.BuildTime)
		},
	}
}

// cliEnv is what the one-shot commands share: config, a stderr logger and
// the ffmpeg tools.
type cliEnv struct {
	cfg    *config.EnvConfig
	logger *slog.Logger
	tools  *ffmpeg.Runner
}

func loadCLIEnv() (*cliEnv, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := logging.NewLoggerTo(os.Stderr, cfg.LogLevel())

	tools, err := ffmpeg.NewRunner(ffmpeg.Config{
		FFmpegPath:  cfg.FFmpegPath(),
		FFprobePath: cfg.FFprobePath(),
		Logger:      logger,
		DebugPaths:  cfg.LogLevel() == "debug",
	})
	if err != nil {
		return nil, fmt.Errorf("ffmpeg tools unavailable: %w", err)
	}
	return &cliEnv{cfg: cfg, logger: logger, tools: tools}, nil
}

func (e *cliEnv) pipeline(reportDir string) *pipeline.Pipeline {
	return pipeline.New(e.tools, e.tools, packaging.NewZipPackager(e.logger), e.logger, pipeline.Options{
		Workers:      e.cfg.Workers(),
		ZipThreshold: e.cfg.ZipThresholdBytes(),
		TaskTimeout:  e.cfg.TranscodeTimeout(),
		ReportDir:    reportDir,
	})
}
