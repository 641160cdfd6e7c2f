package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tailor-media/tailor/internal/batch"
	"github.com/tailor-media/tailor/internal/executor"
	"github.com/tailor-media/tailor/internal/export"
	"github.com/tailor-media/tailor/internal/issues"
	"github.com/tailor-media/tailor/internal/manifest"
	"github.com/tailor-media/tailor/internal/media"
	"github.com/tailor-media/tailor/internal/naming"
	"github.com/tailor-media/tailor/internal/pipeline"
	"github.com/tailor-media/tailor/internal/timemodel"
)

const exitBlocked = 2

func newPlanCmd() *cobra.Command {
	var asJSON bool
	var edlPath string
	var fps float64

	cmd := &cobra.Command{
		Use:   "plan <manifest.toml>",
		Short: "Preview output names and collisions without transcoding",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manifest.Load(args[0])
			if err != nil {
				return err
			}
			env, err := loadCLIEnv()
			if err != nil {
				return err
			}

			preview, err := env.pipeline("").Plan(cmd.Context(), m)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(preview); err != nil {
					return err
				}
			} else {
				printPlan(out, preview.Plan)
			}

			if edlPath != "" {
				if err := writeEDLFile(edlPath, args[0], preview.Plan, fps); err != nil {
					return err
				}
				fmt.Fprintln(cmd.ErrOrStderr(), "edl:", edlPath)
			}

			if m.OnCollision == manifest.ActionBlock && preview.Plan.Collisions.HasConflicts() {
				return &exitError{code: exitBlocked, err: fmt.Errorf("%w: %d conflicting file names",
					issues.ErrFilenameCollision, len(preview.Plan.Collisions.Conflicts))}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the plan as JSON")
	cmd.Flags().StringVar(&edlPath, "edl", "", "also write the planned segments as a CMX3600 EDL")
	cmd.Flags().Float64Var(&fps, "fps", export.DefaultFrameRate, "frame rate for EDL timecodes")
	return cmd
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <manifest.toml>",
		Short: "Plan and transcode a manifest in the foreground",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manifest.Load(args[0])
			if err != nil {
				return err
			}
			env, err := loadCLIEnv()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			id := batch.NewID()
			res, err := env.pipeline(env.cfg.ReportsDir()).Run(ctx, m, pipelineHooks(id, out))
			if err != nil {
				if batch.IsBlocked(err) {
					if res != nil {
						printConflicts(out, res.Plan.Collisions)
					}
					return &exitError{code: exitBlocked, err: err}
				}
				return err
			}

			printResult(out, res.Result, res.ReportPath)
			if ctx.Err() != nil {
				return errors.New("cancelled")
			}
			if n := len(res.Result.Failed); n > 0 && n == len(res.Result.Outcomes) {
				return fmt.Errorf("all %d tasks failed", n)
			}
			return nil
		},
	}
	return cmd
}

func newScanCmd() *cobra.Command {
	var outputDir string
	var asManifest bool

	cmd := &cobra.Command{
		Use:   "scan <dir>",
		Short: "List videos under a directory, optionally as a starter manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			paths, err := media.ScanVideos(root)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !asManifest {
				for _, p := range paths {
					fmt.Fprintln(out, p)
				}
				return nil
			}

			if outputDir == "" {
				outputDir = filepath.Join(root, "segments")
			}
			data, err := manifest.Encode(manifest.Starter(paths, outputDir))
			if err != nil {
				return err
			}
			_, err = out.Write(data)
			return err
		},
	}
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "output_dir for the starter manifest")
	cmd.Flags().BoolVar(&asManifest, "manifest", false, "print a starter TOML manifest")
	return cmd
}

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check ffmpeg and ffprobe availability",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadCLIEnv()
			if err != nil {
				return err
			}
			caps, err := env.tools.RunDoctor(cmd.Context())
			out := cmd.OutOrStdout()
			if caps != nil {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(caps); encErr != nil {
					return encErr
				}
				if caps.Ready() && !caps.HasLibx264 {
					fmt.Fprintln(out, "warning: ffmpeg has no libx264 encoder; set codec.video in the manifest")
				}
			}
			return err
		},
	}
}

func pipelineHooks(batchID string, out io.Writer) pipeline.Hooks {
	return pipeline.Hooks{
		BatchID: batchID,
		OnPlanned: func(plan naming.Plan, root string) {
			fmt.Fprintf(out, "writing %d files to %s\n", len(plan.Tasks), root)
		},
		OnProgress: func(p executor.Progress) {
			line := fmt.Sprintf("[%d/%d] %s %s", p.Done, p.Total, p.Outcome.Status, p.Outcome.Task.RelPath)
			if p.Outcome.Err != nil {
				line += ": " + p.Outcome.Err.Error()
			}
			fmt.Fprintln(out, line)
		},
	}
}

func writeEDLFile(path, manifestPath string, plan naming.Plan, fps float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	title := strings.TrimSuffix(filepath.Base(manifestPath), filepath.Ext(manifestPath))
	if err := export.WriteEDL(f, title, export.FromPlan(plan.Tasks), fps); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printPlan(out io.Writer, plan naming.Plan) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tVIDEO\tSUBJECT\tRANGE\tOUTPUT")
	for _, t := range plan.Tasks {
		subject := string(t.SubjectID)
		if subject == "" {
			subject = "-"
		}
		name := t.RelPath
		if t.Renamed() {
			name += " (was " + t.Candidate + ")"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s-%s\t%s\n", t.Seq, t.VideoID, subject,
			timemodel.FormatHMS(t.Range.Start), timemodel.FormatHMS(t.Range.End), name)
	}
	tw.Flush()

	printConflicts(out, plan.Collisions)
	for _, w := range plan.Warnings {
		fmt.Fprintln(out, "warning:", w.String())
	}
}

func printConflicts(out io.Writer, report naming.CollisionReport) {
	for _, c := range report.Conflicts {
		fmt.Fprintf(out, "conflict: %s claimed by %d outputs from %s\n",
			c.RelPath, len(c.Members), strings.Join(c.Videos(), ", "))
	}
}

func printResult(out io.Writer, res *executor.Result, reportPath string) {
	if res == nil {
		return
	}
	fmt.Fprintf(out, "%d succeeded, %d failed, %s\n",
		len(res.Succeeded), len(res.Failed), humanize.Bytes(uint64(max(res.TotalBytes, 0))))
	for _, f := range res.Failed {
		fmt.Fprintf(out, "failed: %s: %s\n", f.Task.RelPath, f.Reason)
	}
	if res.PackagingErr != nil {
		fmt.Fprintln(out, "packaging failed:", res.PackagingErr)
	}
	fmt.Fprintln(out, "delivered:", res.DeliveredPath)
	if reportPath != "" {
		fmt.Fprintln(out, "report:", reportPath)
	}
}

