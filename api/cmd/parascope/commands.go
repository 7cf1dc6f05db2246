package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"parascope/api/internal/app"
	"parascope/api/internal/report"
	"parascope/api/internal/sample"
)

var (
	exportDir string
	olderThan time.Duration
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if err := a.Migrate(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		})
	},
}

var createCmd = &cobra.Command{
	Use:   "create <image-ref>",
	Short: "Register a sample in pending state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if err := a.Images.Validate(args[0]); err != nil {
				return err
			}
			s, err := a.Pipeline.Submit(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), s.ID)
			return nil
		})
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <sample-id>",
	Short: "Run the analysis pipeline for a pending sample",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if err := a.Cfg.ValidateVision(); err != nil {
				return err
			}
			out, err := a.Pipeline.Analyze(ctx, args[0])
			if out.SampleID != "" {
				_ = printJSON(cmd, out)
			}
			var rce *sample.ReportCreationError
			if errors.As(err, &rce) {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
				return nil
			}
			var ae *sample.AnalysisError
			if errors.As(err, &ae) {
				return fmt.Errorf("analysis failed (%s): %w", ae.Reason, err)
			}
			return err
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <sample-id>",
	Short: "Show a sample",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			s, err := a.Samples.Get(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, s)
		})
	},
}

var reportCmd = &cobra.Command{
	Use:   "report <sample-id>",
	Short: "Print the report as paginated text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			rep, err := loadReport(ctx, a, args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for i, p := range report.Paginate(report.Document(rep), a.Renderer.Layout) {
				if i > 0 {
					fmt.Fprintln(w, strings.Repeat("-", a.Renderer.Layout.MaxChars))
				}
				fmt.Fprintln(w, strings.Join(p.Lines, "\n"))
				fmt.Fprintf(w, "\n%s\n", p.Footer)
			}
			return nil
		})
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <sample-id>",
	Short: "Render the report pages as PNG files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			rep, err := loadReport(ctx, a, args[0])
			if err != nil {
				return err
			}
			if err := os.MkdirAll(exportDir, 0o755); err != nil {
				return err
			}
			paths, err := exportPages(ctx, a.Renderer, rep, exportDir)
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		})
	},
}

var failStuckCmd = &cobra.Command{
	Use:   "fail-stuck",
	Short: "Mark samples stuck in processing as failed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			age := olderThan
			if age <= 0 {
				age = a.Cfg.StuckAfter
			}
			n, err := a.Pipeline.FailStuck(ctx, age)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "failed %d stuck sample(s)\n", n)
			return nil
		})
	},
}

// loadReport returns the stored report, creating it for a completed sample
// whose report insert failed earlier.
func loadReport(ctx context.Context, a *app.App, id string) (*sample.Report, error) {
	rep, err := a.Reports.Get(ctx, id)
	if errors.Is(err, sample.ErrNotFound) {
		return a.Pipeline.CreateReport(ctx, id)
	}
	return rep, err
}

// exportPages renders every page concurrently; file order follows page order.
func exportPages(ctx context.Context, r *report.Renderer, rep *sample.Report, dir string) ([]string, error) {
	pages := report.Paginate(report.Document(rep), r.Layout)
	paths := make([]string, len(pages))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, p := range pages {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			png, err := r.RenderPNG(p)
			if err != nil {
				return err
			}
			path := filepath.Join(dir, fmt.Sprintf("%s-page-%d.png", rep.SampleID, p.Number))
			if err := os.WriteFile(path, png, 0o644); err != nil {
				return err
			}
			paths[i] = path
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
