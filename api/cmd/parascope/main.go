// Command parascope is the operator CLI: schema migration, one-off analyses,
// report export and recovery of samples stuck in processing.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"parascope/api/internal/app"
	"parascope/api/internal/config"
	"parascope/api/internal/logger"
)

var (
	verbose bool
	timeout time.Duration

	// openApp is replaced in tests.
	openApp = func(ctx context.Context) (*app.App, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		level := cfg.LogLevel
		if !verbose {
			level = "warn"
		}
		log, err := logger.New(cfg.LogMode, level)
		if err != nil {
			return nil, err
		}
		return app.New(ctx, cfg, log)
	}
)

var rootCmd = &cobra.Command{
	Use:   "parascope",
	Short: "Operate the parasitology analysis service",
	Long: `Operator commands for parascope.

Configuration comes from the same environment (and CONFIG_FILE) as the
server and bot.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "Operation timeout")

	exportCmd.Flags().StringVarP(&exportDir, "out", "o", ".", "Directory for rendered pages")
	failStuckCmd.Flags().DurationVar(&olderThan, "older-than", 0, "Age after which processing samples are failed (default STUCK_AFTER)")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(failStuckCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withApp runs fn with a fresh container bounded by --timeout.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer a.Close()
	return fn(ctx, a)
}
