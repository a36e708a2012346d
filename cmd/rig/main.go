package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"rigged/internal/config"
	"rigged/internal/pipeline"
)

var (
	success = color.New(color.FgGreen, color.Bold)
	warn    = color.New(color.FgYellow, color.Bold)
	danger  = color.New(color.FgRed, color.Bold)
)

func main() {
	root := &cobra.Command{
		Use:          "rig",
		Short:        "Run the rigged market pipelines by hand",
		SilenceUsage: true,
	}

	root.AddCommand(
		newPipelineCmd("scrape", "Fetch external quotes into the real-world collection", (*pipeline.Pipelines).Scrape),
		newPipelineCmd("manipulator", "Derive and store the manipulation factor", (*pipeline.Pipelines).UpdateManipulator),
		newPipelineCmd("market-update", "Apply the manipulator to in-game prices", (*pipeline.Pipelines).UpdateMarket),
		newPipelineCmd("seed", "Seed the in-game stock catalog", (*pipeline.Pipelines).Seed),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newPipelineCmd(name, short string, run func(*pipeline.Pipelines, context.Context) (pipeline.Summary, error)) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			start := time.Now()
			summary, err := run(pipeline.New(cfg, logger), ctx)
			if err != nil {
				danger.Fprintf(os.Stderr, "%s failed: %v\n", name, err)
				return err
			}
			printSummary(name, summary, time.Since(start))
			return nil
		},
	}
}

func printSummary(name string, s pipeline.Summary, took time.Duration) {
	success.Printf("%s complete in %dms\n", name, took.Milliseconds())
	fmt.Printf("  processed: %d  created: %d  updated: %d  skipped: %d\n", s.Processed, s.Created, s.Updated, s.Skipped)
	if s.AverageChange != nil {
		fmt.Printf("  average change: %.4f%%\n", *s.AverageChange)
	}
	if s.Manipulator != nil {
		fmt.Printf("  manipulator: %.2f\n", *s.Manipulator)
	}
	if s.DataSource == "synthetic" {
		warn.Println("  quotes served from synthetic data")
	}
	if s.Failed > 0 {
		danger.Printf("  failures: %d\n", s.Failed)
	}
	if s.Message != "" {
		fmt.Printf("  %s\n", s.Message)
	}
}
