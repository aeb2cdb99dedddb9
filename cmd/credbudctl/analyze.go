package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/opensource-finance/credbud/internal/behavior"
	"github.com/opensource-finance/credbud/internal/ingest"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type fileReport struct {
	File    string          `json:"file" yaml:"file"`
	Format  ingest.Format   `json:"format" yaml:"format"`
	Skipped int             `json:"skippedRows" yaml:"skipped_rows"`
	Report  behavior.Report `json:"report" yaml:"report"`
}

func newAnalyzeCmd() *cobra.Command {
	var (
		maxBytes    int64
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "analyze FILE...",
		Short: "Analyze bank statements without a server",
		Long: `Parse CSV, XLSX or OFX/QFX statements and print the behaviour report
of each file: income, expense, savings rate, category scores and rating.`,
		Example: `  credbudctl analyze ~/Downloads/jan.csv
  credbudctl analyze statements/*.ofx -o yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if concurrency < 1 {
				return fmt.Errorf("--concurrency must be at least 1, got %d", concurrency)
			}
			files, err := expand(args)
			if err != nil {
				return err
			}

			parser := ingest.NewParser(maxBytes)
			reports := make([]fileReport, len(files))

			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(concurrency)
			for i, path := range files {
				g.Go(func() error {
					f, err := os.Open(path)
					if err != nil {
						return err
					}
					defer f.Close()

					res, err := parser.Parse(ctx, filepath.Base(path), f)
					if err != nil {
						return fmt.Errorf("%s: %w", path, err)
					}

					report := behavior.Analyze(res.Rows)
					report.TotalScore = behavior.RoundScore(report.TotalScore)
					reports[i] = fileReport{File: path, Format: res.Format, Skipped: res.Skipped, Report: report}

					slog.Info("statement analyzed", "file", path, "rows", len(res.Rows), "rating", report.Rating)
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			if len(reports) == 1 {
				return render(cmd, reports[0])
			}
			return render(cmd, reports)
		},
	}

	cmd.Flags().Int64Var(&maxBytes, "max-bytes", 5<<20, "largest statement to read")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 4, "files analyzed in parallel")
	return cmd
}

// expand resolves glob patterns, keeping plain paths that match nothing.
func expand(args []string) ([]string, error) {
	var files []string
	for _, pattern := range args {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", pattern, err)
		}
		if len(matches) == 0 {
			files = append(files, pattern)
			continue
		}
		files = append(files, matches...)
	}
	return files, nil
}
