package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/raaihank/piiwatch/internal/app"
	"github.com/raaihank/piiwatch/internal/batch"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type batchOptions struct {
	input      string
	output     string
	batchSize  int
	workers    int
	maxLength  int
	noValidate bool
}

func newBatchCmd(g *globalOptions) *cobra.Command {
	opts := &batchOptions{}
	def := batch.DefaultConfig()
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Analyze a CSV, Parquet or JSON-lines dataset",
		Long: "batch reads records with a text column (and an optional id column), analyzes them in parallel " +
			"and writes one masked finding per row to a Parquet or JSON-lines file.",
		Example: `  piictl batch --input users.csv --output findings.parquet
  piictl batch --input export.jsonl --workers 8`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.input == "" {
				return fmt.Errorf("please provide --input")
			}

			cfg, log, err := g.setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			detector, closeDetector, err := app.NewDetector(cfg, log)
			if err != nil {
				return err
			}
			defer closeDetector()

			var out batch.Writer
			if opts.output != "" {
				out, err = batch.CreateWriter(opts.output)
				if err != nil {
					return err
				}
			}

			pipeline := batch.NewPipeline(detector, batch.Config{
				BatchSize:      opts.batchSize,
				WorkerCount:    opts.workers,
				ValidateData:   !opts.noValidate,
				MaxTextLength:  opts.maxLength,
				ProgressReport: def.ProgressReport,
			}, log)

			result, err := pipeline.ProcessFile(ctx, opts.input, out)
			if out != nil {
				if cerr := out.Close(); cerr != nil && err == nil {
					err = fmt.Errorf("close output: %w", cerr)
				}
			}
			if err != nil {
				if result != nil && ctx.Err() != nil {
					log.Warn("Batch analysis interrupted", zap.Int64("analyzed", result.Analyzed))
				}
				return err
			}

			printBatchResult(cmd.OutOrStdout(), result, opts.output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "Input dataset (CSV, Parquet or JSON lines)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Findings output (.parquet, otherwise JSON lines)")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", def.BatchSize, "Records per batch")
	cmd.Flags().IntVar(&opts.workers, "workers", def.WorkerCount, "Number of worker goroutines")
	cmd.Flags().IntVar(&opts.maxLength, "max-text-length", def.MaxTextLength, "Skip records longer than this many bytes")
	cmd.Flags().BoolVar(&opts.noValidate, "no-validate", false, "Analyze empty and oversized records instead of skipping them")
	return cmd
}

func printBatchResult(w io.Writer, r *batch.Result, output string) {
	fmt.Fprintf(w, "\n=== Batch Analysis ===\n")
	fmt.Fprintf(w, "Total Records:      %d\n", r.TotalRecords)
	fmt.Fprintf(w, "Analyzed:           %d\n", r.Analyzed)
	fmt.Fprintf(w, "Skipped:            %d\n", r.Skipped)
	fmt.Fprintf(w, "Records With PII:   %d\n", r.RecordsWithPII)
	fmt.Fprintf(w, "Total Findings:     %d\n", r.TotalFindings)
	printCounts(w, "By Severity", r.BySeverity)
	printCounts(w, "By Method", r.ByMethod)
	fmt.Fprintf(w, "Duration:           %v\n", r.Duration.Round(time.Millisecond))
	if output != "" {
		fmt.Fprintf(w, "Findings written to %s\n", output)
	}
}

func printCounts(w io.Writer, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(w, "%s:\n", title)
	for _, k := range keys {
		fmt.Fprintf(w, "  %-16s  %d\n", k, counts[k])
	}
}
