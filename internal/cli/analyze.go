package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/raaihank/piiwatch/internal/app"
	"github.com/raaihank/piiwatch/internal/scan"
	"github.com/spf13/cobra"
)

type analyzeOptions struct {
	file string
	fail bool
}

func newAnalyzeCmd(g *globalOptions) *cobra.Command {
	opts := &analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze [text]",
		Short: "Analyze text, a file or stdin for PII",
		Example: `  piictl analyze "call 555-123-4567"
  piictl analyze --file notes.txt
  cat dump.txt | piictl analyze --fail`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.file != "" && len(args) > 0 {
				return fmt.Errorf("pass either text or --file, not both")
			}

			cfg, log, err := g.setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			detector, closeDetector, err := app.NewDetector(cfg, log)
			if err != nil {
				return err
			}
			defer closeDetector()
			scans := scan.NewManager(scan.Config{Analyzer: detector}, log)

			var report interface{}
			var found int
			switch {
			case opts.file != "":
				content, err := os.ReadFile(opts.file)
				if err != nil {
					return err
				}
				r := scans.AnalyzeFile(cmd.Context(), filepath.Base(opts.file), content)
				report, found = r, r.PIICount
			default:
				text := strings.Join(args, " ")
				if len(args) == 0 {
					raw, err := io.ReadAll(cmd.InOrStdin())
					if err != nil {
						return err
					}
					text = scan.DecodeText(raw)
				}
				r := scans.AnalyzeText(cmd.Context(), text)
				report, found = r, r.TotalFindings
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
			if opts.fail && found > 0 {
				return errFindings
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "File to analyze (UTF-8 or Latin-1)")
	cmd.Flags().BoolVar(&opts.fail, "fail", false, "Exit non-zero when PII is found")
	return cmd
}
