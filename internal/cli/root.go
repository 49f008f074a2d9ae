package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/raaihank/piiwatch/internal/config"
	"github.com/raaihank/piiwatch/internal/logger"
	"github.com/raaihank/piiwatch/internal/server"
	"github.com/spf13/cobra"
)

// errFindings makes analyze exit non-zero under --fail
var errFindings = errors.New("PII found")

type globalOptions struct {
	configPath string
	logLevel   string
}

// NewRootCmd builds the piictl command tree
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "piictl",
		Short:         "Offline PII analysis tools",
		Long:          "piictl analyzes text, files and datasets for personally identifiable information, and serves the detector over MCP.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	root.AddCommand(newAnalyzeCmd(opts))
	root.AddCommand(newBatchCmd(opts))
	root.AddCommand(newCacheCmd(opts))
	root.AddCommand(newMCPCmd(opts))
	root.AddCommand(newVersionCmd())
	return root
}

// Execute runs the root command and exits on failure
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		if !errors.Is(err, errFindings) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

// setup loads configuration and a stderr logger at the requested level
func (o *globalOptions) setup() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}
	log, err := logger.New(logger.Config{Level: o.logLevel, Format: "console"})
	if err != nil {
		return nil, nil, fmt.Errorf("initialize logger: %w", err)
	}
	return cfg, log, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "piictl %s\n", server.Version)
		},
	}
}
