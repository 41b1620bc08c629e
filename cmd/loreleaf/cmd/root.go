// Package cmd provides the CLI commands for loreleaf.
package cmd

import (
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/loreleaf/loreleaf/internal/logging"
	"github.com/loreleaf/loreleaf/pkg/version"
)

var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the loreleaf CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loreleaf",
		Short: "Hybrid retrieval over a curated passage corpus",
		Long: `loreleaf indexes a passage corpus and serves hybrid search:
BM25 keyword scoring and semantic vector scoring run concurrently,
their scores are fused, and an optional reranker refines the top
results. Serves REST and MCP.

Start with 'loreleaf init', then 'loreleaf load passages.jsonl'.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("loreleaf version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.loreleaf/logs/")
	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = func(_ *cobra.Command, _ []string) {
		if loggingCleanup != nil {
			loggingCleanup()
		}
	}

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newLoadCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func setupLogging(_ *cobra.Command, _ []string) error {
	if !debugMode {
		return nil
	}
	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return err
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

// Execute runs the CLI.
func Execute() error {
	// A .env in the working directory supplies LORELEAF_* overrides.
	_ = godotenv.Load()
	return NewRootCmd().Execute()
}
