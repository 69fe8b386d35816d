package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newServeCmd creates the 'serve' subcommand.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Bootstraps the API and listens until SIGINT or SIGTERM",
		Long: `Probes dependencies, installs the full route table (or the fallback table
when registration fails), binds the configured port and serves until a
termination signal arrives. A port that cannot be bound exits non-zero.`,
		RunE: runServeCommand,
	}
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd.Context())
	if err != nil {
		return err
	}
	runner, err := newRunner(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer runner.Close()
	return runner.Run(cmd.Context())
}
