package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// newProbeCmd creates the 'probe' subcommand. It prints one liveness check
// per configured dependency and fails when any is unreachable, which suits
// container health checks.
func newProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Checks configured dependencies once and exits",
		RunE:  runProbeCommand,
	}
}

func runProbeCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd.Context())
	if err != nil {
		return err
	}
	runner, err := newRunner(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer runner.Close()

	statuses := runner.ProbeOnce(cmd.Context())
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(statuses); err != nil {
		return fmt.Errorf("encode probe results: %w", err)
	}

	var down []string
	for _, s := range statuses {
		if !s.Reachable {
			down = append(down, s.Name)
		}
	}
	if len(down) > 0 {
		return fmt.Errorf("unreachable dependencies: %v", down)
	}
	return nil
}
