// Package cmd defines and implements the CLI commands for the empire-server executable.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/empire-server/internal/config"
	"github.com/JakeFAU/empire-server/internal/probe"
	"github.com/JakeFAU/empire-server/internal/server"
)

var cfgFile string

// configKeyType is the key for storing the loaded Config in the context.
type configKeyType string

const configKey configKeyType = "config"

// Runner is the part of the application the commands drive. Tests swap in a
// fake through newRunner.
type Runner interface {
	Run(ctx context.Context) error
	ProbeOnce(ctx context.Context) []probe.DependencyStatus
	Close()
}

// newRunner is the application factory.
var newRunner = func(ctx context.Context, cfg config.Config) (Runner, error) {
	app, err := server.Build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return app, nil
}

// newRootCmd creates and configures the root command. Running it without a
// subcommand serves.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "empire-server",
		Short: "Adaptive bootstrap server for the Findawise Empire API.",
		Long: `empire-server probes its dependencies, registers the API route table and
degrades to a minimal status surface when registration fails, so the process
always answers health checks.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
		RunE: runServeCommand,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (environment variables only when empty)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newProbeCmd())

	return cmd
}

func resolveConfig(ctx context.Context) (config.Config, error) {
	cfg, ok := ctx.Value(configKey).(config.Config)
	if !ok {
		return config.Config{}, fmt.Errorf("configuration not loaded")
	}
	return cfg, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "empire-server: %v\n", err)
		os.Exit(1)
	}
}
