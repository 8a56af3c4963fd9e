package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	statePath  string
	logLevel   string
	logFormat  string
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "captura",
		Short: "Captura - declarative deployment orchestrator",
		Long: `Captura deploys and reconciles the resources of a small web platform
from a declarative stack document.

It plans the minimal set of create, update, delete, and replace
operations by diffing the declared stack against the last-applied
state, then executes them in dependency order:
  - Compute instances, DNS record sets, proxy route sets, TLS certificates
  - Typed stack documents via CUE
  - Durable SQLite state with idempotent re-apply
  - Policy guardrails evaluated before destructive changes`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "settings file path (TOML)")
	rootCmd.PersistentFlags().StringVar(&statePath, "state", "", "state database path (overrides settings)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: console or json")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newApplyCommand())
	rootCmd.AddCommand(newDestroyCommand())
	rootCmd.AddCommand(newBootstrapCommand())
	rootCmd.AddCommand(newStateCommand())
	rootCmd.AddCommand(newWatchCommand())

	return rootCmd
}
