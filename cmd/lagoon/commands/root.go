package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	apiToken   string
	baseURL    string
	apiTimeout time.Duration
	logLevel   string
	jsonOutput bool
	checkMode  bool
	stateDB    string
)

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lagoon",
		Short: "Lagoon - declarative DigitalOcean automation",
		Long: `Lagoon reconciles declared resource manifests against the DigitalOcean
API and serves a dynamic inventory of the resulting droplets.

Features:
  - Typed manifests via CUE
  - Per-resource present/absent/active/inactive reconciliation
  - Dynamic inventory with Starlark filtering and sqlite caching
  - Rego policy checks (advisory or enforcing)
  - SSH onboarding of freshly created droplets`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiToken, "token", "", "DigitalOcean API token (defaults to DO_API_TOKEN and friends)")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "API base URL override")
	rootCmd.PersistentFlags().DurationVar(&apiTimeout, "timeout", 30*time.Second, "per-request API timeout")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&checkMode, "check", false, "report would-be changes without mutating anything")
	rootCmd.PersistentFlags().StringVar(&stateDB, "state-db", "", "path to the sqlite state database (default ~/.lagoon/lagoon.db)")

	rootCmd.AddCommand(newApplyCommand())
	rootCmd.AddCommand(newDestroyCommand())
	rootCmd.AddCommand(newGetCommand())
	rootCmd.AddCommand(newInventoryCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newOnboardCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newWatchCommand())
	rootCmd.AddCommand(newVersionCommand(version, commit, buildDate))

	return rootCmd
}
