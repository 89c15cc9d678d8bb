package commands

import (
	"github.com/spf13/cobra"

	"github.com/openlagoon/openlagoon/pkg/policy"
)

func newApplyCommand() *cobra.Command {
	var (
		policyMode string
		policyDirs []string
	)

	cmd := &cobra.Command{
		Use:   "apply [manifest...]",
		Short: "Reconcile manifest resources against the API",
		Long: `Parse the given CUE manifest files or directories, evaluate policies,
and reconcile every declared resource to its target state. With no
arguments the current directory is used.

Resources are reconciled sequentially in declaration order. With --check
no mutating API calls are issued and the would-be changes are reported.`,
		Example: `  # Apply the manifests in the current directory
  lagoon apply

  # Dry-run a specific manifest
  lagoon apply --check infra.cue

  # Enforce policies from a directory
  lagoon apply --policy-mode enforcing --policy-dir ./policies infra/`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			manifest, err := loadManifest(args)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			policyResult, err := a.checkPolicies(ctx, manifest, policy.Mode(policyMode), policyDirs)
			if err != nil {
				return err
			}

			summary, runErr := a.runManifest(ctx, "apply", manifest, false)
			if summary != nil {
				summary.Violations = policyResult.Violations
				if err := report(summary); err != nil {
					return err
				}
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&policyMode, "policy-mode", string(policy.ModeAdvisory), "policy enforcement mode (advisory, enforcing)")
	cmd.Flags().StringSliceVar(&policyDirs, "policy-dir", nil, "directories with additional .rego policies")

	return cmd
}
