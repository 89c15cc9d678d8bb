package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openlagoon/openlagoon/pkg/config"
	"github.com/openlagoon/openlagoon/pkg/engine"
	"github.com/openlagoon/openlagoon/pkg/policy"
)

func newDestroyCommand() *cobra.Command {
	var (
		policyMode  string
		policyDirs  []string
		autoApprove bool
	)

	cmd := &cobra.Command{
		Use:   "destroy [manifest...]",
		Short: "Destroy every resource declared in the manifests",
		Long: `Parse the given manifests and drive every declared resource to absent,
in reverse declaration order so dependents go before their dependencies.

Policies are evaluated against the destroy intent first; resources labeled
protected=true are blocked in enforcing mode.`,
		Example: `  # Destroy with confirmation prompt
  lagoon destroy infra/

  # Destroy without prompting
  lagoon destroy --auto-approve infra/`,
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

			// Policies see the destroy intent, not the declared states.
			intent := &config.Manifest{
				Workspace: manifest.Workspace,
				Resources: make([]config.ResourceDecl, len(manifest.Resources)),
			}
			copy(intent.Resources, manifest.Resources)
			for i := range intent.Resources {
				intent.Resources[i].State = engine.StateAbsent
			}

			ctx := cmd.Context()
			policyResult, err := a.checkPolicies(ctx, intent, policy.Mode(policyMode), policyDirs)
			if err != nil {
				return err
			}

			if !autoApprove && !checkMode {
				if !confirm(fmt.Sprintf("Destroy %d resource(s)?", len(manifest.Resources))) {
					fmt.Fprintln(os.Stdout, "Destroy cancelled.")
					return nil
				}
			}

			summary, runErr := a.runManifest(ctx, "destroy", manifest, true)
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
	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "skip the confirmation prompt")

	return cmd
}

func confirm(prompt string) bool {
	fmt.Fprintf(os.Stdout, "%s Only 'yes' is accepted: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	return strings.TrimSpace(answer) == "yes"
}
