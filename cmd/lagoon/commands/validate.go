package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openlagoon/openlagoon/pkg/policy"
)

func newValidateCommand() *cobra.Command {
	var policyDirs []string

	cmd := &cobra.Command{
		Use:   "validate [manifest...]",
		Short: "Validate manifests without touching the API",
		Long: `Parse and type-check the given manifests and evaluate policies against
them. No API calls are made; validation succeeds even without a token.`,
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

			result, err := a.checkPolicies(cmd.Context(), manifest, policy.ModeAdvisory, policyDirs)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(map[string]any{
					"valid":      true,
					"resources":  len(manifest.Resources),
					"files":      manifest.SourceFiles,
					"violations": result.Violations,
				})
			}

			fmt.Fprintf(os.Stdout, "Manifest valid: %d resource(s) from %d file(s)\n",
				len(manifest.Resources), len(manifest.SourceFiles))
			for _, decl := range manifest.Resources {
				fmt.Fprintf(os.Stdout, "  %s/%s -> %s\n", decl.Type, decl.Name, decl.State)
			}
			if len(result.Violations) > 0 {
				fmt.Fprintf(os.Stdout, "%d policy violation(s) reported.\n", len(result.Violations))
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&policyDirs, "policy-dir", nil, "directories with additional .rego policies")

	return cmd
}
