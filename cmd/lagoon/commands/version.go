package commands

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

func newVersionCommand(version, commit, buildDate string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			if jsonOutput {
				return printJSON(map[string]string{
					"version":    version,
					"commit":     commit,
					"build_date": buildDate,
					"go_version": runtime.Version(),
					"platform":   runtime.GOOS + "/" + runtime.GOARCH,
				})
			}
			fmt.Fprintf(os.Stdout, "lagoon %s\n", version)
			fmt.Fprintf(os.Stdout, "  commit:     %s\n", commit)
			fmt.Fprintf(os.Stdout, "  built:      %s\n", buildDate)
			fmt.Fprintf(os.Stdout, "  go version: %s\n", runtime.Version())
			fmt.Fprintf(os.Stdout, "  platform:   %s/%s\n", runtime.GOOS, runtime.GOARCH)
			return nil
		},
	}
}
