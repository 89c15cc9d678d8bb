package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newHistoryCommand() *cobra.Command {
	var (
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past reconcile runs",
		Long: `List recorded reconcile runs from the local state database, newest
first. Each apply or destroy records one run per resource.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}

			runs, err := store.ListRuns(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(runs)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tOPERATION\tRESOURCE\tSTATUS\tCHANGED\tERROR")
			for _, run := range runs {
				errMsg := ""
				if run.Error != nil {
					errMsg = *run.Error
				}
				fmt.Fprintf(w, "%s\t%s\t%s/%s\t%s\t%t\t%s\n",
					run.StartedAt.Local().Format("2006-01-02 15:04:05"),
					run.Operation, run.ResourceType, run.ResourceName,
					run.Status, run.Changed, errMsg)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum runs to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "runs to skip")

	return cmd
}
