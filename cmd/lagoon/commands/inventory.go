package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/openlagoon/openlagoon/pkg/inventory"
	"github.com/openlagoon/openlagoon/pkg/stores"
)

func newInventoryCommand() *cobra.Command {
	var (
		configPath string
		refresh    bool
		listHosts  bool
	)

	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "Build the dynamic droplet inventory",
		Long: `Build an inventory of droplets grouped by region, size, status, and tag,
with per-host variables under _meta.hostvars. The output is JSON on stdout.

An inventory config file selects attributes, Starlark filters, grouping
keys, and caching. Without one the defaults apply.`,
		Example: `  # Full inventory with defaults
  lagoon inventory

  # From a config file, bypassing the cache
  lagoon inventory --config inventory.yml --refresh

  # Just the host names
  lagoon inventory --list-hosts`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			cfg := &inventory.Config{}
			if configPath != "" {
				cfg, err = inventory.LoadConfig(configPath)
				if err != nil {
					return err
				}
			} else if err := cfg.Normalize(); err != nil {
				return err
			}

			ctx := cmd.Context()
			var store *stores.SQLiteStore
			if cfg.Cache.Enabled {
				store, err = a.openStore(ctx)
				if err != nil {
					return err
				}
			}

			// The config file's token, base URL, and timeout win over the
			// global flags.
			client, err := a.apiWith(cfg.APIToken, cfg.BaseURL, time.Duration(cfg.Timeout)*time.Second)
			if err != nil {
				return err
			}

			builder, err := inventory.NewBuilder(inventory.BuilderOptions{
				Client:  client,
				Config:  cfg,
				Store:   store,
				Logger:  a.tel.Logger,
				Metrics: a.tel.Metrics,
			})
			if err != nil {
				return err
			}

			inv, err := builder.Build(ctx, refresh)
			if err != nil {
				return err
			}

			if listHosts {
				for _, host := range inv.Hosts() {
					fmt.Fprintln(os.Stdout, host)
				}
				return nil
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(inv)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "inventory config file (YAML)")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass and overwrite the cache")
	cmd.Flags().BoolVar(&listHosts, "list-hosts", false, "print host names only")

	return cmd
}
