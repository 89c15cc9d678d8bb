package commands

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openlagoon/openlagoon/pkg/doapi"
)

// listEndpoint maps a resource type to its API collection.
type listEndpoint struct {
	path string
	key  string

	// nameField is the attribute matched against the optional name
	// argument. Defaults to "name".
	nameField string
}

var listEndpoints = map[string]listEndpoint{
	"droplet":            {path: "/droplets", key: "droplets"},
	"firewall":           {path: "/firewalls", key: "firewalls"},
	"project":            {path: "/projects", key: "projects"},
	"ssh_key":            {path: "/account/keys", key: "ssh_keys"},
	"tag":                {path: "/tags", key: "tags"},
	"domain":             {path: "/domains", key: "domains"},
	"volume":             {path: "/volumes", key: "volumes"},
	"load_balancer":      {path: "/load_balancers", key: "load_balancers"},
	"database_cluster":   {path: "/databases", key: "databases"},
	"kubernetes_cluster": {path: "/kubernetes/clusters", key: "kubernetes_clusters"},
	"snapshot":           {path: "/snapshots", key: "snapshots"},
	"cdn_endpoint":       {path: "/cdn/endpoints", key: "endpoints", nameField: "origin"},
	"vpc":                {path: "/vpcs", key: "vpcs"},
	"reserved_ip":        {path: "/reserved_ips", key: "reserved_ips", nameField: "ip"},
	"monitor_alert":      {path: "/monitoring/alerts", key: "policies", nameField: "description"},
}

func newGetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <type> [name]",
		Short: "List resources of a type, or show one by name",
		Long: `Fetch resources of the given type from the API. With a name argument only
matching resources are shown. All pages are fetched.`,
		Example: `  # List all droplets
  lagoon get droplet

  # Show one droplet as JSON
  lagoon get droplet web-1 --json`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resourceType := args[0]
			endpoint, ok := listEndpoints[resourceType]
			if !ok {
				return fmt.Errorf("unknown resource type %q (known types: %s)",
					resourceType, strings.Join(knownListTypes(), ", "))
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			client, err := a.api()
			if err != nil {
				return err
			}

			items, err := doapi.ListAll[map[string]any](cmd.Context(), client, endpoint.path, endpoint.key, nil)
			if err != nil {
				return err
			}

			nameField := endpoint.nameField
			if nameField == "" {
				nameField = "name"
			}
			if len(args) == 2 {
				items = filterByField(items, nameField, args[1])
				if len(items) == 0 {
					return fmt.Errorf("%s %q not found", resourceType, args[1])
				}
			}

			if jsonOutput {
				return printJSON(items)
			}
			for _, item := range items {
				name, _ := item[nameField].(string)
				fmt.Fprintf(os.Stdout, "%s\t%s\n", name, itemSummary(item))
			}
			fmt.Fprintf(os.Stdout, "\n%d %s resource(s)\n", len(items), resourceType)
			return nil
		},
	}
	return cmd
}

func knownListTypes() []string {
	types := make([]string, 0, len(listEndpoints))
	for t := range listEndpoints {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func filterByField(items []map[string]any, field, want string) []map[string]any {
	var out []map[string]any
	for _, item := range items {
		if v, _ := item[field].(string); v == want {
			out = append(out, item)
		}
	}
	return out
}

// itemSummary picks the most useful secondary columns for plain output.
func itemSummary(item map[string]any) string {
	var parts []string
	if region, ok := item["region"].(map[string]any); ok {
		if slug, ok := region["slug"].(string); ok {
			parts = append(parts, slug)
		}
	} else if region, ok := item["region"].(string); ok {
		parts = append(parts, region)
	}
	if status, ok := item["status"].(string); ok {
		parts = append(parts, status)
	}
	if id, ok := item["id"].(float64); ok {
		parts = append(parts, fmt.Sprintf("id=%d", int64(id)))
	} else if id, ok := item["id"].(string); ok {
		parts = append(parts, "id="+id)
	}
	return strings.Join(parts, "\t")
}
