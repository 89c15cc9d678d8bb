package resources

import (
	"context"
	"fmt"
	"reflect"

	"github.com/openlagoon/openlagoon/pkg/doapi"
	"github.com/openlagoon/openlagoon/pkg/engine"
	"github.com/openlagoon/openlagoon/pkg/telemetry"
)

// FirewallRule is one inbound or outbound rule. Inbound rules carry sources,
// outbound rules destinations.
type FirewallRule struct {
	Protocol     string           `json:"protocol"`
	Ports        string           `json:"ports,omitempty"`
	Sources      *FirewallTargets `json:"sources,omitempty"`
	Destinations *FirewallTargets `json:"destinations,omitempty"`
}

// FirewallTargets enumerates the peers a rule applies to.
type FirewallTargets struct {
	Addresses        []string `json:"addresses,omitempty"`
	DropletIDs       []int    `json:"droplet_ids,omitempty"`
	LoadBalancerUIDs []string `json:"load_balancer_uids,omitempty"`
	Tags             []string `json:"tags,omitempty"`
}

// Firewall is the provider-side representation of a cloud firewall.
type Firewall struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Status        string         `json:"status"`
	InboundRules  []FirewallRule `json:"inbound_rules"`
	OutboundRules []FirewallRule `json:"outbound_rules"`
	DropletIDs    []int          `json:"droplet_ids"`
	Tags          []string       `json:"tags"`
	CreatedAt     string         `json:"created_at"`
}

// FirewallSpec is the firewall module specification.
type FirewallSpec struct {
	InboundRules  []FirewallRule `json:"inbound_rules,omitempty"`
	OutboundRules []FirewallRule `json:"outbound_rules,omitempty"`
	DropletIDs    []int          `json:"droplet_ids,omitempty"`
	Tags          []string       `json:"tags,omitempty"`
}

// FirewallModule reconciles cloud firewalls by name. Rule differences are
// resolved by updating the firewall in place.
type FirewallModule struct {
	opts Options
	log  *telemetry.Logger
}

// NewFirewallModule creates the firewall module.
func NewFirewallModule(opts Options) *FirewallModule {
	return &FirewallModule{opts: opts, log: opts.logger("firewall")}
}

// Type implements Module.
func (m *FirewallModule) Type() string { return "firewall" }

// Reconcile implements Module.
func (m *FirewallModule) Reconcile(ctx context.Context, req Request) (*engine.Result, error) {
	var spec FirewallSpec
	if err := decodeSpec(req.Spec, "firewall", &spec); err != nil {
		return nil, err
	}

	client := m.opts.Client
	body := map[string]any{
		"name":           req.Name,
		"inbound_rules":  spec.InboundRules,
		"outbound_rules": spec.OutboundRules,
		"droplet_ids":    spec.DropletIDs,
		"tags":           spec.Tags,
	}

	return engine.Reconcile(ctx, req.State, m.opts.CheckMode, engine.Ops[Firewall]{
		Describe: fmt.Sprintf("firewall %q", req.Name),
		Lookup: func(ctx context.Context) (*Firewall, error) {
			return FindFirewallByName(ctx, client, req.Name)
		},
		Create: func(ctx context.Context) (*Firewall, error) {
			var out struct {
				Firewall Firewall `json:"firewall"`
			}
			if err := client.Post(ctx, "/firewalls", body, &out); err != nil {
				return nil, err
			}
			m.log.WithResource("firewall", req.Name).Info("firewall created")
			return &out.Firewall, nil
		},
		NeedsUpdate: func(current *Firewall) (bool, string) {
			if !rulesEqual(current.InboundRules, spec.InboundRules) {
				return true, "inbound rules differ"
			}
			if !rulesEqual(current.OutboundRules, spec.OutboundRules) {
				return true, "outbound rules differ"
			}
			return false, ""
		},
		Update: func(ctx context.Context, current *Firewall) (*Firewall, error) {
			var out struct {
				Firewall Firewall `json:"firewall"`
			}
			if err := client.Put(ctx, "/firewalls/"+current.ID, body, &out); err != nil {
				return nil, err
			}
			m.log.WithResource("firewall", req.Name).Info("firewall rules updated")
			return &out.Firewall, nil
		},
		Delete: func(ctx context.Context, current *Firewall) error {
			return client.Delete(ctx, "/firewalls/"+current.ID, nil)
		},
	})
}

// rulesEqual compares rule sets ignoring order.
func rulesEqual(current, desired []FirewallRule) bool {
	if len(current) != len(desired) {
		return false
	}
	matched := make([]bool, len(current))
outer:
	for _, d := range desired {
		for i, c := range current {
			if !matched[i] && reflect.DeepEqual(c, d) {
				matched[i] = true
				continue outer
			}
		}
		return false
	}
	return true
}

// ListFirewalls returns all cloud firewalls.
func ListFirewalls(ctx context.Context, client *doapi.Client) ([]Firewall, error) {
	return doapi.ListAll[Firewall](ctx, client, "/firewalls", "firewalls", nil)
}

// FindFirewallByName returns the firewall with the given name, or nil.
func FindFirewallByName(ctx context.Context, client *doapi.Client, name string) (*Firewall, error) {
	firewalls, err := ListFirewalls(ctx, client)
	if err != nil {
		return nil, err
	}
	for i := range firewalls {
		if firewalls[i].Name == name {
			return &firewalls[i], nil
		}
	}
	return nil, nil
}
