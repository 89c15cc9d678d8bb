package resources

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/openlagoon/openlagoon/pkg/doapi"
	"github.com/openlagoon/openlagoon/pkg/engine"
	"github.com/openlagoon/openlagoon/pkg/telemetry"
)

// ForwardingRule maps a load balancer entry port onto a target port.
type ForwardingRule struct {
	EntryProtocol  string `json:"entry_protocol"`
	EntryPort      int    `json:"entry_port"`
	TargetProtocol string `json:"target_protocol"`
	TargetPort     int    `json:"target_port"`
	CertificateID  string `json:"certificate_id,omitempty"`
	TLSPassthrough bool   `json:"tls_passthrough,omitempty"`
}

// HealthCheck is the load balancer health check configuration.
type HealthCheck struct {
	Protocol               string `json:"protocol,omitempty"`
	Port                   int    `json:"port,omitempty"`
	Path                   string `json:"path,omitempty"`
	CheckIntervalSeconds   int    `json:"check_interval_seconds,omitempty"`
	ResponseTimeoutSeconds int    `json:"response_timeout_seconds,omitempty"`
	UnhealthyThreshold     int    `json:"unhealthy_threshold,omitempty"`
	HealthyThreshold       int    `json:"healthy_threshold,omitempty"`
}

// LoadBalancer is the provider-side representation of a load balancer.
type LoadBalancer struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	IP     string `json:"ip"`
	Status string `json:"status"`
	Region struct {
		Slug string `json:"slug"`
	} `json:"region"`
	ForwardingRules []ForwardingRule `json:"forwarding_rules"`
	HealthCheck     *HealthCheck     `json:"health_check,omitempty"`
	DropletIDs      []int            `json:"droplet_ids"`
	Tag             string           `json:"tag,omitempty"`
	VPCUUID         string           `json:"vpc_uuid,omitempty"`
	CreatedAt       string           `json:"created_at"`
}

// LoadBalancerSpec is the load_balancer module specification.
type LoadBalancerSpec struct {
	Region          string           `json:"region,omitempty"`
	ForwardingRules []ForwardingRule `json:"forwarding_rules,omitempty"`
	HealthCheck     *HealthCheck     `json:"health_check,omitempty"`
	DropletIDs      []int            `json:"droplet_ids,omitempty"`
	Tag             string           `json:"tag,omitempty"`
	VPCUUID         string           `json:"vpc_uuid,omitempty"`

	// Wait blocks until the load balancer reports status active.
	Wait          *bool `json:"wait,omitempty"`
	WaitTimeout   int   `json:"wait_timeout,omitempty"`
	SleepInterval int   `json:"sleep_interval,omitempty"`
}

func (s *LoadBalancerSpec) wait() bool {
	if s.Wait == nil {
		return true
	}
	return *s.Wait
}

func (s *LoadBalancerSpec) waitConfig() engine.WaitConfig {
	cfg := engine.DefaultWaitConfig()
	// Load balancers provision slowly; triple the default budget unless the
	// caller set one.
	cfg.Timeout = 6 * time.Minute
	if s.WaitTimeout != 0 {
		cfg.Timeout = time.Duration(s.WaitTimeout) * time.Second
	}
	if s.SleepInterval != 0 {
		cfg.SleepInterval = time.Duration(s.SleepInterval) * time.Second
	}
	return cfg
}

// LoadBalancerModule reconciles load balancers by name.
type LoadBalancerModule struct {
	opts Options
	log  *telemetry.Logger
}

// NewLoadBalancerModule creates the load_balancer module.
func NewLoadBalancerModule(opts Options) *LoadBalancerModule {
	return &LoadBalancerModule{opts: opts, log: opts.logger("load_balancer")}
}

// Type implements Module.
func (m *LoadBalancerModule) Type() string { return "load_balancer" }

// Reconcile implements Module.
func (m *LoadBalancerModule) Reconcile(ctx context.Context, req Request) (*engine.Result, error) {
	var spec LoadBalancerSpec
	if err := decodeSpec(req.Spec, "load_balancer", &spec); err != nil {
		return nil, err
	}
	waitCfg := spec.waitConfig()
	if err := waitCfg.Validate(); err != nil {
		return nil, err
	}

	client := m.opts.Client

	body := map[string]any{
		"name":             req.Name,
		"region":           spec.Region,
		"forwarding_rules": spec.ForwardingRules,
	}
	if spec.HealthCheck != nil {
		body["health_check"] = spec.HealthCheck
	}
	if spec.Tag != "" {
		body["tag"] = spec.Tag
	} else if len(spec.DropletIDs) > 0 {
		body["droplet_ids"] = spec.DropletIDs
	}
	if spec.VPCUUID != "" {
		body["vpc_uuid"] = spec.VPCUUID
	}

	return engine.Reconcile(ctx, req.State, m.opts.CheckMode, engine.Ops[LoadBalancer]{
		Describe: fmt.Sprintf("load balancer %q", req.Name),
		Lookup: func(ctx context.Context) (*LoadBalancer, error) {
			return FindLoadBalancerByName(ctx, client, req.Name)
		},
		Create: func(ctx context.Context) (*LoadBalancer, error) {
			if spec.Region == "" || len(spec.ForwardingRules) == 0 {
				return nil, engine.NewValidationError("region and forwarding_rules are required to create a load balancer")
			}
			var out struct {
				LoadBalancer LoadBalancer `json:"load_balancer"`
			}
			if err := client.Post(ctx, "/load_balancers", body, &out); err != nil {
				return nil, err
			}
			m.log.WithResource("load_balancer", req.Name).Info("load balancer created")
			if !spec.wait() {
				return &out.LoadBalancer, nil
			}
			return m.waitForActive(ctx, out.LoadBalancer.ID, waitCfg)
		},
		NeedsUpdate: func(current *LoadBalancer) (bool, string) {
			if len(spec.ForwardingRules) > 0 && !forwardingRulesEqual(current.ForwardingRules, spec.ForwardingRules) {
				return true, "forwarding rules differ"
			}
			if spec.HealthCheck != nil && !reflect.DeepEqual(current.HealthCheck, spec.HealthCheck) {
				return true, "health check differs"
			}
			return false, ""
		},
		Update: func(ctx context.Context, current *LoadBalancer) (*LoadBalancer, error) {
			var out struct {
				LoadBalancer LoadBalancer `json:"load_balancer"`
			}
			if err := client.Put(ctx, "/load_balancers/"+current.ID, body, &out); err != nil {
				return nil, err
			}
			return &out.LoadBalancer, nil
		},
		Delete: func(ctx context.Context, current *LoadBalancer) error {
			return client.Delete(ctx, "/load_balancers/"+current.ID, nil)
		},
	})
}

func (m *LoadBalancerModule) waitForActive(ctx context.Context, id string, cfg engine.WaitConfig) (*LoadBalancer, error) {
	var last *LoadBalancer
	err := engine.Poll(ctx, cfg, fmt.Sprintf("load balancer %s to become active", id), func(ctx context.Context) (bool, error) {
		var out struct {
			LoadBalancer LoadBalancer `json:"load_balancer"`
		}
		if err := m.opts.Client.Get(ctx, "/load_balancers/"+id, nil, &out); err != nil {
			return false, err
		}
		last = &out.LoadBalancer
		if out.LoadBalancer.Status == "errored" {
			return false, engine.NewPermanentError(fmt.Sprintf("load balancer %s entered errored state", id), nil)
		}
		return out.LoadBalancer.Status == "active", nil
	})
	if err != nil {
		return nil, err
	}
	return last, nil
}

func forwardingRulesEqual(current, desired []ForwardingRule) bool {
	if len(current) != len(desired) {
		return false
	}
	matched := make([]bool, len(current))
outer:
	for _, d := range desired {
		for i, c := range current {
			if !matched[i] && c == d {
				matched[i] = true
				continue outer
			}
		}
		return false
	}
	return true
}

// ListLoadBalancers returns all load balancers.
func ListLoadBalancers(ctx context.Context, client *doapi.Client) ([]LoadBalancer, error) {
	return doapi.ListAll[LoadBalancer](ctx, client, "/load_balancers", "load_balancers", nil)
}

// FindLoadBalancerByName returns the named load balancer, or nil.
func FindLoadBalancerByName(ctx context.Context, client *doapi.Client, name string) (*LoadBalancer, error) {
	lbs, err := ListLoadBalancers(ctx, client)
	if err != nil {
		return nil, err
	}
	for i := range lbs {
		if lbs[i].Name == name {
			return &lbs[i], nil
		}
	}
	return nil, nil
}
