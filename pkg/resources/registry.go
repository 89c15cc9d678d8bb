package resources

import (
	"fmt"
	"sort"
	"sync"

	"github.com/openlagoon/openlagoon/pkg/engine"
)

// Factory builds a module from shared options.
type Factory func(Options) Module

// Registry maps resource type names to module factories. The built-in
// modules are registered by NewRegistry; additional modules (such as the
// Spaces bucket module) register themselves at wiring time.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry with every built-in module registered.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("droplet", func(o Options) Module { return NewDropletModule(o) })
	r.Register("firewall", func(o Options) Module { return NewFirewallModule(o) })
	r.Register("project", func(o Options) Module { return NewProjectModule(o) })
	r.Register("ssh_key", func(o Options) Module { return NewSSHKeyModule(o) })
	r.Register("tag", func(o Options) Module { return NewTagModule(o) })
	r.Register("domain", func(o Options) Module { return NewDomainModule(o) })
	r.Register("domain_record", func(o Options) Module { return NewDomainRecordModule(o) })
	r.Register("volume", func(o Options) Module { return NewVolumeModule(o) })
	r.Register("load_balancer", func(o Options) Module { return NewLoadBalancerModule(o) })
	r.Register("database_cluster", func(o Options) Module { return NewDatabaseClusterModule(o) })
	r.Register("kubernetes_cluster", func(o Options) Module { return NewKubernetesClusterModule(o) })
	r.Register("snapshot", func(o Options) Module { return NewSnapshotModule(o) })
	r.Register("cdn_endpoint", func(o Options) Module { return NewCDNEndpointModule(o) })
	r.Register("vpc", func(o Options) Module { return NewVPCModule(o) })
	r.Register("reserved_ip", func(o Options) Module { return NewReservedIPModule(o) })
	r.Register("monitor_alert", func(o Options) Module { return NewMonitorAlertModule(o) })
	return r
}

// Register adds or replaces a factory for a resource type.
func (r *Registry) Register(resourceType string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[resourceType] = factory
}

// Build instantiates the module for a resource type.
func (r *Registry) Build(resourceType string, opts Options) (Module, error) {
	r.mu.RLock()
	factory, ok := r.factories[resourceType]
	r.mu.RUnlock()
	if !ok {
		return nil, engine.NewValidationError(fmt.Sprintf(
			"unknown resource type %q (known types: %v)", resourceType, r.Types()))
	}
	return factory(opts), nil
}

// Types returns the registered resource type names, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
