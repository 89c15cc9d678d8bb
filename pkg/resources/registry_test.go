package resources

import (
	"strings"
	"testing"

	"github.com/openlagoon/openlagoon/pkg/engine"
)

func TestRegistryBuild(t *testing.T) {
	registry := NewRegistry()
	module, err := registry.Build("droplet", Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if module.Type() != "droplet" {
		t.Errorf("Type() = %q, want droplet", module.Type())
	}
}

func TestRegistryUnknownType(t *testing.T) {
	registry := NewRegistry()
	_, err := registry.Build("teleporter", Options{})
	if !engine.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "unknown resource type") {
		t.Errorf("unexpected message: %v", err)
	}
}

func TestRegistryTypesSorted(t *testing.T) {
	types := NewRegistry().Types()
	if len(types) < 16 {
		t.Fatalf("expected at least 16 built-in types, got %d: %v", len(types), types)
	}
	for i := 1; i < len(types); i++ {
		if types[i-1] >= types[i] {
			t.Fatalf("types not sorted: %v", types)
		}
	}
	seen := map[string]bool{}
	for _, typ := range types {
		seen[typ] = true
	}
	for _, want := range []string{"droplet", "volume", "kubernetes_cluster", "monitor_alert", "vpc"} {
		if !seen[want] {
			t.Errorf("missing built-in type %q", want)
		}
	}
}

func TestRegistryRegisterOverride(t *testing.T) {
	registry := NewRegistry()
	registry.Register("custom", func(o Options) Module { return NewTagModule(o) })
	module, err := registry.Build("custom", Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if module == nil {
		t.Fatal("nil module from registered factory")
	}
}
