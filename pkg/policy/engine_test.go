package policy

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openlagoon/openlagoon/pkg/config"
	"github.com/openlagoon/openlagoon/pkg/engine"
)

func manifestWith(resources ...config.ResourceDecl) *config.Manifest {
	return &config.Manifest{Resources: resources}
}

func TestUntaggedDropletWarns(t *testing.T) {
	e, err := NewEngine(ModeAdvisory, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	result, err := e.EvaluateManifest(context.Background(), manifestWith(config.ResourceDecl{
		Type:  "droplet",
		Name:  "web-1",
		State: engine.StatePresent,
		Spec:  map[string]any{"size": "s-1vcpu-1gb"},
	}))
	if err != nil {
		t.Fatalf("EvaluateManifest: %v", err)
	}

	if !result.Allowed {
		t.Error("advisory mode must never block")
	}
	if len(result.Violations) != 1 {
		t.Fatalf("got %d violations, want 1: %+v", len(result.Violations), result.Violations)
	}
	v := result.Violations[0]
	if v.Policy != "untagged-droplets" || v.Severity != SeverityWarning {
		t.Errorf("unexpected violation: %+v", v)
	}
	if !strings.Contains(v.Message, "web-1") {
		t.Errorf("message does not name the droplet: %s", v.Message)
	}
}

func TestTaggedDropletPasses(t *testing.T) {
	e, err := NewEngine(ModeEnforcing, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	result, err := e.EvaluateManifest(context.Background(), manifestWith(config.ResourceDecl{
		Type:  "droplet",
		Name:  "web-1",
		State: engine.StatePresent,
		Spec:  map[string]any{"tags": []any{"web"}},
	}))
	if err != nil {
		t.Fatalf("EvaluateManifest: %v", err)
	}
	if len(result.Violations) != 0 {
		t.Errorf("unexpected violations: %+v", result.Violations)
	}
	if !result.Allowed {
		t.Error("expected allowed")
	}
}

func TestProtectedDestroyBlocksInEnforcingMode(t *testing.T) {
	e, err := NewEngine(ModeEnforcing, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	result, err := e.EvaluateManifest(context.Background(), manifestWith(config.ResourceDecl{
		Type:   "database_cluster",
		Name:   "prod-db",
		State:  engine.StateAbsent,
		Labels: map[string]string{"protected": "true"},
	}))
	if err != nil {
		t.Fatalf("EvaluateManifest: %v", err)
	}

	if result.Allowed {
		t.Error("enforcing mode should block protected destroy")
	}
	blocking := result.Blocking()
	if len(blocking) != 1 || blocking[0].Policy != "protected-destroy" {
		t.Errorf("unexpected blocking violations: %+v", blocking)
	}
}

func TestProtectedDestroyAdvisoryReportsButAllows(t *testing.T) {
	e, err := NewEngine(ModeAdvisory, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	result, err := e.EvaluateManifest(context.Background(), manifestWith(config.ResourceDecl{
		Type:   "droplet",
		Name:   "prod-web",
		State:  engine.StateAbsent,
		Labels: map[string]string{"protected": "true"},
	}))
	if err != nil {
		t.Fatalf("EvaluateManifest: %v", err)
	}
	if !result.Allowed {
		t.Error("advisory mode must never block")
	}
	if len(result.Blocking()) != 1 {
		t.Errorf("expected the violation to still be reported: %+v", result.Violations)
	}
}

func TestLoadUserPolicy(t *testing.T) {
	dir := t.TempDir()
	policyFile := filepath.Join(dir, "no-fra1.rego")
	userPolicy := `package lagoon.policies.regions

import rego.v1

deny contains violation if {
	input.resource.spec.region == "fra1"
	violation := {
		"message": sprintf("%s %q may not use region fra1", [input.resource.type, input.resource.name]),
		"severity": "error",
	}
}
`
	if err := os.WriteFile(policyFile, []byte(userPolicy), 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}

	e, err := NewEngine(ModeEnforcing, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if err := e.LoadPolicies(context.Background(), []string{dir}); err != nil {
		t.Fatalf("LoadPolicies: %v", err)
	}

	result, err := e.EvaluateManifest(context.Background(), manifestWith(config.ResourceDecl{
		Type:  "droplet",
		Name:  "web-1",
		State: engine.StatePresent,
		Spec:  map[string]any{"region": "fra1", "tags": []any{"web"}},
	}))
	if err != nil {
		t.Fatalf("EvaluateManifest: %v", err)
	}
	if result.Allowed {
		t.Error("user policy should block fra1")
	}
	found := false
	for _, v := range result.Violations {
		if v.Policy == "no-fra1" {
			found = true
		}
	}
	if !found {
		t.Errorf("missing no-fra1 violation: %+v", result.Violations)
	}
}

func TestUnknownModeRejected(t *testing.T) {
	if _, err := NewEngine(Mode("permissive"), nil); !engine.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestListPoliciesIncludesBuiltins(t *testing.T) {
	e, err := NewEngine(ModeAdvisory, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	names := map[string]bool{}
	for _, p := range e.ListPolicies() {
		names[p.Name] = true
	}
	if !names["untagged-droplets"] || !names["protected-destroy"] {
		t.Errorf("missing builtin policies: %v", names)
	}
}
