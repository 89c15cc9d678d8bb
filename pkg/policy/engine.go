package policy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/rego"

	"github.com/openlagoon/openlagoon/pkg/config"
	"github.com/openlagoon/openlagoon/pkg/engine"
	"github.com/openlagoon/openlagoon/pkg/telemetry"
)

// Engine evaluates Rego policies against manifest resources.
type Engine struct {
	mode Mode
	log  *telemetry.Logger

	mu       sync.RWMutex
	policies map[string]*compiledPolicy
}

type compiledPolicy struct {
	policy Policy
	query  rego.PreparedEvalQuery
}

// resourceInput is the `input.resource` document policies see.
type resourceInput struct {
	Type   string             `json:"type"`
	Name   string             `json:"name"`
	State  engine.TargetState `json:"state"`
	Spec   map[string]any     `json:"spec,omitempty"`
	Labels map[string]string  `json:"labels,omitempty"`
}

type policyInput struct {
	Resource  resourceInput `json:"resource"`
	Operation string        `json:"operation"`
	Timestamp time.Time     `json:"timestamp"`
}

// NewEngine creates a policy engine with the built-in policies compiled.
func NewEngine(mode Mode, logger *telemetry.Logger) (*Engine, error) {
	if mode == "" {
		mode = ModeAdvisory
	}
	if !mode.Valid() {
		return nil, engine.NewValidationError(fmt.Sprintf("unknown policy mode %q", mode))
	}
	if logger == nil {
		logger, _ = telemetry.NewLogger(telemetry.DefaultConfig().Logging)
	}

	e := &Engine{
		mode:     mode,
		log:      logger.NewComponentLogger("policy"),
		policies: make(map[string]*compiledPolicy),
	}
	for _, p := range BuiltinPolicies() {
		if err := e.compile(context.Background(), p); err != nil {
			return nil, fmt.Errorf("compile builtin policy %s: %w", p.Name, err)
		}
	}
	return e, nil
}

// Mode returns the configured enforcement mode.
func (e *Engine) Mode() Mode { return e.mode }

// LoadPolicies compiles additional .rego policies from the given paths.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	policies, err := LoadFromPaths(paths)
	if err != nil {
		return err
	}
	for _, p := range policies {
		if err := e.compile(ctx, p); err != nil {
			return fmt.Errorf("compile policy %s: %w", p.Name, err)
		}
	}
	e.log.WithField("count", len(policies)).Info("user policies loaded")
	return nil
}

// ListPolicies returns all compiled policies sorted by name.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Policy, 0, len(e.policies))
	for _, cp := range e.policies {
		out = append(out, cp.policy)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// EvaluateManifest evaluates every enabled policy against every resource in
// the manifest.
func (e *Engine) EvaluateManifest(ctx context.Context, manifest *config.Manifest) (*Result, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := &Result{Allowed: true, EvaluatedAt: time.Now()}

	for _, cp := range e.policies {
		if !cp.policy.Enabled {
			continue
		}
		for i := range manifest.Resources {
			decl := &manifest.Resources[i]
			input := policyInput{
				Resource: resourceInput{
					Type:   decl.Type,
					Name:   decl.Name,
					State:  decl.State,
					Spec:   decl.Spec,
					Labels: decl.Labels,
				},
				Operation: "apply",
				Timestamp: time.Now(),
			}

			violations, err := e.evaluate(ctx, cp, input)
			if err != nil {
				e.log.WithField("policy", cp.policy.Name).
					WithResource(decl.Type, decl.Name).
					WithError(err).
					Warn("policy evaluation failed")
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("policy %s failed for %s/%s: %v", cp.policy.Name, decl.Type, decl.Name, err))
				continue
			}
			result.Violations = append(result.Violations, violations...)
		}
	}

	sort.Slice(result.Violations, func(i, j int) bool {
		if result.Violations[i].Resource != result.Violations[j].Resource {
			return result.Violations[i].Resource < result.Violations[j].Resource
		}
		return result.Violations[i].Policy < result.Violations[j].Policy
	})

	if e.mode == ModeEnforcing && len(result.Blocking()) > 0 {
		result.Allowed = false
	}
	return result, nil
}

func (e *Engine) evaluate(ctx context.Context, cp *compiledPolicy, input policyInput) ([]Violation, error) {
	results, err := cp.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, err
	}

	resource := input.Resource.Type + "/" + input.Resource.Name
	var violations []Violation
	for _, r := range results {
		for _, expr := range r.Expressions {
			denySet, ok := expr.Value.([]any)
			if !ok {
				continue
			}
			for _, d := range denySet {
				violations = append(violations, e.violationFrom(cp.policy, resource, d))
			}
		}
	}
	return violations, nil
}

func (e *Engine) violationFrom(p Policy, resource string, raw any) Violation {
	v := Violation{
		Policy:   p.Name,
		Resource: resource,
		Severity: p.Severity,
	}
	switch val := raw.(type) {
	case string:
		v.Message = val
	case map[string]any:
		if msg, ok := val["message"].(string); ok {
			v.Message = msg
		}
		if sev, ok := val["severity"].(string); ok {
			v.Severity = Severity(sev)
		}
	default:
		v.Message = fmt.Sprintf("%v", raw)
	}
	return v
}

func (e *Engine) compile(ctx context.Context, p Policy) error {
	pkg := packageName(p.Rego)
	query, err := rego.New(
		rego.Module(p.Name+".rego", p.Rego),
		rego.Query(fmt.Sprintf("data.%s.deny", pkg)),
	).PrepareForEval(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.policies[p.Name] = &compiledPolicy{policy: p, query: query}
	e.mu.Unlock()
	return nil
}

// packageName pulls the package path out of Rego source.
func packageName(src string) string {
	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "package ") {
			return strings.TrimSpace(strings.TrimPrefix(trimmed, "package "))
		}
	}
	return "lagoon.policies"
}
