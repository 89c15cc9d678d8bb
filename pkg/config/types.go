package config

import (
	"encoding/json"
	"time"

	"github.com/openlagoon/openlagoon/pkg/engine"
)

// Workspace holds manifest-wide defaults.
type Workspace struct {
	// Name labels the workspace in logs and run history.
	Name string `json:"name,omitempty"`

	// Region is the default region applied to resource specs that name none.
	Region string `json:"region,omitempty"`

	// TokenEnv names the environment variable holding the API token. Empty
	// falls back to the standard token variables.
	TokenEnv string `json:"token_env,omitempty"`

	// BaseURL overrides the API endpoint.
	BaseURL string `json:"base_url,omitempty"`
}

// ResourceDecl is one declared resource in a manifest.
type ResourceDecl struct {
	// Type is the module type name, e.g. "droplet".
	Type string `json:"type" validate:"required"`

	// Name identifies the resource within its type.
	Name string `json:"name" validate:"required"`

	// State is the target state. Defaults to present.
	State engine.TargetState `json:"state,omitempty"`

	// Spec is the module-specific specification, passed through verbatim.
	Spec map[string]any `json:"spec,omitempty"`

	// Labels are free-form key/value pairs. The policy layer reads them;
	// resources labeled protected refuse destruction.
	Labels map[string]string `json:"labels,omitempty"`
}

// SpecJSON returns the declaration's spec as raw JSON for module dispatch.
func (r *ResourceDecl) SpecJSON() (json.RawMessage, error) {
	if r.Spec == nil {
		return nil, nil
	}
	return json.Marshal(r.Spec)
}

// Manifest is a fully parsed and validated manifest set.
type Manifest struct {
	Workspace Workspace      `json:"workspace"`
	Resources []ResourceDecl `json:"resources"`

	// SourceFiles lists the files the manifest was loaded from.
	SourceFiles []string `json:"-"`

	// ParsedAt is when parsing finished.
	ParsedAt time.Time `json:"-"`
}
