package policy

import (
	"time"
)

// Mode controls how violations affect the run.
type Mode string

const (
	// ModeAdvisory reports violations without blocking.
	ModeAdvisory Mode = "advisory"

	// ModeEnforcing fails the run on error-severity violations.
	ModeEnforcing Mode = "enforcing"
)

// Valid reports whether the mode is a known value.
func (m Mode) Valid() bool {
	return m == ModeAdvisory || m == ModeEnforcing
}

// Severity is the severity of a policy violation.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Policy is one named Rego policy.
type Policy struct {
	// Name is the unique policy name.
	Name string `json:"name"`

	// Description says what the policy checks.
	Description string `json:"description"`

	// Rego is the policy source. Violations are collected from the
	// package's deny set.
	Rego string `json:"rego"`

	// Severity is the default severity for violations that do not set
	// their own.
	Severity Severity `json:"severity"`

	// Enabled gates evaluation.
	Enabled bool `json:"enabled"`

	// Builtin marks policies shipped with the binary.
	Builtin bool `json:"builtin"`
}

// Violation is one policy violation against one resource.
type Violation struct {
	// Policy is the violated policy's name.
	Policy string `json:"policy"`

	// Resource is "type/name" of the violating resource.
	Resource string `json:"resource,omitempty"`

	// Message is the human-readable violation.
	Message string `json:"message"`

	Severity Severity `json:"severity"`
}

// Result is the outcome of evaluating all policies against a manifest.
type Result struct {
	// Allowed is false only in enforcing mode with error-severity
	// violations.
	Allowed bool `json:"allowed"`

	Violations []Violation `json:"violations,omitempty"`

	// Warnings carries policy evaluation failures, which never block.
	Warnings []string `json:"warnings,omitempty"`

	EvaluatedAt time.Time `json:"evaluated_at"`
}

// Blocking returns the error-severity violations.
func (r *Result) Blocking() []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Severity == SeverityError {
			out = append(out, v)
		}
	}
	return out
}
