package stores

import "time"

// RunStatus represents the lifecycle state of a recorded reconcile.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run records a single resource reconciliation, one row per resource per
// apply or destroy invocation.
type Run struct {
	// ID is the unique run identifier (UUID).
	ID string

	// ResourceType is the module type, e.g. "droplet".
	ResourceType string

	// ResourceName is the name of the resource that was reconciled.
	ResourceName string

	// Operation is the CLI operation that triggered the reconcile
	// (apply, destroy).
	Operation string

	// Changed reports whether the reconcile mutated the resource.
	Changed bool

	// Status is the current run status.
	Status RunStatus

	// Error holds the failure message for failed runs.
	Error *string

	// StartedAt is when the reconcile began.
	StartedAt time.Time

	// CompletedAt is when the reconcile finished, nil while running.
	CompletedAt *time.Time
}

// InventoryCacheEntry is a cached dynamic inventory payload.
type InventoryCacheEntry struct {
	// ConfigHash identifies the inventory configuration that produced the
	// payload. Different configurations never share cache entries.
	ConfigHash string

	// Payload is the JSON-encoded inventory document.
	Payload []byte

	// CreatedAt is when the entry was written.
	CreatedAt time.Time

	// ExpiresAt is when the entry stops being served.
	ExpiresAt time.Time
}
