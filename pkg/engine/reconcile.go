package engine

import (
	"context"
	"fmt"
)

// Ops bundles the resource-specific operations the generic reconcile helper
// is parameterized over. Lookup returns (nil, nil) when the resource does not
// exist: absence is an explicit value, never a silently-ignored missing field.
type Ops[T any] struct {
	// Describe names the resource for messages, e.g. `droplet "web-1"`.
	Describe string

	// Lookup fetches the current resource, or nil when it does not exist.
	Lookup func(ctx context.Context) (*T, error)

	// Create creates the resource and returns its representation.
	Create func(ctx context.Context) (*T, error)

	// NeedsUpdate reports whether the current resource differs from the
	// desired attributes, with a short description of the differences.
	// Nil means the module never updates in place.
	NeedsUpdate func(current *T) (bool, string)

	// Update reconciles an attribute difference in place.
	Update func(ctx context.Context, current *T) (*T, error)

	// Delete removes the resource.
	Delete func(ctx context.Context, current *T) error
}

// Reconcile drives a resource to the declared target state. It implements
// the shared decision: look up, then create, update, delete, or no-op. In
// check mode the would-be change is reported without any mutating call.
func Reconcile[T any](ctx context.Context, state TargetState, checkMode bool, ops Ops[T]) (*Result, error) {
	if state != StatePresent && state != StateAbsent {
		return nil, NewValidationError(fmt.Sprintf("unsupported target state %q for %s", state, ops.Describe))
	}

	current, err := ops.Lookup(ctx)
	if err != nil {
		return nil, err
	}

	if state == StateAbsent {
		if current == nil {
			return Unchanged(fmt.Sprintf("%s not found", ops.Describe), nil), nil
		}
		if checkMode {
			return ChangedResult(fmt.Sprintf("would delete %s", ops.Describe), current), nil
		}
		if err := ops.Delete(ctx, current); err != nil {
			return nil, err
		}
		return ChangedResult(fmt.Sprintf("%s deleted", ops.Describe), nil), nil
	}

	if current == nil {
		if checkMode {
			return ChangedResult(fmt.Sprintf("would create %s", ops.Describe), nil), nil
		}
		created, err := ops.Create(ctx)
		if err != nil {
			return nil, err
		}
		return ChangedResult(fmt.Sprintf("%s created", ops.Describe), created), nil
	}

	if ops.NeedsUpdate != nil {
		if needed, why := ops.NeedsUpdate(current); needed {
			if checkMode {
				return ChangedResult(fmt.Sprintf("would update %s: %s", ops.Describe, why), current), nil
			}
			updated, err := ops.Update(ctx, current)
			if err != nil {
				return nil, err
			}
			return ChangedResult(fmt.Sprintf("%s updated: %s", ops.Describe, why), updated), nil
		}
	}

	return Unchanged(fmt.Sprintf("%s up to date", ops.Describe), current), nil
}
