package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/openlagoon/openlagoon/pkg/doapi"
	"github.com/openlagoon/openlagoon/pkg/engine"
	"github.com/openlagoon/openlagoon/pkg/telemetry"
)

// validate is the shared validator instance for module specs.
var validate = validator.New()

// Options carries the shared dependencies of every module.
type Options struct {
	// Client is the DigitalOcean API client.
	Client *doapi.Client

	// Logger receives module-level logging. Optional.
	Logger *telemetry.Logger

	// CheckMode suppresses all mutating calls; modules report the would-be
	// change instead.
	CheckMode bool
}

func (o Options) logger(component string) *telemetry.Logger {
	l := o.Logger
	if l == nil {
		l, _ = telemetry.NewLogger(telemetry.DefaultConfig().Logging)
	}
	return l.NewComponentLogger(component)
}

// Request is a single reconcile request dispatched to a module.
type Request struct {
	// Name identifies the resource. Its exact meaning is module-specific
	// (droplet name, domain name, key fingerprint, ...).
	Name string

	// State is the declared target state.
	State engine.TargetState

	// Spec is the module-specific specification, decoded by the module.
	Spec json.RawMessage
}

// Module is a reconciliation module for one resource type.
type Module interface {
	// Type returns the module's type name, e.g. "droplet".
	Type() string

	// Reconcile drives the named resource to the requested state.
	Reconcile(ctx context.Context, req Request) (*engine.Result, error)
}

// decodeSpec unmarshals and validates a module spec. A nil raw spec decodes
// to the zero value, letting modules that need no parameters run bare.
func decodeSpec(raw json.RawMessage, moduleType string, spec any) error {
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, spec); err != nil {
			return engine.NewValidationError(fmt.Sprintf("%s spec: %v", moduleType, err))
		}
	}
	if err := validate.Struct(spec); err != nil {
		return engine.NewValidationError(fmt.Sprintf("%s spec: %v", moduleType, err))
	}
	return nil
}
