package resources

import (
	"context"
	"fmt"

	"github.com/openlagoon/openlagoon/pkg/doapi"
	"github.com/openlagoon/openlagoon/pkg/engine"
	"github.com/openlagoon/openlagoon/pkg/telemetry"
)

// VPC is the provider-side representation of a virtual private cloud
// network.
type VPC struct {
	ID          string `json:"id"`
	URN         string `json:"urn"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Region      string `json:"region"`
	IPRange     string `json:"ip_range"`
	Default     bool   `json:"default"`
	CreatedAt   string `json:"created_at"`
}

// VPCSpec is the vpc module specification. A VPC is identified by name and
// region together.
type VPCSpec struct {
	Region      string `json:"region" validate:"required"`
	Description string `json:"description,omitempty"`
	IPRange     string `json:"ip_range,omitempty" validate:"omitempty,cidr"`

	// Default promotes the VPC to the region's default network.
	Default bool `json:"default,omitempty"`
}

// VPCModule reconciles VPC networks.
type VPCModule struct {
	opts Options
	log  *telemetry.Logger
}

// NewVPCModule creates the vpc module.
func NewVPCModule(opts Options) *VPCModule {
	return &VPCModule{opts: opts, log: opts.logger("vpc")}
}

// Type implements Module.
func (m *VPCModule) Type() string { return "vpc" }

// Reconcile implements Module.
func (m *VPCModule) Reconcile(ctx context.Context, req Request) (*engine.Result, error) {
	var spec VPCSpec
	if err := decodeSpec(req.Spec, "vpc", &spec); err != nil {
		return nil, err
	}

	client := m.opts.Client

	return engine.Reconcile(ctx, req.State, m.opts.CheckMode, engine.Ops[VPC]{
		Describe: fmt.Sprintf("vpc %q in %s", req.Name, spec.Region),
		Lookup: func(ctx context.Context) (*VPC, error) {
			return FindVPC(ctx, client, req.Name, spec.Region)
		},
		Create: func(ctx context.Context) (*VPC, error) {
			body := map[string]any{
				"name":   req.Name,
				"region": spec.Region,
			}
			if spec.Description != "" {
				body["description"] = spec.Description
			}
			if spec.IPRange != "" {
				body["ip_range"] = spec.IPRange
			}
			var out struct {
				VPC VPC `json:"vpc"`
			}
			if err := client.Post(ctx, "/vpcs", body, &out); err != nil {
				return nil, err
			}
			m.log.WithResource("vpc", req.Name).Info("vpc created")
			return &out.VPC, nil
		},
		NeedsUpdate: func(current *VPC) (bool, string) {
			if spec.Description != "" && current.Description != spec.Description {
				return true, "description differs"
			}
			if spec.Default && !current.Default {
				return true, "should be the default vpc"
			}
			return false, ""
		},
		Update: func(ctx context.Context, current *VPC) (*VPC, error) {
			body := map[string]any{
				"name":        current.Name,
				"description": spec.Description,
				"default":     spec.Default || current.Default,
			}
			var out struct {
				VPC VPC `json:"vpc"`
			}
			if err := client.Put(ctx, "/vpcs/"+current.ID, body, &out); err != nil {
				return nil, err
			}
			return &out.VPC, nil
		},
		Delete: func(ctx context.Context, current *VPC) error {
			// The API refuses to delete default VPCs; fail early with a
			// clearer message.
			if current.Default {
				return engine.NewValidationError(fmt.Sprintf("vpc %q is the default for %s and cannot be deleted", current.Name, current.Region))
			}
			return client.Delete(ctx, "/vpcs/"+current.ID, nil)
		},
	})
}

// ListVPCs returns all VPC networks.
func ListVPCs(ctx context.Context, client *doapi.Client) ([]VPC, error) {
	return doapi.ListAll[VPC](ctx, client, "/vpcs", "vpcs", nil)
}

// FindVPC returns the VPC with the given name in a region, or nil.
func FindVPC(ctx context.Context, client *doapi.Client, name, region string) (*VPC, error) {
	vpcs, err := ListVPCs(ctx, client)
	if err != nil {
		return nil, err
	}
	for i := range vpcs {
		if vpcs[i].Name == name && vpcs[i].Region == region {
			return &vpcs[i], nil
		}
	}
	return nil, nil
}
