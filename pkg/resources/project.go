package resources

import (
	"context"
	"fmt"

	"github.com/openlagoon/openlagoon/pkg/doapi"
	"github.com/openlagoon/openlagoon/pkg/engine"
	"github.com/openlagoon/openlagoon/pkg/telemetry"
)

// Project is the provider-side representation of a project.
type Project struct {
	ID          string `json:"id"`
	OwnerUUID   string `json:"owner_uuid"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Purpose     string `json:"purpose"`
	Environment string `json:"environment"`
	IsDefault   bool   `json:"is_default"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// ProjectSpec is the project module specification.
type ProjectSpec struct {
	Description string `json:"description,omitempty"`
	Purpose     string `json:"purpose,omitempty"`
	// Environment is one of Development, Staging, Production.
	Environment string `json:"environment,omitempty" validate:"omitempty,oneof=Development Staging Production"`
}

// ProjectModule reconciles projects by name, updating description, purpose,
// and environment in place.
type ProjectModule struct {
	opts Options
	log  *telemetry.Logger
}

// NewProjectModule creates the project module.
func NewProjectModule(opts Options) *ProjectModule {
	return &ProjectModule{opts: opts, log: opts.logger("project")}
}

// Type implements Module.
func (m *ProjectModule) Type() string { return "project" }

// Reconcile implements Module.
func (m *ProjectModule) Reconcile(ctx context.Context, req Request) (*engine.Result, error) {
	var spec ProjectSpec
	if err := decodeSpec(req.Spec, "project", &spec); err != nil {
		return nil, err
	}

	client := m.opts.Client
	body := map[string]any{
		"name":    req.Name,
		"purpose": spec.Purpose,
	}
	if spec.Description != "" {
		body["description"] = spec.Description
	}
	if spec.Environment != "" {
		body["environment"] = spec.Environment
	}

	return engine.Reconcile(ctx, req.State, m.opts.CheckMode, engine.Ops[Project]{
		Describe: fmt.Sprintf("project %q", req.Name),
		Lookup: func(ctx context.Context) (*Project, error) {
			return FindProjectByName(ctx, client, req.Name)
		},
		Create: func(ctx context.Context) (*Project, error) {
			if spec.Purpose == "" {
				return nil, engine.NewValidationError("purpose is required to create a project")
			}
			var out struct {
				Project Project `json:"project"`
			}
			if err := client.Post(ctx, "/projects", body, &out); err != nil {
				return nil, err
			}
			m.log.WithResource("project", req.Name).Info("project created")
			return &out.Project, nil
		},
		NeedsUpdate: func(current *Project) (bool, string) {
			if spec.Description != "" && current.Description != spec.Description {
				return true, "description differs"
			}
			if spec.Purpose != "" && current.Purpose != spec.Purpose {
				return true, "purpose differs"
			}
			if spec.Environment != "" && current.Environment != spec.Environment {
				return true, "environment differs"
			}
			return false, ""
		},
		Update: func(ctx context.Context, current *Project) (*Project, error) {
			var out struct {
				Project Project `json:"project"`
			}
			if err := client.Put(ctx, "/projects/"+current.ID, body, &out); err != nil {
				return nil, err
			}
			return &out.Project, nil
		},
		Delete: func(ctx context.Context, current *Project) error {
			if current.IsDefault {
				return engine.NewValidationError("the default project cannot be deleted")
			}
			return client.Delete(ctx, "/projects/"+current.ID, nil)
		},
	})
}

// ListProjects returns all projects.
func ListProjects(ctx context.Context, client *doapi.Client) ([]Project, error) {
	return doapi.ListAll[Project](ctx, client, "/projects", "projects", nil)
}

// FindProjectByName returns the project with the given name, or nil.
func FindProjectByName(ctx context.Context, client *doapi.Client, name string) (*Project, error) {
	projects, err := ListProjects(ctx, client)
	if err != nil {
		return nil, err
	}
	for i := range projects {
		if projects[i].Name == name {
			return &projects[i], nil
		}
	}
	return nil, nil
}
