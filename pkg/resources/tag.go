package resources

import (
	"context"
	"fmt"
	"strconv"

	"github.com/openlagoon/openlagoon/pkg/doapi"
	"github.com/openlagoon/openlagoon/pkg/engine"
	"github.com/openlagoon/openlagoon/pkg/telemetry"
)

// Tag is the provider-side representation of a tag.
type Tag struct {
	Name      string `json:"name"`
	Resources struct {
		Count    int `json:"count"`
		Droplets struct {
			Count int `json:"count"`
		} `json:"droplets"`
	} `json:"resources"`
}

// TagSpec is the tag module specification.
type TagSpec struct {
	// ResourceID, when set, tags (present) or untags (absent) the resource
	// instead of managing the tag itself. Tagging creates the tag
	// implicitly when it does not exist yet.
	ResourceID int `json:"resource_id,omitempty"`

	// ResourceType is the kind of resource ResourceID refers to.
	ResourceType string `json:"resource_type,omitempty" validate:"omitempty,oneof=droplet"`
}

// TagModule reconciles tags and tag attachments.
type TagModule struct {
	opts Options
	log  *telemetry.Logger
}

// NewTagModule creates the tag module.
func NewTagModule(opts Options) *TagModule {
	return &TagModule{opts: opts, log: opts.logger("tag")}
}

// Type implements Module.
func (m *TagModule) Type() string { return "tag" }

// Reconcile implements Module.
func (m *TagModule) Reconcile(ctx context.Context, req Request) (*engine.Result, error) {
	var spec TagSpec
	if err := decodeSpec(req.Spec, "tag", &spec); err != nil {
		return nil, err
	}

	if spec.ResourceID != 0 {
		return m.reconcileAttachment(ctx, req, &spec)
	}

	client := m.opts.Client
	return engine.Reconcile(ctx, req.State, m.opts.CheckMode, engine.Ops[Tag]{
		Describe: fmt.Sprintf("tag %q", req.Name),
		Lookup: func(ctx context.Context) (*Tag, error) {
			return GetTag(ctx, client, req.Name)
		},
		Create: func(ctx context.Context) (*Tag, error) {
			var out struct {
				Tag Tag `json:"tag"`
			}
			if err := client.Post(ctx, "/tags", map[string]any{"name": req.Name}, &out); err != nil {
				return nil, err
			}
			m.log.WithResource("tag", req.Name).Info("tag created")
			return &out.Tag, nil
		},
		Delete: func(ctx context.Context, current *Tag) error {
			return client.Delete(ctx, "/tags/"+current.Name, nil)
		},
	})
}

// reconcileAttachment tags or untags a single resource. Tagging an already
// tagged resource is a no-op; the tag is created implicitly when missing.
func (m *TagModule) reconcileAttachment(ctx context.Context, req Request, spec *TagSpec) (*engine.Result, error) {
	if req.State != engine.StatePresent && req.State != engine.StateAbsent {
		return nil, engine.NewValidationError(
			fmt.Sprintf("unsupported target state %q for tag attachment", req.State))
	}

	resourceType := spec.ResourceType
	if resourceType == "" {
		resourceType = "droplet"
	}
	describe := fmt.Sprintf("tag %q on %s %d", req.Name, resourceType, spec.ResourceID)

	attached, err := m.resourceHasTag(ctx, spec.ResourceID, req.Name)
	if err != nil {
		return nil, err
	}

	if req.State == engine.StateAbsent {
		if !attached {
			return engine.Unchanged(fmt.Sprintf("%s not attached", describe), nil), nil
		}
		if m.opts.CheckMode {
			return engine.ChangedResult(fmt.Sprintf("would detach %s", describe), nil), nil
		}
		if err := m.updateAttachment(ctx, req.Name, spec.ResourceID, resourceType, false); err != nil {
			return nil, err
		}
		return engine.ChangedResult(fmt.Sprintf("%s detached", describe), nil), nil
	}

	if attached {
		return engine.Unchanged(fmt.Sprintf("%s already attached", describe), nil), nil
	}
	if m.opts.CheckMode {
		return engine.ChangedResult(fmt.Sprintf("would attach %s", describe), nil), nil
	}

	// The tag must exist before a resource can be attached to it.
	tag, err := GetTag(ctx, m.opts.Client, req.Name)
	if err != nil {
		return nil, err
	}
	if tag == nil {
		if err := m.opts.Client.Post(ctx, "/tags", map[string]any{"name": req.Name}, nil); err != nil {
			return nil, err
		}
	}
	if err := m.updateAttachment(ctx, req.Name, spec.ResourceID, resourceType, true); err != nil {
		return nil, err
	}
	return engine.ChangedResult(fmt.Sprintf("%s attached", describe), nil), nil
}

func (m *TagModule) resourceHasTag(ctx context.Context, dropletID int, tag string) (bool, error) {
	d, err := GetDroplet(ctx, m.opts.Client, dropletID)
	if err != nil {
		return false, err
	}
	if d == nil {
		return false, engine.NewValidationError(
			fmt.Sprintf("droplet %s does not exist", strconv.Itoa(dropletID)))
	}
	for _, t := range d.Tags {
		if t == tag {
			return true, nil
		}
	}
	return false, nil
}

func (m *TagModule) updateAttachment(ctx context.Context, tag string, resourceID int, resourceType string, attach bool) error {
	body := map[string]any{
		"resources": []map[string]any{{
			"resource_id":   strconv.Itoa(resourceID),
			"resource_type": resourceType,
		}},
	}
	path := "/tags/" + tag + "/resources"
	if attach {
		return m.opts.Client.Post(ctx, path, body, nil)
	}
	return m.opts.Client.Delete(ctx, path, body)
}

// GetTag fetches a tag by name, returning nil when it does not exist.
func GetTag(ctx context.Context, client *doapi.Client, name string) (*Tag, error) {
	var out struct {
		Tag Tag `json:"tag"`
	}
	if err := client.Get(ctx, "/tags/"+name, nil, &out); err != nil {
		if engine.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &out.Tag, nil
}

// ListTags returns all tags.
func ListTags(ctx context.Context, client *doapi.Client) ([]Tag, error) {
	return doapi.ListAll[Tag](ctx, client, "/tags", "tags", nil)
}
