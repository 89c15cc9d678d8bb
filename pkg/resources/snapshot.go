package resources

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/openlagoon/openlagoon/pkg/doapi"
	"github.com/openlagoon/openlagoon/pkg/engine"
	"github.com/openlagoon/openlagoon/pkg/telemetry"
)

// Snapshot is the provider-side representation of a droplet or volume
// snapshot.
type Snapshot struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	ResourceID    string   `json:"resource_id"`
	ResourceType  string   `json:"resource_type"`
	Regions       []string `json:"regions"`
	MinDiskSize   int      `json:"min_disk_size"`
	SizeGigabytes float64  `json:"size_gigabytes"`
	Tags          []string `json:"tags"`
	CreatedAt     string   `json:"created_at"`
}

// SnapshotSpec is the snapshot module specification. Exactly one of
// DropletID and VolumeID must be set for present.
type SnapshotSpec struct {
	DropletID int      `json:"droplet_id,omitempty"`
	VolumeID  string   `json:"volume_id,omitempty"`
	Tags      []string `json:"tags,omitempty"`

	WaitTimeout   int `json:"wait_timeout,omitempty"`
	SleepInterval int `json:"sleep_interval,omitempty"`
}

func (s *SnapshotSpec) waitConfig() engine.WaitConfig {
	cfg := engine.DefaultWaitConfig()
	// Droplet snapshots routinely take minutes.
	cfg.Timeout = 10 * time.Minute
	if s.WaitTimeout != 0 {
		cfg.Timeout = time.Duration(s.WaitTimeout) * time.Second
	}
	if s.SleepInterval != 0 {
		cfg.SleepInterval = time.Duration(s.SleepInterval) * time.Second
	}
	return cfg
}

// SnapshotModule reconciles snapshots by name.
type SnapshotModule struct {
	opts Options
	log  *telemetry.Logger
}

// NewSnapshotModule creates the snapshot module.
func NewSnapshotModule(opts Options) *SnapshotModule {
	return &SnapshotModule{opts: opts, log: opts.logger("snapshot")}
}

// Type implements Module.
func (m *SnapshotModule) Type() string { return "snapshot" }

// Reconcile implements Module.
func (m *SnapshotModule) Reconcile(ctx context.Context, req Request) (*engine.Result, error) {
	var spec SnapshotSpec
	if err := decodeSpec(req.Spec, "snapshot", &spec); err != nil {
		return nil, err
	}
	if spec.DropletID != 0 && spec.VolumeID != "" {
		return nil, engine.NewValidationError("droplet_id and volume_id are mutually exclusive")
	}
	if req.State.WantsExistence() && spec.DropletID == 0 && spec.VolumeID == "" {
		return nil, engine.NewValidationError("one of droplet_id or volume_id is required for present snapshots")
	}
	waitCfg := spec.waitConfig()
	if err := waitCfg.Validate(); err != nil {
		return nil, err
	}

	client := m.opts.Client

	return engine.Reconcile(ctx, req.State, m.opts.CheckMode, engine.Ops[Snapshot]{
		Describe: fmt.Sprintf("snapshot %q", req.Name),
		Lookup: func(ctx context.Context) (*Snapshot, error) {
			return FindSnapshotByName(ctx, client, req.Name)
		},
		Create: func(ctx context.Context) (*Snapshot, error) {
			if spec.VolumeID != "" {
				return m.createVolumeSnapshot(ctx, req.Name, &spec)
			}
			return m.createDropletSnapshot(ctx, req.Name, &spec, waitCfg)
		},
		Delete: func(ctx context.Context, current *Snapshot) error {
			return client.Delete(ctx, "/snapshots/"+current.ID, nil)
		},
	})
}

func (m *SnapshotModule) createVolumeSnapshot(ctx context.Context, name string, spec *SnapshotSpec) (*Snapshot, error) {
	body := map[string]any{"name": name}
	if len(spec.Tags) > 0 {
		body["tags"] = spec.Tags
	}
	var out struct {
		Snapshot Snapshot `json:"snapshot"`
	}
	if err := m.opts.Client.Post(ctx, "/volumes/"+spec.VolumeID+"/snapshots", body, &out); err != nil {
		return nil, err
	}
	m.log.WithResource("snapshot", name).Info("volume snapshot created")
	return &out.Snapshot, nil
}

// createDropletSnapshot snapshots a droplet via the actions endpoint and
// waits for the action to complete, then resolves the snapshot by name.
func (m *SnapshotModule) createDropletSnapshot(ctx context.Context, name string, spec *SnapshotSpec, waitCfg engine.WaitConfig) (*Snapshot, error) {
	var out struct {
		Action Action `json:"action"`
	}
	body := map[string]any{"type": "snapshot", "name": name}
	path := fmt.Sprintf("/droplets/%d/actions", spec.DropletID)
	if err := m.opts.Client.Post(ctx, path, body, &out); err != nil {
		return nil, err
	}
	what := fmt.Sprintf("snapshot of droplet %d", spec.DropletID)
	if err := waitForAction(ctx, m.opts.Client, out.Action.ID, waitCfg, what); err != nil {
		return nil, err
	}
	m.log.WithResource("snapshot", name).Info("droplet snapshot created")
	return FindSnapshotByName(ctx, m.opts.Client, name)
}

// ListSnapshots returns all snapshots, optionally filtered by resource type
// ("droplet" or "volume").
func ListSnapshots(ctx context.Context, client *doapi.Client, resourceType string) ([]Snapshot, error) {
	var query url.Values
	if resourceType != "" {
		query = url.Values{"resource_type": []string{resourceType}}
	}
	return doapi.ListAll[Snapshot](ctx, client, "/snapshots", "snapshots", query)
}

// FindSnapshotByName returns the most recent snapshot with the given name,
// or nil.
func FindSnapshotByName(ctx context.Context, client *doapi.Client, name string) (*Snapshot, error) {
	snapshots, err := ListSnapshots(ctx, client, "")
	if err != nil {
		return nil, err
	}
	var found *Snapshot
	for i := range snapshots {
		if snapshots[i].Name == name {
			found = &snapshots[i]
		}
	}
	return found, nil
}
