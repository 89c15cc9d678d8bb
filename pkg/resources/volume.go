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

// Volume is the provider-side representation of a block storage volume.
type Volume struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	SizeGB     int      `json:"size_gigabytes"`
	Desc       string   `json:"description"`
	DropletIDs []int    `json:"droplet_ids"`
	Tags       []string `json:"tags"`
	Region     struct {
		Slug string `json:"slug"`
	} `json:"region"`
	FilesystemType  string `json:"filesystem_type"`
	FilesystemLabel string `json:"filesystem_label"`
	CreatedAt       string `json:"created_at"`
}

// VolumeSpec is the volume module specification.
type VolumeSpec struct {
	Region          string   `json:"region,omitempty"`
	SizeGB          int      `json:"size_gigabytes,omitempty" validate:"omitempty,min=1"`
	Description     string   `json:"description,omitempty"`
	FilesystemType  string   `json:"filesystem_type,omitempty" validate:"omitempty,oneof=ext4 xfs"`
	FilesystemLabel string   `json:"filesystem_label,omitempty"`
	SnapshotID      string   `json:"snapshot_id,omitempty"`
	Tags            []string `json:"tags,omitempty"`

	// AttachDropletID attaches the volume to the droplet (present) or
	// detaches it (absent spec field removed); attach and detach go through
	// the volume actions endpoint and wait for completion.
	AttachDropletID int `json:"attach_droplet_id,omitempty"`

	WaitTimeout   int `json:"wait_timeout,omitempty"`
	SleepInterval int `json:"sleep_interval,omitempty"`
}

func (s *VolumeSpec) waitConfig() engine.WaitConfig {
	cfg := engine.DefaultWaitConfig()
	if s.WaitTimeout != 0 {
		cfg.Timeout = time.Duration(s.WaitTimeout) * time.Second
	}
	if s.SleepInterval != 0 {
		cfg.SleepInterval = time.Duration(s.SleepInterval) * time.Second
	}
	return cfg
}

// VolumeModule reconciles block storage volumes, including attachment to
// droplets.
type VolumeModule struct {
	opts Options
	log  *telemetry.Logger
}

// NewVolumeModule creates the volume module.
func NewVolumeModule(opts Options) *VolumeModule {
	return &VolumeModule{opts: opts, log: opts.logger("volume")}
}

// Type implements Module.
func (m *VolumeModule) Type() string { return "volume" }

// Reconcile implements Module.
func (m *VolumeModule) Reconcile(ctx context.Context, req Request) (*engine.Result, error) {
	var spec VolumeSpec
	if err := decodeSpec(req.Spec, "volume", &spec); err != nil {
		return nil, err
	}
	waitCfg := spec.waitConfig()
	if err := waitCfg.Validate(); err != nil {
		return nil, err
	}

	client := m.opts.Client

	result, err := engine.Reconcile(ctx, req.State, m.opts.CheckMode, engine.Ops[Volume]{
		Describe: fmt.Sprintf("volume %q", req.Name),
		Lookup: func(ctx context.Context) (*Volume, error) {
			return FindVolumeByName(ctx, client, req.Name, spec.Region)
		},
		Create: func(ctx context.Context) (*Volume, error) {
			if spec.Region == "" || spec.SizeGB == 0 {
				return nil, engine.NewValidationError("region and size_gigabytes are required to create a volume")
			}
			body := map[string]any{
				"name":           req.Name,
				"region":         spec.Region,
				"size_gigabytes": spec.SizeGB,
			}
			if spec.Description != "" {
				body["description"] = spec.Description
			}
			if spec.FilesystemType != "" {
				body["filesystem_type"] = spec.FilesystemType
			}
			if spec.FilesystemLabel != "" {
				body["filesystem_label"] = spec.FilesystemLabel
			}
			if spec.SnapshotID != "" {
				body["snapshot_id"] = spec.SnapshotID
			}
			if len(spec.Tags) > 0 {
				body["tags"] = spec.Tags
			}
			var out struct {
				Volume Volume `json:"volume"`
			}
			if err := client.Post(ctx, "/volumes", body, &out); err != nil {
				return nil, err
			}
			m.log.WithResource("volume", req.Name).Info("volume created")
			return &out.Volume, nil
		},
		NeedsUpdate: func(current *Volume) (bool, string) {
			// Volumes only grow; the API rejects shrinking.
			if spec.SizeGB != 0 && current.SizeGB < spec.SizeGB {
				return true, fmt.Sprintf("resize from %dGB to %dGB", current.SizeGB, spec.SizeGB)
			}
			return false, ""
		},
		Update: func(ctx context.Context, current *Volume) (*Volume, error) {
			if err := m.volumeAction(ctx, current, map[string]any{
				"type":           "resize",
				"size_gigabytes": spec.SizeGB,
				"region":         current.Region.Slug,
			}, waitCfg); err != nil {
				return nil, err
			}
			return getVolume(ctx, client, current.ID)
		},
		Delete: func(ctx context.Context, current *Volume) error {
			return client.Delete(ctx, "/volumes/"+current.ID, nil)
		},
	})
	if err != nil || req.State == engine.StateAbsent {
		return result, err
	}

	// Attachment runs after the volume itself is settled.
	if spec.AttachDropletID != 0 {
		current, ok := result.Data.(*Volume)
		if !ok || current == nil {
			// Check-mode create carries no volume to inspect; the
			// attachment would still happen, so report it.
			if m.opts.CheckMode {
				result.Changed = true
				result.Msg += fmt.Sprintf(", would attach to droplet %d", spec.AttachDropletID)
			}
			return result, nil
		}
		attached, err := m.ensureAttached(ctx, current, spec.AttachDropletID, waitCfg)
		if err != nil {
			return nil, err
		}
		if attached {
			result.Changed = true
			result.Msg += fmt.Sprintf(", attached to droplet %d", spec.AttachDropletID)
		}
	}
	return result, nil
}

func (m *VolumeModule) ensureAttached(ctx context.Context, v *Volume, dropletID int, waitCfg engine.WaitConfig) (bool, error) {
	for _, id := range v.DropletIDs {
		if id == dropletID {
			return false, nil
		}
	}
	if m.opts.CheckMode {
		return true, nil
	}
	err := m.volumeAction(ctx, v, map[string]any{
		"type":       "attach",
		"droplet_id": dropletID,
		"region":     v.Region.Slug,
	}, waitCfg)
	if err != nil {
		return false, err
	}
	return true, nil
}

func (m *VolumeModule) volumeAction(ctx context.Context, v *Volume, body map[string]any, waitCfg engine.WaitConfig) error {
	var out struct {
		Action Action `json:"action"`
	}
	if err := m.opts.Client.Post(ctx, "/volumes/"+v.ID+"/actions", body, &out); err != nil {
		return err
	}
	what := fmt.Sprintf("volume %s %v", v.Name, body["type"])
	return waitForAction(ctx, m.opts.Client, out.Action.ID, waitCfg, what)
}

func getVolume(ctx context.Context, client *doapi.Client, id string) (*Volume, error) {
	var out struct {
		Volume Volume `json:"volume"`
	}
	if err := client.Get(ctx, "/volumes/"+id, nil, &out); err != nil {
		if engine.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &out.Volume, nil
}

// ListVolumes returns all volumes, optionally scoped to a region.
func ListVolumes(ctx context.Context, client *doapi.Client, region string) ([]Volume, error) {
	var query url.Values
	if region != "" {
		query = url.Values{"region": []string{region}}
	}
	return doapi.ListAll[Volume](ctx, client, "/volumes", "volumes", query)
}

// FindVolumeByName returns the named volume, or nil. Volume names are
// unique within a region.
func FindVolumeByName(ctx context.Context, client *doapi.Client, name, region string) (*Volume, error) {
	volumes, err := ListVolumes(ctx, client, region)
	if err != nil {
		return nil, err
	}
	for i := range volumes {
		if volumes[i].Name == name {
			return &volumes[i], nil
		}
	}
	return nil, nil
}
