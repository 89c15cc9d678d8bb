package resources

import (
	"context"
	"fmt"
	"time"

	"github.com/openlagoon/openlagoon/pkg/doapi"
	"github.com/openlagoon/openlagoon/pkg/engine"
	"github.com/openlagoon/openlagoon/pkg/telemetry"
)

// ReservedIP is the provider-side representation of a reserved IPv4
// address.
type ReservedIP struct {
	IP      string   `json:"ip"`
	Droplet *Droplet `json:"droplet,omitempty"`
	Region  struct {
		Slug string `json:"slug"`
	} `json:"region"`
	Locked bool `json:"locked"`
}

// ReservedIPSpec is the reserved_ip module specification. On create,
// exactly one of Region and DropletID is required: reserving to a region
// leaves the address unassigned, reserving to a droplet assigns it
// immediately.
type ReservedIPSpec struct {
	Region    string `json:"region,omitempty"`
	DropletID int    `json:"droplet_id,omitempty"`

	WaitTimeout   int `json:"wait_timeout,omitempty"`
	SleepInterval int `json:"sleep_interval,omitempty"`
}

func (s *ReservedIPSpec) waitConfig() engine.WaitConfig {
	cfg := engine.DefaultWaitConfig()
	if s.WaitTimeout != 0 {
		cfg.Timeout = time.Duration(s.WaitTimeout) * time.Second
	}
	if s.SleepInterval != 0 {
		cfg.SleepInterval = time.Duration(s.SleepInterval) * time.Second
	}
	return cfg
}

// ReservedIPModule reconciles reserved IPs. The request name is the IP
// address itself for existing addresses, or any label when reserving a new
// one.
type ReservedIPModule struct {
	opts Options
	log  *telemetry.Logger
}

// NewReservedIPModule creates the reserved_ip module.
func NewReservedIPModule(opts Options) *ReservedIPModule {
	return &ReservedIPModule{opts: opts, log: opts.logger("reserved_ip")}
}

// Type implements Module.
func (m *ReservedIPModule) Type() string { return "reserved_ip" }

// Reconcile implements Module.
func (m *ReservedIPModule) Reconcile(ctx context.Context, req Request) (*engine.Result, error) {
	var spec ReservedIPSpec
	if err := decodeSpec(req.Spec, "reserved_ip", &spec); err != nil {
		return nil, err
	}
	if req.State.WantsExistence() {
		if (spec.Region == "") == (spec.DropletID == 0) {
			return nil, engine.NewValidationError("exactly one of region or droplet_id is required")
		}
	}
	waitCfg := spec.waitConfig()
	if err := waitCfg.Validate(); err != nil {
		return nil, err
	}

	client := m.opts.Client

	result, err := engine.Reconcile(ctx, req.State, m.opts.CheckMode, engine.Ops[ReservedIP]{
		Describe: fmt.Sprintf("reserved ip %q", req.Name),
		Lookup: func(ctx context.Context) (*ReservedIP, error) {
			return getReservedIP(ctx, client, req.Name)
		},
		Create: func(ctx context.Context) (*ReservedIP, error) {
			body := map[string]any{}
			if spec.DropletID != 0 {
				body["droplet_id"] = spec.DropletID
			} else {
				body["region"] = spec.Region
			}
			var out struct {
				ReservedIP ReservedIP `json:"reserved_ip"`
			}
			if err := client.Post(ctx, "/reserved_ips", body, &out); err != nil {
				return nil, err
			}
			m.log.WithField("ip", out.ReservedIP.IP).Info("reserved ip created")
			return &out.ReservedIP, nil
		},
		NeedsUpdate: func(current *ReservedIP) (bool, string) {
			if spec.DropletID == 0 {
				return false, ""
			}
			if current.Droplet == nil || current.Droplet.ID != spec.DropletID {
				return true, fmt.Sprintf("assign to droplet %d", spec.DropletID)
			}
			return false, ""
		},
		Update: func(ctx context.Context, current *ReservedIP) (*ReservedIP, error) {
			if err := m.ipAction(ctx, current.IP, map[string]any{
				"type":       "assign",
				"droplet_id": spec.DropletID,
			}, waitCfg); err != nil {
				return nil, err
			}
			return getReservedIP(ctx, client, current.IP)
		},
		Delete: func(ctx context.Context, current *ReservedIP) error {
			// An assigned address is released from its droplet before the
			// reservation itself is dropped.
			if current.Droplet != nil {
				if err := m.ipAction(ctx, current.IP, map[string]any{"type": "unassign"}, waitCfg); err != nil {
					return err
				}
			}
			return client.Delete(ctx, "/reserved_ips/"+current.IP, nil)
		},
	})
	return result, err
}

func (m *ReservedIPModule) ipAction(ctx context.Context, ip string, body map[string]any, waitCfg engine.WaitConfig) error {
	var out struct {
		Action Action `json:"action"`
	}
	if err := m.opts.Client.Post(ctx, "/reserved_ips/"+ip+"/actions", body, &out); err != nil {
		return err
	}
	what := fmt.Sprintf("reserved ip %s %v", ip, body["type"])
	return waitForAction(ctx, m.opts.Client, out.Action.ID, waitCfg, what)
}

func getReservedIP(ctx context.Context, client *doapi.Client, ip string) (*ReservedIP, error) {
	var out struct {
		ReservedIP ReservedIP `json:"reserved_ip"`
	}
	if err := client.Get(ctx, "/reserved_ips/"+ip, nil, &out); err != nil {
		if engine.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &out.ReservedIP, nil
}

// ListReservedIPs returns all reserved IPs.
func ListReservedIPs(ctx context.Context, client *doapi.Client) ([]ReservedIP, error) {
	return doapi.ListAll[ReservedIP](ctx, client, "/reserved_ips", "reserved_ips", nil)
}
