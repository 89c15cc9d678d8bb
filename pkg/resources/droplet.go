package resources

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/openlagoon/openlagoon/pkg/doapi"
	"github.com/openlagoon/openlagoon/pkg/engine"
	"github.com/openlagoon/openlagoon/pkg/telemetry"
)

// Droplet statuses reported by the API.
const (
	dropletStatusNew    = "new"
	dropletStatusActive = "active"
	dropletStatusOff    = "off"
)

// Droplet is the provider-side representation of a droplet.
type Droplet struct {
	ID       int      `json:"id"`
	Name     string   `json:"name"`
	Status   string   `json:"status"`
	Locked   bool     `json:"locked"`
	SizeSlug string   `json:"size_slug"`
	Memory   int      `json:"memory"`
	VCPUs    int      `json:"vcpus"`
	Disk     int      `json:"disk"`
	Tags     []string `json:"tags"`
	Region   struct {
		Slug string `json:"slug"`
	} `json:"region"`
	Image struct {
		ID   int    `json:"id"`
		Slug string `json:"slug"`
	} `json:"image"`
	Networks  Networks `json:"networks"`
	VolumeIDs []string `json:"volume_ids"`
	VPCUUID   string   `json:"vpc_uuid"`
	CreatedAt string   `json:"created_at"`
}

// Networks is the droplet networking block. Addresses may be missing while
// the droplet is still provisioning; both slices are optional.
type Networks struct {
	V4 []NetworkAddress `json:"v4,omitempty"`
	V6 []NetworkAddress `json:"v6,omitempty"`
}

// NetworkAddress is one assigned address.
type NetworkAddress struct {
	IPAddress string `json:"ip_address"`
	Netmask   any    `json:"netmask,omitempty"`
	Gateway   string `json:"gateway,omitempty"`
	Type      string `json:"type"`
}

// URN returns the uniform resource name used for project assignment.
func (d *Droplet) URN() string {
	return fmt.Sprintf("do:droplet:%d", d.ID)
}

// PublicIPv4 returns the droplet's public IPv4 address, or "".
func (d *Droplet) PublicIPv4() string { return firstAddress(d.Networks.V4, "public") }

// PrivateIPv4 returns the droplet's private IPv4 address, or "".
func (d *Droplet) PrivateIPv4() string { return firstAddress(d.Networks.V4, "private") }

// PublicIPv6 returns the droplet's public IPv6 address, or "".
func (d *Droplet) PublicIPv6() string { return firstAddress(d.Networks.V6, "public") }

func firstAddress(addrs []NetworkAddress, kind string) string {
	for _, a := range addrs {
		if a.Type == kind {
			return a.IPAddress
		}
	}
	return ""
}

// DropletFacts is the reconcile result payload: the droplet plus its
// flattened addresses.
type DropletFacts struct {
	Droplet
	IPv4PublicAddress  string `json:"ipv4_public_address,omitempty"`
	IPv4PrivateAddress string `json:"ipv4_private_address,omitempty"`
	IPv6PublicAddress  string `json:"ipv6_public_address,omitempty"`
}

func dropletFacts(d *Droplet) *DropletFacts {
	return &DropletFacts{
		Droplet:            *d,
		IPv4PublicAddress:  d.PublicIPv4(),
		IPv4PrivateAddress: d.PrivateIPv4(),
		IPv6PublicAddress:  d.PublicIPv6(),
	}
}

// DropletSpec is the droplet module specification.
type DropletSpec struct {
	// ID selects an existing droplet directly, bypassing name lookup.
	ID int `json:"id,omitempty"`

	Region            string   `json:"region,omitempty"`
	Size              string   `json:"size,omitempty"`
	Image             string   `json:"image,omitempty"`
	SSHKeys           []string `json:"ssh_keys,omitempty"`
	Backups           bool     `json:"backups,omitempty"`
	IPv6              bool     `json:"ipv6,omitempty"`
	Monitoring        bool     `json:"monitoring,omitempty"`
	PrivateNetworking bool     `json:"private_networking,omitempty"`
	VPCUUID           string   `json:"vpc_uuid,omitempty"`
	UserData          string   `json:"user_data,omitempty"`
	Volumes           []string `json:"volumes,omitempty"`
	Tags              []string `json:"tags,omitempty"`

	// UniqueName makes the droplet name an identity: lookups match by name,
	// and re-applying the same spec becomes a no-op instead of creating a
	// second droplet with the same name.
	UniqueName bool `json:"unique_name,omitempty"`

	// Resize, with UniqueName, resizes an existing droplet whose size
	// differs from Size. ResizeDisk makes the resize permanent.
	Resize     bool `json:"resize,omitempty"`
	ResizeDisk bool `json:"resize_disk,omitempty"`

	// Firewalls, when non-nil, is the complete set of firewall names the
	// droplet belongs to. Membership in any other firewall is removed.
	Firewalls []string `json:"firewalls,omitempty"`

	// Project assigns the droplet to the named project by URN.
	Project string `json:"project,omitempty"`

	// Wait blocks until the droplet reaches its target status.
	Wait          *bool `json:"wait,omitempty"`
	WaitTimeout   int   `json:"wait_timeout,omitempty"`
	SleepInterval int   `json:"sleep_interval,omitempty"`
}

func (s *DropletSpec) wait() bool {
	if s.Wait == nil {
		return true
	}
	return *s.Wait
}

func (s *DropletSpec) waitConfig() engine.WaitConfig {
	cfg := engine.DefaultWaitConfig()
	if s.WaitTimeout != 0 {
		cfg.Timeout = time.Duration(s.WaitTimeout) * time.Second
	}
	if s.SleepInterval != 0 {
		cfg.SleepInterval = time.Duration(s.SleepInterval) * time.Second
	}
	return cfg
}

// DropletModule reconciles droplets, including power state, resize,
// firewall membership, and project assignment.
type DropletModule struct {
	opts Options
	log  *telemetry.Logger
}

// NewDropletModule creates the droplet module.
func NewDropletModule(opts Options) *DropletModule {
	return &DropletModule{opts: opts, log: opts.logger("droplet")}
}

// Type implements Module.
func (m *DropletModule) Type() string { return "droplet" }

// Reconcile implements Module. Unlike most modules, droplets support the
// active and inactive power states in addition to present and absent.
func (m *DropletModule) Reconcile(ctx context.Context, req Request) (*engine.Result, error) {
	var spec DropletSpec
	if err := decodeSpec(req.Spec, "droplet", &spec); err != nil {
		return nil, err
	}
	if !req.State.Valid() {
		return nil, engine.NewValidationError(fmt.Sprintf("unknown target state %q", req.State))
	}

	// The wait budget is validated before any mutating call.
	waitCfg := spec.waitConfig()
	if err := waitCfg.Validate(); err != nil {
		return nil, err
	}

	current, err := m.lookup(ctx, req.Name, &spec)
	if err != nil {
		return nil, err
	}

	if req.State == engine.StateAbsent {
		return m.reconcileAbsent(ctx, req.Name, current)
	}

	if req.State.WantsExistence() && current == nil {
		if spec.Region == "" || spec.Size == "" || spec.Image == "" {
			return nil, engine.NewValidationError("region, size, and image are required to create a droplet")
		}
	}
	return m.reconcilePresent(ctx, req, &spec, waitCfg, current)
}

func (m *DropletModule) reconcileAbsent(ctx context.Context, name string, current *Droplet) (*engine.Result, error) {
	describe := fmt.Sprintf("droplet %q", name)
	if current == nil {
		return engine.Unchanged(fmt.Sprintf("%s not found", describe), nil), nil
	}
	if m.opts.CheckMode {
		return engine.ChangedResult(fmt.Sprintf("would delete %s", describe), dropletFacts(current)), nil
	}
	if err := m.opts.Client.Delete(ctx, fmt.Sprintf("/droplets/%d", current.ID), nil); err != nil {
		if engine.IsNotFound(err) {
			return engine.Unchanged(fmt.Sprintf("%s already deleted", describe), nil), nil
		}
		return nil, err
	}
	m.log.WithResource("droplet", name).Info("droplet deleted")
	return engine.ChangedResult(fmt.Sprintf("%s deleted", describe), nil), nil
}

func (m *DropletModule) reconcilePresent(ctx context.Context, req Request, spec *DropletSpec, waitCfg engine.WaitConfig, current *Droplet) (*engine.Result, error) {
	describe := fmt.Sprintf("droplet %q", req.Name)
	changed := false
	var msgs []string

	if current == nil {
		if m.opts.CheckMode {
			return engine.ChangedResult(fmt.Sprintf("would create %s", describe), nil), nil
		}
		created, err := m.create(ctx, req.Name, spec, waitCfg)
		if err != nil {
			return nil, err
		}
		current = created
		changed = true
		msgs = append(msgs, "created")
	} else if spec.UniqueName && spec.Resize && spec.Size != "" && current.SizeSlug != spec.Size {
		if m.opts.CheckMode {
			return engine.ChangedResult(
				fmt.Sprintf("would resize %s from %s to %s", describe, current.SizeSlug, spec.Size),
				dropletFacts(current)), nil
		}
		resized, err := m.resize(ctx, current, spec, waitCfg)
		if err != nil {
			return nil, err
		}
		current = resized
		changed = true
		msgs = append(msgs, fmt.Sprintf("resized to %s", spec.Size))
	}

	powered, powerMsg, err := m.reconcilePower(ctx, req.State, current, waitCfg)
	if err != nil {
		return nil, err
	}
	if powered != nil {
		current = powered
		changed = true
		msgs = append(msgs, powerMsg)
	}

	if spec.Firewalls != nil {
		fwChanged, err := m.syncFirewalls(ctx, current, spec.Firewalls)
		if err != nil {
			return nil, err
		}
		if fwChanged {
			changed = true
			msgs = append(msgs, "firewall membership updated")
		}
	}

	if spec.Project != "" {
		assigned, err := m.assignProject(ctx, current, spec.Project)
		if err != nil {
			return nil, err
		}
		if assigned {
			changed = true
			msgs = append(msgs, fmt.Sprintf("assigned to project %q", spec.Project))
		}
	}

	facts := dropletFacts(current)
	if !changed {
		return engine.Unchanged(fmt.Sprintf("%s up to date", describe), facts), nil
	}
	msg := describe
	for i, m := range msgs {
		if i == 0 {
			msg += " " + m
		} else {
			msg += ", " + m
		}
	}
	return engine.ChangedResult(msg, facts), nil
}

// lookup finds the current droplet: by ID when given, otherwise by name
// when unique_name is set. Without either, present always creates.
func (m *DropletModule) lookup(ctx context.Context, name string, spec *DropletSpec) (*Droplet, error) {
	if spec.ID != 0 {
		return GetDroplet(ctx, m.opts.Client, spec.ID)
	}
	if !spec.UniqueName {
		return nil, nil
	}
	return FindDropletByName(ctx, m.opts.Client, name)
}

func (m *DropletModule) create(ctx context.Context, name string, spec *DropletSpec, waitCfg engine.WaitConfig) (*Droplet, error) {
	body := map[string]any{
		"name":               name,
		"region":             spec.Region,
		"size":               spec.Size,
		"image":              spec.Image,
		"backups":            spec.Backups,
		"ipv6":               spec.IPv6,
		"monitoring":         spec.Monitoring,
		"private_networking": spec.PrivateNetworking,
	}
	if len(spec.SSHKeys) > 0 {
		body["ssh_keys"] = spec.SSHKeys
	}
	if spec.VPCUUID != "" {
		body["vpc_uuid"] = spec.VPCUUID
	}
	if spec.UserData != "" {
		body["user_data"] = spec.UserData
	}
	if len(spec.Volumes) > 0 {
		body["volumes"] = spec.Volumes
	}
	if len(spec.Tags) > 0 {
		body["tags"] = spec.Tags
	}

	var out struct {
		Droplet Droplet `json:"droplet"`
	}
	if err := m.opts.Client.Post(ctx, "/droplets", body, &out); err != nil {
		return nil, err
	}
	created := &out.Droplet
	m.log.WithResource("droplet", name).WithField("id", created.ID).Info("droplet created")

	if !spec.wait() {
		return created, nil
	}
	return m.waitForStatus(ctx, created.ID, dropletStatusActive, waitCfg)
}

// waitForStatus polls the droplet until it reports the wanted status.
func (m *DropletModule) waitForStatus(ctx context.Context, id int, want string, cfg engine.WaitConfig) (*Droplet, error) {
	var last *Droplet
	what := fmt.Sprintf("droplet %d to become %s", id, want)
	err := engine.Poll(ctx, cfg, what, func(ctx context.Context) (bool, error) {
		d, err := GetDroplet(ctx, m.opts.Client, id)
		if err != nil {
			return false, err
		}
		if d == nil {
			return false, engine.NewPermanentError(fmt.Sprintf("droplet %d disappeared while waiting", id), nil)
		}
		last = d
		return d.Status == want && !d.Locked, nil
	})
	if err != nil {
		return nil, err
	}
	return last, nil
}

func (m *DropletModule) resize(ctx context.Context, current *Droplet, spec *DropletSpec, waitCfg engine.WaitConfig) (*Droplet, error) {
	wasActive := current.Status == dropletStatusActive

	// The API rejects resizes of powered-on droplets.
	if wasActive {
		if err := m.powerAction(ctx, current.ID, "power_off", waitCfg); err != nil {
			return nil, err
		}
	}

	if err := m.dropletAction(ctx, current.ID, map[string]any{
		"type": "resize",
		"size": spec.Size,
		"disk": spec.ResizeDisk,
	}, waitCfg); err != nil {
		return nil, err
	}

	if wasActive {
		if err := m.powerAction(ctx, current.ID, "power_on", waitCfg); err != nil {
			return nil, err
		}
	}
	return GetDroplet(ctx, m.opts.Client, current.ID)
}

// reconcilePower aligns the droplet's power state with an active or inactive
// target. Returns the refreshed droplet when a power action ran, nil for
// no-op.
func (m *DropletModule) reconcilePower(ctx context.Context, state engine.TargetState, current *Droplet, waitCfg engine.WaitConfig) (*Droplet, string, error) {
	var action string
	switch {
	case state == engine.StateActive && current.Status == dropletStatusOff:
		action = "power_on"
	case state == engine.StateInactive && current.Status == dropletStatusActive:
		action = "power_off"
	default:
		return nil, "", nil
	}

	if m.opts.CheckMode {
		refreshed := *current
		return &refreshed, fmt.Sprintf("would %s", action), nil
	}

	if err := m.powerAction(ctx, current.ID, action, waitCfg); err != nil {
		return nil, "", err
	}
	refreshed, err := GetDroplet(ctx, m.opts.Client, current.ID)
	if err != nil {
		return nil, "", err
	}
	return refreshed, fmt.Sprintf("powered %s", map[string]string{"power_on": "on", "power_off": "off"}[action]), nil
}

func (m *DropletModule) powerAction(ctx context.Context, id int, actionType string, waitCfg engine.WaitConfig) error {
	return m.dropletAction(ctx, id, map[string]any{"type": actionType}, waitCfg)
}

func (m *DropletModule) dropletAction(ctx context.Context, id int, body map[string]any, waitCfg engine.WaitConfig) error {
	var out struct {
		Action Action `json:"action"`
	}
	path := fmt.Sprintf("/droplets/%d/actions", id)
	if err := m.opts.Client.Post(ctx, path, body, &out); err != nil {
		return err
	}
	what := fmt.Sprintf("droplet %d %v", id, body["type"])
	return waitForAction(ctx, m.opts.Client, out.Action.ID, waitCfg, what)
}

// syncFirewalls makes the named firewalls the droplet's complete membership
// set: it is added to each named firewall and removed from all others.
func (m *DropletModule) syncFirewalls(ctx context.Context, d *Droplet, names []string) (bool, error) {
	firewalls, err := ListFirewalls(ctx, m.opts.Client)
	if err != nil {
		return false, err
	}

	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}
	seen := make(map[string]bool, len(names))

	changed := false
	for i := range firewalls {
		fw := &firewalls[i]
		member := false
		for _, id := range fw.DropletIDs {
			if id == d.ID {
				member = true
				break
			}
		}
		if wanted[fw.Name] {
			seen[fw.Name] = true
		}

		switch {
		case wanted[fw.Name] && !member:
			if m.opts.CheckMode {
				changed = true
				continue
			}
			body := map[string]any{"droplet_ids": []int{d.ID}}
			if err := m.opts.Client.Post(ctx, fmt.Sprintf("/firewalls/%s/droplets", fw.ID), body, nil); err != nil {
				return changed, err
			}
			changed = true
		case !wanted[fw.Name] && member:
			if m.opts.CheckMode {
				changed = true
				continue
			}
			body := map[string]any{"droplet_ids": []int{d.ID}}
			if err := m.opts.Client.Delete(ctx, fmt.Sprintf("/firewalls/%s/droplets", fw.ID), body); err != nil {
				return changed, err
			}
			changed = true
		}
	}

	for _, n := range names {
		if !seen[n] {
			return changed, engine.NewValidationError(fmt.Sprintf("firewall %q does not exist", n))
		}
	}
	return changed, nil
}

// assignProject moves the droplet into the named project. Assigning a
// resource it already holds is accepted by the API and reported unchanged
// here only when the project lookup shows no change is needed; the API does
// not expose membership on the droplet, so assignment is always issued.
func (m *DropletModule) assignProject(ctx context.Context, d *Droplet, projectName string) (bool, error) {
	project, err := FindProjectByName(ctx, m.opts.Client, projectName)
	if err != nil {
		return false, err
	}
	if project == nil {
		return false, engine.NewValidationError(fmt.Sprintf("project %q does not exist", projectName))
	}
	if m.opts.CheckMode {
		return true, nil
	}

	body := map[string]any{"resources": []string{d.URN()}}
	var out struct {
		Resources []struct {
			URN    string `json:"urn"`
			Status string `json:"status"`
		} `json:"resources"`
	}
	if err := m.opts.Client.Post(ctx, fmt.Sprintf("/projects/%s/resources", project.ID), body, &out); err != nil {
		return false, err
	}
	for _, r := range out.Resources {
		if r.URN == d.URN() && r.Status == "already_assigned" {
			return false, nil
		}
	}
	return true, nil
}

// GetDroplet fetches a droplet by ID, returning nil when it does not exist.
func GetDroplet(ctx context.Context, client *doapi.Client, id int) (*Droplet, error) {
	var out struct {
		Droplet Droplet `json:"droplet"`
	}
	if err := client.Get(ctx, fmt.Sprintf("/droplets/%d", id), nil, &out); err != nil {
		if engine.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &out.Droplet, nil
}

// ListDroplets returns all droplets, optionally filtered by tag.
func ListDroplets(ctx context.Context, client *doapi.Client, tag string) ([]Droplet, error) {
	return ListDropletsPageSize(ctx, client, tag, 0)
}

// ListDropletsPageSize lists droplets with an explicit page size. Zero uses
// the package default.
func ListDropletsPageSize(ctx context.Context, client *doapi.Client, tag string, perPage int) ([]Droplet, error) {
	query := url.Values{}
	if tag != "" {
		query.Set("tag_name", tag)
	}
	if perPage > 0 {
		query.Set("per_page", strconv.Itoa(perPage))
	}
	return doapi.ListAll[Droplet](ctx, client, "/droplets", "droplets", query)
}

// FindDropletByName returns the droplet with the given name, or nil. More
// than one droplet with the name is an error: name lookups are only safe
// when the name is unique.
func FindDropletByName(ctx context.Context, client *doapi.Client, name string) (*Droplet, error) {
	droplets, err := ListDroplets(ctx, client, "")
	if err != nil {
		return nil, err
	}
	var found *Droplet
	for i := range droplets {
		if droplets[i].Name == name {
			if found != nil {
				return nil, engine.NewValidationError(
					fmt.Sprintf("multiple droplets named %q; use id to disambiguate", name))
			}
			found = &droplets[i]
		}
	}
	return found, nil
}
