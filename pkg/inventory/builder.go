package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/openlagoon/openlagoon/pkg/doapi"
	"github.com/openlagoon/openlagoon/pkg/engine"
	"github.com/openlagoon/openlagoon/pkg/resources"
	"github.com/openlagoon/openlagoon/pkg/stores"
	"github.com/openlagoon/openlagoon/pkg/telemetry"
)

// Inventory is a built host inventory. It marshals into the conventional
// dynamic-inventory JSON shape: hostvars under _meta plus one object per
// group listing its hosts.
type Inventory struct {
	// Hostvars maps host name to its exported variables.
	Hostvars map[string]map[string]any

	// Groups maps sanitized group name to its sorted host list.
	Groups map[string][]string
}

type inventoryMeta struct {
	Hostvars map[string]map[string]any `json:"hostvars"`
}

type inventoryGroup struct {
	Hosts []string `json:"hosts"`
}

// MarshalJSON implements json.Marshaler.
func (inv *Inventory) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, len(inv.Groups)+1)
	doc["_meta"] = inventoryMeta{Hostvars: inv.Hostvars}
	for name, hosts := range inv.Groups {
		doc[name] = inventoryGroup{Hosts: hosts}
	}
	return json.Marshal(doc)
}

// UnmarshalJSON implements json.Unmarshaler for cache round trips.
func (inv *Inventory) UnmarshalJSON(data []byte) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	inv.Hostvars = map[string]map[string]any{}
	inv.Groups = map[string][]string{}

	for name, raw := range doc {
		if name == "_meta" {
			var meta inventoryMeta
			if err := json.Unmarshal(raw, &meta); err != nil {
				return err
			}
			inv.Hostvars = meta.Hostvars
			continue
		}
		var group inventoryGroup
		if err := json.Unmarshal(raw, &group); err != nil {
			return err
		}
		inv.Groups[name] = group.Hosts
	}
	return nil
}

// Hosts returns the sorted names of all hosts in the inventory.
func (inv *Inventory) Hosts() []string {
	names := make([]string, 0, len(inv.Hostvars))
	for name := range inv.Hostvars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Builder builds inventories from the droplets API, with an optional
// sqlite-backed cache.
type Builder struct {
	client  *doapi.Client
	cfg     *Config
	filter  *Filter
	store   *stores.SQLiteStore
	log     *telemetry.Logger
	metrics *telemetry.Metrics
}

// BuilderOptions wires a Builder.
type BuilderOptions struct {
	Client *doapi.Client
	Config *Config

	// Store backs the inventory cache. Required only when caching is
	// enabled in the config.
	Store *stores.SQLiteStore

	Logger  *telemetry.Logger
	Metrics *telemetry.Metrics
}

// NewBuilder creates an inventory builder. The config's filters are
// compiled here so bad expressions fail fast.
func NewBuilder(opts BuilderOptions) (*Builder, error) {
	if opts.Client == nil {
		return nil, engine.NewValidationError("inventory builder requires an API client")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = &Config{}
		if err := cfg.Normalize(); err != nil {
			return nil, err
		}
	}
	if cfg.Cache.Enabled && opts.Store == nil {
		return nil, engine.NewValidationError("inventory cache is enabled but no store was provided")
	}

	filter, err := CompileFilters(cfg.Filters)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger, _ = telemetry.NewLogger(telemetry.DefaultConfig().Logging)
	}

	return &Builder{
		client:  opts.Client,
		cfg:     cfg,
		filter:  filter,
		store:   opts.Store,
		log:     logger.NewComponentLogger("inventory"),
		metrics: opts.Metrics,
	}, nil
}

// Build returns the inventory, from cache when possible. refresh bypasses
// and overwrites the cache.
func (b *Builder) Build(ctx context.Context, refresh bool) (*Inventory, error) {
	cacheKey := b.cfg.Hash()

	if b.cfg.Cache.Enabled && !refresh {
		if inv := b.fromCache(ctx, cacheKey); inv != nil {
			return inv, nil
		}
	}

	inv, err := b.build(ctx)
	if err != nil {
		return nil, err
	}

	if b.cfg.Cache.Enabled {
		if err := b.toCache(ctx, cacheKey, inv); err != nil {
			// A write failure degrades to uncached operation.
			b.log.WithError(err).Warn("failed to write inventory cache")
		}
	}
	return inv, nil
}

func (b *Builder) fromCache(ctx context.Context, key string) *Inventory {
	entry, err := b.store.GetInventoryCache(ctx, key)
	if err != nil {
		if err != stores.ErrNotFound {
			b.log.WithError(err).Warn("inventory cache lookup failed")
		}
		if b.metrics != nil {
			b.metrics.RecordCacheLookup("miss")
		}
		return nil
	}

	var inv Inventory
	if err := json.Unmarshal(entry.Payload, &inv); err != nil {
		b.log.WithError(err).Warn("discarding corrupt inventory cache entry")
		if b.metrics != nil {
			b.metrics.RecordCacheLookup("miss")
		}
		return nil
	}
	if b.metrics != nil {
		b.metrics.RecordCacheLookup("hit")
	}
	b.log.WithField("hosts", len(inv.Hostvars)).Debug("inventory served from cache")
	return &inv
}

func (b *Builder) toCache(ctx context.Context, key string, inv *Inventory) error {
	payload, err := json.Marshal(inv)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	return b.store.PutInventoryCache(ctx, &stores.InventoryCacheEntry{
		ConfigHash: key,
		Payload:    payload,
		CreatedAt:  now,
		ExpiresAt:  now.Add(b.cfg.CacheTTL()),
	})
}

// build fetches every droplet and assembles hostvars and groups.
func (b *Builder) build(ctx context.Context) (*Inventory, error) {
	droplets, err := resources.ListDropletsPageSize(ctx, b.client, "", b.cfg.PerPage)
	if err != nil {
		return nil, err
	}

	inv := &Inventory{
		Hostvars: map[string]map[string]any{},
		Groups:   map[string][]string{},
	}

	for i := range droplets {
		d := &droplets[i]
		attrs, err := dropletAttributes(d)
		if err != nil {
			return nil, err
		}

		allVars := b.prefixed(attrs, nil)
		keep, err := b.filter.Match(allVars)
		if err != nil {
			if b.cfg.Strict {
				return nil, engine.NewValidationError(
					fmt.Sprintf("filter failed for host %q: %v", d.Name, err))
			}
			b.log.WithResource("droplet", d.Name).WithError(err).
				Warn("filter error, excluding host")
			continue
		}
		if !keep {
			continue
		}

		inv.Hostvars[d.Name] = b.prefixed(attrs, b.cfg.Attributes)
		b.group(inv, d)
	}

	for name := range inv.Groups {
		sort.Strings(inv.Groups[name])
	}

	b.log.WithField("hosts", len(inv.Hostvars)).
		WithField("groups", len(inv.Groups)).
		Info("inventory built")
	if b.metrics != nil {
		b.metrics.RecordInventoryBuild("api", len(inv.Hostvars))
	}
	return inv, nil
}

// dropletAttributes flattens a droplet into its JSON attribute map.
func dropletAttributes(d *resources.Droplet) (map[string]any, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	var attrs map[string]any
	if err := json.Unmarshal(raw, &attrs); err != nil {
		return nil, err
	}
	// region is exported as its slug rather than the full region object.
	attrs["region"] = d.Region.Slug
	return attrs, nil
}

// prefixed returns the attributes under their prefixed var names. A non-nil
// allowlist restricts the output to those attribute names.
func (b *Builder) prefixed(attrs map[string]any, allowlist []string) map[string]any {
	vars := make(map[string]any)
	if allowlist == nil {
		for name, val := range attrs {
			vars[b.cfg.VarPrefix+name] = val
		}
		return vars
	}
	for _, name := range allowlist {
		if val, ok := attrs[name]; ok {
			vars[b.cfg.VarPrefix+name] = val
		}
	}
	return vars
}

// group adds the droplet to its groups per the configured group_by keys.
func (b *Builder) group(inv *Inventory, d *resources.Droplet) {
	add := func(group string) {
		name := SanitizeGroupName(group)
		inv.Groups[name] = append(inv.Groups[name], d.Name)
	}

	for _, key := range b.cfg.GroupBy {
		switch key {
		case "region":
			if d.Region.Slug != "" {
				add("region_" + d.Region.Slug)
			}
		case "size":
			if d.SizeSlug != "" {
				add("size_" + d.SizeSlug)
			}
		case "status":
			if d.Status != "" {
				add("status_" + d.Status)
			}
		case "tag":
			for _, tag := range d.Tags {
				add("tag_" + tag)
			}
		}
	}
}

// SanitizeGroupName replaces every character that is not a letter, digit, or
// underscore so group names are safe identifiers.
func SanitizeGroupName(name string) string {
	var sb strings.Builder
	sb.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	return sb.String()
}
