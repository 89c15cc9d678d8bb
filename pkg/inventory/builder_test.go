package inventory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/openlagoon/openlagoon/pkg/doapi"
	"github.com/openlagoon/openlagoon/pkg/stores"
)

const dropletsPage = `{"droplets":[
	{"id":1,"name":"web-1","status":"active","size_slug":"s-1vcpu-1gb","tags":["web","prod"],
	 "region":{"slug":"nyc3"},
	 "networks":{"v4":[{"ip_address":"203.0.113.10","type":"public"}]}},
	{"id":2,"name":"db-1","status":"active","size_slug":"s-2vcpu-4gb","tags":["db"],
	 "region":{"slug":"ams3"},
	 "networks":{"v4":[{"ip_address":"203.0.113.11","type":"public"}]}},
	{"id":3,"name":"old-1","status":"off","size_slug":"s-1vcpu-1gb","tags":[],
	 "region":{"slug":"nyc3"},"networks":{}}
],"links":{},"meta":{"total":3}}`

func newTestBuilder(t *testing.T, cfg *Config, store *stores.SQLiteStore) (*Builder, *atomic.Int64) {
	t.Helper()
	var apiCalls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(dropletsPage)); err != nil {
			t.Errorf("write response: %v", err)
		}
	}))
	t.Cleanup(server.Close)

	client, err := doapi.NewClient(doapi.Config{Token: "test-token", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if err := cfg.Normalize(); err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	builder, err := NewBuilder(BuilderOptions{Client: client, Config: cfg, Store: store})
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	return builder, &apiCalls
}

func newTestStore(t *testing.T) *stores.SQLiteStore {
	t.Helper()
	store, err := stores.NewSQLiteStore(stores.Config{Path: filepath.Join(t.TempDir(), "lagoon.db")})
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestBuildGroupsAndHostvars(t *testing.T) {
	builder, _ := newTestBuilder(t, nil, nil)
	inv, err := builder.Build(context.Background(), false)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if got := inv.Hosts(); len(got) != 3 {
		t.Fatalf("Hosts = %v, want 3 hosts", got)
	}

	vars := inv.Hostvars["web-1"]
	if vars == nil {
		t.Fatal("missing hostvars for web-1")
	}
	if vars["do_region"] != "nyc3" {
		t.Errorf("do_region = %v, want nyc3", vars["do_region"])
	}
	if vars["do_size_slug"] != "s-1vcpu-1gb" {
		t.Errorf("do_size_slug = %v", vars["do_size_slug"])
	}
	if _, ok := vars["do_status"]; ok {
		t.Error("status exported despite not being in the attribute allowlist")
	}

	for group, wantHosts := range map[string][]string{
		"region_nyc3":      {"old-1", "web-1"},
		"region_ams3":      {"db-1"},
		"size_s_1vcpu_1gb": {"old-1", "web-1"},
		"status_off":       {"old-1"},
		"tag_prod":         {"web-1"},
	} {
		hosts, ok := inv.Groups[group]
		if !ok {
			t.Errorf("missing group %q (have %v)", group, inv.Groups)
			continue
		}
		if len(hosts) != len(wantHosts) {
			t.Errorf("group %q = %v, want %v", group, hosts, wantHosts)
			continue
		}
		for i := range wantHosts {
			if hosts[i] != wantHosts[i] {
				t.Errorf("group %q = %v, want %v", group, hosts, wantHosts)
				break
			}
		}
	}
}

func TestBuildUsesConfiguredPageSize(t *testing.T) {
	var perPage atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		perPage.Store(r.URL.Query().Get("per_page"))
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(dropletsPage)); err != nil {
			t.Errorf("write response: %v", err)
		}
	}))
	t.Cleanup(server.Close)

	client, err := doapi.NewClient(doapi.Config{Token: "test-token", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	cfg := &Config{PerPage: 7}
	if err := cfg.Normalize(); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	builder, err := NewBuilder(BuilderOptions{Client: client, Config: cfg})
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	if _, err := builder.Build(context.Background(), false); err != nil {
		t.Fatalf("Build: %v", err)
	}

	if got := perPage.Load(); got != "7" {
		t.Errorf("per_page = %v, want 7", got)
	}
}

func TestBuildAppliesFilters(t *testing.T) {
	builder, _ := newTestBuilder(t, &Config{
		Filters: []string{`do_status == "active"`, `do_region == "nyc3"`},
	}, nil)
	inv, err := builder.Build(context.Background(), false)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	hosts := inv.Hosts()
	if len(hosts) != 1 || hosts[0] != "web-1" {
		t.Errorf("Hosts = %v, want [web-1]", hosts)
	}
}

func TestBuildStrictFilterError(t *testing.T) {
	builder, _ := newTestBuilder(t, &Config{
		Filters: []string{`do_nonexistent == 1`},
		Strict:  true,
	}, nil)
	if _, err := builder.Build(context.Background(), false); err == nil {
		t.Fatal("expected strict mode to fail the build on filter errors")
	}
}

func TestBuildNonStrictFilterErrorExcludesHosts(t *testing.T) {
	builder, _ := newTestBuilder(t, &Config{
		Filters: []string{`do_nonexistent == 1`},
	}, nil)
	inv, err := builder.Build(context.Background(), false)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(inv.Hostvars) != 0 {
		t.Errorf("expected all hosts excluded, got %v", inv.Hosts())
	}
}

func TestBuildServesFromCache(t *testing.T) {
	store := newTestStore(t)
	builder, apiCalls := newTestBuilder(t, &Config{
		Cache: CacheConfig{Enabled: true, TTL: 300},
	}, store)

	ctx := context.Background()
	first, err := builder.Build(ctx, false)
	if err != nil {
		t.Fatalf("first Build: %v", err)
	}
	if n := apiCalls.Load(); n == 0 {
		t.Fatal("first build should hit the API")
	}
	calls := apiCalls.Load()

	second, err := builder.Build(ctx, false)
	if err != nil {
		t.Fatalf("second Build: %v", err)
	}
	if apiCalls.Load() != calls {
		t.Error("second build should be served from cache")
	}
	if len(second.Hostvars) != len(first.Hostvars) {
		t.Errorf("cached inventory has %d hosts, want %d", len(second.Hostvars), len(first.Hostvars))
	}

	// refresh bypasses the cache.
	if _, err := builder.Build(ctx, true); err != nil {
		t.Fatalf("refresh Build: %v", err)
	}
	if apiCalls.Load() == calls {
		t.Error("refresh should bypass the cache")
	}
}

func TestInventoryJSONShape(t *testing.T) {
	inv := &Inventory{
		Hostvars: map[string]map[string]any{"web-1": {"do_region": "nyc3"}},
		Groups:   map[string][]string{"region_nyc3": {"web-1"}},
	}
	data, err := json.Marshal(inv)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if _, ok := doc["_meta"]; !ok {
		t.Error("missing _meta")
	}
	if _, ok := doc["region_nyc3"]; !ok {
		t.Error("missing group object")
	}

	var back Inventory
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if back.Hostvars["web-1"]["do_region"] != "nyc3" {
		t.Errorf("round trip lost hostvars: %v", back.Hostvars)
	}
}

func TestSanitizeGroupName(t *testing.T) {
	if got := SanitizeGroupName("size_s-1vcpu-1gb"); got != "size_s_1vcpu_1gb" {
		t.Errorf("SanitizeGroupName = %q", got)
	}
	if got := SanitizeGroupName("tag_web:prod"); got != "tag_web_prod" {
		t.Errorf("SanitizeGroupName = %q", got)
	}
}
