package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/openlagoon/openlagoon/pkg/doapi"
	"github.com/openlagoon/openlagoon/pkg/resources"
	"github.com/openlagoon/openlagoon/pkg/spaces"
	"github.com/openlagoon/openlagoon/pkg/stores"
	"github.com/openlagoon/openlagoon/pkg/telemetry"
)

// app bundles the dependencies shared by all commands. Commands build one in
// their RunE after flags are parsed.
type app struct {
	tel      *telemetry.Telemetry
	client   *doapi.Client
	store    *stores.SQLiteStore
	registry *resources.Registry
}

// newApp wires telemetry. The API client, store, and registry are opened on
// demand, so commands that never touch the API (validate) run without a
// token.
func newApp() (*app, error) {
	cfg := telemetry.DefaultConfig()
	cfg.Logging.Level = logLevel
	if jsonOutput {
		cfg.Logging.Format = "json"
	}
	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		return nil, err
	}
	return &app{tel: tel}, nil
}

// api returns the flag-configured DigitalOcean client, constructing it on
// first use.
func (a *app) api() (*doapi.Client, error) {
	if a.client != nil {
		return a.client, nil
	}
	client, err := a.apiWith("", "", 0)
	if err != nil {
		return nil, err
	}
	a.client = client
	return client, nil
}

// apiWith builds a client with per-command overrides. Empty values fall back
// to the global flags; the inventory config file is the one caller that
// carries its own token source and base URL.
func (a *app) apiWith(token, base string, timeout time.Duration) (*doapi.Client, error) {
	if token == "" {
		token = apiToken
	}
	if base == "" {
		base = baseURL
	}
	if timeout <= 0 {
		timeout = apiTimeout
	}
	return doapi.NewClient(doapi.Config{
		Token:   token,
		BaseURL: base,
		Timeout: timeout,
		Logger:  a.tel.Logger,
		Metrics: a.tel.Metrics,
	})
}

func (a *app) log() *telemetry.Logger { return a.tel.Logger }

// openStore opens (and migrates) the sqlite state database.
func (a *app) openStore(ctx context.Context) (*stores.SQLiteStore, error) {
	if a.store != nil {
		return a.store, nil
	}

	path := stateDB
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve state database path: %w", err)
		}
		path = filepath.Join(home, ".lagoon", "lagoon.db")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	a.store = store
	return store, nil
}

// newRegistry returns the module registry with every resource type
// registered, including the Spaces bucket module.
func (a *app) newRegistry() *resources.Registry {
	if a.registry == nil {
		a.registry = resources.NewRegistry()
		spaces.Register(a.registry)
	}
	return a.registry
}

// moduleOptions returns the shared options handed to every module build.
func (a *app) moduleOptions(client *doapi.Client) resources.Options {
	return resources.Options{
		Client:    client,
		Logger:    a.tel.Logger,
		CheckMode: checkMode,
	}
}

func (a *app) close() {
	if a.store != nil {
		_ = a.store.Close()
	}
	_ = a.tel.Shutdown(context.Background())
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
