package stores

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return store
}

func TestNewSQLiteStoreRequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestRunLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := &Run{
		ID:           "run-1",
		ResourceType: "droplet",
		ResourceName: "web-1",
		Operation:    "apply",
		Status:       RunStatusRunning,
		StartedAt:    time.Now().UTC(),
	}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	got, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != RunStatusRunning || got.ResourceType != "droplet" || got.Operation != "apply" {
		t.Errorf("unexpected run: %+v", got)
	}
	if got.CompletedAt != nil {
		t.Error("CompletedAt should be nil for a running run")
	}

	if err := store.CompleteRun(ctx, "run-1", RunStatusCompleted, true, nil); err != nil {
		t.Fatalf("CompleteRun: %v", err)
	}

	got, err = store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun after complete: %v", err)
	}
	if got.Status != RunStatusCompleted || !got.Changed {
		t.Errorf("unexpected completed run: %+v", got)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt should be set after completion")
	}
}

func TestCompleteRunRecordsFailure(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := &Run{
		ID:           "run-2",
		ResourceType: "droplet",
		ResourceName: "web-1",
		Operation:    "destroy",
		Status:       RunStatusRunning,
		StartedAt:    time.Now().UTC(),
	}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	msg := "droplet web-1: API Rate limit exceeded"
	if err := store.CompleteRun(ctx, "run-2", RunStatusFailed, false, &msg); err != nil {
		t.Fatalf("CompleteRun: %v", err)
	}

	got, err := store.GetRun(ctx, "run-2")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Error == nil || *got.Error != msg {
		t.Errorf("error message not persisted: %+v", got)
	}
}

func TestCompleteRunMissing(t *testing.T) {
	store := newTestStore(t)
	err := store.CompleteRun(context.Background(), "nope", RunStatusCompleted, false, nil)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i, id := range []string{"old", "mid", "new"} {
		run := &Run{
			ID:           id,
			ResourceType: "tag",
			ResourceName: "env:prod",
			Operation:    "apply",
			Status:       RunStatusCompleted,
			StartedAt:    base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.CreateRun(ctx, run); err != nil {
			t.Fatalf("CreateRun(%s): %v", id, err)
		}
	}

	runs, err := store.ListRuns(ctx, 2, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != "new" || runs[1].ID != "mid" {
		t.Errorf("unexpected order: %s, %s", runs[0].ID, runs[1].ID)
	}
}

func TestInventoryCacheRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entry := &InventoryCacheEntry{
		ConfigHash: "abc123",
		Payload:    []byte(`{"_meta":{"hostvars":{}}}`),
		CreatedAt:  time.Now().UTC(),
		ExpiresAt:  time.Now().UTC().Add(time.Hour),
	}
	if err := store.PutInventoryCache(ctx, entry); err != nil {
		t.Fatalf("PutInventoryCache: %v", err)
	}

	got, err := store.GetInventoryCache(ctx, "abc123")
	if err != nil {
		t.Fatalf("GetInventoryCache: %v", err)
	}
	if string(got.Payload) != string(entry.Payload) {
		t.Errorf("payload mismatch: %s", got.Payload)
	}

	// Replacing the entry keeps a single row per hash.
	entry.Payload = []byte(`{"_meta":{"hostvars":{"web-1":{}}}}`)
	if err := store.PutInventoryCache(ctx, entry); err != nil {
		t.Fatalf("PutInventoryCache replace: %v", err)
	}
	got, err = store.GetInventoryCache(ctx, "abc123")
	if err != nil {
		t.Fatalf("GetInventoryCache after replace: %v", err)
	}
	if string(got.Payload) != string(entry.Payload) {
		t.Errorf("payload not replaced: %s", got.Payload)
	}
}

func TestInventoryCacheExpiry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entry := &InventoryCacheEntry{
		ConfigHash: "expired",
		Payload:    []byte(`{}`),
		CreatedAt:  time.Now().UTC().Add(-2 * time.Hour),
		ExpiresAt:  time.Now().UTC().Add(-time.Hour),
	}
	if err := store.PutInventoryCache(ctx, entry); err != nil {
		t.Fatalf("PutInventoryCache: %v", err)
	}

	if _, err := store.GetInventoryCache(ctx, "expired"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for expired entry, got %v", err)
	}

	purged, err := store.PurgeExpiredInventory(ctx)
	if err != nil {
		t.Fatalf("PurgeExpiredInventory: %v", err)
	}
	if purged != 1 {
		t.Errorf("expected 1 purged entry, got %d", purged)
	}
}

func TestInventoryCacheMiss(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.GetInventoryCache(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
