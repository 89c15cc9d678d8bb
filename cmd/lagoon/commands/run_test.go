package commands

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/openlagoon/openlagoon/pkg/config"
	"github.com/openlagoon/openlagoon/pkg/stores"
)

// setTestGlobals points the global flags at a mock API server and a temp
// state database, restoring them when the test ends.
func setTestGlobals(t *testing.T, apiURL string) {
	t.Helper()
	prevToken, prevBase, prevTimeout := apiToken, baseURL, apiTimeout
	prevLevel, prevJSON, prevCheck, prevDB := logLevel, jsonOutput, checkMode, stateDB
	t.Cleanup(func() {
		apiToken, baseURL, apiTimeout = prevToken, prevBase, prevTimeout
		logLevel, jsonOutput, checkMode, stateDB = prevLevel, prevJSON, prevCheck, prevDB
	})

	apiToken = "test-token"
	baseURL = apiURL
	apiTimeout = 5 * time.Second
	logLevel = "error"
	jsonOutput = false
	checkMode = false
	stateDB = filepath.Join(t.TempDir(), "lagoon.db")
}

func TestRunManifestAppliesAndRecordsHistory(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /tags/web", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"id":"not_found","message":"tag not found"}`))
	})
	mux.HandleFunc("POST /tags", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"tag":{"name":"web"}}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	setTestGlobals(t, server.URL)

	a, err := newApp()
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.close()

	manifest, err := config.NewParser().LoadInline(`resources: [{type: "tag", name: "web"}]`)
	if err != nil {
		t.Fatalf("LoadInline: %v", err)
	}

	summary, err := a.runManifest(context.Background(), "apply", manifest, false)
	if err != nil {
		t.Fatalf("runManifest: %v", err)
	}
	if summary.Changed != 1 || summary.Failed != 0 {
		t.Errorf("summary changed=%d failed=%d, want 1 changed, 0 failed", summary.Changed, summary.Failed)
	}

	runs, err := a.store.ListRuns(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("recorded %d runs, want 1", len(runs))
	}
	if runs[0].Status != stores.RunStatusCompleted || !runs[0].Changed {
		t.Errorf("run = %+v, want completed and changed", runs[0])
	}
	if runs[0].ResourceType != "tag" || runs[0].ResourceName != "web" {
		t.Errorf("run recorded %s/%s, want tag/web", runs[0].ResourceType, runs[0].ResourceName)
	}
}

func TestRunManifestRecordsFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"id":"server_error","message":"boom"}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	setTestGlobals(t, server.URL)

	a, err := newApp()
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.close()

	manifest, err := config.NewParser().LoadInline(`resources: [{type: "tag", name: "web"}]`)
	if err != nil {
		t.Fatalf("LoadInline: %v", err)
	}

	summary, err := a.runManifest(context.Background(), "apply", manifest, false)
	if err == nil {
		t.Fatal("expected runManifest to report the failure")
	}
	if summary == nil || summary.Failed != 1 {
		t.Fatalf("summary = %+v, want 1 failed", summary)
	}

	runs, err := a.store.ListRuns(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].Status != stores.RunStatusFailed {
		t.Fatalf("runs = %+v, want one failed run", runs)
	}
}
