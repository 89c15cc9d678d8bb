package resources

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/openlagoon/openlagoon/pkg/engine"
)

func TestTagAttachCreatesTagAndAttaches(t *testing.T) {
	var attachBody map[string]any
	tagCreated := false

	mux := http.NewServeMux()
	mux.HandleFunc("GET /droplets/5", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, `{"droplet":{"id":5,"name":"web-1","tags":[]}}`)
	})
	mux.HandleFunc("GET /tags/env-prod", func(w http.ResponseWriter, r *http.Request) {
		notFound(t, w)
	})
	mux.HandleFunc("POST /tags", func(w http.ResponseWriter, r *http.Request) {
		tagCreated = true
		writeJSON(t, w, http.StatusCreated, `{"tag":{"name":"env-prod"}}`)
	})
	mux.HandleFunc("POST /tags/env-prod/resources", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&attachBody); err != nil {
			t.Fatalf("decode attach body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	module := NewTagModule(newTestOptions(t, mux))
	result, err := module.Reconcile(context.Background(), Request{
		Name:  "env-prod",
		State: engine.StatePresent,
		Spec:  json.RawMessage(`{"resource_id":5,"resource_type":"droplet"}`),
	})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !result.Changed {
		t.Error("expected changed result for new attachment")
	}
	if !tagCreated {
		t.Error("missing tag should be created before attaching")
	}

	resources, ok := attachBody["resources"].([]any)
	if !ok || len(resources) != 1 {
		t.Fatalf("unexpected attach body: %v", attachBody)
	}
	entry := resources[0].(map[string]any)
	if entry["resource_id"] != "5" {
		t.Errorf("resource_id = %v, want the string \"5\"", entry["resource_id"])
	}
	if entry["resource_type"] != "droplet" {
		t.Errorf("resource_type = %v, want droplet", entry["resource_type"])
	}
}

func TestTagAttachAlreadyAttachedIsNoop(t *testing.T) {
	var mutations atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("GET /droplets/5", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, `{"droplet":{"id":5,"name":"web-1","tags":["env-prod"]}}`)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		mutations.Add(1)
		notFound(t, w)
	})

	module := NewTagModule(newTestOptions(t, mux))
	result, err := module.Reconcile(context.Background(), Request{
		Name:  "env-prod",
		State: engine.StatePresent,
		Spec:  json.RawMessage(`{"resource_id":5}`),
	})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if result.Changed {
		t.Errorf("expected unchanged, got: %s", result.Msg)
	}
	if n := mutations.Load(); n != 0 {
		t.Errorf("%d extra requests issued for an existing attachment", n)
	}
}

func TestTagDetach(t *testing.T) {
	detached := false
	mux := http.NewServeMux()
	mux.HandleFunc("GET /droplets/5", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, `{"droplet":{"id":5,"name":"web-1","tags":["env-prod"]}}`)
	})
	mux.HandleFunc("DELETE /tags/env-prod/resources", func(w http.ResponseWriter, r *http.Request) {
		detached = true
		w.WriteHeader(http.StatusNoContent)
	})

	module := NewTagModule(newTestOptions(t, mux))
	result, err := module.Reconcile(context.Background(), Request{
		Name:  "env-prod",
		State: engine.StateAbsent,
		Spec:  json.RawMessage(`{"resource_id":5}`),
	})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !result.Changed || !detached {
		t.Errorf("expected detach to run; changed=%v detached=%v", result.Changed, detached)
	}
}

func TestTagPlainLifecycle(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /tags/env-prod", func(w http.ResponseWriter, r *http.Request) {
		notFound(t, w)
	})
	mux.HandleFunc("POST /tags", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusCreated, `{"tag":{"name":"env-prod"}}`)
	})

	module := NewTagModule(newTestOptions(t, mux))
	result, err := module.Reconcile(context.Background(), Request{
		Name:  "env-prod",
		State: engine.StatePresent,
	})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !result.Changed {
		t.Error("expected changed result for new tag")
	}
}

func TestTagAttachMissingDroplet(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /droplets/5", func(w http.ResponseWriter, r *http.Request) {
		notFound(t, w)
	})

	module := NewTagModule(newTestOptions(t, mux))
	_, err := module.Reconcile(context.Background(), Request{
		Name:  "env-prod",
		State: engine.StatePresent,
		Spec:  json.RawMessage(`{"resource_id":5}`),
	})
	if !engine.IsValidation(err) {
		t.Fatalf("expected validation error for missing droplet, got %v", err)
	}
}
