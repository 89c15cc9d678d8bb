package resources

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
)

func TestVolumeCheckModeCreateReportsAttachment(t *testing.T) {
	var mutations atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("GET /volumes", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, `{"volumes":[]}`)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			mutations.Add(1)
		}
		notFound(t, w)
	})

	opts := newTestOptions(t, mux)
	opts.CheckMode = true
	m := NewVolumeModule(opts)

	spec, _ := json.Marshal(map[string]any{
		"region":            "nyc3",
		"size_gigabytes":    100,
		"attach_droplet_id": 42,
	})
	result, err := m.Reconcile(context.Background(), Request{
		Name:  "data-1",
		State: "present",
		Spec:  spec,
	})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if !result.Changed {
		t.Error("check-mode create should report a change")
	}
	if !strings.Contains(result.Msg, "would attach to droplet 42") {
		t.Errorf("attachment missing from check-mode report: %q", result.Msg)
	}
	if got := mutations.Load(); got != 0 {
		t.Errorf("check mode issued %d mutating requests", got)
	}
}

func TestVolumeCheckModeExistingVolumeReportsAttachment(t *testing.T) {
	var mutations atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("GET /volumes", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK,
			`{"volumes":[{"id":"vol-1","name":"data-1","size_gigabytes":100,"droplet_ids":[],"region":{"slug":"nyc3"}}]}`)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			mutations.Add(1)
		}
		notFound(t, w)
	})

	opts := newTestOptions(t, mux)
	opts.CheckMode = true
	m := NewVolumeModule(opts)

	spec, _ := json.Marshal(map[string]any{
		"region":            "nyc3",
		"size_gigabytes":    100,
		"attach_droplet_id": 42,
	})
	result, err := m.Reconcile(context.Background(), Request{
		Name:  "data-1",
		State: "present",
		Spec:  spec,
	})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if !result.Changed {
		t.Error("pending attachment should report a change")
	}
	if !strings.Contains(result.Msg, "attached to droplet 42") {
		t.Errorf("attachment missing from report: %q", result.Msg)
	}
	if got := mutations.Load(); got != 0 {
		t.Errorf("check mode issued %d mutating requests", got)
	}
}
