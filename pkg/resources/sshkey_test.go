package resources

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/openlagoon/openlagoon/pkg/engine"
)

func TestSSHKeyCreate(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /account/keys", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, `{"ssh_keys":[],"links":{},"meta":{"total":0}}`)
	})
	mux.HandleFunc("POST /account/keys", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode create body: %v", err)
		}
		if body["name"] != "deploy" {
			t.Errorf("name = %v, want deploy", body["name"])
		}
		writeJSON(t, w, http.StatusCreated, `{"ssh_key":{"id":1,"name":"deploy","fingerprint":"aa:bb","public_key":"ssh-ed25519 AAAA"}}`)
	})

	module := NewSSHKeyModule(newTestOptions(t, mux))
	result, err := module.Reconcile(context.Background(), Request{
		Name:  "deploy",
		State: engine.StatePresent,
		Spec:  json.RawMessage(`{"public_key":"ssh-ed25519 AAAA"}`),
	})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !result.Changed {
		t.Error("expected changed result for new key")
	}
}

func TestSSHKeyCreateRequiresPublicKey(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /account/keys", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, `{"ssh_keys":[],"links":{},"meta":{"total":0}}`)
	})

	module := NewSSHKeyModule(newTestOptions(t, mux))
	_, err := module.Reconcile(context.Background(), Request{
		Name:  "deploy",
		State: engine.StatePresent,
	})
	if !engine.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSSHKeyRenameByFingerprint(t *testing.T) {
	renamed := false
	mux := http.NewServeMux()
	mux.HandleFunc("GET /account/keys/aa:bb", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, `{"ssh_key":{"id":1,"name":"old-name","fingerprint":"aa:bb"}}`)
	})
	mux.HandleFunc("PUT /account/keys/1", func(w http.ResponseWriter, r *http.Request) {
		renamed = true
		writeJSON(t, w, http.StatusOK, `{"ssh_key":{"id":1,"name":"deploy","fingerprint":"aa:bb"}}`)
	})

	module := NewSSHKeyModule(newTestOptions(t, mux))
	result, err := module.Reconcile(context.Background(), Request{
		Name:  "deploy",
		State: engine.StatePresent,
		Spec:  json.RawMessage(`{"fingerprint":"aa:bb"}`),
	})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !result.Changed || !renamed {
		t.Errorf("expected rename; changed=%v renamed=%v", result.Changed, renamed)
	}
	if !strings.Contains(result.Msg, "name differs") {
		t.Errorf("unexpected message: %s", result.Msg)
	}
}

func TestSSHKeyDelete(t *testing.T) {
	deleted := false
	mux := http.NewServeMux()
	mux.HandleFunc("GET /account/keys", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, `{"ssh_keys":[{"id":1,"name":"deploy","fingerprint":"aa:bb"}],"links":{},"meta":{"total":1}}`)
	})
	mux.HandleFunc("DELETE /account/keys/1", func(w http.ResponseWriter, r *http.Request) {
		deleted = true
		w.WriteHeader(http.StatusNoContent)
	})

	module := NewSSHKeyModule(newTestOptions(t, mux))
	result, err := module.Reconcile(context.Background(), Request{
		Name:  "deploy",
		State: engine.StateAbsent,
	})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !result.Changed || !deleted {
		t.Errorf("expected delete; changed=%v deleted=%v", result.Changed, deleted)
	}
}
