package resources

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openlagoon/openlagoon/pkg/doapi"
)

// newTestOptions wires module options against a mock API server.
func newTestOptions(t *testing.T, handler http.Handler) Options {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := doapi.NewClient(doapi.Config{
		Token:   "test-token",
		BaseURL: server.URL,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return Options{Client: client}
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, body string) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(body)); err != nil {
		t.Errorf("write response: %v", err)
	}
}

func notFound(t *testing.T, w http.ResponseWriter) {
	t.Helper()
	writeJSON(t, w, http.StatusNotFound, `{"id":"not_found","message":"The resource you requested could not be found."}`)
}
