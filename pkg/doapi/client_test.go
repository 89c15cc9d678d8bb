package doapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"testing"

	"github.com/openlagoon/openlagoon/pkg/engine"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{Token: "test-token", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client, server
}

func TestTokenFromEnv(t *testing.T) {
	for _, name := range tokenEnvVars {
		os.Unsetenv(name)
	}
	if got := TokenFromEnv(); got != "" {
		t.Fatalf("expected empty token, got %q", got)
	}

	// Lower-priority variables lose to higher-priority ones.
	t.Setenv("OAUTH_TOKEN", "low")
	t.Setenv("DO_API_TOKEN", "high")
	if got := TokenFromEnv(); got != "high" {
		t.Errorf("TokenFromEnv() = %q, want %q", got, "high")
	}
}

func TestNewClientRequiresToken(t *testing.T) {
	for _, name := range tokenEnvVars {
		os.Unsetenv(name)
	}
	_, err := NewClient(Config{})
	if !engine.IsValidation(err) {
		t.Errorf("expected validation error without token, got %v", err)
	}
}

func TestDoSendsAuthHeaders(t *testing.T) {
	var gotAuth, gotAccept string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		fmt.Fprint(w, `{"droplet":{"id":1}}`)
	}))

	var out struct {
		Droplet struct {
			ID int `json:"id"`
		} `json:"droplet"`
	}
	if err := client.Get(context.Background(), "/droplets/1", nil, &out); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotAccept != "application/json" {
		t.Errorf("Accept = %q", gotAccept)
	}
	if out.Droplet.ID != 1 {
		t.Errorf("decoded droplet id = %d", out.Droplet.ID)
	}
}

func TestDoWrapsAPIError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-Id", "req-123")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"id":"not_found","message":"The resource you requested could not be found."}`)
	}))

	err := client.Get(context.Background(), "/droplets/999", nil, nil)
	if !engine.IsNotFound(err) {
		t.Fatalf("expected not-found error, got %v", err)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected wrapped *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.ID != "not_found" || apiErr.RequestID != "req-123" {
		t.Errorf("unexpected APIError: %+v", apiErr)
	}
}

func TestDoClassifiesRateLimit(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Ratelimit-Limit", "5000")
		w.Header().Set("Ratelimit-Remaining", "0")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"id":"too_many_requests","message":"API Rate limit exceeded."}`)
	}))

	err := client.Get(context.Background(), "/droplets", nil, nil)
	var e *engine.Error
	if !errors.As(err, &e) || e.Class != engine.ErrorClassThrottled {
		t.Fatalf("expected throttled error, got %v", err)
	}
	if rl := client.RateLimit(); rl.Limit != 5000 || rl.Remaining != 0 {
		t.Errorf("rate limit not recorded: %+v", rl)
	}
}

func TestVerifyTokenUnauthorized(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"id":"Unauthorized","message":"Unable to authenticate you."}`)
	}))

	err := client.VerifyToken(context.Background())
	if !engine.IsUnauthorized(err) {
		t.Errorf("expected unauthorized error, got %v", err)
	}
}

func TestVerifyTokenSuccess(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/account" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"account":{"status":"active","email":"dev@example.com"}}`)
	}))

	if err := client.VerifyToken(context.Background()); err != nil {
		t.Errorf("VerifyToken: %v", err)
	}
}

func TestListAllFollowsNextLinks(t *testing.T) {
	var server *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/droplets", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "", "1":
			fmt.Fprintf(w, `{"droplets":[{"id":1},{"id":2}],"links":{"pages":{"next":"%s/droplets?page=2"}},"meta":{"total":3}}`, server.URL)
		case "2":
			fmt.Fprint(w, `{"droplets":[{"id":3}],"links":{"pages":{}},"meta":{"total":3}}`)
		default:
			t.Errorf("unexpected page %q", r.URL.Query().Get("page"))
		}
	})

	client, srv := newTestClient(t, mux)
	server = srv

	type droplet struct {
		ID int `json:"id"`
	}
	all, err := ListAll[droplet](context.Background(), client, "/droplets", "droplets", nil)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 droplets, got %d", len(all))
	}
	if all[2].ID != 3 {
		t.Errorf("pages concatenated out of order: %+v", all)
	}
}

func TestListAllTreatsMissingLinksAsLastPage(t *testing.T) {
	calls := 0
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, `{"endpoints":[{"id":"e1"}]}`)
	}))

	type endpoint struct {
		ID string `json:"id"`
	}
	all, err := ListAll[endpoint](context.Background(), client, "/cdn/endpoints", "endpoints", nil)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected a single request, got %d", calls)
	}
	if len(all) != 1 || all[0].ID != "e1" {
		t.Errorf("unexpected result: %+v", all)
	}
}

func TestListAllSetsPerPage(t *testing.T) {
	var perPage string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		perPage = r.URL.Query().Get("per_page")
		fmt.Fprint(w, `{"tags":[]}`)
	}))

	type tag struct{}
	if _, err := ListAll[tag](context.Background(), client, "/tags", "tags", nil); err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if perPage != "200" {
		t.Errorf("per_page = %q, want 200", perPage)
	}
}

func TestListAllPreservesCallerQuery(t *testing.T) {
	var tagName string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tagName = r.URL.Query().Get("tag_name")
		fmt.Fprint(w, `{"droplets":[]}`)
	}))

	type droplet struct{}
	query := url.Values{"tag_name": []string{"web"}}
	if _, err := ListAll[droplet](context.Background(), client, "/droplets", "droplets", query); err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if tagName != "web" {
		t.Errorf("tag_name = %q, want web", tagName)
	}
}
