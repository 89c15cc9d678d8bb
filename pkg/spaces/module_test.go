package spaces

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openlagoon/openlagoon/pkg/engine"
	"github.com/openlagoon/openlagoon/pkg/resources"
)

const listBucketsXML = `<?xml version="1.0" encoding="UTF-8"?>
<ListAllMyBucketsResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
  <Owner><ID>owner</ID><DisplayName>owner</DisplayName></Owner>
  <Buckets>%s</Buckets>
</ListAllMyBucketsResult>`

func newFakeSpaces(t *testing.T, handler http.Handler) string {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server.URL
}

func bucketSpec(t *testing.T, endpoint string) json.RawMessage {
	t.Helper()
	spec, err := json.Marshal(BucketSpec{
		Region:    "nyc3",
		AccessKey: "SPACESKEY",
		SecretKey: "spacessecret",
		Endpoint:  endpoint,
	})
	if err != nil {
		t.Fatalf("marshal spec: %v", err)
	}
	return spec
}

func TestBucketCreate(t *testing.T) {
	created := false
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, listBucketsXML, "")
	})
	mux.HandleFunc("PUT /assets", func(w http.ResponseWriter, r *http.Request) {
		created = true
		w.WriteHeader(http.StatusOK)
	})

	module := NewBucketModule(resources.Options{})
	result, err := module.Reconcile(context.Background(), resources.Request{
		Name:  "assets",
		State: engine.StatePresent,
		Spec:  bucketSpec(t, newFakeSpaces(t, mux)),
	})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !result.Changed || !created {
		t.Errorf("expected bucket creation; changed=%v created=%v", result.Changed, created)
	}
}

func TestBucketPresentIdempotent(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, listBucketsXML,
			"<Bucket><Name>assets</Name><CreationDate>2024-01-01T00:00:00.000Z</CreationDate></Bucket>")
	})
	mux.HandleFunc("PUT /assets", func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected create for an existing bucket")
	})

	module := NewBucketModule(resources.Options{})
	result, err := module.Reconcile(context.Background(), resources.Request{
		Name:  "assets",
		State: engine.StatePresent,
		Spec:  bucketSpec(t, newFakeSpaces(t, mux)),
	})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if result.Changed {
		t.Errorf("expected unchanged, got: %s", result.Msg)
	}
	bucket, ok := result.Data.(*Bucket)
	if !ok {
		t.Fatalf("result data is %T, want *Bucket", result.Data)
	}
	if bucket.Region != "nyc3" {
		t.Errorf("region = %q, want nyc3", bucket.Region)
	}
}

func TestBucketDelete(t *testing.T) {
	deleted := false
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, listBucketsXML, "<Bucket><Name>assets</Name></Bucket>")
	})
	mux.HandleFunc("DELETE /assets", func(w http.ResponseWriter, r *http.Request) {
		deleted = true
		w.WriteHeader(http.StatusNoContent)
	})

	module := NewBucketModule(resources.Options{})
	result, err := module.Reconcile(context.Background(), resources.Request{
		Name:  "assets",
		State: engine.StateAbsent,
		Spec:  bucketSpec(t, newFakeSpaces(t, mux)),
	})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !result.Changed || !deleted {
		t.Errorf("expected delete; changed=%v deleted=%v", result.Changed, deleted)
	}
}

func TestBucketRegionRequired(t *testing.T) {
	module := NewBucketModule(resources.Options{})
	_, err := module.Reconcile(context.Background(), resources.Request{
		Name:  "assets",
		State: engine.StatePresent,
	})
	if !engine.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestEndpointForRegion(t *testing.T) {
	if got := EndpointForRegion("ams3"); got != "https://ams3.digitaloceanspaces.com" {
		t.Errorf("EndpointForRegion = %q", got)
	}
}

func TestRegisterAddsModule(t *testing.T) {
	registry := resources.NewRegistry()
	Register(registry)
	module, err := registry.Build("spaces_bucket", resources.Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if module.Type() != "spaces_bucket" {
		t.Errorf("Type() = %q", module.Type())
	}
}
