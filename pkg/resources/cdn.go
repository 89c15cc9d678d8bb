package resources

import (
	"context"
	"fmt"

	"github.com/openlagoon/openlagoon/pkg/doapi"
	"github.com/openlagoon/openlagoon/pkg/engine"
	"github.com/openlagoon/openlagoon/pkg/telemetry"
)

// CDNEndpoint is the provider-side representation of a CDN endpoint. The
// endpoint's origin (a Spaces bucket hostname) is its identity.
type CDNEndpoint struct {
	ID            string `json:"id"`
	Origin        string `json:"origin"`
	Endpoint      string `json:"endpoint"`
	TTL           int    `json:"ttl"`
	CertificateID string `json:"certificate_id,omitempty"`
	CustomDomain  string `json:"custom_domain,omitempty"`
	CreatedAt     string `json:"created_at"`
}

// CDNEndpointSpec is the cdn_endpoint module specification. The request
// name is the origin hostname.
type CDNEndpointSpec struct {
	// TTL is the cache TTL in seconds. The API accepts 60, 600, 3600,
	// 86400, and 604800.
	TTL int `json:"ttl,omitempty" validate:"omitempty,oneof=60 600 3600 86400 604800"`

	CertificateID string `json:"certificate_id,omitempty"`
	CustomDomain  string `json:"custom_domain,omitempty"`
}

// CDNEndpointModule reconciles CDN endpoints keyed by origin.
type CDNEndpointModule struct {
	opts Options
	log  *telemetry.Logger
}

// NewCDNEndpointModule creates the cdn_endpoint module.
func NewCDNEndpointModule(opts Options) *CDNEndpointModule {
	return &CDNEndpointModule{opts: opts, log: opts.logger("cdn_endpoint")}
}

// Type implements Module.
func (m *CDNEndpointModule) Type() string { return "cdn_endpoint" }

// Reconcile implements Module.
func (m *CDNEndpointModule) Reconcile(ctx context.Context, req Request) (*engine.Result, error) {
	var spec CDNEndpointSpec
	if err := decodeSpec(req.Spec, "cdn_endpoint", &spec); err != nil {
		return nil, err
	}

	client := m.opts.Client

	return engine.Reconcile(ctx, req.State, m.opts.CheckMode, engine.Ops[CDNEndpoint]{
		Describe: fmt.Sprintf("cdn endpoint for %q", req.Name),
		Lookup: func(ctx context.Context) (*CDNEndpoint, error) {
			return FindCDNEndpointByOrigin(ctx, client, req.Name)
		},
		Create: func(ctx context.Context) (*CDNEndpoint, error) {
			body := map[string]any{"origin": req.Name}
			if spec.TTL != 0 {
				body["ttl"] = spec.TTL
			}
			if spec.CertificateID != "" {
				body["certificate_id"] = spec.CertificateID
			}
			if spec.CustomDomain != "" {
				body["custom_domain"] = spec.CustomDomain
			}
			var out struct {
				Endpoint CDNEndpoint `json:"endpoint"`
			}
			if err := client.Post(ctx, "/cdn/endpoints", body, &out); err != nil {
				return nil, err
			}
			m.log.WithResource("cdn_endpoint", req.Name).Info("cdn endpoint created")
			return &out.Endpoint, nil
		},
		NeedsUpdate: func(current *CDNEndpoint) (bool, string) {
			if spec.TTL != 0 && current.TTL != spec.TTL {
				return true, "ttl differs"
			}
			if spec.CertificateID != "" && current.CertificateID != spec.CertificateID {
				return true, "certificate differs"
			}
			return false, ""
		},
		Update: func(ctx context.Context, current *CDNEndpoint) (*CDNEndpoint, error) {
			body := map[string]any{}
			if spec.TTL != 0 {
				body["ttl"] = spec.TTL
			}
			if spec.CertificateID != "" {
				body["certificate_id"] = spec.CertificateID
				body["custom_domain"] = spec.CustomDomain
			}
			var out struct {
				Endpoint CDNEndpoint `json:"endpoint"`
			}
			if err := client.Put(ctx, "/cdn/endpoints/"+current.ID, body, &out); err != nil {
				return nil, err
			}
			return &out.Endpoint, nil
		},
		Delete: func(ctx context.Context, current *CDNEndpoint) error {
			return client.Delete(ctx, "/cdn/endpoints/"+current.ID, nil)
		},
	})
}

// ListCDNEndpoints returns all CDN endpoints. This endpoint does not
// paginate; the missing links object is handled as a single page.
func ListCDNEndpoints(ctx context.Context, client *doapi.Client) ([]CDNEndpoint, error) {
	return doapi.ListAll[CDNEndpoint](ctx, client, "/cdn/endpoints", "endpoints", nil)
}

// FindCDNEndpointByOrigin returns the endpoint with the given origin, or nil.
func FindCDNEndpointByOrigin(ctx context.Context, client *doapi.Client, origin string) (*CDNEndpoint, error) {
	endpoints, err := ListCDNEndpoints(ctx, client)
	if err != nil {
		return nil, err
	}
	for i := range endpoints {
		if endpoints[i].Origin == origin {
			return &endpoints[i], nil
		}
	}
	return nil, nil
}
