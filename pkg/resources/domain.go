package resources

import (
	"context"
	"fmt"

	"github.com/openlagoon/openlagoon/pkg/doapi"
	"github.com/openlagoon/openlagoon/pkg/engine"
	"github.com/openlagoon/openlagoon/pkg/telemetry"
)

// Domain is the provider-side representation of a DNS domain.
type Domain struct {
	Name     string `json:"name"`
	TTL      int    `json:"ttl"`
	ZoneFile string `json:"zone_file"`
}

// DomainSpec is the domain module specification.
type DomainSpec struct {
	// IPAddress, when set on create, points an apex A record at it.
	IPAddress string `json:"ip_address,omitempty" validate:"omitempty,ip"`
}

// DomainModule reconciles DNS domains by name.
type DomainModule struct {
	opts Options
	log  *telemetry.Logger
}

// NewDomainModule creates the domain module.
func NewDomainModule(opts Options) *DomainModule {
	return &DomainModule{opts: opts, log: opts.logger("domain")}
}

// Type implements Module.
func (m *DomainModule) Type() string { return "domain" }

// Reconcile implements Module.
func (m *DomainModule) Reconcile(ctx context.Context, req Request) (*engine.Result, error) {
	var spec DomainSpec
	if err := decodeSpec(req.Spec, "domain", &spec); err != nil {
		return nil, err
	}

	client := m.opts.Client
	return engine.Reconcile(ctx, req.State, m.opts.CheckMode, engine.Ops[Domain]{
		Describe: fmt.Sprintf("domain %q", req.Name),
		Lookup: func(ctx context.Context) (*Domain, error) {
			return GetDomain(ctx, client, req.Name)
		},
		Create: func(ctx context.Context) (*Domain, error) {
			body := map[string]any{"name": req.Name}
			if spec.IPAddress != "" {
				body["ip_address"] = spec.IPAddress
			}
			var out struct {
				Domain Domain `json:"domain"`
			}
			if err := client.Post(ctx, "/domains", body, &out); err != nil {
				return nil, err
			}
			m.log.WithResource("domain", req.Name).Info("domain created")
			return &out.Domain, nil
		},
		Delete: func(ctx context.Context, current *Domain) error {
			return client.Delete(ctx, "/domains/"+current.Name, nil)
		},
	})
}

// GetDomain fetches a domain by name, returning nil when it does not exist.
func GetDomain(ctx context.Context, client *doapi.Client, name string) (*Domain, error) {
	var out struct {
		Domain Domain `json:"domain"`
	}
	if err := client.Get(ctx, "/domains/"+name, nil, &out); err != nil {
		if engine.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &out.Domain, nil
}

// ListDomains returns all domains.
func ListDomains(ctx context.Context, client *doapi.Client) ([]Domain, error) {
	return doapi.ListAll[Domain](ctx, client, "/domains", "domains", nil)
}
