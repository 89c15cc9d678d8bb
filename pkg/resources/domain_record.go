package resources

import (
	"context"
	"fmt"
	"strings"

	"github.com/openlagoon/openlagoon/pkg/doapi"
	"github.com/openlagoon/openlagoon/pkg/engine"
	"github.com/openlagoon/openlagoon/pkg/telemetry"
)

// DomainRecord is one DNS record inside a domain.
type DomainRecord struct {
	ID       int    `json:"id"`
	Type     string `json:"type"`
	Name     string `json:"name"`
	Data     string `json:"data"`
	Priority *int   `json:"priority"`
	Port     *int   `json:"port"`
	TTL      int    `json:"ttl"`
	Weight   *int   `json:"weight"`
	Flags    *int   `json:"flags"`
	Tag      string `json:"tag,omitempty"`
}

// DomainRecordSpec is the domain_record module specification. A record's
// identity is (type, name, data); with ForceUpdate, (type, name) alone
// identifies the record and its data is updated in place.
type DomainRecordSpec struct {
	Domain   string `json:"domain" validate:"required"`
	Type     string `json:"type" validate:"required,oneof=A AAAA CNAME MX TXT SRV NS CAA"`
	Data     string `json:"data,omitempty"`
	Priority *int   `json:"priority,omitempty"`
	Port     *int   `json:"port,omitempty"`
	TTL      int    `json:"ttl,omitempty"`
	Weight   *int   `json:"weight,omitempty"`
	Flags    *int   `json:"flags,omitempty"`
	Tag      string `json:"tag,omitempty"`

	// ForceUpdate updates an existing (type, name) record whose data
	// differs instead of creating a second record.
	ForceUpdate bool `json:"force_update,omitempty"`
}

// DomainRecordModule reconciles DNS records.
type DomainRecordModule struct {
	opts Options
	log  *telemetry.Logger
}

// NewDomainRecordModule creates the domain_record module.
func NewDomainRecordModule(opts Options) *DomainRecordModule {
	return &DomainRecordModule{opts: opts, log: opts.logger("domain_record")}
}

// Type implements Module.
func (m *DomainRecordModule) Type() string { return "domain_record" }

// Reconcile implements Module.
func (m *DomainRecordModule) Reconcile(ctx context.Context, req Request) (*engine.Result, error) {
	var spec DomainRecordSpec
	if err := decodeSpec(req.Spec, "domain_record", &spec); err != nil {
		return nil, err
	}
	if req.State.WantsExistence() && spec.Data == "" {
		return nil, engine.NewValidationError("data is required for present records")
	}

	client := m.opts.Client
	recordsPath := "/domains/" + spec.Domain + "/records"

	body := map[string]any{
		"type": spec.Type,
		"name": req.Name,
		"data": spec.Data,
	}
	if spec.TTL != 0 {
		body["ttl"] = spec.TTL
	}
	if spec.Priority != nil {
		body["priority"] = *spec.Priority
	}
	if spec.Port != nil {
		body["port"] = *spec.Port
	}
	if spec.Weight != nil {
		body["weight"] = *spec.Weight
	}
	if spec.Flags != nil {
		body["flags"] = *spec.Flags
	}
	if spec.Tag != "" {
		body["tag"] = spec.Tag
	}

	return engine.Reconcile(ctx, req.State, m.opts.CheckMode, engine.Ops[DomainRecord]{
		Describe: fmt.Sprintf("%s record %q in %s", spec.Type, req.Name, spec.Domain),
		Lookup: func(ctx context.Context) (*DomainRecord, error) {
			records, err := doapi.ListAll[DomainRecord](ctx, client, recordsPath, "domain_records", nil)
			if err != nil {
				return nil, err
			}
			var byTypeName *DomainRecord
			for i := range records {
				r := &records[i]
				if r.Type != spec.Type || !recordNameMatches(r.Name, req.Name) {
					continue
				}
				if r.Data == spec.Data {
					return r, nil
				}
				if byTypeName == nil {
					byTypeName = r
				}
			}
			if spec.ForceUpdate {
				return byTypeName, nil
			}
			return nil, nil
		},
		Create: func(ctx context.Context) (*DomainRecord, error) {
			var out struct {
				DomainRecord DomainRecord `json:"domain_record"`
			}
			if err := client.Post(ctx, recordsPath, body, &out); err != nil {
				return nil, err
			}
			m.log.WithResource("domain_record", req.Name).Info("record created")
			return &out.DomainRecord, nil
		},
		NeedsUpdate: func(current *DomainRecord) (bool, string) {
			if current.Data != spec.Data {
				return true, "data differs"
			}
			if spec.TTL != 0 && current.TTL != spec.TTL {
				return true, "ttl differs"
			}
			if spec.Priority != nil && (current.Priority == nil || *current.Priority != *spec.Priority) {
				return true, "priority differs"
			}
			return false, ""
		},
		Update: func(ctx context.Context, current *DomainRecord) (*DomainRecord, error) {
			var out struct {
				DomainRecord DomainRecord `json:"domain_record"`
			}
			path := fmt.Sprintf("%s/%d", recordsPath, current.ID)
			if err := client.Put(ctx, path, body, &out); err != nil {
				return nil, err
			}
			return &out.DomainRecord, nil
		},
		Delete: func(ctx context.Context, current *DomainRecord) error {
			return client.Delete(ctx, fmt.Sprintf("%s/%d", recordsPath, current.ID), nil)
		},
	})
}

// recordNameMatches compares record names, treating "@" and the bare domain
// apex as equivalent.
func recordNameMatches(current, wanted string) bool {
	if current == wanted {
		return true
	}
	return strings.TrimSuffix(current, ".") == strings.TrimSuffix(wanted, ".")
}
