package resources

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"github.com/openlagoon/openlagoon/pkg/doapi"
	"github.com/openlagoon/openlagoon/pkg/engine"
	"github.com/openlagoon/openlagoon/pkg/telemetry"
)

// AlertSlackDetails identifies a Slack channel notification target.
type AlertSlackDetails struct {
	Channel string `json:"channel"`
	URL     string `json:"url"`
}

// AlertNotifications holds the delivery targets of an alert policy.
type AlertNotifications struct {
	Email []string            `json:"email,omitempty"`
	Slack []AlertSlackDetails `json:"slack,omitempty"`
}

// MonitorAlert is the provider-side representation of a monitoring alert
// policy.
type MonitorAlert struct {
	UUID        string             `json:"uuid"`
	Type        string             `json:"type"`
	Description string             `json:"description"`
	Compare     string             `json:"compare"`
	Value       float64            `json:"value"`
	Window      string             `json:"window"`
	Entities    []string           `json:"entities"`
	Tags        []string           `json:"tags"`
	Alerts      AlertNotifications `json:"alerts"`
	Enabled     bool               `json:"enabled"`
}

// MonitorAlertSpec is the monitor_alert module specification. The request
// name is the policy description; an existing policy is matched by UUID
// when given, otherwise by description.
type MonitorAlertSpec struct {
	UUID string `json:"uuid,omitempty"`

	Type    string  `json:"type,omitempty"`
	Compare string  `json:"compare,omitempty" validate:"omitempty,oneof=GreaterThan LessThan"`
	Value   float64 `json:"value,omitempty"`
	Window  string  `json:"window,omitempty" validate:"omitempty,oneof=5m 10m 30m 1h"`

	Entities []string `json:"entities,omitempty"`
	Tags     []string `json:"tags,omitempty"`

	Emails  []string            `json:"emails,omitempty"`
	Slack   []AlertSlackDetails `json:"slack,omitempty"`
	Enabled *bool               `json:"enabled,omitempty"`
}

func (s *MonitorAlertSpec) enabled() bool {
	if s.Enabled == nil {
		return true
	}
	return *s.Enabled
}

func (s *MonitorAlertSpec) notifications() AlertNotifications {
	return AlertNotifications{Email: s.Emails, Slack: s.Slack}
}

// MonitorAlertModule reconciles monitoring alert policies.
type MonitorAlertModule struct {
	opts Options
	log  *telemetry.Logger
}

// NewMonitorAlertModule creates the monitor_alert module.
func NewMonitorAlertModule(opts Options) *MonitorAlertModule {
	return &MonitorAlertModule{opts: opts, log: opts.logger("monitor_alert")}
}

// Type implements Module.
func (m *MonitorAlertModule) Type() string { return "monitor_alert" }

// Reconcile implements Module.
func (m *MonitorAlertModule) Reconcile(ctx context.Context, req Request) (*engine.Result, error) {
	var spec MonitorAlertSpec
	if err := decodeSpec(req.Spec, "monitor_alert", &spec); err != nil {
		return nil, err
	}

	client := m.opts.Client

	return engine.Reconcile(ctx, req.State, m.opts.CheckMode, engine.Ops[MonitorAlert]{
		Describe: fmt.Sprintf("monitor alert %q", req.Name),
		Lookup: func(ctx context.Context) (*MonitorAlert, error) {
			if spec.UUID != "" {
				return getMonitorAlert(ctx, client, spec.UUID)
			}
			return FindMonitorAlertByDescription(ctx, client, req.Name)
		},
		Create: func(ctx context.Context) (*MonitorAlert, error) {
			if spec.Type == "" || spec.Compare == "" || spec.Window == "" {
				return nil, engine.NewValidationError(
					"type, compare, value, and window are required to create an alert policy")
			}
			body := m.policyBody(req.Name, &spec)
			var out struct {
				Policy MonitorAlert `json:"policy"`
			}
			if err := client.Post(ctx, "/monitoring/alerts", body, &out); err != nil {
				return nil, err
			}
			m.log.WithResource("monitor_alert", req.Name).Info("alert policy created")
			return &out.Policy, nil
		},
		NeedsUpdate: func(current *MonitorAlert) (bool, string) {
			if spec.Type != "" && current.Type != spec.Type {
				return true, "metric type differs"
			}
			if spec.Compare != "" && current.Compare != spec.Compare {
				return true, "comparison differs"
			}
			if spec.Value != 0 && current.Value != spec.Value {
				return true, "threshold differs"
			}
			if spec.Window != "" && current.Window != spec.Window {
				return true, "window differs"
			}
			if !stringSetsEqual(current.Entities, spec.Entities) {
				return true, "entities differ"
			}
			if !stringSetsEqual(current.Tags, spec.Tags) {
				return true, "tags differ"
			}
			if !reflect.DeepEqual(current.Alerts, spec.notifications()) {
				return true, "notification targets differ"
			}
			if current.Enabled != spec.enabled() {
				return true, "enabled flag differs"
			}
			return false, ""
		},
		Update: func(ctx context.Context, current *MonitorAlert) (*MonitorAlert, error) {
			body := m.policyBody(req.Name, &spec)
			var out struct {
				Policy MonitorAlert `json:"policy"`
			}
			if err := client.Put(ctx, "/monitoring/alerts/"+current.UUID, body, &out); err != nil {
				return nil, err
			}
			return &out.Policy, nil
		},
		Delete: func(ctx context.Context, current *MonitorAlert) error {
			return client.Delete(ctx, "/monitoring/alerts/"+current.UUID, nil)
		},
	})
}

func (m *MonitorAlertModule) policyBody(description string, spec *MonitorAlertSpec) map[string]any {
	return map[string]any{
		"type":        spec.Type,
		"description": description,
		"compare":     spec.Compare,
		"value":       spec.Value,
		"window":      spec.Window,
		"entities":    emptyIfNil(spec.Entities),
		"tags":        emptyIfNil(spec.Tags),
		"alerts":      spec.notifications(),
		"enabled":     spec.enabled(),
	}
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// stringSetsEqual compares two string slices ignoring order. A nil slice in
// the desired spec matches anything, so unspecified fields never force an
// update.
func stringSetsEqual(current, desired []string) bool {
	if desired == nil {
		return true
	}
	if len(current) != len(desired) {
		return false
	}
	a := append([]string(nil), current...)
	b := append([]string(nil), desired...)
	sort.Strings(a)
	sort.Strings(b)
	return reflect.DeepEqual(a, b)
}

func getMonitorAlert(ctx context.Context, client *doapi.Client, uuid string) (*MonitorAlert, error) {
	var out struct {
		Policy MonitorAlert `json:"policy"`
	}
	if err := client.Get(ctx, "/monitoring/alerts/"+uuid, nil, &out); err != nil {
		if engine.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &out.Policy, nil
}

// ListMonitorAlerts returns all alert policies.
func ListMonitorAlerts(ctx context.Context, client *doapi.Client) ([]MonitorAlert, error) {
	return doapi.ListAll[MonitorAlert](ctx, client, "/monitoring/alerts", "policies", nil)
}

// FindMonitorAlertByDescription returns the policy with the given
// description, or nil.
func FindMonitorAlertByDescription(ctx context.Context, client *doapi.Client, description string) (*MonitorAlert, error) {
	policies, err := ListMonitorAlerts(ctx, client)
	if err != nil {
		return nil, err
	}
	for i := range policies {
		if policies[i].Description == description {
			return &policies[i], nil
		}
	}
	return nil, nil
}
