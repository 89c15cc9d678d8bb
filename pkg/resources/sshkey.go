package resources

import (
	"context"
	"fmt"

	"github.com/openlagoon/openlagoon/pkg/doapi"
	"github.com/openlagoon/openlagoon/pkg/engine"
	"github.com/openlagoon/openlagoon/pkg/telemetry"
)

// SSHKey is the provider-side representation of an account SSH key.
type SSHKey struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Fingerprint string `json:"fingerprint"`
	PublicKey   string `json:"public_key"`
}

// SSHKeySpec is the ssh_key module specification.
type SSHKeySpec struct {
	// PublicKey is required to create a key. The fingerprint derived from
	// it is the key's identity on the provider side.
	PublicKey string `json:"public_key,omitempty"`

	// Fingerprint selects an existing key directly.
	Fingerprint string `json:"fingerprint,omitempty"`
}

// SSHKeyModule reconciles account SSH keys.
type SSHKeyModule struct {
	opts Options
	log  *telemetry.Logger
}

// NewSSHKeyModule creates the ssh_key module.
func NewSSHKeyModule(opts Options) *SSHKeyModule {
	return &SSHKeyModule{opts: opts, log: opts.logger("ssh_key")}
}

// Type implements Module.
func (m *SSHKeyModule) Type() string { return "ssh_key" }

// Reconcile implements Module.
func (m *SSHKeyModule) Reconcile(ctx context.Context, req Request) (*engine.Result, error) {
	var spec SSHKeySpec
	if err := decodeSpec(req.Spec, "ssh_key", &spec); err != nil {
		return nil, err
	}

	client := m.opts.Client

	return engine.Reconcile(ctx, req.State, m.opts.CheckMode, engine.Ops[SSHKey]{
		Describe: fmt.Sprintf("ssh key %q", req.Name),
		Lookup: func(ctx context.Context) (*SSHKey, error) {
			if spec.Fingerprint != "" {
				return getSSHKey(ctx, client, spec.Fingerprint)
			}
			return FindSSHKeyByName(ctx, client, req.Name)
		},
		Create: func(ctx context.Context) (*SSHKey, error) {
			if spec.PublicKey == "" {
				return nil, engine.NewValidationError("public_key is required to create an ssh key")
			}
			body := map[string]any{"name": req.Name, "public_key": spec.PublicKey}
			var out struct {
				SSHKey SSHKey `json:"ssh_key"`
			}
			if err := client.Post(ctx, "/account/keys", body, &out); err != nil {
				return nil, err
			}
			m.log.WithResource("ssh_key", req.Name).Info("ssh key registered")
			return &out.SSHKey, nil
		},
		NeedsUpdate: func(current *SSHKey) (bool, string) {
			if current.Name != req.Name {
				return true, "name differs"
			}
			return false, ""
		},
		Update: func(ctx context.Context, current *SSHKey) (*SSHKey, error) {
			body := map[string]any{"name": req.Name}
			var out struct {
				SSHKey SSHKey `json:"ssh_key"`
			}
			if err := client.Put(ctx, fmt.Sprintf("/account/keys/%d", current.ID), body, &out); err != nil {
				return nil, err
			}
			return &out.SSHKey, nil
		},
		Delete: func(ctx context.Context, current *SSHKey) error {
			return client.Delete(ctx, fmt.Sprintf("/account/keys/%d", current.ID), nil)
		},
	})
}

func getSSHKey(ctx context.Context, client *doapi.Client, fingerprint string) (*SSHKey, error) {
	var out struct {
		SSHKey SSHKey `json:"ssh_key"`
	}
	if err := client.Get(ctx, "/account/keys/"+fingerprint, nil, &out); err != nil {
		if engine.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &out.SSHKey, nil
}

// ListSSHKeys returns all account SSH keys.
func ListSSHKeys(ctx context.Context, client *doapi.Client) ([]SSHKey, error) {
	return doapi.ListAll[SSHKey](ctx, client, "/account/keys", "ssh_keys", nil)
}

// FindSSHKeyByName returns the key with the given name, or nil.
func FindSSHKeyByName(ctx context.Context, client *doapi.Client, name string) (*SSHKey, error) {
	keys, err := ListSSHKeys(ctx, client)
	if err != nil {
		return nil, err
	}
	for i := range keys {
		if keys[i].Name == name {
			return &keys[i], nil
		}
	}
	return nil, nil
}
