package spaces

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openlagoon/openlagoon/pkg/engine"
	"github.com/openlagoon/openlagoon/pkg/resources"
	"github.com/openlagoon/openlagoon/pkg/telemetry"
)

// BucketSpec is the spaces_bucket module specification. The request name is
// the bucket name.
type BucketSpec struct {
	Region    string `json:"region"`
	AccessKey string `json:"aws_access_key_id,omitempty"`
	SecretKey string `json:"aws_secret_access_key,omitempty"`

	// Endpoint overrides the regional Spaces endpoint. Used in tests.
	Endpoint string `json:"endpoint,omitempty"`
}

// BucketModule reconciles Spaces buckets. It is registered alongside the
// API-backed modules but talks S3 instead of the DigitalOcean REST API.
type BucketModule struct {
	checkMode bool
	log       *telemetry.Logger

	// newClient is swapped in tests.
	newClient func(ctx context.Context, cfg Config) (*Client, error)
}

// NewBucketModule creates the spaces_bucket module.
func NewBucketModule(opts resources.Options) *BucketModule {
	logger := opts.Logger
	if logger == nil {
		logger, _ = telemetry.NewLogger(telemetry.DefaultConfig().Logging)
	}
	return &BucketModule{
		checkMode: opts.CheckMode,
		log:       logger.NewComponentLogger("spaces_bucket"),
		newClient: NewClient,
	}
}

// Register adds the spaces_bucket module to a resource registry.
func Register(registry *resources.Registry) {
	registry.Register("spaces_bucket", func(o resources.Options) resources.Module {
		return NewBucketModule(o)
	})
}

// Type implements resources.Module.
func (m *BucketModule) Type() string { return "spaces_bucket" }

// Reconcile implements resources.Module.
func (m *BucketModule) Reconcile(ctx context.Context, req resources.Request) (*engine.Result, error) {
	var spec BucketSpec
	if len(req.Spec) > 0 {
		if err := json.Unmarshal(req.Spec, &spec); err != nil {
			return nil, engine.NewValidationError(fmt.Sprintf("spaces_bucket spec: %v", err))
		}
	}
	if spec.Region == "" {
		return nil, engine.NewValidationError("region is required for spaces buckets")
	}

	client, err := m.newClient(ctx, Config{
		Region:    spec.Region,
		AccessKey: spec.AccessKey,
		SecretKey: spec.SecretKey,
		Endpoint:  spec.Endpoint,
		Logger:    m.log,
	})
	if err != nil {
		return nil, err
	}

	return engine.Reconcile(ctx, req.State, m.checkMode, engine.Ops[Bucket]{
		Describe: fmt.Sprintf("spaces bucket %q in %s", req.Name, spec.Region),
		Lookup: func(ctx context.Context) (*Bucket, error) {
			return client.GetBucket(ctx, req.Name)
		},
		Create: func(ctx context.Context) (*Bucket, error) {
			return client.CreateBucket(ctx, req.Name)
		},
		Delete: func(ctx context.Context, current *Bucket) error {
			return client.DeleteBucket(ctx, current.Name)
		},
	})
}
