package spaces

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/openlagoon/openlagoon/pkg/engine"
	"github.com/openlagoon/openlagoon/pkg/telemetry"
)

// credentialEnvVars are checked when no explicit key pair is configured.
// Spaces keys are S3-style credentials, so the AWS names apply.
const (
	envAccessKey = "AWS_ACCESS_KEY_ID"
	envSecretKey = "AWS_SECRET_ACCESS_KEY"
)

// Config configures a Spaces client.
type Config struct {
	// Region is the Spaces region slug, e.g. "nyc3". Required.
	Region string

	// AccessKey and SecretKey are the Spaces key pair. When empty they are
	// read from AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY.
	AccessKey string
	SecretKey string

	// Endpoint overrides the regional Spaces endpoint. Used in tests.
	Endpoint string

	// Logger receives client logging. Optional.
	Logger *telemetry.Logger
}

// Bucket describes one Spaces bucket.
type Bucket struct {
	Name        string `json:"name"`
	Region      string `json:"region"`
	CreatedAt   string `json:"created_at,omitempty"`
	EndpointURL string `json:"endpoint_url"`
}

// Client manages Spaces buckets in one region.
type Client struct {
	s3     *s3.Client
	region string
	log    *telemetry.Logger
}

// EndpointForRegion returns the Spaces API endpoint of a region.
func EndpointForRegion(region string) string {
	return fmt.Sprintf("https://%s.digitaloceanspaces.com", region)
}

// NewClient creates a Spaces client for one region.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Region == "" {
		return nil, engine.NewValidationError("spaces region is required")
	}

	accessKey := cfg.AccessKey
	secretKey := cfg.SecretKey
	if accessKey == "" {
		accessKey = os.Getenv(envAccessKey)
	}
	if secretKey == "" {
		secretKey = os.Getenv(envSecretKey)
	}
	if accessKey == "" || secretKey == "" {
		return nil, engine.NewValidationError(
			"spaces credentials are required; set aws_access_key_id/aws_secret_access_key or the AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY environment variables")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = EndpointForRegion(cfg.Region)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	)
	if err != nil {
		return nil, engine.NewPermanentError("load spaces credentials", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger, _ = telemetry.NewLogger(telemetry.DefaultConfig().Logging)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		// Spaces does not support virtual-hosted bucket addressing on
		// custom endpoints.
		o.UsePathStyle = cfg.Endpoint != ""
	})

	return &Client{
		s3:     client,
		region: cfg.Region,
		log:    logger.NewComponentLogger("spaces"),
	}, nil
}

// ListBuckets returns the buckets in the client's region, sorted by name.
func (c *Client) ListBuckets(ctx context.Context) ([]Bucket, error) {
	out, err := c.s3.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, c.wrapError("list buckets", err)
	}

	buckets := make([]Bucket, 0, len(out.Buckets))
	for _, b := range out.Buckets {
		bucket := Bucket{
			Name:        aws.ToString(b.Name),
			Region:      c.region,
			EndpointURL: fmt.Sprintf("https://%s.%s.digitaloceanspaces.com", aws.ToString(b.Name), c.region),
		}
		if b.CreationDate != nil {
			bucket.CreatedAt = b.CreationDate.UTC().Format("2006-01-02T15:04:05Z")
		}
		buckets = append(buckets, bucket)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Name < buckets[j].Name })
	return buckets, nil
}

// GetBucket returns the named bucket, or nil when it does not exist.
func (c *Client) GetBucket(ctx context.Context, name string) (*Bucket, error) {
	buckets, err := c.ListBuckets(ctx)
	if err != nil {
		return nil, err
	}
	for i := range buckets {
		if buckets[i].Name == name {
			return &buckets[i], nil
		}
	}
	return nil, nil
}

// CreateBucket creates a bucket in the client's region.
func (c *Client) CreateBucket(ctx context.Context, name string) (*Bucket, error) {
	_, err := c.s3.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(name),
	})
	if err != nil {
		return nil, c.wrapError(fmt.Sprintf("create bucket %q", name), err)
	}
	c.log.WithField("bucket", name).WithField("region", c.region).Info("spaces bucket created")
	return &Bucket{
		Name:        name,
		Region:      c.region,
		EndpointURL: fmt.Sprintf("https://%s.%s.digitaloceanspaces.com", name, c.region),
	}, nil
}

// DeleteBucket removes a bucket. The bucket must be empty.
func (c *Client) DeleteBucket(ctx context.Context, name string) error {
	_, err := c.s3.DeleteBucket(ctx, &s3.DeleteBucketInput{
		Bucket: aws.String(name),
	})
	if err != nil {
		return c.wrapError(fmt.Sprintf("delete bucket %q", name), err)
	}
	c.log.WithField("bucket", name).Info("spaces bucket deleted")
	return nil
}

// wrapError classifies an S3 API error into the shared error taxonomy.
func (c *Client) wrapError(op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		msg := fmt.Sprintf("%s: %s: %s", op, apiErr.ErrorCode(), apiErr.ErrorMessage())
		switch apiErr.ErrorCode() {
		case "NoSuchBucket":
			e := engine.NewPermanentError(msg, err)
			e.Code = engine.ErrCodeNotFound
			return e
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			e := engine.NewPermanentError(msg, err)
			e.Code = engine.ErrCodeUnauthorized
			return e
		case "BucketNotEmpty", "BucketAlreadyExists", "BucketAlreadyOwnedByYou":
			return engine.NewPermanentError(msg, err)
		case "SlowDown":
			return engine.NewThrottledError(msg, err)
		}
		return engine.NewPermanentError(msg, err)
	}
	return engine.NewTransientError(op+" failed", err)
}
