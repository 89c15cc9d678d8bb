package doapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/openlagoon/openlagoon/pkg/engine"
	"github.com/openlagoon/openlagoon/pkg/telemetry"
)

const (
	// DefaultBaseURL is the production DigitalOcean API endpoint.
	DefaultBaseURL = "https://api.digitalocean.com/v2"

	// DefaultTimeout bounds a single API request.
	DefaultTimeout = 30 * time.Second

	defaultUserAgent = "lagoon"
)

// tokenEnvVars are checked in order when no explicit token is configured.
var tokenEnvVars = []string{"DO_API_TOKEN", "DO_API_KEY", "DO_OAUTH_TOKEN", "OAUTH_TOKEN"}

// TokenFromEnv returns the first DigitalOcean API token found in the
// environment, or an empty string.
func TokenFromEnv() string {
	for _, name := range tokenEnvVars {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// Config configures a Client.
type Config struct {
	// Token is the DigitalOcean API token. If empty, the token is read from
	// the environment (DO_API_TOKEN, DO_API_KEY, DO_OAUTH_TOKEN, OAUTH_TOKEN).
	Token string

	// BaseURL overrides the API endpoint. Used for tests and API mocks.
	BaseURL string

	// Timeout bounds each individual request.
	Timeout time.Duration

	// UserAgent overrides the User-Agent header.
	UserAgent string

	// HTTPClient overrides the underlying HTTP client.
	HTTPClient *http.Client

	// Logger receives per-request debug logging. Optional.
	Logger *telemetry.Logger

	// Metrics receives API request metrics. Optional.
	Metrics *telemetry.Metrics
}

// RateLimit holds the rate limit state reported by the most recent response.
type RateLimit struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

// Client is a DigitalOcean API client.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	token      string
	userAgent  string
	logger     *telemetry.Logger
	metrics    *telemetry.Metrics

	mu        sync.Mutex
	rateLimit RateLimit
}

// NewClient creates a client from the given configuration.
func NewClient(cfg Config) (*Client, error) {
	token := cfg.Token
	if token == "" {
		token = TokenFromEnv()
	}
	if token == "" {
		return nil, engine.NewValidationError(
			"no API token provided; set DO_API_TOKEN, DO_API_KEY, DO_OAUTH_TOKEN, or OAUTH_TOKEN")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	parsed, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, engine.NewValidationError(fmt.Sprintf("invalid base URL %q: %v", baseURL, err))
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	logger := cfg.Logger
	if logger == nil {
		logger, _ = telemetry.NewLogger(telemetry.DefaultConfig().Logging)
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    parsed,
		token:      token,
		userAgent:  userAgent,
		logger:     logger.NewComponentLogger("doapi"),
		metrics:    cfg.Metrics,
	}, nil
}

// BaseURL returns the configured API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// RateLimit returns the rate limit state from the most recent response.
func (c *Client) RateLimit() RateLimit {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rateLimit
}

// resolve joins path with the base URL. Absolute URLs (pagination links) are
// used as-is, but pinned to the configured host so a mock server keeps
// control in tests.
func (c *Client) resolve(path string) (*url.URL, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		u, err := url.Parse(path)
		if err != nil {
			return nil, err
		}
		u.Scheme = c.baseURL.Scheme
		u.Host = c.baseURL.Host
		return u, nil
	}
	return url.Parse(c.baseURL.String() + "/" + strings.TrimPrefix(path, "/"))
}

// Do performs an API request. body, when non-nil, is JSON-encoded; out, when
// non-nil, receives the decoded response body. Non-2xx responses are returned
// as engine errors wrapping an *APIError. When the context carries a
// telemetry instance the request runs under its own trace span.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	ic := telemetry.StartOperation(ctx, "api.request",
		attribute.String("http.method", method),
		attribute.String("http.path", path))
	err := c.do(ic.Ctx, method, path, query, body, out)
	ic.End(err)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u, err := c.resolve(path)
	if err != nil {
		return engine.NewValidationError(fmt.Sprintf("invalid request path %q: %v", path, err))
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Set(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return engine.NewValidationError(fmt.Sprintf("encode request body: %v", err))
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return engine.NewValidationError(fmt.Sprintf("build request: %v", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return engine.NewTransientError(fmt.Sprintf("%s %s interrupted", method, u.Path), ctx.Err())
		}
		return engine.NewTransientError(fmt.Sprintf("%s %s failed", method, u.Path), err)
	}
	defer resp.Body.Close()

	duration := time.Since(start)
	c.recordRateLimit(resp)
	if c.metrics != nil {
		c.metrics.RecordAPIRequest(method, resp.StatusCode, duration)
	}
	c.logger.WithRequest(method, u.Path).
		WithField("status", resp.StatusCode).
		WithField("duration_ms", duration.Milliseconds()).
		Trace("api request")

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return engine.NewTransientError(fmt.Sprintf("read response for %s %s", method, u.Path), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.errorFromResponse(method, u.Path, resp, data)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return engine.NewPermanentError(fmt.Sprintf("decode response for %s %s", method, u.Path), err)
		}
	}
	return nil
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, http.MethodGet, path, query, nil, out)
}

// GetRaw performs a GET request and returns the raw response body. Used for
// the few endpoints that serve something other than JSON, like kubeconfigs.
func (c *Client) GetRaw(ctx context.Context, path string) ([]byte, error) {
	u, err := c.resolve(path)
	if err != nil {
		return nil, engine.NewValidationError(fmt.Sprintf("invalid request path %q: %v", path, err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, engine.NewValidationError(fmt.Sprintf("build request: %v", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, engine.NewTransientError(fmt.Sprintf("GET %s failed", u.Path), err)
	}
	defer resp.Body.Close()

	c.recordRateLimit(resp)
	if c.metrics != nil {
		c.metrics.RecordAPIRequest(http.MethodGet, resp.StatusCode, time.Since(start))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, engine.NewTransientError(fmt.Sprintf("read response for GET %s", u.Path), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.errorFromResponse(http.MethodGet, u.Path, resp, data)
	}
	return data, nil
}

// Post performs a POST request.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, nil, body, out)
}

// Put performs a PUT request.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPut, path, nil, body, out)
}

// Delete performs a DELETE request. A 404 on delete is returned as-is; most
// callers treat it as already-absent.
func (c *Client) Delete(ctx context.Context, path string, body any) error {
	return c.Do(ctx, http.MethodDelete, path, nil, body, nil)
}

// VerifyToken checks the configured token against the account endpoint.
func (c *Client) VerifyToken(ctx context.Context) error {
	var out struct {
		Account struct {
			Status string `json:"status"`
			Email  string `json:"email"`
		} `json:"account"`
	}
	if err := c.Get(ctx, "/account", nil, &out); err != nil {
		if engine.IsUnauthorized(err) {
			e := engine.NewPermanentError("failed to login with the provided API token", err)
			e.Code = engine.ErrCodeUnauthorized
			return e
		}
		return err
	}
	c.logger.WithField("account_status", out.Account.Status).Debug("token verified")
	return nil
}

func (c *Client) recordRateLimit(resp *http.Response) {
	limit, err1 := strconv.Atoi(resp.Header.Get("Ratelimit-Limit"))
	remaining, err2 := strconv.Atoi(resp.Header.Get("Ratelimit-Remaining"))
	if err1 != nil || err2 != nil {
		return
	}
	rl := RateLimit{Limit: limit, Remaining: remaining}
	if reset, err := strconv.ParseInt(resp.Header.Get("Ratelimit-Reset"), 10, 64); err == nil {
		rl.Reset = time.Unix(reset, 0)
	}
	c.mu.Lock()
	c.rateLimit = rl
	c.mu.Unlock()
}

func (c *Client) errorFromResponse(method, path string, resp *http.Response, data []byte) error {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get("X-Request-Id"),
	}
	var body struct {
		ID      string `json:"id"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Message != "" {
		apiErr.ID = body.ID
		apiErr.Message = body.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}

	msg := fmt.Sprintf("%s %s: %s", method, path, apiErr.Message)
	e := engine.FromHTTPStatus(resp.StatusCode, msg, apiErr)
	e.Operation = method + " " + path
	return e
}
