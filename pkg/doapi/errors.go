package doapi

import "fmt"

// APIError carries the raw details of a DigitalOcean API failure response.
// It is always wrapped in an *engine.Error that classifies it; unwrap with
// errors.As to reach the HTTP-level detail.
type APIError struct {
	// StatusCode is the HTTP status of the failed response.
	StatusCode int

	// ID is the short machine-readable error identifier, e.g. "not_found".
	ID string

	// Message is the human-readable error message from the API.
	Message string

	// RequestID is the X-Request-Id header value, useful for support tickets.
	RequestID string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("digitalocean: %d %s: %s", e.StatusCode, e.ID, e.Message)
	}
	return fmt.Sprintf("digitalocean: %d: %s", e.StatusCode, e.Message)
}
