// Package doapi implements a thin client for the DigitalOcean v2 REST API.
//
// The client handles authentication, JSON encoding, pagination, rate limit
// bookkeeping, and maps HTTP failures onto the engine error taxonomy. It
// deliberately does not retry: retry policy belongs to the caller.
package doapi
