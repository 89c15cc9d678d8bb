// Package telemetry bundles the observability plumbing shared by the CLI and
// the resource modules: zerolog structured logging, Prometheus metrics for
// API traffic and reconcile outcomes, and optional OpenTelemetry tracing.
package telemetry
