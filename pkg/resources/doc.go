// Package resources implements the per-resource reconciliation modules.
//
// Each module owns one DigitalOcean resource type: it decodes a typed spec,
// looks up the current provider-side state, and drives it to the declared
// target state through the engine's generic reconcile helper. Modules are
// registered by type name in the Registry, which is what the CLI and the
// manifest runner dispatch through.
package resources
