// Package config loads and validates lagoon manifests.
//
// Manifests are written in CUE and declare resources as {type, name, state,
// spec} plus optional workspace-level defaults. Multiple manifest files
// unify into one configuration before extraction, so defaults can live in a
// separate file from the resources they apply to.
package config
