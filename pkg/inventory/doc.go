// Package inventory builds a dynamic host inventory from the droplets API.
//
// The builder fetches every droplet, applies optional Starlark filter
// expressions per host, groups hosts by region, size, status, and tag, and
// emits the conventional dynamic-inventory JSON shape with hostvars under
// _meta. Results are cached in the sqlite store keyed by a hash of the
// plugin configuration.
package inventory
