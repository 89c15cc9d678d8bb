// Package policy evaluates Rego policies against manifests before apply.
//
// Built-in policies cover the common footguns (untagged droplets, destroying
// protected resources); additional .rego files load from user-supplied
// paths. In advisory mode violations are reported but never block; in
// enforcing mode error-severity violations fail the run.
package policy
