// Package stores provides local persistence backed by SQLite.
//
// Two concerns live here: the inventory cache, which saves dynamic inventory
// payloads between CLI invocations, and the run history, which records every
// apply and destroy run for later inspection.
package stores
