// Package sqlite provides SQLite-backed record persistence.
//
// It is the default on-disk state store used by the statevault service and
// command tooling that exercises protocol state flows.
package sqlite
