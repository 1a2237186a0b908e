// Package storage defines persistence contracts for protocol state records.
//
// These interfaces exist so adapters and the purge subsystem can depend on
// stable record semantics without coupling to SQLite schema details.
package storage
