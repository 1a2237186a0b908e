// Package app wires the record store, purge subsystem and admin HTTP surface
// into a runnable statevault server.
package app
