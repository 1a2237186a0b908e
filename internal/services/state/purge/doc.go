// Package purge reclaims expired volatile records without a background daemon.
//
// The scheduler counts write-path calls and, past a threshold, fires one
// asynchronous sweep; a cooldown window after each sweep absorbs write bursts
// so sweeps never overlap or pile up. Read-time visibility filtering in the
// store keeps correctness independent of when a sweep actually runs.
package purge
