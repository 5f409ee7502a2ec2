// Package memory provides the in-process storage backend.
//
// Store keeps snapshots in sharded maps keyed by entity with a secondary
// index by form session. PendingCache keeps pending input in an expiring
// map. Nothing survives a restart, which makes the backend suitable for
// tests and single-process development.
package memory
