// Package main provides the entry point for autosave-server.
//
// The server keeps autosaved form snapshots for editors of content
// entities. It provides:
//
//   - an HTTP API that processes autosave ticks and restores state
//   - a loopback admin API for purge, GC and backup
//   - Prometheus metrics on /metrics
//   - preview notifications to PREVIEW_URL + "/__preview"
//
// Usage:
//
//	autosave-server [flags]
//	autosave-server -config /etc/autosave-server/config.yaml
//	autosave-server -config config.yaml -check-config
//
// SIGHUP and edits to the config file reload the log level.
package main
