// Package handler provides the HTTP API of autosave-server.
//
//   - /v1/autosave/*: settings, session ids, ticks, purge, state, restore
//   - /admin/v1/*: lifecycle purge, status, GC, backup
//   - /health, /ready
//
// Every JSON response uses the Response envelope. Failures expose the
// error code and its generic message only; details go to the log.
package handler
