// Package httpserver provides the HTTP/HTTPS server for autosave-server.
//
// It uses net/http with method-qualified ServeMux patterns:
//
//   - Autosave endpoints: /v1/autosave/*
//   - Admin endpoints: /admin/v1/*
//   - Health endpoints: /health, /ready, /metrics
//
// Every route runs RequestID, AccessLog and Recover. Autosave routes add a
// per-IP rate limit; admin routes and /metrics add a network ACL that
// admits loopback clients unless an allowlist is configured. TLS
// certificates are served through a reloading tlsroots.Watcher.
package httpserver
