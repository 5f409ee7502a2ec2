// Package connection is the HTTP client autosave-cli uses to talk to
// autosave-server.
//
// Responses arrive in the server's envelope; Call unwraps the data field
// and turns error envelopes into *APIError. Download streams binary
// responses such as backups. A unix:// server address dials the
// server's local socket instead of TCP.
package connection
