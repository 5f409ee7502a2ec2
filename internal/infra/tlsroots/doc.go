// Package tlsroots provides TLS material for autosave-server.
//
//   - roots.go: trust pools for outbound calls, such as the preview
//     notifier talking to a server with a private CA
//   - watcher.go: the HTTP listener certificate, reloaded on file change
package tlsroots
