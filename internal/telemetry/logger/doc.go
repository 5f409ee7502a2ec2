// Package logger provides structured logging for the autosave service.
//
//   - logger.go: slog handler construction, levels, the global logger
//   - context.go: context propagation of request and session ids
//   - redact.go: sensitive data redaction
//
// Form tokens and key material never reach the log output: attributes are
// redacted by key name, and values that look like encoded keys are
// masked.
package logger
