// Package config provides server configuration for autosave-server.
//
// This package defines the server configuration structure and validation:
//
//   - spec.go: ServerConfig struct definition
//   - default.go: Default configuration values
//   - verify.go: Business validation (addresses, paths, ranges)
//   - sanitize.go: Log sanitization (hide sensitive values)
//
// Configuration is loaded via internal/infra/confloader and supports
// a YAML file and AUTOSAVE_* environment variables. PREVIEW_URL is
// accepted as an alias for preview.url.
package config
