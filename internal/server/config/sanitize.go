package config

import "strings"

// Sanitize returns a copy of the config with sensitive fields masked.
//
// This is used for logging configuration without exposing secrets.
func Sanitize(cfg *ServerConfig) *ServerConfig {
	sanitized := *cfg

	sec := &sanitized.Security
	if sec.EncryptionKey != "" {
		sec.EncryptionKey = maskSecret(sec.EncryptionKey)
	}
	if sec.Passphrase != "" {
		sec.Passphrase = maskSecret(sec.Passphrase)
	}
	if sec.Salt != "" {
		sec.Salt = maskSecret(sec.Salt)
	}

	// Slices are shared with the original after the shallow copy.
	sanitized.Server.HTTP.AdminAllowCIDRs = append([]string(nil), cfg.Server.HTTP.AdminAllowCIDRs...)
	sanitized.Autosave.DeepSerializationTypes = append([]string(nil), cfg.Autosave.DeepSerializationTypes...)

	return &sanitized
}

// maskSecret masks a secret value for safe logging.
func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
