package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig(t *testing.T) *ServerConfig {
	t.Helper()
	cfg := Default()
	cfg.Storage.DataDir = t.TempDir()
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.HTTP.Addr != DefaultHTTPAddr {
		t.Errorf("HTTP.Addr = %q, want %q", cfg.Server.HTTP.Addr, DefaultHTTPAddr)
	}
	if cfg.Storage.Backend != "badger" {
		t.Errorf("Storage.Backend = %q, want badger", cfg.Storage.Backend)
	}
	if cfg.Storage.DataDir != DefaultDataDir {
		t.Errorf("DataDir = %q, want %q", cfg.Storage.DataDir, DefaultDataDir)
	}
	if cfg.Autosave.PendingTTL != DefaultPendingTTL || DefaultPendingTTL.Hours() != 6 {
		t.Errorf("PendingTTL = %v, want 6h", cfg.Autosave.PendingTTL)
	}
	if cfg.Preview.URL != "http://localhost:8001" {
		t.Errorf("Preview.URL = %q", cfg.Preview.URL)
	}
	if !cfg.Preview.Enabled || cfg.Preview.Timeout <= 0 {
		t.Errorf("Preview = %+v", cfg.Preview)
	}
	if cfg.Log.Level != DefaultLogLevel || cfg.Log.Format != DefaultLogFormat {
		t.Errorf("Log = %+v", cfg.Log)
	}
}

func TestVerify_ValidConfig(t *testing.T) {
	if err := Verify(validConfig(t)); err != nil {
		t.Errorf("Verify failed: %v", err)
	}
}

func TestVerify_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *ServerConfig)
		want   string
	}{
		{"empty addr", func(c *ServerConfig) { c.Server.HTTP.Addr = "" }, "server.http.addr"},
		{"addr without port", func(c *ServerConfig) { c.Server.HTTP.Addr = "localhost" }, "server.http.addr"},
		{"cert without key", func(c *ServerConfig) { c.Server.HTTP.TLSCertFile = "/tmp/cert.pem" }, "tls_key_file"},
		{"missing cert file", func(c *ServerConfig) {
			c.Server.HTTP.TLSCertFile = "/nonexistent/cert.pem"
			c.Server.HTTP.TLSKeyFile = "/nonexistent/key.pem"
		}, "tls file"},
		{"negative rate", func(c *ServerConfig) { c.Server.HTTP.RateLimit = -1 }, "rate_limit"},
		{"bad cidr", func(c *ServerConfig) { c.Server.HTTP.AdminAllowCIDRs = []string{"10.0.0.0/99"} }, "admin_allow_cidrs"},
		{"relative socket", func(c *ServerConfig) { c.Server.Local.SocketPath = "admin.sock" }, "socket_path"},
		{"long socket", func(c *ServerConfig) { c.Server.Local.SocketPath = "/" + strings.Repeat("s", 120) }, "socket_path"},
		{"negative backup interval", func(c *ServerConfig) { c.Storage.Backup.Interval = -1 }, "storage.backup"},
		{"memory backup", func(c *ServerConfig) {
			c.Storage.Backend = "memory"
			c.Storage.Backup.Interval = time.Hour
		}, "storage.backup"},
		{"unknown backend", func(c *ServerConfig) { c.Storage.Backend = "redis" }, "storage.backend"},
		{"empty data dir", func(c *ServerConfig) { c.Storage.DataDir = "" }, "storage.data_dir"},
		{"zero interval", func(c *ServerConfig) { c.Autosave.Interval = 0 }, "autosave.interval"},
		{"zero pending ttl", func(c *ServerConfig) { c.Autosave.PendingTTL = 0 }, "pending_ttl"},
		{"blank deep type", func(c *ServerConfig) { c.Autosave.DeepSerializationTypes = []string{" "} }, "deep_serialization_types"},
		{"relative preview url", func(c *ServerConfig) { c.Preview.URL = "localhost:8001" }, "preview.url"},
		{"ftp preview url", func(c *ServerConfig) { c.Preview.URL = "ftp://example.com" }, "preview.url"},
		{"zero preview timeout", func(c *ServerConfig) { c.Preview.Timeout = 0 }, "preview.timeout"},
		{"zero workers", func(c *ServerConfig) { c.Preview.Workers = 0 }, "preview.workers"},
		{"bad key", func(c *ServerConfig) { c.Security.EncryptionKey = "abcd" }, "security.encryption_key"},
		{"weak passphrase", func(c *ServerConfig) { c.Security.Passphrase = "short" }, "security.passphrase"},
		{"bad log level", func(c *ServerConfig) { c.Log.Level = "verbose" }, "log.level"},
		{"bad log format", func(c *ServerConfig) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := Verify(cfg)
			if err == nil {
				t.Fatal("Verify() should fail")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Verify() error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestVerify_DisabledPreviewSkipsChecks(t *testing.T) {
	cfg := validConfig(t)
	cfg.Preview.Enabled = false
	cfg.Preview.URL = ""
	cfg.Preview.Workers = 0

	if err := Verify(cfg); err != nil {
		t.Errorf("Verify failed: %v", err)
	}
}

func TestVerify_MemoryBackendNeedsNoDataDir(t *testing.T) {
	cfg := validConfig(t)
	cfg.Storage.Backend = "memory"
	cfg.Storage.DataDir = ""

	if err := Verify(cfg); err != nil {
		t.Errorf("Verify failed: %v", err)
	}
}

func TestVerify_CreateDataDir(t *testing.T) {
	cfg := validConfig(t)
	newDir := filepath.Join(t.TempDir(), "subdir", "data")
	cfg.Storage.DataDir = newDir

	if err := Verify(cfg); err != nil {
		t.Errorf("Verify failed: %v", err)
	}

	if _, err := os.Stat(newDir); os.IsNotExist(err) {
		t.Error("Data directory should have been created")
	}
}

func TestSecurity_BlobKey(t *testing.T) {
	hexKey := strings.Repeat("0f", 32)

	if _, ok, err := (SecuritySection{}).BlobKey(); ok || err != nil {
		t.Errorf("BlobKey() without settings = (%v, %v), want disabled", ok, err)
	}

	k1, ok, err := SecuritySection{EncryptionKey: hexKey}.BlobKey()
	if err != nil || !ok || len(k1) != 32 {
		t.Fatalf("BlobKey() = (%x, %v, %v)", k1, ok, err)
	}
	k2, _, _ := SecuritySection{EncryptionKey: "hex:" + hexKey}.BlobKey()
	if !bytes.Equal(k1, k2) {
		t.Error("the same key should derive the same subkey")
	}
	if bytes.Equal(k1, bytes.Repeat([]byte{0x0f}, 32)) {
		t.Error("the blob key should be derived, not the master key itself")
	}

	pk, ok, err := SecuritySection{
		Passphrase: "correct horse battery",
		Salt:       "0123456789abcdef",
	}.BlobKey()
	if err != nil || !ok || len(pk) != 32 {
		t.Errorf("BlobKey(passphrase) = (%x, %v, %v)", pk, ok, err)
	}
}

func TestParseCIDRs(t *testing.T) {
	got, err := ParseCIDRs([]string{"127.0.0.1", "10.1.2.3/8", "::1"})
	if err != nil {
		t.Fatalf("ParseCIDRs() error = %v", err)
	}
	want := []string{"127.0.0.1/32", "10.0.0.0/8", "::1/128"}
	for i, p := range got {
		if p.String() != want[i] {
			t.Errorf("ParseCIDRs()[%d] = %s, want %s", i, p, want[i])
		}
	}

	if _, err := ParseCIDRs([]string{"not-an-ip"}); err == nil {
		t.Error("ParseCIDRs() should reject garbage")
	}
}

func TestSanitize(t *testing.T) {
	cfg := &ServerConfig{
		Security: SecuritySection{
			EncryptionKey: "super-secret-key-1234567890",
			Passphrase:    "correct horse",
			Salt:          "0123456789abcdef",
		},
		Server: ServerSection{HTTP: HTTPConfig{AdminAllowCIDRs: []string{"10.0.0.0/8"}}},
	}

	sanitized := Sanitize(cfg)

	if cfg.Security.EncryptionKey != "super-secret-key-1234567890" {
		t.Error("Original config should not be modified")
	}
	if sanitized.Security.EncryptionKey == cfg.Security.EncryptionKey {
		t.Error("Sanitized config should mask the encryption key")
	}
	if len(sanitized.Security.EncryptionKey) != len(cfg.Security.EncryptionKey) {
		t.Errorf("Masked key length = %d, want %d", len(sanitized.Security.EncryptionKey), len(cfg.Security.EncryptionKey))
	}
	if sanitized.Security.Passphrase == cfg.Security.Passphrase || sanitized.Security.Salt == cfg.Security.Salt {
		t.Error("Sanitized config should mask passphrase and salt")
	}

	sanitized.Server.HTTP.AdminAllowCIDRs[0] = "0.0.0.0/0"
	if cfg.Server.HTTP.AdminAllowCIDRs[0] != "10.0.0.0/8" {
		t.Error("Sanitize should not share slices with the original")
	}
}

func TestSanitize_EmptyAndShortKey(t *testing.T) {
	if got := Sanitize(&ServerConfig{}).Security.EncryptionKey; got != "" {
		t.Errorf("Empty key should remain empty, got %q", got)
	}

	cfg := &ServerConfig{Security: SecuritySection{EncryptionKey: "abc"}}
	if got := Sanitize(cfg).Security.EncryptionKey; got != "****" {
		t.Errorf("Short key should be fully masked, got %q", got)
	}
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"a", "****"},
		{"abcd", "****"},
		{"abcde", "ab*de"},
		{"abcdef", "ab**ef"},
		{"1234567890", "12******90"},
	}

	for _, tt := range tests {
		result := maskSecret(tt.input)
		if result != tt.expected {
			t.Errorf("maskSecret(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}
