package config

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/yndnr/autosave-go/pkg/crypto/adaptive"
)

// BlobKeyInfo is the HKDF info string for the payload encryption subkey.
const BlobKeyInfo = "autosave/blob"

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true, "critical": true,
}

// Verify validates the configuration.
func Verify(cfg *ServerConfig) error {
	if err := verifyServer(&cfg.Server); err != nil {
		return err
	}
	if err := verifyStorage(&cfg.Storage); err != nil {
		return err
	}
	if err := verifyAutosave(&cfg.Autosave); err != nil {
		return err
	}
	if err := verifyPreview(&cfg.Preview); err != nil {
		return err
	}
	if _, _, err := cfg.Security.BlobKey(); err != nil {
		return err
	}
	return verifyLog(&cfg.Log)
}

// maxSocketPath is the portable limit of sockaddr_un.sun_path.
const maxSocketPath = 104

func verifyServer(cfg *ServerSection) error {
	h := &cfg.HTTP
	if h.Addr == "" {
		return errors.New("server.http.addr is required")
	}
	if _, _, err := net.SplitHostPort(h.Addr); err != nil {
		return fmt.Errorf("server.http.addr: %w", err)
	}

	if (h.TLSCertFile == "") != (h.TLSKeyFile == "") {
		return errors.New("server.http.tls_cert_file and tls_key_file must be set together")
	}
	for _, f := range []string{h.TLSCertFile, h.TLSKeyFile} {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			return fmt.Errorf("server.http tls file: %w", err)
		}
	}

	if h.RateLimit < 0 || h.RateBurst < 0 {
		return errors.New("server.http.rate_limit and rate_burst must not be negative")
	}
	if _, err := ParseCIDRs(h.AdminAllowCIDRs); err != nil {
		return fmt.Errorf("server.http.admin_allow_cidrs: %w", err)
	}

	if p := cfg.Local.SocketPath; p != "" {
		if !filepath.IsAbs(p) {
			return errors.New("server.local.socket_path must be absolute")
		}
		if len(p) > maxSocketPath {
			return fmt.Errorf("server.local.socket_path is longer than %d bytes", maxSocketPath)
		}
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	b := &cfg.Backup
	if b.Interval < 0 || b.RetentionCount < 0 || b.RetentionDays < 0 {
		return errors.New("storage.backup values must not be negative")
	}

	switch cfg.Backend {
	case "memory":
		if b.Interval > 0 {
			return errors.New("storage.backup is not supported by the memory backend")
		}
		return nil
	case "badger", "sqlite":
	default:
		return fmt.Errorf("storage.backend %q is not one of badger, sqlite, memory", cfg.Backend)
	}

	if cfg.DataDir == "" {
		return errors.New("storage.data_dir is required")
	}
	if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
		return errors.New("cannot create data directory: " + err.Error())
	}
	if cfg.GCInterval < 0 {
		return errors.New("storage.gc_interval must not be negative")
	}
	return nil
}

func verifyAutosave(cfg *AutosaveSection) error {
	if cfg.Interval < 1 {
		return errors.New("autosave.interval must be at least 1 second")
	}
	if cfg.PendingTTL <= 0 {
		return errors.New("autosave.pending_ttl must be positive")
	}
	for _, t := range cfg.DeepSerializationTypes {
		if strings.TrimSpace(t) == "" {
			return errors.New("autosave.deep_serialization_types contains an empty entry")
		}
	}
	return nil
}

func verifyPreview(cfg *PreviewSection) error {
	if !cfg.Enabled {
		return nil
	}
	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("preview.url %q must be an absolute http(s) URL", cfg.URL)
	}
	if cfg.Timeout <= 0 {
		return errors.New("preview.timeout must be positive")
	}
	if cfg.Workers < 1 || cfg.QueueSize < 1 {
		return errors.New("preview.workers and preview.queue_size must be at least 1")
	}
	if cfg.RateLimit < 0 || cfg.Burst < 0 {
		return errors.New("preview.rate_limit and preview.burst must not be negative")
	}
	if cfg.TLSCAFile != "" {
		if _, err := os.Stat(cfg.TLSCAFile); err != nil {
			return fmt.Errorf("preview.tls_ca_file: %w", err)
		}
	}
	return nil
}

func verifyLog(cfg *LogSection) error {
	if !validLogLevels[strings.ToLower(cfg.Level)] {
		return fmt.Errorf("log.level %q is invalid", cfg.Level)
	}
	switch strings.ToLower(cfg.Format) {
	case "json", "text", "console":
		return nil
	default:
		return fmt.Errorf("log.format %q is invalid", cfg.Format)
	}
}

// BlobKey resolves the payload encryption key. ok is false when
// encryption is not configured.
func (s SecuritySection) BlobKey() (key []byte, ok bool, err error) {
	var master []byte
	switch {
	case s.EncryptionKey != "":
		master, err = adaptive.ParseKey(s.EncryptionKey)
		if err != nil {
			return nil, false, fmt.Errorf("security.encryption_key: %w", err)
		}
	case s.Passphrase != "":
		master, err = adaptive.DeriveKeyFromPassphrase([]byte(s.Passphrase), []byte(s.Salt))
		if err != nil {
			return nil, false, fmt.Errorf("security.passphrase: %w", err)
		}
	default:
		return nil, false, nil
	}

	key, err = adaptive.DeriveSubkey(master, BlobKeyInfo)
	if err != nil {
		return nil, false, fmt.Errorf("security: %w", err)
	}
	return key, true, nil
}

// ParseCIDRs parses a list of CIDR prefixes or bare addresses.
func ParseCIDRs(list []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(list))
	for _, s := range list {
		s = strings.TrimSpace(s)
		if !strings.Contains(s, "/") {
			addr, err := netip.ParseAddr(s)
			if err != nil {
				return nil, err
			}
			out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return nil, err
		}
		out = append(out, p.Masked())
	}
	return out, nil
}
