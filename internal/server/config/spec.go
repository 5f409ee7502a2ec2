// Package config defines the server configuration structure.
package config

import "time"

// ServerConfig is the root configuration for autosave-server.
type ServerConfig struct {
	Server   ServerSection   `koanf:"server"`
	Storage  StorageSection  `koanf:"storage"`
	Autosave AutosaveSection `koanf:"autosave"`
	Preview  PreviewSection  `koanf:"preview"`
	Security SecuritySection `koanf:"security"`
	Log      LogSection      `koanf:"log"`
}

// ServerSection configures server endpoints.
type ServerSection struct {
	HTTP  HTTPConfig  `koanf:"http"`
	Local LocalConfig `koanf:"local"`
}

// LocalConfig configures the Unix socket listener. An empty SocketPath
// disables it.
type LocalConfig struct {
	SocketPath string `koanf:"socket_path"`
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Addr        string `koanf:"addr"`
	TLSCertFile string `koanf:"tls_cert_file"`
	TLSKeyFile  string `koanf:"tls_key_file"`

	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// RateLimit is the per-client request rate (requests/second). Zero disables it.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`

	// AdminAllowCIDRs restricts the /admin/v1 routes. Empty means loopback only.
	AdminAllowCIDRs []string `koanf:"admin_allow_cidrs"`
}

// StorageSection configures the snapshot store.
type StorageSection struct {
	// Backend is one of "badger", "sqlite" or "memory".
	Backend    string        `koanf:"backend"`
	DataDir    string        `koanf:"data_dir"`
	SQLitePath string        `koanf:"sqlite_path"`
	Compress   bool          `koanf:"compress"`
	SyncWrites bool          `koanf:"sync_writes"`
	GCInterval time.Duration `koanf:"gc_interval"`

	Backup BackupConfig `koanf:"backup"`
}

// BackupConfig schedules on-disk backups. A zero Interval disables them.
type BackupConfig struct {
	Interval       time.Duration `koanf:"interval"`
	Dir            string        `koanf:"dir"` // Defaults to <data_dir>/backups
	RetentionCount int           `koanf:"retention_count"`
	RetentionDays  int           `koanf:"retention_days"`
}

// AutosaveSection configures the session engine. Interval, OnlyOnFormChange
// and Notification are handed to the form layer unchanged.
type AutosaveSection struct {
	// Interval is the client tick interval in seconds.
	Interval         int                `koanf:"interval"`
	OnlyOnFormChange bool               `koanf:"only_on_form_change"`
	Notification     NotificationConfig `koanf:"notification"`

	PendingTTL             time.Duration `koanf:"pending_ttl"`
	DeepSerializationTypes []string      `koanf:"deep_serialization_types"`
}

// NotificationConfig is the on-screen notice shown after each save.
type NotificationConfig struct {
	Active  bool   `koanf:"active" json:"active" yaml:"active"`
	Message string `koanf:"message" json:"message" yaml:"message"`
}

// PreviewSection configures the change notifier.
type PreviewSection struct {
	Enabled   bool          `koanf:"enabled"`
	URL       string        `koanf:"url"`
	Timeout   time.Duration `koanf:"timeout"`
	QueueSize int           `koanf:"queue_size"`
	Workers   int           `koanf:"workers"`
	RateLimit float64       `koanf:"rate_limit"`
	Burst     int           `koanf:"burst"`
	TLSCAFile string        `koanf:"tls_ca_file"`
}

// SecuritySection configures at-rest encryption of stored payloads.
//
// EncryptionKey takes precedence; otherwise a key is derived from
// Passphrase and Salt.
type SecuritySection struct {
	EncryptionKey string `koanf:"encryption_key"`
	Passphrase    string `koanf:"passphrase"`
	Salt          string `koanf:"salt"`
}

// LogSection configures logging.
type LogSection struct {
	Level     string `koanf:"level"`
	Format    string `koanf:"format"`
	AddSource bool   `koanf:"add_source"`
}
