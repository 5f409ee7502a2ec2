package config

import "time"

// Default configuration values.
const (
	DefaultHTTPAddr        = "127.0.0.1:5080"
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 15 * time.Second

	DefaultBackend    = "badger"
	DefaultDataDir    = "/var/lib/autosave-server/data"
	DefaultGCInterval = 10 * time.Minute

	DefaultBackupRetentionCount = 5
	DefaultBackupRetentionDays  = 7

	DefaultInterval            = 20
	DefaultNotificationMessage = "Changes have been autosaved."
	DefaultPendingTTL          = 6 * time.Hour

	DefaultPreviewURL       = "http://localhost:8001"
	DefaultPreviewTimeout   = 3 * time.Second
	DefaultPreviewQueueSize = 256
	DefaultPreviewWorkers   = 2

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			HTTP: HTTPConfig{
				Addr:            DefaultHTTPAddr,
				ReadTimeout:     DefaultReadTimeout,
				WriteTimeout:    DefaultWriteTimeout,
				IdleTimeout:     DefaultIdleTimeout,
				ShutdownTimeout: DefaultShutdownTimeout,
			},
		},
		Storage: StorageSection{
			Backend:    DefaultBackend,
			DataDir:    DefaultDataDir,
			GCInterval: DefaultGCInterval,
			Backup: BackupConfig{
				RetentionCount: DefaultBackupRetentionCount,
				RetentionDays:  DefaultBackupRetentionDays,
			},
		},
		Autosave: AutosaveSection{
			Interval: DefaultInterval,
			Notification: NotificationConfig{
				Active:  true,
				Message: DefaultNotificationMessage,
			},
			PendingTTL: DefaultPendingTTL,
		},
		Preview: PreviewSection{
			Enabled:   true,
			URL:       DefaultPreviewURL,
			Timeout:   DefaultPreviewTimeout,
			QueueSize: DefaultPreviewQueueSize,
			Workers:   DefaultPreviewWorkers,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
