package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/yndnr/autosave-go/internal/core/service"
	"github.com/yndnr/autosave-go/internal/infra/buildinfo"
	"github.com/yndnr/autosave-go/internal/infra/confloader"
	"github.com/yndnr/autosave-go/internal/infra/shutdown"
	"github.com/yndnr/autosave-go/internal/infra/tlsroots"
	"github.com/yndnr/autosave-go/internal/notify"
	"github.com/yndnr/autosave-go/internal/server/config"
	"github.com/yndnr/autosave-go/internal/server/httpserver"
	"github.com/yndnr/autosave-go/internal/server/httpserver/handler"
	"github.com/yndnr/autosave-go/internal/server/localserver"
	"github.com/yndnr/autosave-go/internal/storage"
	"github.com/yndnr/autosave-go/internal/storage/backup"
	"github.com/yndnr/autosave-go/internal/storage/codec"
	"github.com/yndnr/autosave-go/internal/telemetry/logger"
	"github.com/yndnr/autosave-go/internal/telemetry/metric"
	"github.com/yndnr/autosave-go/pkg/crypto/adaptive"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile  = flag.String("config", "", "Path to configuration file")
		checkConfig = flag.Bool("check-config", false, "Validate configuration and exit")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("autosave-server %s\n", buildinfo.String())
		return nil
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *checkConfig {
		fmt.Println("configuration ok")
		return nil
	}

	log, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	log.Info("starting autosave-server",
		"version", buildinfo.Get().Version,
		"commit", buildinfo.Get().Commit,
		"config", *configFile,
		"backend", cfg.Storage.Backend)

	codecOpts, err := codecOptions(cfg)
	if err != nil {
		return fmt.Errorf("init codec: %w", err)
	}

	reg := metric.NewRegistry()

	engine, err := initStorage(cfg, codecOpts, reg, log)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	reg.Prometheus().MustRegister(metric.NewStoreCollector(engine.Stats))

	notifier, err := initNotifier(cfg, reg, log)
	if err != nil {
		_ = engine.Close()
		return fmt.Errorf("init notifier: %w", err)
	}

	svc := service.NewAutosaveService(engine.Snapshots(), engine.Pending(), codec.New(codecOpts),
		service.WithLogger(log),
		service.WithNotifier(notifier),
		service.WithPolicy(service.NewCachedPolicy(service.NewTypePolicy(cfg.Autosave.DeepSerializationTypes))),
		service.WithMetrics(reg),
		service.WithPendingTTL(cfg.Autosave.PendingTTL),
	)

	adminAllow, err := config.ParseCIDRs(cfg.Server.HTTP.AdminAllowCIDRs)
	if err != nil {
		_ = engine.Close()
		return fmt.Errorf("admin_allow_cidrs: %w", err)
	}

	sanitized := config.Sanitize(cfg)
	router := httpserver.NewRouter(&httpserver.RouterConfig{
		Service: svc,
		Admin:   engine,
		Settings: handler.Settings{
			Interval:         cfg.Autosave.Interval,
			OnlyOnFormChange: cfg.Autosave.OnlyOnFormChange,
			Notification: handler.NotificationSettings{
				Active:  cfg.Autosave.Notification.Active,
				Message: cfg.Autosave.Notification.Message,
			},
		},
		Status: func() any { return sanitized },
		Ready: func(ctx context.Context) error {
			_, err := engine.Stats(ctx)
			return err
		},
		Metrics:    reg,
		Logger:     log,
		AdminAllow: adminAllow,
		RateLimit:  cfg.Server.HTTP.RateLimit,
		RateBurst:  cfg.Server.HTTP.RateBurst,
	})

	sh := shutdown.NewHandler(cfg.Server.HTTP.ShutdownTimeout, log)

	// Hooks run in reverse registration order.
	sh.OnShutdown("storage", func(context.Context) error {
		return engine.Close()
	})
	sh.OnShutdown("notifier", notifier.Close)

	var tlsConfig *tls.Config
	if cfg.Server.HTTP.TLSCertFile != "" {
		certs, err := tlsroots.NewWatcher(cfg.Server.HTTP.TLSCertFile, cfg.Server.HTTP.TLSKeyFile,
			tlsroots.WithLogger(log))
		if err != nil {
			_ = engine.Close()
			return fmt.Errorf("load tls certificate: %w", err)
		}
		certs.StartAsync()
		sh.OnShutdown("tls watcher", func(context.Context) error {
			certs.Stop()
			return nil
		})
		tlsConfig = certs.ServerConfig()
	}

	if *configFile != "" {
		reload := func() { reloadLogLevel(*configFile, log) }
		sh.OnReload(reload)

		watcher, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
		if err != nil {
			log.Warn("config watcher disabled", "error", err)
		} else if err := watcher.Watch(*configFile); err != nil {
			log.Warn("config watcher disabled", "error", err)
			_ = watcher.Stop()
		} else {
			watcher.OnChange(func(string) { reload() })
			watcher.StartAsync()
			sh.OnShutdown("config watcher", func(context.Context) error {
				return watcher.Stop()
			})
		}
	}

	server := httpserver.New(httpserver.Config{
		Addr:         cfg.Server.HTTP.Addr,
		ReadTimeout:  cfg.Server.HTTP.ReadTimeout,
		WriteTimeout: cfg.Server.HTTP.WriteTimeout,
		IdleTimeout:  cfg.Server.HTTP.IdleTimeout,
		TLS:          tlsConfig,
		Logger:       log,
	}, router)
	sh.OnShutdown("http server", server.Shutdown)

	if path := cfg.Server.Local.SocketPath; path != "" {
		local := localserver.New(path, router, localserver.WithLogger(log))
		sh.OnShutdown("local server", local.Shutdown)
		go func() {
			if err := local.ListenAndServe(); err != nil {
				log.Error("local server error", "error", err)
				sh.Trigger("local server failed")
			}
		}()
	}

	go func() {
		log.Info("HTTP server listening", "addr", cfg.Server.HTTP.Addr, "tls", tlsConfig != nil)
		if err := server.ListenAndServe(); err != nil {
			log.Error("HTTP server error", "error", err)
			sh.Trigger("http server failed")
		}
	}()

	if b := cfg.Storage.Backup; b.Interval > 0 {
		backups, err := initBackups(cfg, log)
		if err != nil {
			log.Error("scheduled backups disabled", "error", err)
		} else {
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			go func() {
				defer close(done)
				backups.Run(ctx, b.Interval, engine)
			}()
			sh.OnShutdown("backups", func(context.Context) error {
				cancel()
				<-done
				return nil
			})
			log.Info("scheduled backups enabled", "interval", b.Interval)
		}
	}

	log.Info("server started, press Ctrl+C to stop")
	if err := sh.Wait(); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}

	log.Info("server stopped gracefully")
	return nil
}

// loadConfig layers the config file and environment over the defaults.
func loadConfig(configFile string) (*config.ServerConfig, error) {
	cfg := config.Default()

	opts := []confloader.Option{}
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}

	loader := confloader.NewLoader(opts...)
	if err := loader.Load(cfg); err != nil {
		return nil, err
	}

	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// initLogger installs the process logger and returns its slog form.
func initLogger(cfg *config.ServerConfig) (*slog.Logger, error) {
	l, err := logger.New(logger.Config{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		Output:    os.Stdout,
		AddSource: cfg.Log.AddSource,
	})
	if err != nil {
		return nil, err
	}
	logger.SetDefault(l)
	return l.Slog(), nil
}

// reloadLogLevel re-reads the config file and applies the log level.
// Other settings require a restart.
func reloadLogLevel(configFile string, log *slog.Logger) {
	cfg, err := loadConfig(configFile)
	if err != nil {
		log.Warn("config reload failed", "error", err)
		return
	}
	logger.SetLevel(cfg.Log.Level)
	log.Info("config reloaded", "log_level", logger.GetLevel())
}

func codecOptions(cfg *config.ServerConfig) (codec.Options, error) {
	opts := codec.Options{Compress: cfg.Storage.Compress}

	key, ok, err := cfg.Security.BlobKey()
	if err != nil {
		return opts, err
	}
	if ok {
		cipher, err := adaptive.New(key)
		if err != nil {
			return opts, err
		}
		opts.Cipher = cipher
	}
	return opts, nil
}

func initStorage(cfg *config.ServerConfig, codecOpts codec.Options, reg *metric.Registry, log *slog.Logger) (*storage.Engine, error) {
	storageCfg := storage.DefaultConfig(cfg.Storage.DataDir)
	storageCfg.Backend = storage.Backend(cfg.Storage.Backend)
	storageCfg.SQLitePath = cfg.Storage.SQLitePath
	storageCfg.Codec = codecOpts
	storageCfg.PendingTTL = cfg.Autosave.PendingTTL
	storageCfg.Registerer = reg.Prometheus()
	storageCfg.Logger = log

	storageCfg.KV.Badger.SyncWrites = cfg.Storage.SyncWrites
	if cfg.Storage.GCInterval > 0 {
		storageCfg.KV.Badger.GCInterval = cfg.Storage.GCInterval
		storageCfg.SweepInterval = cfg.Storage.GCInterval
	}

	return storage.New(storageCfg)
}

func initBackups(cfg *config.ServerConfig, log *slog.Logger) (*backup.Manager, error) {
	dir := cfg.Storage.Backup.Dir
	if dir == "" {
		dir = filepath.Join(cfg.Storage.DataDir, "backups")
	}
	return backup.NewManager(backup.Config{
		Dir:            dir,
		Backend:        cfg.Storage.Backend,
		RetentionCount: cfg.Storage.Backup.RetentionCount,
		RetentionDays:  cfg.Storage.Backup.RetentionDays,
		Logger:         log,
	})
}

// changeNotifier is a service notifier that can be drained on shutdown.
type changeNotifier interface {
	service.ChangeNotifier
	Close(ctx context.Context) error
}

func initNotifier(cfg *config.ServerConfig, reg *metric.Registry, log *slog.Logger) (changeNotifier, error) {
	if !cfg.Preview.Enabled {
		log.Info("preview notifications disabled")
		return notify.Nop{}, nil
	}
	return notify.New(notify.Config{
		BaseURL:   cfg.Preview.URL,
		Timeout:   cfg.Preview.Timeout,
		QueueSize: cfg.Preview.QueueSize,
		Workers:   cfg.Preview.Workers,
		RateLimit: cfg.Preview.RateLimit,
		Burst:     cfg.Preview.Burst,
		TLSCAFile: cfg.Preview.TLSCAFile,
	}, log, notify.WithMetrics(reg))
}
