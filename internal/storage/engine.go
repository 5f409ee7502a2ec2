package storage

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/autosave-go/internal/core/domain"
	"github.com/yndnr/autosave-go/internal/core/service"
	"github.com/yndnr/autosave-go/internal/storage/codec"
	"github.com/yndnr/autosave-go/internal/storage/memory"
	"github.com/yndnr/autosave-go/internal/storage/sqlite"
	"github.com/yndnr/autosave-go/internal/telemetry/metric"
)

// Backend names a storage backend.
type Backend string

// Supported backends.
const (
	BackendBadger Backend = "badger"
	BackendSQLite Backend = "sqlite"
	BackendMemory Backend = "memory"
)

// Default configuration values.
const (
	DefaultBadgerDir     = "badger"
	DefaultSQLiteFile    = "autosave.db"
	DefaultSweepInterval = time.Minute
	DefaultPendingTTL    = 6 * time.Hour
)

// Config configures the storage engine.
type Config struct {
	// Backend selects the snapshot store and pending cache implementation.
	Backend Backend

	// DataDir is the base directory for all storage files.
	DataDir string

	// SQLitePath overrides the database file of the sqlite backend.
	SQLitePath string

	// KV configures the badger backend.
	KV KVConfig

	// Codec configures the pending input codec.
	Codec codec.Options

	// PendingTTL is the default expiry of the in-memory pending cache.
	PendingTTL time.Duration

	// SweepInterval is how often expired pending rows are removed from
	// backends without native expiry.
	SweepInterval time.Duration

	// Registerer receives backend metrics. Nil disables them.
	Registerer prometheus.Registerer

	// Logger is the structured logger.
	Logger *slog.Logger
}

// DefaultConfig returns the default storage configuration.
func DefaultConfig(dataDir string) Config {
	return Config{
		Backend:       BackendBadger,
		DataDir:       dataDir,
		KV:            DefaultKVConfig(filepath.Join(dataDir, DefaultBadgerDir)),
		PendingTTL:    DefaultPendingTTL,
		SweepInterval: DefaultSweepInterval,
		Logger:        slog.Default(),
	}
}

// Engine owns the opened backend and exposes its snapshot repository and
// pending cache.
type Engine struct {
	cfg    Config
	logger *slog.Logger

	snapshots service.SnapshotRepository
	pending   service.PendingInputCache

	// Backend handles; exactly one group is set.
	kv          *BadgerEngine
	kvSnapshots *SnapshotStore
	db          *sql.DB
	dbPath      string
	dbSnapshots *sqlite.Store
	dbPending   *sqlite.PendingCache
	memSnaps    *memory.Store

	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New opens the configured backend.
func New(cfg Config) (*Engine, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = DefaultPendingTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}

	e := &Engine{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "storage", "backend", string(cfg.Backend)),
		stopCh: make(chan struct{}),
	}
	c := codec.New(cfg.Codec)

	switch cfg.Backend {
	case BackendBadger, "":
		e.cfg.Backend = BackendBadger
		kvCfg := cfg.KV
		if kvCfg.Dir == "" && !kvCfg.InMemory {
			kvCfg.Dir = filepath.Join(cfg.DataDir, DefaultBadgerDir)
		}
		kv, err := NewBadgerEngine(kvCfg, e.logger)
		if err != nil {
			return nil, domain.ErrStorageError.WithDetails("open badger").WithCause(err)
		}
		if cfg.Registerer != nil {
			kv.RegisterMetrics(cfg.Registerer)
		}
		e.kv = kv
		e.kvSnapshots = NewSnapshotStore(kv)
		e.snapshots = e.kvSnapshots
		e.pending = NewPendingCache(kv, c)

	case BackendSQLite:
		path := cfg.SQLitePath
		if path == "" {
			path = filepath.Join(cfg.DataDir, DefaultSQLiteFile)
		}
		db, err := sqlite.Open(path)
		if err != nil {
			return nil, domain.ErrStorageError.WithDetails("open sqlite").WithCause(err)
		}
		e.db = db
		e.dbPath = path
		e.dbSnapshots = sqlite.NewStore(db)
		e.dbPending = sqlite.NewPendingCache(db, c)
		e.snapshots = e.dbSnapshots
		e.pending = e.dbPending

		e.wg.Add(1)
		go e.sweepLoop()

	case BackendMemory:
		e.memSnaps = memory.New()
		e.snapshots = e.memSnaps
		e.pending = memory.NewPendingCache(memory.DefaultCullInterval, cfg.PendingTTL)

	default:
		return nil, domain.ErrInvalidArgument.WithDetails(fmt.Sprintf("unknown storage backend %q", cfg.Backend))
	}

	e.logger.Info("storage engine started", "data_dir", cfg.DataDir)
	return e, nil
}

// Backend returns the active backend.
func (e *Engine) Backend() Backend {
	return e.cfg.Backend
}

// Snapshots returns the durable snapshot repository.
func (e *Engine) Snapshots() service.SnapshotRepository {
	return e.snapshots
}

// Pending returns the pending input cache.
func (e *Engine) Pending() service.PendingInputCache {
	return e.pending
}

// Stats reports the snapshot count and on-disk size of the backend.
func (e *Engine) Stats(ctx context.Context) (metric.StoreStats, error) {
	stats := metric.StoreStats{Backend: string(e.cfg.Backend)}

	switch {
	case e.kv != nil:
		n, err := e.kvSnapshots.Count(ctx)
		if err != nil {
			return stats, err
		}
		stats.Snapshots = n
		kvStats, err := e.kv.Stats(ctx)
		if err != nil {
			return stats, domain.ErrStorageError.WithCause(err)
		}
		stats.SizeBytes = int64(kvStats.TotalSize)

	case e.db != nil:
		n, err := e.dbSnapshots.Count(ctx)
		if err != nil {
			return stats, err
		}
		stats.Snapshots = n
		if fi, err := os.Stat(e.dbPath); err == nil {
			stats.SizeBytes = fi.Size()
		}

	case e.memSnaps != nil:
		stats.Snapshots = e.memSnaps.Count()
	}
	return stats, nil
}

// GC reclaims space. Badger rewrites value log files, sqlite drops expired
// pending rows and checkpoints its WAL. Returns the number of rounds or
// rows reclaimed.
func (e *Engine) GC(ctx context.Context) (int, error) {
	switch {
	case e.kv != nil:
		n, err := e.kv.GC(ctx)
		if err != nil {
			return n, domain.ErrStorageError.WithDetails("value log gc").WithCause(err)
		}
		return n, nil

	case e.db != nil:
		n, err := e.dbPending.Sweep(ctx)
		if err != nil {
			return 0, err
		}
		if _, err := e.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			return n, domain.ErrStorageError.WithDetails("wal checkpoint").WithCause(err)
		}
		return n, nil
	}
	return 0, nil
}

// Backup streams a consistent copy of the store to w and returns the
// number of bytes written (badger reports its backup version instead).
func (e *Engine) Backup(ctx context.Context, w io.Writer) (uint64, error) {
	switch {
	case e.kv != nil:
		v, err := e.kv.Backup(ctx, w)
		if err != nil {
			return 0, domain.ErrStorageError.WithDetails("badger backup").WithCause(err)
		}
		return v, nil

	case e.db != nil:
		return e.backupSQLite(ctx, w)
	}
	return 0, domain.ErrAdminOperationUnsupported.WithDetails("backup is not supported by the memory backend")
}

func (e *Engine) backupSQLite(ctx context.Context, w io.Writer) (uint64, error) {
	dir, err := os.MkdirTemp("", "autosave-backup-*")
	if err != nil {
		return 0, domain.ErrStorageError.WithCause(err)
	}
	defer os.RemoveAll(dir)

	target := filepath.Join(dir, "backup.db")
	if _, err := e.db.ExecContext(ctx, "VACUUM INTO ?", target); err != nil {
		return 0, domain.ErrStorageError.WithDetails("vacuum into").WithCause(err)
	}

	f, err := os.Open(target)
	if err != nil {
		return 0, domain.ErrStorageError.WithCause(err)
	}
	defer f.Close()

	n, err := io.Copy(w, f)
	if err != nil {
		return uint64(n), domain.ErrStorageError.WithDetails("stream backup").WithCause(err)
	}
	return uint64(n), nil
}

func (e *Engine) sweepLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			n, err := e.dbPending.Sweep(ctx)
			cancel()
			if err != nil {
				e.logger.Error("pending sweep failed", "error", err)
			} else if n > 0 {
				e.logger.Debug("pending sweep completed", "removed", n)
			}

		case <-e.stopCh:
			return
		}
	}
}

// Close gracefully shuts down the storage engine.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.logger.Info("shutting down storage engine")

		close(e.stopCh)
		e.wg.Wait()

		switch {
		case e.kv != nil:
			err = e.kv.Close()
		case e.db != nil:
			err = e.db.Close()
		}
		if err != nil {
			e.logger.Error("close backend failed", "error", err)
			return
		}
		e.logger.Info("storage engine shutdown complete")
	})
	return err
}
