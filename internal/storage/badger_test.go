package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestBadger(t *testing.T) *BadgerEngine {
	t.Helper()
	cfg := DefaultKVConfig(t.TempDir())
	cfg.Badger.GCInterval = 0

	engine, err := NewBadgerEngine(cfg, slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { engine.Close() })
	return engine
}

func newMemoryBadger(t *testing.T) *BadgerEngine {
	t.Helper()
	cfg := KVConfig{InMemory: true, Badger: DefaultBadgerConfig()}
	engine, err := NewBadgerEngine(cfg, slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { engine.Close() })
	return engine
}

func TestBadgerEngine_BasicOperations(t *testing.T) {
	engine := newTestBadger(t)
	ctx := context.Background()

	t.Run("Set and Get", func(t *testing.T) {
		key := []byte("test-key")
		value := []byte("test-value")

		if err := engine.Set(ctx, key, value); err != nil {
			t.Fatal(err)
		}
		got, err := engine.Get(ctx, key)
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != string(value) {
			t.Errorf("expected %s, got %s", value, got)
		}
	})

	t.Run("Get non-existent key", func(t *testing.T) {
		_, err := engine.Get(ctx, []byte("non-existent"))
		if !errors.Is(err, ErrKeyNotFound) {
			t.Errorf("expected ErrKeyNotFound, got %v", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		key := []byte("delete-key")
		if err := engine.Set(ctx, key, []byte("v")); err != nil {
			t.Fatal(err)
		}
		if err := engine.Delete(ctx, key); err != nil {
			t.Fatal(err)
		}
		if _, err := engine.Get(ctx, key); !errors.Is(err, ErrKeyNotFound) {
			t.Errorf("expected ErrKeyNotFound after delete, got %v", err)
		}
	})

	t.Run("DeleteKeys", func(t *testing.T) {
		var keys [][]byte
		for i := 0; i < deleteBatchSize+5; i++ {
			key := []byte(fmt.Sprintf("bulk:%05d", i))
			keys = append(keys, key)
			if err := engine.Set(ctx, key, []byte("v")); err != nil {
				t.Fatal(err)
			}
		}
		if err := engine.DeleteKeys(ctx, keys); err != nil {
			t.Fatal(err)
		}

		count := 0
		_ = engine.ScanKeys(ctx, []byte("bulk:"), func([]byte) bool {
			count++
			return true
		})
		if count != 0 {
			t.Errorf("expected 0 keys left, got %d", count)
		}
	})

	t.Run("Scan with prefix", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			_ = engine.Set(ctx, []byte(fmt.Sprintf("scan:%d", i)), []byte{byte(i)})
		}
		_ = engine.Set(ctx, []byte("other:1"), []byte("x"))

		var got []string
		err := engine.Scan(ctx, []byte("scan:"), func(key, value []byte) bool {
			got = append(got, string(key))
			return true
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 3 || got[0] != "scan:0" || got[2] != "scan:2" {
			t.Errorf("Scan() keys = %v", got)
		}

		stopped := 0
		_ = engine.ScanKeys(ctx, []byte("scan:"), func([]byte) bool {
			stopped++
			return false
		})
		if stopped != 1 {
			t.Errorf("ScanKeys should stop early, visited %d", stopped)
		}
	})
}

func TestBadgerEngine_TTL(t *testing.T) {
	engine := newMemoryBadger(t)
	ctx := context.Background()

	if err := engine.SetWithTTL(ctx, []byte("ttl"), []byte("v"), time.Second); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Get(ctx, []byte("ttl")); err != nil {
		t.Fatalf("fresh entry should be readable: %v", err)
	}

	time.Sleep(2100 * time.Millisecond)
	if _, err := engine.Get(ctx, []byte("ttl")); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("expired entry error = %v, want ErrKeyNotFound", err)
	}
}

func TestBadgerEngine_Closed(t *testing.T) {
	engine := newMemoryBadger(t)
	if err := engine.Close(); err != nil {
		t.Fatal(err)
	}
	if err := engine.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := engine.Set(context.Background(), []byte("k"), []byte("v")); !errors.Is(err, ErrClosed) {
		t.Errorf("Set after Close error = %v, want ErrClosed", err)
	}
}

func TestBadgerEngine_BackupAndGC(t *testing.T) {
	engine := newTestBadger(t)
	ctx := context.Background()

	_ = engine.Set(ctx, []byte("k"), []byte("v"))

	var buf bytes.Buffer
	if _, err := engine.Backup(ctx, &buf); err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	if buf.Len() == 0 {
		t.Error("backup should not be empty")
	}

	if _, err := engine.GC(ctx); err != nil {
		t.Fatalf("GC() error = %v", err)
	}
	stats, err := engine.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.LastGCTime == 0 {
		t.Error("LastGCTime should be set after GC")
	}
}

func TestBadgerEngine_RegisterMetrics(t *testing.T) {
	engine := newTestBadger(t)
	reg := prometheus.NewRegistry()
	engine.RegisterMetrics(reg)

	if _, err := engine.GC(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n, err := testutil.GatherAndCount(reg, "autosave_badger_gc_rounds_total"); err != nil || n != 1 {
		t.Errorf("gc_rounds_total series = %d, %v", n, err)
	}
}
