package benchmark

import (
	"bytes"
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/yndnr/autosave-go/internal/core/domain"
	"github.com/yndnr/autosave-go/internal/core/service"
	"github.com/yndnr/autosave-go/internal/storage"
	"github.com/yndnr/autosave-go/internal/storage/codec"
	"github.com/yndnr/autosave-go/internal/telemetry/logger"
	"github.com/yndnr/autosave-go/pkg/crypto/adaptive"
)

// SnapshotCounts is the number of stored snapshots before measuring.
var SnapshotCounts = []int{100, 1000, 10000}

// SmallSnapshotCounts for quick benchmarks.
var SmallSnapshotCounts = []int{100, 1000}

var backends = []storage.Backend{storage.BackendMemory, storage.BackendBadger, storage.BackendSQLite}

// newEngine opens a backend in a temporary directory.
func newEngine(b *testing.B, backend storage.Backend) *storage.Engine {
	b.Helper()
	cfg := storage.DefaultConfig(b.TempDir())
	cfg.Backend = backend
	cfg.KV.Badger.GCInterval = 0
	cfg.Logger = logger.Discard()

	e, err := storage.New(cfg)
	if err != nil {
		b.Fatalf("storage.New(%s) error = %v", backend, err)
	}
	b.Cleanup(func() { _ = e.Close() })
	return e
}

// newService wires a service over the engine. The clock advances one
// second per call so every stored tick gets its own timestamp.
func newService(e *storage.Engine, opts codec.Options) *service.AutosaveService {
	var now atomic.Int64
	now.Store(1700000000)
	return service.NewAutosaveService(e.Snapshots(), e.Pending(), codec.New(opts),
		service.WithLogger(logger.Discard()),
		service.WithClock(service.ClockFunc(func() int64 { return now.Add(1) })),
	)
}

func sealedOptions(b *testing.B) codec.Options {
	b.Helper()
	c, err := adaptive.New(bytes.Repeat([]byte{0x24}, adaptive.KeySize))
	if err != nil {
		b.Fatalf("adaptive.New() error = %v", err)
	}
	return codec.Options{Compress: true, Cipher: c}
}

// article builds a node with the given number of composed paragraphs.
func article(id string, paragraphs int) *domain.Entity {
	items := make([]*domain.Entity, paragraphs)
	for i := range items {
		items[i] = &domain.Entity{
			Type:   "paragraph",
			ID:     fmt.Sprint(i + 1),
			Fields: map[string]any{"text": fmt.Sprintf("paragraph %d body text", i)},
		}
	}
	return &domain.Entity{
		Type:     "node",
		ID:       id,
		Langcode: "en",
		Fields:   map[string]any{"title": "Benchmark article", "status": true},
		Composed: map[string][]*domain.Entity{"field_paragraphs": items},
	}
}

func tick(session, entityID string, rev int) *service.TickRequest {
	return &service.TickRequest{
		SessionID: session,
		FormID:    "node_article_edit_form",
		Entity:    article(entityID, 3),
		UserID:    "1",
		Input: domain.Input{
			"title":         fmt.Sprintf("Revision %d", rev),
			"body":          "Lorem ipsum dolor sit amet",
			"form_build_id": "form-bench",
			"form_token":    "token",
		},
	}
}

// prefill stores count snapshots spread over 100 entities.
func prefill(b *testing.B, svc *service.AutosaveService, count int) {
	b.Helper()
	ctx := context.Background()
	for i := 0; i <= count; i++ {
		req := tick(fmt.Sprintf("S%d", i%100), fmt.Sprint(i%100), i)
		if _, err := svc.ProcessTick(ctx, req); err != nil {
			b.Fatalf("ProcessTick() error = %v", err)
		}
	}
}

var workerSeq atomic.Int64

func nextWorker() string {
	return fmt.Sprint(workerSeq.Add(1))
}

// reportMemory reports heap usage after a forced GC.
func reportMemory(b *testing.B, prefix string) {
	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	b.ReportMetric(float64(m.Alloc)/(1024*1024), prefix+"_MB")
	b.ReportMetric(float64(m.NumGC), prefix+"_GC")
}

// runWithBackends runs benchFn once per storage backend.
func runWithBackends(b *testing.B, benchFn func(b *testing.B, backend storage.Backend)) {
	for _, backend := range backends {
		b.Run(string(backend), func(b *testing.B) {
			benchFn(b, backend)
		})
	}
}
