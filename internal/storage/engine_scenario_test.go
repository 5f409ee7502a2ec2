package storage

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/autosave-go/internal/core/domain"
	"github.com/yndnr/autosave-go/internal/core/service"
	"github.com/yndnr/autosave-go/internal/storage/codec"
	"github.com/yndnr/autosave-go/internal/telemetry/logger"
)

// scenarioEnv runs the autosave engine over one storage backend.
type scenarioEnv struct {
	svc     *service.AutosaveService
	engine  *Engine
	now     atomic.Int64
	notices atomic.Int32
}

type countingNotifier struct{ n *atomic.Int32 }

func (c countingNotifier) Notify(context.Context, domain.EntityRef, string) { c.n.Add(1) }

func newScenarioEnv(t *testing.T, backend Backend) *scenarioEnv {
	t.Helper()
	cfg := DefaultConfig(t.TempDir())
	cfg.Backend = backend
	cfg.KV.Badger.GCInterval = 0
	cfg.Codec = codec.Options{Compress: true}
	cfg.Logger = logger.Discard()
	cfg.Registerer = prometheus.NewRegistry()

	engine, err := New(cfg)
	if err != nil {
		t.Fatalf("New(%s) error = %v", backend, err)
	}
	t.Cleanup(func() { engine.Close() })

	env := &scenarioEnv{engine: engine}
	env.now.Store(1700000000)
	env.svc = service.NewAutosaveService(engine.Snapshots(), engine.Pending(), codec.New(codec.Options{Compress: true}),
		service.WithClock(service.ClockFunc(env.now.Load)),
		service.WithNotifier(countingNotifier{n: &env.notices}),
		service.WithPolicy(service.NewTypePolicy([]string{"node"})),
		service.WithLogger(logger.Discard()),
	)
	return env
}

func (env *scenarioEnv) tick(t *testing.T, session, entityID, title string) *service.TickResponse {
	t.Helper()
	resp, err := env.svc.ProcessTick(context.Background(), &service.TickRequest{
		SessionID: session,
		FormID:    "node_article_edit_form",
		Entity: &domain.Entity{
			Type:     "node",
			ID:       entityID,
			Langcode: "en",
			Fields:   map[string]any{"title": title},
			Composed: map[string][]*domain.Entity{
				"field_paragraphs": {{Type: "paragraph", New: true, Fields: map[string]any{"text": title}}},
			},
		},
		UserID:  "7",
		Input:   domain.Input{"title": title, domain.InputKeyFormToken: "tok-" + title},
		Storage: map[string]any{"step": 1},
	})
	if err != nil {
		t.Fatalf("ProcessTick(%s, %s) error = %v", entityID, title, err)
	}
	return resp
}

func scenarioBackends() []Backend {
	return []Backend{BackendMemory, BackendBadger, BackendSQLite}
}

func TestEngineScenario_Ticks(t *testing.T) {
	for _, backend := range scenarioBackends() {
		t.Run(string(backend), func(t *testing.T) {
			env := newScenarioEnv(t, backend)
			ctx := context.Background()

			if resp := env.tick(t, "S1", "42", "A"); resp.Stored {
				t.Fatal("tick A should only record pending input")
			}

			env.now.Store(1700000010)
			first := env.tick(t, "S1", "42", "B")
			if !first.Stored || first.Timestamp != 1700000010 {
				t.Fatalf("tick B = %+v, want stored at 1700000010", first)
			}

			env.now.Store(1700000020)
			if resp := env.tick(t, "S1", "42", "B"); resp.Stored {
				t.Fatalf("unchanged tick B = %+v", resp)
			}

			env.now.Store(1700000030)
			second := env.tick(t, "S1", "42", "C")
			if !second.Stored || second.Timestamp <= first.Timestamp {
				t.Fatalf("tick C = %+v, want stored after %d", second, first.Timestamp)
			}

			stats, err := env.engine.Stats(ctx)
			if err != nil || stats.Snapshots != 2 {
				t.Errorf("Stats() = %+v, %v, want 2 snapshots", stats, err)
			}

			result, err := env.svc.Restore(ctx, &service.RestoreRequest{
				StateRequest: service.StateRequest{EntityType: "node", EntityID: "42"},
			})
			if err != nil {
				t.Fatalf("Restore() error = %v", err)
			}
			if result.Timestamp != second.Timestamp || result.FormState.Input.String("title") != "C" {
				t.Errorf("Restore() = %+v", result)
			}
			paragraphs := result.Entity.Composed["field_paragraphs"]
			if len(paragraphs) != 1 || paragraphs[0].Stub || paragraphs[0].Fields["text"] != "C" {
				t.Errorf("restored paragraphs = %+v", paragraphs)
			}

			ts, ok, err := env.svc.LastAutosavedTimestamp(ctx, &service.StateRequest{EntityType: "node", EntityID: "42"})
			if err != nil || !ok || ts != second.Timestamp {
				t.Errorf("LastAutosavedTimestamp() = %d, %v, %v", ts, ok, err)
			}
			if got := env.notices.Load(); got != 2 {
				t.Errorf("notifications = %d, want 2", got)
			}
		})
	}
}

func TestEngineScenario_PurgeIsolation(t *testing.T) {
	for _, backend := range scenarioBackends() {
		t.Run(string(backend), func(t *testing.T) {
			env := newScenarioEnv(t, backend)
			ctx := context.Background()

			for _, id := range []string{"4", "42"} {
				env.tick(t, "S-"+id, id, "A")
				if resp := env.tick(t, "S-"+id, id, "B"); !resp.Stored {
					t.Fatalf("node/%s tick B not stored", id)
				}
			}

			if err := env.svc.Purge(ctx, &service.PurgeRequest{EntityType: "node", EntityID: "4"}); err != nil {
				t.Fatalf("Purge() error = %v", err)
			}

			ok, err := env.svc.HasAutosavedState(ctx, &service.StateRequest{EntityType: "node", EntityID: "4"})
			if err != nil || ok {
				t.Errorf("HasAutosavedState(node/4) = %v, %v, want false", ok, err)
			}
			ok, err = env.svc.HasAutosavedState(ctx, &service.StateRequest{EntityType: "node", EntityID: "42"})
			if err != nil || !ok {
				t.Errorf("HasAutosavedState(node/42) = %v, %v, want true", ok, err)
			}

			// A purged entity starts over from a fresh pending baseline.
			if resp := env.tick(t, "S-4", "4", "C"); resp.Stored {
				t.Errorf("first tick after purge = %+v", resp)
			}
			if resp := env.tick(t, "S-4", "4", "D"); !resp.Stored {
				t.Errorf("second tick after purge = %+v", resp)
			}
		})
	}
}
