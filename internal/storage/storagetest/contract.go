// Package storagetest holds behavioural tests shared by every snapshot
// repository and pending cache backend.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yndnr/autosave-go/internal/core/domain"
)

// SnapshotRepository is the behaviour under test.
type SnapshotRepository interface {
	Insert(ctx context.Context, snap *domain.Snapshot) error
	Latest(ctx context.Context, scope domain.Scope) (*domain.Snapshot, error)
	Exists(ctx context.Context, scope domain.Scope) (bool, error)
	LastTimestamp(ctx context.Context, scope domain.Scope) (int64, bool, error)
	Purge(ctx context.Context, scope domain.Scope) (int, error)
}

// PendingCache is the behaviour under test.
type PendingCache interface {
	Get(ctx context.Context, sessionID string) (domain.Input, bool, error)
	SetWithExpire(ctx context.Context, sessionID string, in domain.Input, ttl time.Duration) error
	Delete(ctx context.Context, sessionID string) error
}

// Snap builds a valid snapshot for tests.
func Snap(entityID, session string, ts int64) *domain.Snapshot {
	return &domain.Snapshot{
		FormID:       "node_article_edit_form",
		SessionID:    session,
		EntityTypeID: "node",
		EntityID:     entityID,
		Langcode:     "en",
		UID:          "7",
		Timestamp:    ts,
		Entity:       []byte("entity-" + session),
		FormState:    []byte("state-" + session),
	}
}

func entity(id string) domain.Scope {
	return domain.Scope{EntityTypeID: "node", EntityID: id}
}

// RunSnapshotRepository exercises a fresh repository returned by newRepo.
func RunSnapshotRepository(t *testing.T, newRepo func(t *testing.T) SnapshotRepository) {
	ctx := context.Background()

	t.Run("EmptyScope", func(t *testing.T) {
		repo := newRepo(t)
		if _, err := repo.Latest(ctx, entity("42")); !errors.Is(err, domain.ErrSnapshotNotFound) {
			t.Errorf("Latest() error = %v, want ErrSnapshotNotFound", err)
		}
		if ok, err := repo.Exists(ctx, entity("42")); err != nil || ok {
			t.Errorf("Exists() = %v, %v", ok, err)
		}
		if _, ok, err := repo.LastTimestamp(ctx, entity("42")); err != nil || ok {
			t.Errorf("LastTimestamp() found = %v, err %v", ok, err)
		}
		if n, err := repo.Purge(ctx, entity("42")); err != nil || n != 0 {
			t.Errorf("Purge() = %d, %v", n, err)
		}
	})

	t.Run("InsertRejectsInvalid", func(t *testing.T) {
		repo := newRepo(t)
		bad := Snap("42", "S1", 1)
		bad.UID = ""
		if err := repo.Insert(ctx, bad); !errors.Is(err, domain.ErrSnapshotValidation) {
			t.Errorf("Insert() error = %v, want ErrSnapshotValidation", err)
		}
	})

	t.Run("LatestByTimestamp", func(t *testing.T) {
		repo := newRepo(t)
		for _, s := range []*domain.Snapshot{
			Snap("42", "S1", 100),
			Snap("42", "S2", 300),
			Snap("42", "S3", 200),
			Snap("99", "S4", 900),
		} {
			if err := repo.Insert(ctx, s); err != nil {
				t.Fatalf("Insert() error = %v", err)
			}
		}

		got, err := repo.Latest(ctx, entity("42"))
		if err != nil {
			t.Fatalf("Latest() error = %v", err)
		}
		if got.SessionID != "S2" || got.Timestamp != 300 {
			t.Errorf("Latest() = %s@%d, want S2@300", got.SessionID, got.Timestamp)
		}
		if string(got.Entity) != "entity-S2" || string(got.FormState) != "state-S2" {
			t.Errorf("Latest() payload = %q / %q", got.Entity, got.FormState)
		}
		if got.FormID != "node_article_edit_form" || got.UID != "7" || got.Langcode != "en" {
			t.Errorf("Latest() identity = %+v", got)
		}

		ts, ok, err := repo.LastTimestamp(ctx, entity("42"))
		if err != nil || !ok || ts != 300 {
			t.Errorf("LastTimestamp() = %d, %v, %v", ts, ok, err)
		}
	})

	t.Run("LatestTieGoesToLastInserted", func(t *testing.T) {
		repo := newRepo(t)
		for _, session := range []string{"S1", "S2", "S3"} {
			if err := repo.Insert(ctx, Snap("42", session, 500)); err != nil {
				t.Fatalf("Insert() error = %v", err)
			}
		}
		got, err := repo.Latest(ctx, entity("42"))
		if err != nil {
			t.Fatalf("Latest() error = %v", err)
		}
		if got.SessionID != "S3" {
			t.Errorf("Latest() session = %s, want S3", got.SessionID)
		}
	})

	t.Run("SameSessionAppends", func(t *testing.T) {
		repo := newRepo(t)
		for _, ts := range []int64{10, 20} {
			if err := repo.Insert(ctx, Snap("42", "S1", ts)); err != nil {
				t.Fatalf("Insert() error = %v", err)
			}
		}
		n, err := repo.Purge(ctx, domain.Scope{SessionID: "S1"})
		if err != nil || n != 2 {
			t.Errorf("Purge(session) = %d, %v, want 2", n, err)
		}
	})

	t.Run("ScopedQueries", func(t *testing.T) {
		repo := newRepo(t)
		de := Snap("42", "S2", 50)
		de.Langcode = "de"
		other := Snap("42", "S3", 60)
		other.UID = "8"
		for _, s := range []*domain.Snapshot{Snap("42", "S1", 40), de, other} {
			if err := repo.Insert(ctx, s); err != nil {
				t.Fatalf("Insert() error = %v", err)
			}
		}

		tests := []struct {
			name        string
			scope       domain.Scope
			wantSession string
		}{
			{"langcode", domain.Scope{EntityTypeID: "node", EntityID: "42", Langcode: "en"}, "S3"},
			{"langcode de", domain.Scope{EntityTypeID: "node", EntityID: "42", Langcode: "de"}, "S2"},
			{"uid", domain.Scope{EntityTypeID: "node", EntityID: "42", UID: "7"}, "S2"},
			{"session only", domain.Scope{SessionID: "S1"}, "S1"},
			{"form and uid", domain.Scope{FormID: "node_article_edit_form", UID: "8"}, "S3"},
			{"exact timestamp", domain.Scope{EntityTypeID: "node", EntityID: "42", Timestamp: 40}, "S1"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := repo.Latest(ctx, tt.scope)
				if err != nil {
					t.Fatalf("Latest() error = %v", err)
				}
				if got.SessionID != tt.wantSession {
					t.Errorf("Latest() session = %s, want %s", got.SessionID, tt.wantSession)
				}
			})
		}

		if ok, _ := repo.Exists(ctx, domain.Scope{EntityTypeID: "node", EntityID: "42", UID: "9"}); ok {
			t.Error("Exists() for unknown uid should be false")
		}
	})

	t.Run("ExactLangcode", func(t *testing.T) {
		repo := newRepo(t)
		plain := Snap("42", "S1", 10)
		plain.Langcode = ""
		de := Snap("42", "S1", 20)
		de.Langcode = "de"
		for _, s := range []*domain.Snapshot{plain, de} {
			if err := repo.Insert(ctx, s); err != nil {
				t.Fatalf("Insert() error = %v", err)
			}
		}

		got, err := repo.Latest(ctx, domain.Scope{EntityTypeID: "node", EntityID: "42"})
		if err != nil || got.Langcode != "de" {
			t.Fatalf("Latest(any langcode) = %+v, %v", got, err)
		}
		got, err = repo.Latest(ctx, domain.Scope{EntityTypeID: "node", EntityID: "42", ExactLangcode: true})
		if err != nil || got.Langcode != "" || got.Timestamp != 10 {
			t.Fatalf("Latest(exact empty langcode) = %+v, %v", got, err)
		}

		n, err := repo.Purge(ctx, domain.Scope{EntityTypeID: "node", EntityID: "42", ExactLangcode: true})
		if err != nil || n != 1 {
			t.Fatalf("Purge(exact empty langcode) = %d, %v, want 1", n, err)
		}
		if _, err := repo.Latest(ctx, domain.Scope{EntityTypeID: "node", EntityID: "42", ExactLangcode: true}); !errors.Is(err, domain.ErrSnapshotNotFound) {
			t.Errorf("Latest() after purge error = %v, want ErrSnapshotNotFound", err)
		}
	})

	t.Run("PurgeScopes", func(t *testing.T) {
		repo := newRepo(t)
		for _, s := range []*domain.Snapshot{
			Snap("42", "S1", 10),
			Snap("42", "S2", 20),
			Snap("43", "S1", 30),
		} {
			if err := repo.Insert(ctx, s); err != nil {
				t.Fatalf("Insert() error = %v", err)
			}
		}

		n, err := repo.Purge(ctx, domain.Scope{EntityTypeID: "node", EntityID: "42", SessionID: "S1"})
		if err != nil || n != 1 {
			t.Fatalf("Purge(entity+session) = %d, %v, want 1", n, err)
		}
		if ok, _ := repo.Exists(ctx, domain.Scope{SessionID: "S1"}); !ok {
			t.Error("session S1 still has node/43")
		}

		n, err = repo.Purge(ctx, domain.Scope{})
		if err != nil || n != 2 {
			t.Fatalf("Purge(all) = %d, %v, want 2", n, err)
		}
		if ok, _ := repo.Exists(ctx, domain.Scope{}); ok {
			t.Error("store should be empty")
		}
	})
}

// RunPendingCache exercises a fresh cache returned by newCache.
func RunPendingCache(t *testing.T, newCache func(t *testing.T) PendingCache) {
	ctx := context.Background()

	t.Run("SetGetDelete", func(t *testing.T) {
		c := newCache(t)
		if _, ok, err := c.Get(ctx, "S1"); err != nil || ok {
			t.Fatalf("Get(missing) = %v, %v", ok, err)
		}

		in := domain.Input{"title": "A"}
		if err := c.SetWithExpire(ctx, "S1", in, time.Hour); err != nil {
			t.Fatalf("SetWithExpire() error = %v", err)
		}
		got, ok, err := c.Get(ctx, "S1")
		if err != nil || !ok {
			t.Fatalf("Get() = %v, %v", ok, err)
		}
		if eq, _ := got.EquivalentTo(in); !eq {
			t.Errorf("Get() = %v, want %v", got, in)
		}

		if err := c.SetWithExpire(ctx, "S1", domain.Input{"title": "B"}, time.Hour); err != nil {
			t.Fatalf("SetWithExpire() error = %v", err)
		}
		got, _, _ = c.Get(ctx, "S1")
		if got.String("title") != "B" {
			t.Errorf("second write should replace, got %v", got)
		}

		if err := c.Delete(ctx, "S1"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if _, ok, _ := c.Get(ctx, "S1"); ok {
			t.Error("entry should be gone after Delete")
		}
		if err := c.Delete(ctx, "S1"); err != nil {
			t.Errorf("Delete(missing) error = %v", err)
		}
	})

	t.Run("SessionsAreIsolated", func(t *testing.T) {
		c := newCache(t)
		_ = c.SetWithExpire(ctx, "S1", domain.Input{"title": "A"}, time.Hour)
		if _, ok, _ := c.Get(ctx, "S2"); ok {
			t.Error("S2 should not see S1's input")
		}
	})

	t.Run("Expires", func(t *testing.T) {
		c := newCache(t)
		if err := c.SetWithExpire(ctx, "S1", domain.Input{"title": "A"}, time.Second); err != nil {
			t.Fatalf("SetWithExpire() error = %v", err)
		}
		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			if _, ok, _ := c.Get(ctx, "S1"); !ok {
				return
			}
			time.Sleep(100 * time.Millisecond)
		}
		t.Error("entry should expire")
	})
}
