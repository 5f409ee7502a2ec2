package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/yndnr/autosave-go/internal/core/domain"
	"github.com/yndnr/autosave-go/internal/storage/codec"
	"github.com/yndnr/autosave-go/internal/storage/storagetest"
)

func openTestDB(t *testing.T) *Store {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "autosave.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db)
}

func TestStore_Contract(t *testing.T) {
	storagetest.RunSnapshotRepository(t, func(t *testing.T) storagetest.SnapshotRepository {
		return openTestDB(t)
	})
}

func TestPendingCache_Contract(t *testing.T) {
	storagetest.RunPendingCache(t, func(t *testing.T) storagetest.PendingCache {
		store := openTestDB(t)
		return NewPendingCache(store.db, codec.New(codec.Options{Compress: true}))
	})
}

func TestOpen_Memory(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:): %v", err)
	}
	defer db.Close()

	store := NewStore(db)
	ctx := context.Background()
	if err := store.Insert(ctx, storagetest.Snap("42", "S1", 1)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if n, err := store.Count(ctx); err != nil || n != 1 {
		t.Fatalf("Count = %d, %v", n, err)
	}
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "autosave.db")
	ctx := context.Background()

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := NewStore(db).Insert(ctx, storagetest.Snap("42", "S1", 5)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	db.Close()

	db, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	got, err := NewStore(db).Latest(ctx, domain.Scope{EntityTypeID: "node", EntityID: "42"})
	if err != nil || got.Timestamp != 5 {
		t.Fatalf("Latest after reopen = %+v, %v", got, err)
	}
}

func TestWhereClause(t *testing.T) {
	tests := []struct {
		name      string
		scope     domain.Scope
		wantWhere string
		wantArgs  int
	}{
		{"empty", domain.Scope{}, "", 0},
		{"entity", domain.Scope{EntityTypeID: "node", EntityID: "1"}, " WHERE entity_type_id = ? AND entity_id = ?", 2},
		{"session and timestamp", domain.Scope{SessionID: "S", Timestamp: 9}, " WHERE form_session_id = ? AND timestamp = ?", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args := whereClause(tt.scope)
			if where != tt.wantWhere || len(args) != tt.wantArgs {
				t.Errorf("whereClause() = %q, %v", where, args)
			}
		})
	}
}

func TestPendingCache_Sweep(t *testing.T) {
	store := openTestDB(t)
	cache := NewPendingCache(store.db, codec.New(codec.Options{}))
	ctx := context.Background()

	now := time.Unix(1700000000, 0)
	cache.now = func() time.Time { return now }

	_ = cache.SetWithExpire(ctx, "old", domain.Input{"a": 1}, time.Minute)
	_ = cache.SetWithExpire(ctx, "new", domain.Input{"a": 2}, time.Hour)

	now = now.Add(10 * time.Minute)
	if _, ok, _ := cache.Get(ctx, "old"); ok {
		t.Fatal("expired row should be invisible")
	}
	n, err := cache.Sweep(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Sweep = %d, %v, want 1", n, err)
	}
	if _, ok, _ := cache.Get(ctx, "new"); !ok {
		t.Fatal("live row should survive Sweep")
	}
}
