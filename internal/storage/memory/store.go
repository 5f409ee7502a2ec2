package memory

import (
	"context"
	"sync/atomic"

	"github.com/yndnr/autosave-go/internal/core/domain"
	"github.com/yndnr/autosave-go/pkg/cmap"
)

type entry struct {
	snap *domain.Snapshot
	seq  uint64
}

// Store is an in-memory snapshot repository. Snapshots of one entity live
// in a copy-on-write slice in insertion order.
type Store struct {
	// Primary index: type\0id -> snapshots
	entities *cmap.Map[string, []entry]

	// Secondary index: session -> entity keys
	sessions *SessionIndex

	seq atomic.Uint64
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		entities: cmap.New[string, []entry](),
		sessions: NewSessionIndex(),
	}
}

// Insert appends a snapshot.
func (s *Store) Insert(_ context.Context, snap *domain.Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}

	e := entry{snap: cloneSnapshot(snap), seq: s.seq.Add(1)}
	key := entityKey(snap.EntityTypeID, snap.EntityID)
	s.entities.Compute(key, func(cur []entry, _ bool) ([]entry, bool) {
		next := make([]entry, len(cur), len(cur)+1)
		copy(next, cur)
		return append(next, e), true
	})
	s.sessions.Add(snap.SessionID, key)
	return nil
}

// Latest returns the snapshot with the highest timestamp in scope, ties
// going to the one inserted last.
func (s *Store) Latest(_ context.Context, scope domain.Scope) (*domain.Snapshot, error) {
	var best *entry
	s.each(scope, func(e *entry) bool {
		if best == nil || e.snap.Timestamp > best.snap.Timestamp ||
			(e.snap.Timestamp == best.snap.Timestamp && e.seq > best.seq) {
			best = e
		}
		return true
	})
	if best == nil {
		return nil, domain.ErrSnapshotNotFound
	}
	return cloneSnapshot(best.snap), nil
}

// Exists reports whether any snapshot falls within scope.
func (s *Store) Exists(_ context.Context, scope domain.Scope) (bool, error) {
	found := false
	s.each(scope, func(*entry) bool {
		found = true
		return false
	})
	return found, nil
}

// LastTimestamp returns the highest timestamp in scope.
func (s *Store) LastTimestamp(_ context.Context, scope domain.Scope) (int64, bool, error) {
	var (
		ts    int64
		found bool
	)
	s.each(scope, func(e *entry) bool {
		if !found || e.snap.Timestamp > ts {
			ts = e.snap.Timestamp
		}
		found = true
		return true
	})
	return ts, found, nil
}

// Purge deletes every snapshot in scope.
func (s *Store) Purge(_ context.Context, scope domain.Scope) (int, error) {
	removed := 0
	purge := func(key string, cur []entry) ([]entry, bool) {
		var kept []entry
		for _, e := range cur {
			if scope.Matches(e.snap) {
				removed++
				if !s.sessionHas(cur, e.snap.SessionID, scope) {
					s.sessions.Remove(e.snap.SessionID, key)
				}
				continue
			}
			kept = append(kept, e)
		}
		return kept, len(kept) > 0
	}

	for _, key := range s.candidateKeys(scope) {
		s.entities.Compute(key, func(cur []entry, exists bool) ([]entry, bool) {
			if !exists {
				return nil, false
			}
			return purge(key, cur)
		})
	}
	return removed, nil
}

// Count returns the number of stored snapshots.
func (s *Store) Count() int64 {
	var n int64
	s.entities.Range(func(_ string, entries []entry) bool {
		n += int64(len(entries))
		return true
	})
	return n
}

// sessionHas reports whether entries still hold a snapshot of sessionID
// that survives the purge.
func (s *Store) sessionHas(entries []entry, sessionID string, scope domain.Scope) bool {
	for _, e := range entries {
		if e.snap.SessionID == sessionID && !scope.Matches(e.snap) {
			return true
		}
	}
	return false
}

// candidateKeys narrows the entity keys a scope can touch.
func (s *Store) candidateKeys(scope domain.Scope) []string {
	switch {
	case scope.EntityTypeID != "" && scope.EntityID != "":
		return []string{entityKey(scope.EntityTypeID, scope.EntityID)}
	case scope.SessionID != "":
		return s.sessions.Get(scope.SessionID)
	default:
		return s.entities.Keys()
	}
}

func (s *Store) each(scope domain.Scope, fn func(e *entry) bool) {
	for _, key := range s.candidateKeys(scope) {
		entries, ok := s.entities.Get(key)
		if !ok {
			continue
		}
		for i := range entries {
			if !scope.Matches(entries[i].snap) {
				continue
			}
			if !fn(&entries[i]) {
				return
			}
		}
	}
}

func entityKey(entityType, entityID string) string {
	return entityType + "\x00" + entityID
}

func cloneSnapshot(snap *domain.Snapshot) *domain.Snapshot {
	c := *snap
	c.Entity = append([]byte(nil), snap.Entity...)
	c.FormState = append([]byte(nil), snap.FormState...)
	return &c
}
