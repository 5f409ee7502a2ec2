package memory

import (
	"sync"

	"github.com/yndnr/autosave-go/pkg/cmap"
)

// KeySet is a concurrent-safe set of entity keys.
type KeySet struct {
	mu    sync.RWMutex
	items map[string]struct{}
}

// NewKeySet creates a new key set.
func NewKeySet() *KeySet {
	return &KeySet{
		items: make(map[string]struct{}),
	}
}

// Add adds a key to the set.
func (s *KeySet) Add(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = struct{}{}
}

// Remove removes a key from the set.
func (s *KeySet) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
}

// Contains checks if a key is in the set.
func (s *KeySet) Contains(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.items[key]
	return ok
}

// Len returns the number of items in the set.
func (s *KeySet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Items returns a copy of all keys.
func (s *KeySet) Items() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]string, 0, len(s.items))
	for key := range s.items {
		items = append(items, key)
	}
	return items
}

// SessionIndex maps a form session ID to the entities it autosaved, so
// session-scoped queries avoid a full walk of the store.
type SessionIndex struct {
	index *cmap.Map[string, *KeySet]
}

// NewSessionIndex creates a new session index.
func NewSessionIndex() *SessionIndex {
	return &SessionIndex{
		index: cmap.New[string, *KeySet](),
	}
}

// Add records that sessionID holds snapshots of entityKey.
func (i *SessionIndex) Add(sessionID, entityKey string) {
	i.index.Compute(sessionID, func(cur *KeySet, exists bool) (*KeySet, bool) {
		if !exists {
			cur = NewKeySet()
		}
		cur.Add(entityKey)
		return cur, true
	})
}

// Remove drops entityKey from the session, cleaning up empty sets.
func (i *SessionIndex) Remove(sessionID, entityKey string) {
	i.index.Compute(sessionID, func(cur *KeySet, exists bool) (*KeySet, bool) {
		if !exists {
			return nil, false
		}
		cur.Remove(entityKey)
		return cur, cur.Len() > 0
	})
}

// Get returns the entity keys recorded for a session.
func (i *SessionIndex) Get(sessionID string) []string {
	set, ok := i.index.Get(sessionID)
	if !ok {
		return nil
	}
	return set.Items()
}

// Count returns the number of entities recorded for a session.
func (i *SessionIndex) Count(sessionID string) int {
	set, ok := i.index.Get(sessionID)
	if !ok {
		return 0
	}
	return set.Len()
}

// Clear forgets a session.
func (i *SessionIndex) Clear(sessionID string) {
	i.index.Delete(sessionID)
}
