package cmap

// Range calls fn for every key-value pair until fn returns false.
//
// Shards are read-locked one at a time, so the view is not a consistent
// snapshot across shards. fn must not call back into the map.
func (m *Map[K, V]) Range(fn func(key K, value V) bool) {
	for _, s := range m.shards {
		s.mu.RLock()
		for k, v := range s.items {
			if !fn(k, v) {
				s.mu.RUnlock()
				return
			}
		}
		s.mu.RUnlock()
	}
}

// Keys returns all keys.
func (m *Map[K, V]) Keys() []K {
	keys := make([]K, 0, m.Len())
	m.Range(func(key K, _ V) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}

// ComputeAll applies Compute to every key for which match returns true.
// It returns the number of keys visited. Each key is handled under its own
// shard lock; keys added concurrently may be missed.
func (m *Map[K, V]) ComputeAll(match func(key K) bool, fn func(key K, current V) (next V, keep bool)) int {
	n := 0
	for _, s := range m.shards {
		s.mu.Lock()
		for k, v := range s.items {
			if !match(k) {
				continue
			}
			n++
			if next, keep := fn(k, v); keep {
				s.items[k] = next
			} else {
				delete(s.items, k)
			}
		}
		s.mu.Unlock()
	}
	return n
}
