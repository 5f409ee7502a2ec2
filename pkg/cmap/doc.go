// Package cmap provides a concurrent map split into shards.
//
// Each shard owns an RWMutex and a plain Go map, so writers to different
// keys rarely contend. Compute and ComputeAll give read-modify-write
// atomicity per key, which the in-memory snapshot store relies on for
// copy-on-write history slices.
//
// Usage:
//
//	m := cmap.New[string, []Record]()
//	m.Compute(key, func(cur []Record, ok bool) ([]Record, bool) {
//		return append(slices.Clip(cur), rec), true
//	})
package cmap
