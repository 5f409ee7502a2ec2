// Package storage provides the autosave storage engine.
//
// Engine opens one of three backends and exposes its snapshot repository
// and pending input cache:
//
//   - badger: snapshots as ordered keys in an embedded LSM store, pending
//     input as entries with a native TTL
//   - sqlite: the autosave_entity_form table plus an autosave_pending
//     table swept in the background
//   - memory: sharded maps, lost on restart
//
// Badger keys put the entity first so entity scoped lookups and purges are
// prefix scans; other scope fields are filtered after decoding the key.
package storage
