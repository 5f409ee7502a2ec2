// Package service provides the autosave session engine.
//
// AutosaveService turns periodic form submissions (ticks) into an
// append-only history of entity snapshots. Each tick is compared against a
// two-tier baseline: the latest durable snapshot of the same form, session,
// entity, language and user, or else the pending input cached for the
// session. Only a changed input produces a snapshot, after which the
// pending entry is dropped and a change notification is queued.
//
// The package defines the ports it depends on (SnapshotRepository,
// PendingInputCache, PayloadCodec, ChangeNotifier, Clock); the storage and
// notify packages provide the implementations.
package service
