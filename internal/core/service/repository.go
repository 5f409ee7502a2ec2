package service

import (
	"context"
	"time"

	"github.com/yndnr/autosave-go/internal/core/domain"
)

// SnapshotRepository is the durable, append-only snapshot table.
type SnapshotRepository interface {
	// Insert appends a snapshot. Existing rows are never updated.
	Insert(ctx context.Context, snap *domain.Snapshot) error

	// Latest returns the snapshot with the highest timestamp in scope,
	// ties going to the one inserted last. Returns
	// domain.ErrSnapshotNotFound when nothing matches.
	Latest(ctx context.Context, scope domain.Scope) (*domain.Snapshot, error)

	// Exists reports whether any snapshot falls within scope.
	Exists(ctx context.Context, scope domain.Scope) (bool, error)

	// LastTimestamp returns the highest timestamp in scope.
	LastTimestamp(ctx context.Context, scope domain.Scope) (int64, bool, error)

	// Purge deletes every snapshot in scope and returns the count.
	Purge(ctx context.Context, scope domain.Scope) (int, error)
}

// PendingInputCache holds the first input seen for a session before any
// durable snapshot exists.
type PendingInputCache interface {
	Get(ctx context.Context, sessionID string) (domain.Input, bool, error)
	SetWithExpire(ctx context.Context, sessionID string, in domain.Input, ttl time.Duration) error
	Delete(ctx context.Context, sessionID string) error
}

// ChangeNotifier announces that an entity got a new durable snapshot.
// Implementations must not block the caller on delivery.
type ChangeNotifier interface {
	Notify(ctx context.Context, ref domain.EntityRef, langcode string)
}

// PayloadCodec serializes entities and form state into snapshot blobs.
type PayloadCodec interface {
	EncodeEntity(e *domain.Entity, deep bool) ([]byte, error)
	DecodeEntity(frame []byte) (*domain.Entity, error)
	EncodeFormState(fs *domain.FormState) ([]byte, error)
	DecodeFormState(frame []byte) (*domain.FormState, error)
}

// Clock returns the current Unix time in seconds.
type Clock interface {
	Now() int64
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() int64

// Now implements Clock.
func (f ClockFunc) Now() int64 { return f() }

// SystemClock reads the wall clock.
var SystemClock Clock = ClockFunc(func() int64 { return time.Now().Unix() })
