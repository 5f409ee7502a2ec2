package storage

import (
	"context"
	"errors"
	"time"

	"github.com/yndnr/autosave-go/internal/core/domain"
	"github.com/yndnr/autosave-go/internal/storage/codec"
)

const pendingPrefix = "pend\x00"

// PendingCache keeps the first unsaved input of a session in the KV engine
// with a per-entry TTL.
type PendingCache struct {
	kv    KVEngine
	codec *codec.Codec
}

// NewPendingCache creates a pending-input cache.
func NewPendingCache(kv KVEngine, c *codec.Codec) *PendingCache {
	return &PendingCache{kv: kv, codec: c}
}

// Get returns the cached input for sessionID. Expired or missing entries
// report ok=false.
func (p *PendingCache) Get(ctx context.Context, sessionID string) (domain.Input, bool, error) {
	frame, err := p.kv.Get(ctx, pendingKey(sessionID))
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, domain.ErrStorageError.WithDetails("read pending input").WithCause(err)
	}
	in, err := p.codec.DecodeInput(frame)
	if err != nil {
		return nil, false, err
	}
	return in, true, nil
}

// SetWithExpire replaces the cached input for sessionID.
func (p *PendingCache) SetWithExpire(ctx context.Context, sessionID string, in domain.Input, ttl time.Duration) error {
	frame, err := p.codec.EncodeInput(in)
	if err != nil {
		return err
	}
	if err := p.kv.SetWithTTL(ctx, pendingKey(sessionID), frame, ttl); err != nil {
		return domain.ErrStorageError.WithDetails("write pending input").WithCause(err)
	}
	return nil
}

// Delete drops the cached input for sessionID. Missing entries are ignored.
func (p *PendingCache) Delete(ctx context.Context, sessionID string) error {
	if err := p.kv.Delete(ctx, pendingKey(sessionID)); err != nil && !errors.Is(err, ErrKeyNotFound) {
		return domain.ErrStorageError.WithDetails("delete pending input").WithCause(err)
	}
	return nil
}

// Len returns the number of live pending entries.
func (p *PendingCache) Len(ctx context.Context) (int, error) {
	n := 0
	err := p.kv.ScanKeys(ctx, []byte(pendingPrefix), func([]byte) bool {
		n++
		return true
	})
	return n, err
}

func pendingKey(sessionID string) []byte {
	return append([]byte(pendingPrefix), sessionID...)
}
