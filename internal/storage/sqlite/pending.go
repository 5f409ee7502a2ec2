package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/yndnr/autosave-go/internal/core/domain"
	"github.com/yndnr/autosave-go/internal/storage/codec"
)

// PendingCache keeps pending input in the autosave_pending table. Expired
// rows are invisible to Get and removed by Sweep.
type PendingCache struct {
	db    *sql.DB
	codec *codec.Codec
	now   func() time.Time
}

// NewPendingCache creates a pending cache over an opened database.
func NewPendingCache(db *sql.DB, c *codec.Codec) *PendingCache {
	return &PendingCache{db: db, codec: c, now: time.Now}
}

// Get returns the cached input for sessionID.
func (p *PendingCache) Get(ctx context.Context, sessionID string) (domain.Input, bool, error) {
	var frame []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT input FROM autosave_pending WHERE session_id = ? AND expires_at > ?`,
		sessionID, p.now().UnixMilli()).Scan(&frame)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, storageErr("read pending input", err)
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
	_, err = exec(ctx, p.db, `
		INSERT INTO autosave_pending (session_id, input, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET input = excluded.input, expires_at = excluded.expires_at`,
		sessionID, frame, p.now().Add(ttl).UnixMilli())
	if err != nil {
		return storageErr("write pending input", err)
	}
	return nil
}

// Delete drops the cached input for sessionID.
func (p *PendingCache) Delete(ctx context.Context, sessionID string) error {
	if _, err := exec(ctx, p.db, `DELETE FROM autosave_pending WHERE session_id = ?`, sessionID); err != nil {
		return storageErr("delete pending input", err)
	}
	return nil
}

// Sweep removes expired rows and returns how many were deleted.
func (p *PendingCache) Sweep(ctx context.Context) (int, error) {
	res, err := exec(ctx, p.db, `DELETE FROM autosave_pending WHERE expires_at <= ?`, p.now().UnixMilli())
	if err != nil {
		return 0, storageErr("sweep pending input", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
