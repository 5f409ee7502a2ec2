package storage

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/oklog/ulid/v2"

	"github.com/yndnr/autosave-go/internal/core/domain"
)

// Key layout of a durable snapshot:
//
//	snap \0 type \0 id \0 langcode \0 form \0 uid \0 session \0 ts(16 hex) \0 seq(ulid)
//
// Fields are ordered from the most to the least commonly scoped, so entity
// scoped lookups and purges become prefix scans. The ULID sequence makes
// every key unique and orders snapshots sharing a timestamp by insertion.
const (
	snapshotPrefix = "snap"
	keySep         = 0x00
	keyFieldCount  = 8 // after the prefix
)

// snapshotRecord is the stored value of a snapshot key.
type snapshotRecord struct {
	Entity    []byte `json:"entity"`
	FormState []byte `json:"form_state"`
}

// SnapshotStore is the durable snapshot repository over a KVEngine.
type SnapshotStore struct {
	kv KVEngine

	seqMu   sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewSnapshotStore creates a snapshot store.
func NewSnapshotStore(kv KVEngine) *SnapshotStore {
	return &SnapshotStore{
		kv:      kv,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Insert appends a snapshot. Existing snapshots are never overwritten.
func (s *SnapshotStore) Insert(ctx context.Context, snap *domain.Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}

	seq, err := s.nextSeq()
	if err != nil {
		return domain.ErrStorageError.WithDetails("allocate sequence").WithCause(err)
	}
	value, err := json.Marshal(snapshotRecord{Entity: snap.Entity, FormState: snap.FormState})
	if err != nil {
		return domain.ErrStorageError.WithDetails("marshal snapshot").WithCause(err)
	}

	if err := s.kv.Set(ctx, encodeSnapshotKey(snap, seq), value); err != nil {
		return domain.ErrStorageError.WithDetails("insert snapshot").WithCause(err)
	}
	return nil
}

// Latest returns the snapshot with the highest timestamp in scope; ties go
// to the one inserted last. Returns domain.ErrSnapshotNotFound when the
// scope is empty.
func (s *SnapshotStore) Latest(ctx context.Context, scope domain.Scope) (*domain.Snapshot, error) {
	var (
		bestKey []byte
		best    *parsedKey
	)
	err := s.scanScope(ctx, scope, func(key []byte, pk *parsedKey) bool {
		if best == nil || pk.after(best) {
			best = pk
			bestKey = append(bestKey[:0], key...)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if best == nil {
		return nil, domain.ErrSnapshotNotFound
	}

	value, err := s.kv.Get(ctx, bestKey)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			// Purged between scan and read.
			return nil, domain.ErrSnapshotNotFound
		}
		return nil, domain.ErrStorageError.WithDetails("read snapshot").WithCause(err)
	}
	var rec snapshotRecord
	if err := json.Unmarshal(value, &rec); err != nil {
		return nil, domain.ErrCodecError.WithDetails("snapshot record").WithCause(err)
	}

	snap := best.snapshot()
	snap.Entity = rec.Entity
	snap.FormState = rec.FormState
	return snap, nil
}

// Exists reports whether any snapshot falls within scope.
func (s *SnapshotStore) Exists(ctx context.Context, scope domain.Scope) (bool, error) {
	found := false
	err := s.scanScope(ctx, scope, func([]byte, *parsedKey) bool {
		found = true
		return false
	})
	return found, err
}

// LastTimestamp returns the highest timestamp in scope.
func (s *SnapshotStore) LastTimestamp(ctx context.Context, scope domain.Scope) (int64, bool, error) {
	var (
		ts    int64
		found bool
	)
	err := s.scanScope(ctx, scope, func(_ []byte, pk *parsedKey) bool {
		if !found || pk.ts > ts {
			ts = pk.ts
		}
		found = true
		return true
	})
	return ts, found, err
}

// Purge deletes every snapshot in scope and returns how many were removed.
func (s *SnapshotStore) Purge(ctx context.Context, scope domain.Scope) (int, error) {
	var keys [][]byte
	err := s.scanScope(ctx, scope, func(key []byte, _ *parsedKey) bool {
		keys = append(keys, bytes.Clone(key))
		return true
	})
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := s.kv.DeleteKeys(ctx, keys); err != nil {
		return 0, domain.ErrStorageError.WithDetails("purge snapshots").WithCause(err)
	}
	return len(keys), nil
}

// Count returns the number of stored snapshots.
func (s *SnapshotStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.kv.ScanKeys(ctx, []byte(snapshotPrefix+"\x00"), func([]byte) bool {
		n++
		return true
	})
	if err != nil {
		return 0, domain.ErrStorageError.WithDetails("count snapshots").WithCause(err)
	}
	return n, nil
}

// scanScope walks the keys matching scope. Leading scope fields narrow the
// prefix; the remaining ones are checked against the parsed key.
func (s *SnapshotStore) scanScope(ctx context.Context, scope domain.Scope, fn func(key []byte, pk *parsedKey) bool) error {
	var scanErr error
	err := s.kv.ScanKeys(ctx, scopePrefix(scope), func(key []byte) bool {
		pk, err := parseSnapshotKey(key)
		if err != nil {
			scanErr = err
			return false
		}
		if !scope.Matches(pk.snapshot()) {
			return true
		}
		return fn(key, pk)
	})
	if err == nil {
		err = scanErr
	}
	if err != nil {
		if errors.Is(err, domain.ErrCodecError) {
			return err
		}
		return domain.ErrStorageError.WithDetails("scan snapshots").WithCause(err)
	}
	return nil
}

func (s *SnapshotStore) nextSeq() (ulid.ULID, error) {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	return ulid.New(ulid.Timestamp(time.Now()), s.entropy)
}

// scopePrefix builds the longest key prefix fixed by the scope.
func scopePrefix(scope domain.Scope) []byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, snapshotPrefix...)
	buf = append(buf, keySep)
	for i, field := range []string{
		scope.EntityTypeID,
		scope.EntityID,
		scope.Langcode,
		scope.FormID,
		scope.UID,
		scope.SessionID,
	} {
		if field == "" && (i != 2 || !scope.ExactLangcode) {
			break
		}
		buf = append(buf, field...)
		buf = append(buf, keySep)
	}
	return buf
}

func encodeSnapshotKey(snap *domain.Snapshot, seq ulid.ULID) []byte {
	buf := make([]byte, 0, 96)
	buf = append(buf, snapshotPrefix...)
	for _, field := range []string{
		snap.EntityTypeID,
		snap.EntityID,
		snap.Langcode,
		snap.FormID,
		snap.UID,
		snap.SessionID,
	} {
		buf = append(buf, keySep)
		buf = append(buf, field...)
	}
	buf = append(buf, keySep)
	buf = fmt.Appendf(buf, "%016x", uint64(snap.Timestamp))
	buf = append(buf, keySep)
	buf = append(buf, seq.String()...)
	return buf
}

// parsedKey is the identity decoded from a snapshot key.
type parsedKey struct {
	entityType, entityID, langcode, formID, uid, sessionID string

	ts  int64
	seq string
}

func (pk *parsedKey) snapshot() *domain.Snapshot {
	return &domain.Snapshot{
		FormID:       pk.formID,
		SessionID:    pk.sessionID,
		EntityTypeID: pk.entityType,
		EntityID:     pk.entityID,
		Langcode:     pk.langcode,
		UID:          pk.uid,
		Timestamp:    pk.ts,
	}
}

// after reports whether pk sorts after other by (timestamp, sequence).
func (pk *parsedKey) after(other *parsedKey) bool {
	if pk.ts != other.ts {
		return pk.ts > other.ts
	}
	return pk.seq > other.seq
}

func parseSnapshotKey(key []byte) (*parsedKey, error) {
	parts := bytes.Split(key, []byte{keySep})
	if len(parts) != keyFieldCount+1 || string(parts[0]) != snapshotPrefix {
		return nil, domain.ErrCodecError.WithDetails("malformed snapshot key")
	}
	if len(parts[7]) != 16 {
		return nil, domain.ErrCodecError.WithDetails("malformed snapshot timestamp")
	}
	ts, err := strconv.ParseInt(string(parts[7]), 16, 64)
	if err != nil {
		return nil, domain.ErrCodecError.WithDetails("malformed snapshot timestamp").WithCause(err)
	}
	return &parsedKey{
		entityType: string(parts[1]),
		entityID:   string(parts[2]),
		langcode:   string(parts[3]),
		formID:     string(parts[4]),
		uid:        string(parts[5]),
		sessionID:  string(parts[6]),
		ts:         ts,
		seq:        string(parts[8]),
	}, nil
}
