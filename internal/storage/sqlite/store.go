package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/yndnr/autosave-go/internal/core/domain"
)

// Store is the snapshot repository over the autosave_entity_form table.
// The autoincrement id orders snapshots sharing a timestamp by insertion.
type Store struct {
	db *sql.DB
}

// NewStore creates a store over an opened database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Insert appends a snapshot.
func (s *Store) Insert(ctx context.Context, snap *domain.Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	_, err := exec(ctx, s.db, `
		INSERT INTO autosave_entity_form
			(form_id, form_session_id, entity_type_id, entity_id, langcode, uid, timestamp, entity, form_state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.FormID, snap.SessionID, snap.EntityTypeID, snap.EntityID,
		snap.Langcode, snap.UID, snap.Timestamp, snap.Entity, snap.FormState)
	if err != nil {
		return storageErr("insert snapshot", err)
	}
	return nil
}

// Latest returns the newest snapshot in scope.
func (s *Store) Latest(ctx context.Context, scope domain.Scope) (*domain.Snapshot, error) {
	where, args := whereClause(scope)
	row := s.db.QueryRowContext(ctx, `
		SELECT form_id, form_session_id, entity_type_id, entity_id, langcode, uid, timestamp, entity, form_state
		FROM autosave_entity_form`+where+`
		ORDER BY timestamp DESC, id DESC
		LIMIT 1`, args...)

	var snap domain.Snapshot
	err := row.Scan(&snap.FormID, &snap.SessionID, &snap.EntityTypeID, &snap.EntityID,
		&snap.Langcode, &snap.UID, &snap.Timestamp, &snap.Entity, &snap.FormState)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, storageErr("select latest snapshot", err)
	}
	return &snap, nil
}

// Exists reports whether any snapshot falls within scope.
func (s *Store) Exists(ctx context.Context, scope domain.Scope) (bool, error) {
	where, args := whereClause(scope)
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM autosave_entity_form`+where+` LIMIT 1`, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, storageErr("probe snapshots", err)
	}
	return true, nil
}

// LastTimestamp returns the highest timestamp in scope.
func (s *Store) LastTimestamp(ctx context.Context, scope domain.Scope) (int64, bool, error) {
	where, args := whereClause(scope)
	var ts sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(timestamp) FROM autosave_entity_form`+where, args...).Scan(&ts)
	if err != nil {
		return 0, false, storageErr("select last timestamp", err)
	}
	return ts.Int64, ts.Valid, nil
}

// Purge deletes every snapshot in scope.
func (s *Store) Purge(ctx context.Context, scope domain.Scope) (int, error) {
	where, args := whereClause(scope)
	var n int64
	err := runTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM autosave_entity_form`+where, args...)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, storageErr("purge snapshots", err)
	}
	return int(n), nil
}

// Count returns the number of stored snapshots.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM autosave_entity_form`).Scan(&n); err != nil {
		return 0, storageErr("count snapshots", err)
	}
	return n, nil
}

// whereClause renders the non-empty scope fields as equality conditions.
// An exact langcode scope also pins an empty langcode.
func whereClause(scope domain.Scope) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(column string, value any) {
		conds = append(conds, column+" = ?")
		args = append(args, value)
	}
	if scope.FormID != "" {
		add("form_id", scope.FormID)
	}
	if scope.SessionID != "" {
		add("form_session_id", scope.SessionID)
	}
	if scope.EntityTypeID != "" {
		add("entity_type_id", scope.EntityTypeID)
	}
	if scope.EntityID != "" {
		add("entity_id", scope.EntityID)
	}
	if scope.Langcode != "" || scope.ExactLangcode {
		add("langcode", scope.Langcode)
	}
	if scope.UID != "" {
		add("uid", scope.UID)
	}
	if scope.Timestamp != 0 {
		add("timestamp", scope.Timestamp)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func storageErr(details string, err error) error {
	return domain.ErrStorageError.WithDetails(details).WithCause(err)
}
