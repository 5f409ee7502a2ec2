package domain

import (
	"strings"
	"time"
)

// Snapshot identity constraints.
const (
	MaxFormIDLength    = 255
	MaxSessionIDLength = 255
	MaxUIDLength       = 128
)

// Snapshot is one durable, timestamped record of an entity and its form
// state. Snapshots are append-only and never mutated once stored.
type Snapshot struct {
	FormID       string `json:"form_id"`
	SessionID    string `json:"form_session_id"`
	EntityTypeID string `json:"entity_type_id"`
	EntityID     string `json:"entity_id"`
	Langcode     string `json:"langcode"`
	UID          string `json:"uid"`

	// Timestamp is seconds since the Unix epoch.
	Timestamp int64 `json:"timestamp"`

	// Entity and FormState are codec frames.
	Entity    []byte `json:"entity"`
	FormState []byte `json:"form_state"`
}

// EntityRef returns the identity of the snapshotted entity.
func (s *Snapshot) EntityRef() EntityRef {
	return EntityRef{Type: s.EntityTypeID, ID: s.EntityID}
}

// Time returns Timestamp as time.Time.
func (s *Snapshot) Time() time.Time {
	return time.Unix(s.Timestamp, 0)
}

// Scope returns the precise scope addressing this snapshot's key.
func (s *Snapshot) Scope() Scope {
	return Scope{
		FormID:       s.FormID,
		SessionID:    s.SessionID,
		EntityTypeID: s.EntityTypeID,
		EntityID:     s.EntityID,
		Langcode:     s.Langcode,
		UID:          s.UID,

		ExactLangcode: true,
	}
}

// Validate checks that every key field is present and storable.
func (s *Snapshot) Validate() error {
	var violations []string

	required := []struct {
		name  string
		value string
		max   int
	}{
		{"form_id", s.FormID, MaxFormIDLength},
		{"form_session_id", s.SessionID, MaxSessionIDLength},
		{"entity_type_id", s.EntityTypeID, MaxEntityTypeLength},
		{"entity_id", s.EntityID, MaxEntityIDLength},
		{"uid", s.UID, MaxUIDLength},
	}
	for _, f := range required {
		if f.value == "" {
			violations = append(violations, f.name+" is required")
		}
		if len(f.value) > f.max {
			violations = append(violations, f.name+" is too long")
		}
	}
	if len(s.Langcode) > MaxLangcodeLength {
		violations = append(violations, "langcode is too long")
	}
	if containsSeparator(s.FormID, s.SessionID, s.EntityTypeID, s.EntityID, s.Langcode, s.UID) {
		violations = append(violations, "key fields must not contain NUL bytes")
	}
	if s.Timestamp < 0 {
		violations = append(violations, "timestamp must not be negative")
	}

	if len(violations) > 0 {
		return ErrSnapshotValidation.WithDetails(strings.Join(violations, "; "))
	}
	return nil
}

// Scope selects snapshots. An empty field, or a zero Timestamp, matches
// any value.
type Scope struct {
	FormID       string `json:"form_id,omitempty"`
	SessionID    string `json:"form_session_id,omitempty"`
	EntityTypeID string `json:"entity_type_id,omitempty"`
	EntityID     string `json:"entity_id,omitempty"`
	Langcode     string `json:"langcode,omitempty"`
	UID          string `json:"uid,omitempty"`
	Timestamp    int64  `json:"timestamp,omitempty"`

	// ExactLangcode makes an empty Langcode match only snapshots stored
	// without a langcode instead of any langcode.
	ExactLangcode bool `json:"-"`
}

// Matches reports whether the snapshot falls within the scope.
func (sc Scope) Matches(s *Snapshot) bool {
	return matchField(sc.FormID, s.FormID) &&
		matchField(sc.SessionID, s.SessionID) &&
		matchField(sc.EntityTypeID, s.EntityTypeID) &&
		matchField(sc.EntityID, s.EntityID) &&
		(sc.Langcode == s.Langcode || (sc.Langcode == "" && !sc.ExactLangcode)) &&
		matchField(sc.UID, s.UID) &&
		(sc.Timestamp == 0 || sc.Timestamp == s.Timestamp)
}

// IsEmpty reports whether the scope matches every snapshot.
func (sc Scope) IsEmpty() bool {
	return sc == Scope{}
}

func matchField(want, got string) bool {
	return want == "" || want == got
}

// FormState is the auxiliary form data stored alongside an entity.
type FormState struct {
	// Storage is the form layer's private state bag.
	Storage map[string]any `json:"storage"`

	// Input is the raw user input of the tick.
	Input Input `json:"input"`
}

// LastAutosaveTimestamp returns the timestamp recorded into the form
// state storage by the autosave engine, if any.
func (f *FormState) LastAutosaveTimestamp() (int64, bool) {
	if f == nil || f.Storage == nil {
		return 0, false
	}
	switch v := f.Storage[InputKeyLastAutosave].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	case interface{ Int64() (int64, error) }:
		n, err := v.Int64()
		return n, err == nil
	}
	return 0, false
}

// RestoreResult is the reconstructed state of a selected snapshot.
type RestoreResult struct {
	Entity    *Entity    `json:"entity"`
	FormState *FormState `json:"form_state"`
	Timestamp int64      `json:"timestamp"`
	SessionID string     `json:"form_session_id"`
}
