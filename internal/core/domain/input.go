package domain

import (
	"bytes"

	"github.com/goccy/go-json"
)

// Form input keys that change on every tick without reflecting a user edit.
const (
	InputKeyFormBuildID       = "form_build_id"
	InputKeyFormToken         = "form_token"
	InputKeyAjaxPageState     = "ajax_page_state"
	InputKeyLastAutosave      = "autosave_last_autosave_timestamp"
	InputKeyAutosaveSessionID = "autosave_session_id"
)

// VolatileKeys lists the input keys ignored by change detection.
var VolatileKeys = []string{
	InputKeyFormBuildID,
	InputKeyFormToken,
	InputKeyAjaxPageState,
	InputKeyLastAutosave,
}

// Input is the raw form input of one tick.
type Input map[string]any

// StripVolatile returns a copy of the input without volatile keys.
// The receiver is left untouched.
func (in Input) StripVolatile() Input {
	out := make(Input, len(in))
	for k, v := range in {
		out[k] = v
	}
	for _, k := range VolatileKeys {
		delete(out, k)
	}
	return out
}

// Canonical returns the canonical JSON form of the input. Map keys are
// emitted in sorted order at every depth.
func (in Input) Canonical() ([]byte, error) {
	if in == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(map[string]any(in))
	if err != nil {
		return nil, ErrInvalidArgument.WithDetails("input is not serializable").WithCause(err)
	}
	return b, nil
}

// EquivalentTo reports whether two inputs carry the same user edits:
// both are stripped of volatile keys and compared structurally.
func (in Input) EquivalentTo(other Input) (bool, error) {
	a, err := in.StripVolatile().Canonical()
	if err != nil {
		return false, err
	}
	b, err := other.StripVolatile().Canonical()
	if err != nil {
		return false, err
	}
	return bytes.Equal(a, b), nil
}

// String returns a string value from the input, or "" when absent or not
// a string.
func (in Input) String(key string) string {
	if v, ok := in[key].(string); ok {
		return v
	}
	return ""
}
