package domain

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// SessionIDPrefix is the prefix of server generated session ids.
const SessionIDPrefix = "afs-"

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// GenerateSessionID generates a new autosave session id.
// Format: afs-{ulid_lowercase}, 30 characters total.
func GenerateSessionID() (string, error) {
	entropyMu.Lock()
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	entropyMu.Unlock()
	if err != nil {
		return "", ErrInternalServer.WithCause(err)
	}
	return SessionIDPrefix + strings.ToLower(id.String()), nil
}

// IsGeneratedSessionID reports whether id was produced by GenerateSessionID.
func IsGeneratedSessionID(id string) bool {
	id = strings.ToLower(id)
	if !strings.HasPrefix(id, SessionIDPrefix) || len(id) != len(SessionIDPrefix)+26 {
		return false
	}
	_, err := ulid.Parse(strings.ToUpper(id[len(SessionIDPrefix):]))
	return err == nil
}

// ValidSessionID reports whether id can be used as a session identity.
func ValidSessionID(id string) bool {
	return id != "" && len(id) <= MaxSessionIDLength && strings.IndexByte(id, 0) < 0
}

// ResolveSessionID picks the session identity for a tick. The first usable
// candidate wins: the id already carried by the form layer, the
// client-submitted autosave_session_id input, the form build id. When none
// is usable a fresh id is generated.
func ResolveSessionID(carried string, input Input, buildID string) (string, error) {
	if ValidSessionID(carried) {
		return carried, nil
	}
	if submitted := input.String(InputKeyAutosaveSessionID); ValidSessionID(submitted) {
		return submitted, nil
	}
	if buildID == "" {
		buildID = input.String(InputKeyFormBuildID)
	}
	if ValidSessionID(buildID) {
		return buildID, nil
	}
	return GenerateSessionID()
}
