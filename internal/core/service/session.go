package service

import (
	"github.com/yndnr/autosave-go/internal/core/domain"
)

// SessionCarrier holds values that travel with a form between requests,
// such as the form-state storage.
type SessionCarrier interface {
	Value(key string) (any, bool)
	SetValue(key string, value any)
}

// MapCarrier adapts a form-state storage map to SessionCarrier.
type MapCarrier map[string]any

// Value implements SessionCarrier.
func (m MapCarrier) Value(key string) (any, bool) {
	v, ok := m[key]
	return v, ok
}

// SetValue implements SessionCarrier.
func (m MapCarrier) SetValue(key string, value any) {
	m[key] = value
}

// GetSessionID returns the session id carried by the form, or "".
func (s *AutosaveService) GetSessionID(carrier SessionCarrier) string {
	if carrier == nil {
		return ""
	}
	v, ok := carrier.Value(domain.InputKeyAutosaveSessionID)
	if !ok {
		return ""
	}
	id, _ := v.(string)
	if !domain.ValidSessionID(id) {
		return ""
	}
	return id
}

// SetSessionID stores the session id on the carrier.
func (s *AutosaveService) SetSessionID(carrier SessionCarrier, id string) error {
	if !domain.ValidSessionID(id) {
		return domain.ErrInvalidArgument.WithDetails("invalid session id")
	}
	carrier.SetValue(domain.InputKeyAutosaveSessionID, id)
	return nil
}

// EnsureSessionID resolves the session id of a form and stores it on the
// carrier. A carried id wins, then the submitted input, then the form
// build id; otherwise a new id is generated.
func (s *AutosaveService) EnsureSessionID(carrier SessionCarrier, input domain.Input, buildID string) (string, error) {
	id, err := domain.ResolveSessionID(s.GetSessionID(carrier), input, buildID)
	if err != nil {
		return "", domain.ErrInternalServer.WithDetails("generate session id").WithCause(err)
	}
	if carrier != nil {
		if err := s.SetSessionID(carrier, id); err != nil {
			return "", err
		}
	}
	return id, nil
}
