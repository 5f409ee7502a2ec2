package handler

import (
	"time"

	"github.com/yndnr/autosave-go/internal/core/domain"
	"github.com/yndnr/autosave-go/internal/infra/buildinfo"
	"github.com/yndnr/autosave-go/internal/telemetry/metric"
)

// Response is the standard API response envelope.
// All JSON responses use this format (except /metrics which uses Prometheus format).
type Response struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
}

// NewResponse creates a success response.
func NewResponse(requestID string, data any) *Response {
	return &Response{
		Code:      "OK",
		Message:   "Success",
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(requestID, code, message string) *Response {
	return &Response{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
	}
}

// Settings are the client-side autosave settings handed to the form layer
// as configured.
type Settings struct {
	Interval         int                  `json:"interval"`
	OnlyOnFormChange bool                 `json:"only_on_form_change"`
	Notification     NotificationSettings `json:"notification"`
}

// NotificationSettings configures the notice shown after each save.
type NotificationSettings struct {
	Active  bool   `json:"active"`
	Message string `json:"message"`
}

// SessionRequest is the request body for POST /v1/autosave/sessions.
type SessionRequest struct {
	SessionID   string       `json:"form_session_id,omitempty"`
	FormBuildID string       `json:"form_build_id,omitempty"`
	Input       domain.Input `json:"input,omitempty"`
}

// SessionResponse is the response body for POST /v1/autosave/sessions.
type SessionResponse struct {
	SessionID string `json:"form_session_id"`
}

// TickRequest is the request body for POST /v1/autosave/ticks.
type TickRequest struct {
	SessionID     string         `json:"form_session_id,omitempty"`
	FormID        string         `json:"form_id"`
	Entity        *domain.Entity `json:"entity"`
	Langcode      string         `json:"langcode,omitempty"`
	UserID        string         `json:"uid"`
	Input         domain.Input   `json:"input"`
	Storage       map[string]any `json:"storage,omitempty"`
	Invalid       bool           `json:"invalid,omitempty"`
	InvalidReason string         `json:"invalid_reason,omitempty"`
}

// TickResponse is the response body for POST /v1/autosave/ticks.
type TickResponse struct {
	SessionID     string `json:"form_session_id"`
	Stored        bool   `json:"stored"`
	Timestamp     int64  `json:"timestamp,omitempty"`
	CacheDisabled bool   `json:"cache_disabled"`
}

// PurgeRequest is the request body for POST /v1/autosave/purge.
type PurgeRequest struct {
	EntityType string `json:"entity_type_id"`
	EntityID   string `json:"entity_id"`
	FormID     string `json:"form_id,omitempty"`
	SessionID  string `json:"form_session_id,omitempty"`
	Langcode   string `json:"langcode,omitempty"`
	UserID     string `json:"uid,omitempty"`
}

// StateResponse is the response body for GET /v1/autosave/state.
type StateResponse struct {
	Exists        bool  `json:"exists"`
	LastTimestamp int64 `json:"last_timestamp,omitempty"`
}

// AdminPurgeRequest is the request body for POST /admin/v1/purge.
type AdminPurgeRequest struct {
	EntityType string `json:"entity_type_id,omitempty"`
	EntityID   string `json:"entity_id,omitempty"`
	Langcode   string `json:"langcode,omitempty"`
	UserID     string `json:"uid,omitempty"`
}

// AdminPurgeResponse is the response body for POST /admin/v1/purge.
type AdminPurgeResponse struct {
	Purged int `json:"purged"`
}

// StatusSummary is the response body for GET /admin/v1/status/summary.
type StatusSummary struct {
	Status    string         `json:"status"`
	Build     buildinfo.Info `json:"build"`
	StartedAt time.Time      `json:"started_at"`
	Uptime    string         `json:"uptime"`
	Store     StoreStatus    `json:"store"`
	Config    any            `json:"config,omitempty"`
}

// StoreStatus describes the snapshot store in the status summary.
type StoreStatus struct {
	Backend   string `json:"backend"`
	Snapshots int64  `json:"snapshots"`
	SizeBytes int64  `json:"size_bytes"`
	Error     string `json:"error,omitempty"`
}

func storeStatus(s metric.StoreStats) StoreStatus {
	return StoreStatus{Backend: s.Backend, Snapshots: s.Snapshots, SizeBytes: s.SizeBytes}
}

// GCResponse is the response body for POST /admin/v1/gc/trigger.
type GCResponse struct {
	Reclaimed   int       `json:"reclaimed"`
	TriggeredAt time.Time `json:"triggered_at"`
}
