package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/yndnr/autosave-go/internal/core/domain"
	"github.com/yndnr/autosave-go/internal/core/service"
	"github.com/yndnr/autosave-go/internal/telemetry/logger"
)

// handleSettings handles GET /v1/autosave/settings.
func (h *Handler) handleSettings(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, h.settings)
}

// handleSession handles POST /v1/autosave/sessions.
// A carried id wins, then the submitted input, then the form build id.
func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	carrier := service.MapCarrier{}
	if req.SessionID != "" {
		carrier[domain.InputKeyAutosaveSessionID] = req.SessionID
	}
	id, err := h.svc.EnsureSessionID(carrier, req.Input, req.FormBuildID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, &SessionResponse{SessionID: id})
}

// handleTick handles POST /v1/autosave/ticks.
//
// A tick the form layer flagged invalid is acknowledged with stored=false
// rather than an error, since the client retries on the next interval.
func (h *Handler) handleTick(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")

	var req TickRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	sessionID, err := h.tickSessionID(&req)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	resp, err := h.svc.ProcessTick(r.Context(), &service.TickRequest{
		SessionID:     sessionID,
		FormID:        req.FormID,
		Entity:        req.Entity,
		Langcode:      req.Langcode,
		UserID:        req.UserID,
		Input:         req.Input,
		Storage:       req.Storage,
		Invalid:       req.Invalid,
		InvalidReason: req.InvalidReason,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTick) {
			logger.Enrich(r.Context(), h.logger).DebugContext(r.Context(), "tick not stored", "error", err)
			h.writeJSON(w, r, http.StatusOK, &TickResponse{SessionID: sessionID, CacheDisabled: true})
			return
		}
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, &TickResponse{
		SessionID:     sessionID,
		Stored:        resp.Stored,
		Timestamp:     resp.Timestamp,
		CacheDisabled: resp.CacheDisabled,
	})
}

// tickSessionID resolves the session of a tick. An explicit id must be
// usable; otherwise the form storage, the input and the build id are
// consulted in turn.
func (h *Handler) tickSessionID(req *TickRequest) (string, error) {
	if req.SessionID != "" {
		if !domain.ValidSessionID(req.SessionID) {
			return "", domain.ErrInvalidArgument.WithDetails("invalid form_session_id")
		}
		return req.SessionID, nil
	}
	if req.Storage == nil {
		req.Storage = map[string]any{}
	}
	return h.svc.EnsureSessionID(service.MapCarrier(req.Storage), req.Input, req.Input.String(domain.InputKeyFormBuildID))
}

// handlePurge handles POST /v1/autosave/purge.
func (h *Handler) handlePurge(w http.ResponseWriter, r *http.Request) {
	var req PurgeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	err := h.svc.Purge(r.Context(), &service.PurgeRequest{
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		FormID:     req.FormID,
		SessionID:  req.SessionID,
		Langcode:   req.Langcode,
		UserID:     req.UserID,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, nil)
}

// handleState handles GET /v1/autosave/state.
func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	req, err := parseStateQuery(r)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	ts, ok, err := h.svc.LastAutosavedTimestamp(r.Context(), req)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, &StateResponse{Exists: ok, LastTimestamp: ts})
}

// handleRestore handles GET /v1/autosave/restore.
func (h *Handler) handleRestore(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")

	req, err := parseStateQuery(r)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	var part service.RestorePart
	switch r.URL.Query().Get("part") {
	case "", "all":
		part = service.RestoreAll
	case "entity":
		part = service.RestoreEntityOnly
	case "form_state":
		part = service.RestoreFormStateOnly
	default:
		h.handleServiceError(w, r, domain.ErrInvalidArgument.WithDetails("part must be all, entity or form_state"))
		return
	}

	result, err := h.svc.Restore(r.Context(), &service.RestoreRequest{StateRequest: *req, Part: part})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, result)
}

// parseStateQuery reads the snapshot scope from query parameters.
func parseStateQuery(r *http.Request) (*service.StateRequest, error) {
	q := r.URL.Query()
	req := &service.StateRequest{
		EntityType: q.Get("entity_type_id"),
		EntityID:   q.Get("entity_id"),
		FormID:     q.Get("form_id"),
		SessionID:  q.Get("form_session_id"),
		Langcode:   q.Get("langcode"),
		UserID:     q.Get("uid"),
	}
	if v := q.Get("timestamp"); v != "" {
		ts, err := strconv.ParseInt(v, 10, 64)
		if err != nil || ts < 0 {
			return nil, domain.ErrInvalidArgument.WithDetails("timestamp must be a non-negative integer")
		}
		req.Timestamp = ts
	}
	return req, nil
}
