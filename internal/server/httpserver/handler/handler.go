package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/yndnr/autosave-go/internal/core/domain"
	"github.com/yndnr/autosave-go/internal/core/service"
	"github.com/yndnr/autosave-go/internal/telemetry/logger"
)

// MaxBodyBytes bounds request bodies. Form input of large editorial forms
// stays well below this.
const MaxBodyBytes = 8 << 20

// Config wires a Handler.
type Config struct {
	// Service runs the autosave operations.
	Service *service.AutosaveService

	// Admin backs the /admin/v1 endpoints. Nil disables GC and backup.
	Admin AdminBackend

	// Settings are returned by GET /v1/autosave/settings.
	Settings Settings

	// Status returns the sanitized configuration for the status summary.
	Status func() any

	// Ready reports readiness; nil means always ready.
	Ready func(ctx context.Context) error

	Logger *slog.Logger
}

// Handler is the main HTTP handler that routes requests to appropriate handlers.
type Handler struct {
	svc       *service.AutosaveService
	admin     AdminBackend
	settings  Settings
	status    func() any
	ready     func(ctx context.Context) error
	logger    *slog.Logger
	mux       *http.ServeMux
	startedAt time.Time
}

// New creates a new Handler.
func New(cfg Config) *Handler {
	h := &Handler{
		svc:       cfg.Service,
		admin:     cfg.Admin,
		settings:  cfg.Settings,
		status:    cfg.Status,
		ready:     cfg.Ready,
		logger:    cfg.Logger,
		mux:       http.NewServeMux(),
		startedAt: time.Now(),
	}
	if h.logger == nil {
		h.logger = logger.Discard()
	}

	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// registerRoutes registers all HTTP routes.
func (h *Handler) registerRoutes() {
	// Health endpoints
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /ready", h.handleReady)

	// Autosave endpoints
	h.mux.HandleFunc("GET /v1/autosave/settings", h.handleSettings)
	h.mux.HandleFunc("POST /v1/autosave/sessions", h.handleSession)
	h.mux.HandleFunc("POST /v1/autosave/ticks", h.handleTick)
	h.mux.HandleFunc("POST /v1/autosave/purge", h.handlePurge)
	h.mux.HandleFunc("GET /v1/autosave/state", h.handleState)
	h.mux.HandleFunc("GET /v1/autosave/restore", h.handleRestore)

	// Admin endpoints
	h.mux.HandleFunc("POST /admin/v1/purge", h.handleAdminPurge)
	h.mux.HandleFunc("GET /admin/v1/status/summary", h.handleAdminStatus)
	h.mux.HandleFunc("POST /admin/v1/gc/trigger", h.handleGCTrigger)
	h.mux.HandleFunc("GET /admin/v1/backup", h.handleBackup)
}

// writeJSON writes a JSON response with standard envelope format.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	requestID := getRequestID(r)
	response := NewResponse(requestID, data)

	w.Header().Set("Content-Type", "application/json")
	if requestID != "" {
		w.Header().Set("X-Request-ID", requestID)
	}
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError writes an error response with standard envelope format.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	requestID := getRequestID(r)
	response := NewErrorResponse(requestID, code, message)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	if requestID != "" {
		w.Header().Set("X-Request-ID", requestID)
	}
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed to encode error response", "error", err)
	}
}

// getRequestID returns the id assigned by the RequestID middleware.
func getRequestID(r *http.Request) string {
	if id := logger.RequestIDFromContext(r.Context()); id != "" {
		return id
	}
	return r.Header.Get("X-Request-ID")
}

// decodeJSON reads a JSON body into v. Numbers stay json.Number so that
// large ids and timestamps in form input survive unchanged.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.ErrBadRequest.WithDetails("empty request body")
		}
		return domain.ErrBadRequest.WithDetails("malformed JSON body").WithCause(err)
	}
	return nil
}

// handleServiceError converts service errors to HTTP responses. Only the
// code and its generic message reach the client.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var de *domain.DomainError
	if errors.As(err, &de) {
		status := errorCodeToHTTPStatus(de.Code)
		log := logger.Enrich(r.Context(), h.logger)
		if status >= http.StatusInternalServerError {
			log.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		} else {
			log.DebugContext(r.Context(), "request rejected", "path", r.URL.Path, "error", err)
		}
		h.writeError(w, r, status, de.Code, de.Message)
		return
	}

	logger.Enrich(r.Context(), h.logger).ErrorContext(r.Context(), "internal error", "path", r.URL.Path, "error", err)
	h.writeError(w, r, http.StatusInternalServerError, domain.ErrInternalServer.Code, domain.ErrInternalServer.Message)
}

// errorCodeToHTTPStatus maps error codes to HTTP status codes.
func errorCodeToHTTPStatus(code string) int {
	switch {
	case strings.HasSuffix(code, "-4040"):
		return http.StatusNotFound
	case strings.HasSuffix(code, "-4290"):
		return http.StatusTooManyRequests
	case code == domain.ErrAdminOperationUnsupported.Code:
		return http.StatusNotImplemented
	case strings.HasSuffix(code, "-4031"):
		return http.StatusForbidden
	case strings.HasSuffix(code, "-4001"), strings.HasSuffix(code, "-4000"):
		return http.StatusBadRequest
	case strings.HasPrefix(code, "AS-ARG-"):
		return http.StatusBadRequest
	case strings.HasSuffix(code, "-5030"):
		return http.StatusServiceUnavailable
	case strings.HasSuffix(code, "-5020"):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
