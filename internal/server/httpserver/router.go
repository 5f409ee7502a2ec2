package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"net/netip"

	"github.com/yndnr/autosave-go/internal/core/service"
	"github.com/yndnr/autosave-go/internal/server/httpserver/handler"
	"github.com/yndnr/autosave-go/internal/telemetry/logger"
	"github.com/yndnr/autosave-go/internal/telemetry/metric"
)

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	// Service handles autosave operations.
	Service *service.AutosaveService

	// Admin backs the admin API. Nil disables GC and backup.
	Admin handler.AdminBackend

	// Settings are the client-side autosave settings.
	Settings handler.Settings

	// Status returns the sanitized configuration for the status summary.
	Status func() any

	// Ready reports readiness.
	Ready func(ctx context.Context) error

	// Metrics serves /metrics and records HTTP metrics. Nil disables both.
	Metrics *metric.Registry

	// Logger for request logging.
	Logger *slog.Logger

	// AdminAllow is the network allowlist for /admin and /metrics.
	// Empty means loopback only.
	AdminAllow []netip.Prefix

	// RateLimit is the per-IP limit on /v1 routes in requests/second.
	// Zero disables it.
	RateLimit float64
	RateBurst int
}

// NewRouter creates and configures the HTTP router with all routes and middleware.
func NewRouter(cfg *RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = logger.Discard()
	}

	h := handler.New(handler.Config{
		Service:  cfg.Service,
		Admin:    cfg.Admin,
		Settings: cfg.Settings,
		Status:   cfg.Status,
		Ready:    cfg.Ready,
		Logger:   log,
	})

	// Order: RequestID -> AccessLog -> Recover -> [ACL | RateLimit] -> Handler
	base := []Middleware{RequestID(), AccessLog(log, cfg.Metrics), Recover(log)}
	chain := func(next http.Handler, extra ...Middleware) http.Handler {
		return Chain(next, append(append([]Middleware{}, base...), extra...)...)
	}

	healthHandler := chain(h)
	apiHandler := chain(h, RateLimit(cfg.RateLimit, cfg.RateBurst))
	adminHandler := chain(h, NetworkACL(cfg.AdminAllow, log))

	mux := http.NewServeMux()

	// Health endpoints
	mux.Handle("GET /health", healthHandler)
	mux.Handle("GET /ready", healthHandler)

	// Metrics endpoint shares the admin network ACL
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", chain(cfg.Metrics.Handler(), NetworkACL(cfg.AdminAllow, log)))
	}

	// Autosave endpoints
	mux.Handle("GET /v1/autosave/settings", apiHandler)
	mux.Handle("POST /v1/autosave/sessions", apiHandler)
	mux.Handle("POST /v1/autosave/ticks", apiHandler)
	mux.Handle("POST /v1/autosave/purge", apiHandler)
	mux.Handle("GET /v1/autosave/state", apiHandler)
	mux.Handle("GET /v1/autosave/restore", apiHandler)

	// Admin endpoints
	mux.Handle("POST /admin/v1/purge", adminHandler)
	mux.Handle("GET /admin/v1/status/summary", adminHandler)
	mux.Handle("POST /admin/v1/gc/trigger", adminHandler)
	mux.Handle("GET /admin/v1/backup", adminHandler)

	return mux
}
