package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/yndnr/autosave-go/internal/core/domain"
	"github.com/yndnr/autosave-go/internal/core/service"
	"github.com/yndnr/autosave-go/internal/infra/buildinfo"
	"github.com/yndnr/autosave-go/internal/telemetry/logger"
	"github.com/yndnr/autosave-go/internal/telemetry/metric"
)

// AdminBackend is the storage side of the admin API.
type AdminBackend interface {
	Stats(ctx context.Context) (metric.StoreStats, error)
	GC(ctx context.Context) (int, error)
	Backup(ctx context.Context, w io.Writer) (uint64, error)
}

// handleAdminPurge handles POST /admin/v1/purge.
func (h *Handler) handleAdminPurge(w http.ResponseWriter, r *http.Request) {
	var req AdminPurgeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	n, err := h.svc.PurgeEntities(r.Context(), &service.PurgeEntitiesRequest{
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		Langcode:   req.Langcode,
		UserID:     req.UserID,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, &AdminPurgeResponse{Purged: n})
}

// handleAdminStatus handles GET /admin/v1/status/summary.
func (h *Handler) handleAdminStatus(w http.ResponseWriter, r *http.Request) {
	summary := &StatusSummary{
		Status:    "running",
		Build:     buildinfo.Get(),
		StartedAt: h.startedAt.UTC(),
		Uptime:    time.Since(h.startedAt).Truncate(time.Second).String(),
	}
	if h.admin != nil {
		stats, err := h.admin.Stats(r.Context())
		summary.Store = storeStatus(stats)
		if err != nil {
			logger.Enrich(r.Context(), h.logger).WarnContext(r.Context(), "store stats failed", "error", err)
			summary.Status = "degraded"
			summary.Store.Error = "stats unavailable"
		}
	}
	if h.status != nil {
		summary.Config = h.status()
	}

	h.writeJSON(w, r, http.StatusOK, summary)
}

// handleGCTrigger handles POST /admin/v1/gc/trigger.
func (h *Handler) handleGCTrigger(w http.ResponseWriter, r *http.Request) {
	if h.admin == nil {
		h.handleServiceError(w, r, domain.ErrAdminOperationUnsupported)
		return
	}

	n, err := h.admin.GC(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	logger.Enrich(r.Context(), h.logger).InfoContext(r.Context(), "garbage collection triggered", "reclaimed", n)
	h.writeJSON(w, r, http.StatusOK, &GCResponse{Reclaimed: n, TriggeredAt: time.Now().UTC()})
}

// handleBackup handles GET /admin/v1/backup. The backup streams as the
// response body; failures before the first byte get a JSON error.
func (h *Handler) handleBackup(w http.ResponseWriter, r *http.Request) {
	if h.admin == nil {
		h.handleServiceError(w, r, domain.ErrAdminOperationUnsupported)
		return
	}

	bw := &backupWriter{w: w, name: fmt.Sprintf("autosave-%s.bak", time.Now().UTC().Format("20060102T150405Z"))}
	n, err := h.admin.Backup(r.Context(), bw)
	if err != nil {
		if !bw.started {
			h.handleServiceError(w, r, err)
			return
		}
		// Headers are gone; the truncated body is all the client sees.
		logger.Enrich(r.Context(), h.logger).ErrorContext(r.Context(), "backup aborted", "written", bw.written, "error", err)
		return
	}
	if !bw.started {
		bw.start()
	}

	logger.Enrich(r.Context(), h.logger).InfoContext(r.Context(), "backup streamed", "bytes", bw.written, "version", n)
}

// backupWriter defers the response headers until the first byte.
type backupWriter struct {
	w       http.ResponseWriter
	name    string
	started bool
	written int64
}

func (b *backupWriter) start() {
	b.started = true
	b.w.Header().Set("Content-Type", "application/octet-stream")
	b.w.Header().Set("Content-Disposition", `attachment; filename="`+b.name+`"`)
	b.w.Header().Set("Cache-Control", "no-store")
	b.w.WriteHeader(http.StatusOK)
}

func (b *backupWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if !b.started {
		b.start()
	}
	n, err := b.w.Write(p)
	b.written += int64(n)
	return n, err
}
