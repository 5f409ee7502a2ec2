package service

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"time"

	"github.com/yndnr/autosave-go/internal/core/domain"
	"github.com/yndnr/autosave-go/internal/telemetry/logger"
	"github.com/yndnr/autosave-go/internal/telemetry/metric"
)

// DefaultPendingTTL is how long a pending input survives without a tick.
const DefaultPendingTTL = 6 * time.Hour

// Baseline sources recorded by the baseline_source_total metric.
const (
	baselineDurable = "durable"
	baselinePending = "pending"
	baselineNone    = "none"
)

// AutosaveService decides per tick whether the form changed, persists
// snapshots and serves restore, state and purge requests.
type AutosaveService struct {
	repo     SnapshotRepository
	pending  PendingInputCache
	codec    PayloadCodec
	notifier ChangeNotifier
	policy   SerializationPolicy
	clock    Clock
	logger   *slog.Logger
	metrics  *metric.Registry

	pendingTTL time.Duration
}

// Option configures the AutosaveService.
type Option func(*AutosaveService)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *AutosaveService) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock sets the time source.
func WithClock(c Clock) Option {
	return func(s *AutosaveService) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithNotifier sets the change notifier.
func WithNotifier(n ChangeNotifier) Option {
	return func(s *AutosaveService) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithPolicy sets the deep-serialization policy.
func WithPolicy(p SerializationPolicy) Option {
	return func(s *AutosaveService) {
		if p != nil {
			s.policy = p
		}
	}
}

// WithMetrics enables engine metrics.
func WithMetrics(m *metric.Registry) Option {
	return func(s *AutosaveService) {
		s.metrics = m
	}
}

// WithPendingTTL sets the pending input expiry.
func WithPendingTTL(ttl time.Duration) Option {
	return func(s *AutosaveService) {
		if ttl > 0 {
			s.pendingTTL = ttl
		}
	}
}

// NewAutosaveService creates a new AutosaveService.
func NewAutosaveService(repo SnapshotRepository, pending PendingInputCache, codec PayloadCodec, opts ...Option) *AutosaveService {
	s := &AutosaveService{
		repo:       repo,
		pending:    pending,
		codec:      codec,
		notifier:   nopNotifier{},
		policy:     NewTypePolicy(nil),
		clock:      SystemClock,
		logger:     slog.Default(),
		pendingTTL: DefaultPendingTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "autosave")
	return s
}

// ============================================================================
// Tick
// ============================================================================

// TickRequest is one periodic autosave submission from the Form Layer.
type TickRequest struct {
	SessionID     string         // Required
	FormID        string         // Required
	Entity        *domain.Entity // Required; the entity being edited
	Langcode      string         // Defaults to Entity.Langcode
	UserID        string         // Required
	Input         domain.Input   // Current raw form input
	Storage       map[string]any // Form-state storage persisted alongside the input
	Invalid       bool           // Set when the Form Layer flagged the tick
	InvalidReason string
}

func (r *TickRequest) langcode() string {
	if r.Langcode != "" {
		return r.Langcode
	}
	if r.Entity != nil {
		return r.Entity.Langcode
	}
	return ""
}

// TickResponse is the acknowledgement of a tick.
type TickResponse struct {
	Stored        bool
	Timestamp     int64 // Timestamp of the stored snapshot, 0 unless Stored
	CacheDisabled bool  // Always true; tick responses must not be cached
}

// ProcessTick handles one autosave tick.
//
// The first tick of a session only records its input as pending. Later
// ticks compare the input, stripped of volatile keys, against the latest
// durable snapshot or the pending input and append a snapshot when it
// changed. The tick runs detached from request cancellation.
func (s *AutosaveService) ProcessTick(ctx context.Context, req *TickRequest) (*TickResponse, error) {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()
	outcome := metric.TickError
	defer func() { s.observeTick(outcome, start) }()

	resp := &TickResponse{CacheDisabled: true}

	// 1. Validate
	if err := validateTick(req); err != nil {
		outcome = metric.TickInvalid
		s.logger.DebugContext(ctx, "tick rejected", "error", err)
		return resp, err
	}
	ctx = logger.WithSessionID(ctx, req.SessionID)
	log := logger.Enrich(ctx, s.logger)

	// 2. Baseline
	baseline, baselineTS, source, err := s.baseline(ctx, req)
	if err != nil {
		log.ErrorContext(ctx, "load baseline failed", "error", err)
		return resp, err
	}
	s.observeBaseline(source)
	if source == baselineNone {
		if err := s.pending.SetWithExpire(ctx, req.SessionID, req.Input, s.pendingTTL); err != nil {
			log.ErrorContext(ctx, "store pending input failed", "error", err)
			return resp, storageErr(err, "store pending input")
		}
		outcome = metric.TickPending
		return resp, nil
	}

	// 3. Compare
	equal, err := req.Input.StripVolatile().EquivalentTo(baseline.StripVolatile())
	if err != nil {
		return resp, domain.ErrInvalidTick.WithDetails("input is not serializable").WithCause(err)
	}

	// 4. Unchanged
	if equal {
		outcome = metric.TickUnchanged
		return resp, nil
	}

	// 5. Changed
	if req.Entity.New {
		// New entities are never stored durably. Dropping the pending entry
		// makes the next tick start a fresh baseline.
		if err := s.pending.Delete(ctx, req.SessionID); err != nil {
			log.ErrorContext(ctx, "delete pending input failed", "error", err)
			return resp, storageErr(err, "delete pending input")
		}
		outcome = metric.TickPending
		return resp, nil
	}

	ts := max(s.clock.Now(), baselineTS)
	snap, err := s.buildSnapshot(req, ts)
	if err != nil {
		log.ErrorContext(ctx, "encode snapshot failed", "error", err)
		return resp, err
	}
	if err := s.repo.Insert(ctx, snap); err != nil {
		log.ErrorContext(ctx, "insert snapshot failed", "error", err)
		return resp, storageErr(err, "insert snapshot")
	}

	// Durable state takes baseline priority, so a failed delete only
	// leaves a stale entry behind until its TTL.
	if err := s.pending.Delete(ctx, req.SessionID); err != nil {
		log.WarnContext(ctx, "delete pending input failed", "error", err)
	}

	s.notifier.Notify(ctx, req.Entity.Ref(), req.langcode())

	log.DebugContext(ctx, "snapshot stored",
		"entity", req.Entity.Ref().String(),
		"langcode", req.langcode(),
		"timestamp", ts)

	outcome = metric.TickStored
	resp.Stored = true
	resp.Timestamp = ts
	return resp, nil
}

func validateTick(req *TickRequest) error {
	if req == nil {
		return domain.ErrInvalidTick.WithDetails("empty tick")
	}
	if req.Invalid {
		details := req.InvalidReason
		if details == "" {
			details = "flagged invalid by the form"
		}
		return domain.ErrInvalidTick.WithDetails(details)
	}
	switch {
	case !domain.ValidSessionID(req.SessionID):
		return domain.ErrInvalidTick.WithDetails("session id is required")
	case req.FormID == "":
		return domain.ErrInvalidTick.WithDetails("form id is required")
	case req.UserID == "":
		return domain.ErrInvalidTick.WithDetails("user id is required")
	case req.Entity == nil:
		return domain.ErrInvalidTick.WithDetails("entity is required")
	}
	if err := req.Entity.Validate(); err != nil {
		return domain.ErrInvalidTick.WithDetails("invalid entity").WithCause(err)
	}
	return nil
}

// baseline returns the input the current tick is compared against and the
// timestamp it was stored at.
func (s *AutosaveService) baseline(ctx context.Context, req *TickRequest) (domain.Input, int64, string, error) {
	if !req.Entity.New {
		snap, err := s.repo.Latest(ctx, domain.Scope{
			FormID:       req.FormID,
			SessionID:    req.SessionID,
			EntityTypeID: req.Entity.Type,
			EntityID:     req.Entity.ID,
			Langcode:     req.langcode(),
			UID:          req.UserID,

			ExactLangcode: true,
		})
		switch {
		case err == nil:
			fs, err := s.codec.DecodeFormState(snap.FormState)
			if err != nil {
				return nil, 0, "", err
			}
			return fs.Input, snap.Timestamp, baselineDurable, nil
		case !errors.Is(err, domain.ErrSnapshotNotFound):
			return nil, 0, "", storageErr(err, "load latest snapshot")
		}
	}

	in, ok, err := s.pending.Get(ctx, req.SessionID)
	if err != nil {
		return nil, 0, "", storageErr(err, "load pending input")
	}
	if ok {
		return in, 0, baselinePending, nil
	}
	return nil, 0, baselineNone, nil
}

func (s *AutosaveService) buildSnapshot(req *TickRequest, ts int64) (*domain.Snapshot, error) {
	entityBlob, err := s.codec.EncodeEntity(req.Entity, s.policy.RequiresDeepSerialization(req.Entity.Type))
	if err != nil {
		return nil, err
	}

	storage := make(map[string]any, len(req.Storage)+1)
	maps.Copy(storage, req.Storage)
	storage[domain.InputKeyLastAutosave] = ts

	stateBlob, err := s.codec.EncodeFormState(&domain.FormState{Storage: storage, Input: req.Input})
	if err != nil {
		return nil, err
	}

	return &domain.Snapshot{
		FormID:       req.FormID,
		SessionID:    req.SessionID,
		EntityTypeID: req.Entity.Type,
		EntityID:     req.Entity.ID,
		Langcode:     req.langcode(),
		UID:          req.UserID,
		Timestamp:    ts,
		Entity:       entityBlob,
		FormState:    stateBlob,
	}, nil
}

// ============================================================================
// Purge
// ============================================================================

// PurgeRequest discards the autosaved states of one entity, typically when
// the user rejects a restore or saves the form.
type PurgeRequest struct {
	EntityType string // Required
	EntityID   string // Required
	FormID     string
	SessionID  string // Also drops the session's pending input
	Langcode   string
	UserID     string
}

// Purge deletes the snapshots matching the request.
func (s *AutosaveService) Purge(ctx context.Context, req *PurgeRequest) error {
	ctx = context.WithoutCancel(ctx)
	if req == nil || req.EntityType == "" || req.EntityID == "" {
		return domain.ErrMissingArgument.WithDetails("entity type and id are required")
	}

	n, err := s.repo.Purge(ctx, domain.Scope{
		FormID:       req.FormID,
		SessionID:    req.SessionID,
		EntityTypeID: req.EntityType,
		EntityID:     req.EntityID,
		Langcode:     req.Langcode,
		UID:          req.UserID,
	})
	if err != nil {
		return storageErr(err, "purge snapshots")
	}
	if req.SessionID != "" {
		if err := s.pending.Delete(ctx, req.SessionID); err != nil {
			return storageErr(err, "delete pending input")
		}
	}

	s.observePurge("discard", n)
	logger.Enrich(ctx, s.logger).InfoContext(ctx, "autosaved states discarded",
		"entity", req.EntityType+"/"+req.EntityID,
		"count", n)
	return nil
}

// PurgeEntitiesRequest selects snapshots for a lifecycle purge. At least
// one field must be set.
type PurgeEntitiesRequest struct {
	EntityType string
	EntityID   string
	Langcode   string
	UserID     string
}

// PurgeEntities deletes snapshots across forms and sessions, for example
// when an entity, a translation or a user account is deleted.
func (s *AutosaveService) PurgeEntities(ctx context.Context, req *PurgeEntitiesRequest) (int, error) {
	ctx = context.WithoutCancel(ctx)
	if req == nil || (req.EntityType == "" && req.EntityID == "" && req.Langcode == "" && req.UserID == "") {
		return 0, domain.ErrMissingArgument.WithDetails("at least one of entity type, entity id, langcode or uid is required")
	}
	if req.EntityID != "" && req.EntityType == "" {
		return 0, domain.ErrInvalidArgument.WithDetails("entity id requires an entity type")
	}

	n, err := s.repo.Purge(ctx, domain.Scope{
		EntityTypeID: req.EntityType,
		EntityID:     req.EntityID,
		Langcode:     req.Langcode,
		UID:          req.UserID,
	})
	if err != nil {
		return 0, storageErr(err, "purge snapshots")
	}

	s.observePurge("lifecycle", n)
	logger.Enrich(ctx, s.logger).InfoContext(ctx, "autosaved states purged",
		"entity_type", req.EntityType,
		"entity_id", req.EntityID,
		"langcode", req.Langcode,
		"uid", req.UserID,
		"count", n)
	return n, nil
}

// ============================================================================
// Restore and state queries
// ============================================================================

// RestorePart selects what Restore decodes.
type RestorePart int

// Restore parts.
const (
	RestoreAll RestorePart = iota
	RestoreEntityOnly
	RestoreFormStateOnly
)

// StateRequest scopes state and restore lookups to one entity.
type StateRequest struct {
	EntityType string // Required
	EntityID   string // Required
	FormID     string
	SessionID  string
	Langcode   string
	UserID     string
	Timestamp  int64 // Exact snapshot; 0 selects the latest
}

func (r *StateRequest) scope() (domain.Scope, error) {
	if r == nil || r.EntityType == "" || r.EntityID == "" {
		return domain.Scope{}, domain.ErrMissingArgument.WithDetails("entity type and id are required")
	}
	return domain.Scope{
		FormID:       r.FormID,
		SessionID:    r.SessionID,
		EntityTypeID: r.EntityType,
		EntityID:     r.EntityID,
		Langcode:     r.Langcode,
		UID:          r.UserID,
		Timestamp:    r.Timestamp,
	}, nil
}

// RestoreRequest asks for the latest autosaved state of an entity.
type RestoreRequest struct {
	StateRequest
	Part RestorePart
}

// Restore decodes the latest snapshot in scope. Returns
// domain.ErrSnapshotNotFound when there is none and domain.ErrCodecError
// when its stored bytes are malformed.
func (s *AutosaveService) Restore(ctx context.Context, req *RestoreRequest) (*domain.RestoreResult, error) {
	if req == nil {
		return nil, domain.ErrMissingArgument.WithDetails("entity type and id are required")
	}
	scope, err := req.scope()
	if err != nil {
		return nil, err
	}

	snap, err := s.repo.Latest(ctx, scope)
	if err != nil {
		if errors.Is(err, domain.ErrSnapshotNotFound) {
			s.observeRestore("not_found")
			return nil, err
		}
		s.observeRestore("error")
		return nil, storageErr(err, "load latest snapshot")
	}

	result := &domain.RestoreResult{Timestamp: snap.Timestamp, SessionID: snap.SessionID}
	if req.Part != RestoreFormStateOnly {
		if result.Entity, err = s.codec.DecodeEntity(snap.Entity); err != nil {
			s.observeRestore("error")
			logger.Enrich(ctx, s.logger).ErrorContext(ctx, "decode autosaved entity failed",
				"entity", snap.EntityRef().String(), "timestamp", snap.Timestamp, "error", err)
			return nil, err
		}
	}
	if req.Part != RestoreEntityOnly {
		if result.FormState, err = s.codec.DecodeFormState(snap.FormState); err != nil {
			s.observeRestore("error")
			logger.Enrich(ctx, s.logger).ErrorContext(ctx, "decode autosaved form state failed",
				"entity", snap.EntityRef().String(), "timestamp", snap.Timestamp, "error", err)
			return nil, err
		}
	}

	s.observeRestore("restored")
	return result, nil
}

// HasAutosavedState reports whether a snapshot exists in scope.
func (s *AutosaveService) HasAutosavedState(ctx context.Context, req *StateRequest) (bool, error) {
	scope, err := req.scope()
	if err != nil {
		return false, err
	}
	ok, err := s.repo.Exists(ctx, scope)
	if err != nil {
		return false, storageErr(err, "probe snapshots")
	}
	return ok, nil
}

// LastAutosavedTimestamp returns the newest snapshot timestamp in scope.
func (s *AutosaveService) LastAutosavedTimestamp(ctx context.Context, req *StateRequest) (int64, bool, error) {
	scope, err := req.scope()
	if err != nil {
		return 0, false, err
	}
	ts, ok, err := s.repo.LastTimestamp(ctx, scope)
	if err != nil {
		return 0, false, storageErr(err, "load last timestamp")
	}
	return ts, ok, nil
}

// ============================================================================
// Helpers
// ============================================================================

// storageErr keeps storage-class domain errors and wraps anything else.
func storageErr(err error, details string) error {
	if domain.IsStorageClass(err) {
		return err
	}
	return domain.ErrStorageError.WithDetails(details).WithCause(err)
}

func (s *AutosaveService) observeTick(outcome string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.TicksTotal.WithLabelValues(outcome).Inc()
	s.metrics.TickDuration.Observe(time.Since(start).Seconds())
}

func (s *AutosaveService) observeBaseline(source string) {
	if s.metrics != nil {
		s.metrics.PendingCacheHits.WithLabelValues(source).Inc()
	}
}

func (s *AutosaveService) observePurge(reason string, n int) {
	if s.metrics != nil && n > 0 {
		s.metrics.SnapshotsPurged.WithLabelValues(reason).Add(float64(n))
	}
}

func (s *AutosaveService) observeRestore(result string) {
	if s.metrics != nil {
		s.metrics.RestoresTotal.WithLabelValues(result).Inc()
	}
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, domain.EntityRef, string) {}
