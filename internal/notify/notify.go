// Package notify delivers change notifications to the preview service.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/yndnr/autosave-go/internal/core/domain"
	"github.com/yndnr/autosave-go/internal/infra/tlsroots"
	"github.com/yndnr/autosave-go/internal/telemetry/logger"
	"github.com/yndnr/autosave-go/internal/telemetry/metric"
)

// Default configuration values.
const (
	DefaultBaseURL   = "http://localhost:8001"
	PreviewPath      = "/__preview"
	DefaultTimeout   = 3 * time.Second
	DefaultQueueSize = 256
	DefaultWorkers   = 2
)

// Config configures the preview notifier.
type Config struct {
	// BaseURL is the preview service root; PreviewPath is appended.
	BaseURL string

	// Timeout bounds each delivery attempt.
	Timeout time.Duration

	// QueueSize bounds pending notifications. Overflow is dropped.
	QueueSize int

	// Workers is the number of delivery goroutines.
	Workers int

	// RateLimit caps deliveries per second; 0 disables the limit.
	RateLimit float64
	Burst     int

	// TLSCAFile adds a custom CA bundle for https preview endpoints.
	TLSCAFile string
}

// DefaultConfig returns the default notifier configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		Timeout:   DefaultTimeout,
		QueueSize: DefaultQueueSize,
		Workers:   DefaultWorkers,
	}
}

// Payload is the JSON body posted to the preview endpoint.
type Payload struct {
	EntityTypeID string `json:"entity_type_id"`
	EntityID     string `json:"entity_id"`
	Langcode     string `json:"langcode"`
}

type job struct {
	payload   Payload
	requestID string
}

// PreviewNotifier posts change notifications from a bounded queue. Notify
// never blocks; failures are logged at CRITICAL level and swallowed.
type PreviewNotifier struct {
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
	logger   *slog.Logger
	metrics  *metric.Registry

	mu     sync.RWMutex
	closed bool
	queue  chan job
	wg     sync.WaitGroup
}

// Option configures the PreviewNotifier.
type Option func(*PreviewNotifier)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(n *PreviewNotifier) {
		if c != nil {
			n.client = c
		}
	}
}

// WithMetrics enables notifier metrics.
func WithMetrics(m *metric.Registry) Option {
	return func(n *PreviewNotifier) {
		n.metrics = m
	}
}

// New creates a notifier and starts its workers.
func New(cfg Config, l *slog.Logger, opts ...Option) (*PreviewNotifier, error) {
	if l == nil {
		l = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if !strings.HasPrefix(cfg.BaseURL, "http://") && !strings.HasPrefix(cfg.BaseURL, "https://") {
		return nil, domain.ErrInvalidArgument.WithDetails(fmt.Sprintf("preview url %q must be http or https", cfg.BaseURL))
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.TLSCAFile != "" {
		tlsCfg, err := tlsroots.ClientConfig(cfg.TLSCAFile)
		if err != nil {
			return nil, domain.ErrInvalidArgument.WithDetails("preview tls ca file").WithCause(err)
		}
		transport.TLSClientConfig = tlsCfg
	}

	n := &PreviewNotifier{
		endpoint: Endpoint(cfg.BaseURL),
		client:   &http.Client{Timeout: cfg.Timeout, Transport: transport},
		limiter:  rate.NewLimiter(rate.Inf, 0),
		logger:   l.With("component", "notifier"),
		queue:    make(chan job, cfg.QueueSize),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		n.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	for _, opt := range opts {
		opt(n)
	}

	for i := 0; i < cfg.Workers; i++ {
		n.wg.Add(1)
		go n.worker()
	}
	return n, nil
}

// Endpoint returns the preview URL for a base URL.
func Endpoint(base string) string {
	return strings.TrimRight(base, "/") + PreviewPath
}

// Notify queues a notification for the entity. It returns immediately.
func (n *PreviewNotifier) Notify(ctx context.Context, ref domain.EntityRef, langcode string) {
	j := job{
		payload:   Payload{EntityTypeID: ref.Type, EntityID: ref.ID, Langcode: langcode},
		requestID: logger.RequestIDFromContext(ctx),
	}

	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.closed {
		n.fail(ctx, j, "notifier closed", nil, metric.NotifyDropped)
		return
	}
	select {
	case n.queue <- j:
		n.observeDepth()
	default:
		n.fail(ctx, j, "notification queue full", nil, metric.NotifyDropped)
	}
}

// Close stops accepting notifications and waits for queued ones to be
// delivered or for ctx to end.
func (n *PreviewNotifier) Close(ctx context.Context) error {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.queue)
	}
	n.mu.Unlock()

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *PreviewNotifier) worker() {
	defer n.wg.Done()
	for j := range n.queue {
		n.observeDepth()
		n.deliver(j)
	}
}

func (n *PreviewNotifier) deliver(j job) {
	ctx := context.Background()
	if j.requestID != "" {
		ctx = logger.WithRequestID(ctx, j.requestID)
	}
	ctx, cancel := context.WithTimeout(ctx, n.client.Timeout)
	defer cancel()

	if err := n.limiter.Wait(ctx); err != nil {
		n.fail(ctx, j, "rate limit wait failed", err, metric.NotifyDropped)
		return
	}

	body, err := json.Marshal(j.payload)
	if err != nil {
		n.fail(ctx, j, "encode payload failed", err, metric.NotifyFailed)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		n.fail(ctx, j, "build request failed", err, metric.NotifyFailed)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if j.requestID != "" {
		req.Header.Set("X-Request-ID", j.requestID)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		n.fail(ctx, j, "preview request failed", err, metric.NotifyFailed)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		n.fail(ctx, j, "preview request rejected", fmt.Errorf("status %d", resp.StatusCode), metric.NotifyFailed)
		return
	}

	n.observe(metric.NotifySent)
	logger.Enrich(ctx, n.logger).DebugContext(ctx, "preview notified",
		"entity_type_id", j.payload.EntityTypeID,
		"entity_id", j.payload.EntityID,
		"langcode", j.payload.Langcode)
}

// fail logs a swallowed notification failure.
func (n *PreviewNotifier) fail(ctx context.Context, j job, msg string, cause error, result string) {
	n.observe(result)
	err := domain.ErrNotifierError.WithDetails(msg)
	if cause != nil {
		err = err.WithCause(cause)
	}
	logger.Critical(ctx, logger.Enrich(ctx, n.logger), "preview notification failed",
		"endpoint", n.endpoint,
		"entity_type_id", j.payload.EntityTypeID,
		"entity_id", j.payload.EntityID,
		"langcode", j.payload.Langcode,
		"error", err)
}

func (n *PreviewNotifier) observe(result string) {
	if n.metrics != nil {
		n.metrics.NotificationsTotal.WithLabelValues(result).Inc()
	}
}

func (n *PreviewNotifier) observeDepth() {
	if n.metrics != nil {
		n.metrics.NotifyQueueDepth.Set(float64(len(n.queue)))
	}
}

// Nop discards notifications.
type Nop struct{}

// Notify implements service.ChangeNotifier.
func (Nop) Notify(context.Context, domain.EntityRef, string) {}

// Close implements the notifier shutdown hook.
func (Nop) Close(context.Context) error { return nil }
