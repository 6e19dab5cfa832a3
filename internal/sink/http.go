package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/jsamuelsen/go-scope-hub/internal/event"
)

const httpInstrumentationName = "github.com/jsamuelsen/go-scope-hub/sink"

// Default HTTP sink settings.
const (
	DefaultHTTPTimeout         = 5 * time.Second
	DefaultHTTPMaxAttempts     = 3
	DefaultHTTPInitialInterval = 100 * time.Millisecond
	DefaultHTTPMaxInterval     = 2 * time.Second
	DefaultHTTPMultiplier      = 2.0

	// backoffJitterFactor spreads retries by ±25%.
	backoffJitterFactor = 0.25
)

// Headers set on every delivery.
const (
	HeaderEventID       = "X-Event-ID"
	HeaderRequestID     = "X-Request-ID"
	HeaderCorrelationID = "X-Correlation-ID"
)

var (
	// ErrRejected is wrapped when the endpoint answers 4xx. Rejections are
	// not retried and do not count against the breaker.
	ErrRejected = errors.New("event rejected by ingest endpoint")

	// ErrMaxRetriesExceeded is wrapped when every attempt failed.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

// HTTPConfig configures the HTTP sink. Zero durations and counts take the
// defaults.
type HTTPConfig struct {
	// URL receives one POST per event with the JSON-encoded event as body.
	URL string

	// Token is sent as a bearer token when set.
	Token string

	// Timeout bounds a single attempt.
	Timeout time.Duration

	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64

	Breaker BreakerConfig

	Logger *slog.Logger

	// Client overrides the HTTP client used for deliveries.
	Client *http.Client
}

// HTTP forwards events to an ingest endpoint with retry and a circuit
// breaker. Request and correlation IDs found in the event's tags are sent as
// headers, and the trace context of the capture is propagated.
type HTTP struct {
	client  *http.Client
	url     string
	token   string
	cfg     HTTPConfig
	breaker *Breaker
	logger  *slog.Logger
	closed  atomic.Bool

	tracer   trace.Tracer
	duration metric.Float64Histogram
	attempts metric.Int64Counter
}

// NewHTTP creates an HTTP sink.
func NewHTTP(cfg HTTPConfig) (*HTTP, error) {
	if cfg.URL == "" {
		return nil, errors.New("http sink: url is required")
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultHTTPTimeout
	}

	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultHTTPMaxAttempts
	}

	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = DefaultHTTPInitialInterval
	}

	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = DefaultHTTPMaxInterval
	}

	if cfg.Multiplier < 1 {
		cfg.Multiplier = DefaultHTTPMultiplier
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("sink", "http"), slog.String("url", cfg.URL))

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	meter := otel.Meter(httpInstrumentationName)

	duration, err := meter.Float64Histogram(
		"sink.http.delivery.duration",
		metric.WithDescription("Duration of event deliveries to the ingest endpoint, retries included"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating duration metric: %w", err)
	}

	attempts, err := meter.Int64Counter(
		"sink.http.delivery.attempts",
		metric.WithDescription("Delivery attempts to the ingest endpoint"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating attempts metric: %w", err)
	}

	breaker := NewBreaker(cfg.Breaker)
	breaker.OnStateChange(func(from, to BreakerState) {
		logger.Warn("circuit breaker state changed",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	})

	return &HTTP{
		client:   client,
		url:      cfg.URL,
		token:    cfg.Token,
		cfg:      cfg,
		breaker:  breaker,
		logger:   logger,
		tracer:   otel.Tracer(httpInstrumentationName),
		duration: duration,
		attempts: attempts,
	}, nil
}

// Name returns "http".
func (h *HTTP) Name() string {
	return "http"
}

// BreakerState reports the state of the delivery circuit breaker.
func (h *HTTP) BreakerState() BreakerState {
	return h.breaker.State()
}

// Capture posts ev to the endpoint. Network failures and 5xx answers are
// retried with exponential backoff; once attempts are exhausted the breaker
// records a failure and an unavailable error is returned.
func (h *HTTP) Capture(ctx context.Context, ev *event.Event) error {
	if h.closed.Load() {
		return event.NewUnavailableError(h.Name(), "closed")
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("delivering event %s: %w", ev.ID, err)
	}

	if err := h.breaker.Allow(); err != nil {
		return fmt.Errorf("%w: %w", event.NewUnavailableError(h.Name(), "circuit open"), err)
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		h.breaker.Cancel()
		return fmt.Errorf("encoding event %s: %w", ev.ID, err)
	}

	ctx, span := h.tracer.Start(ctx, "sink.http deliver",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("event.id", ev.ID),
			attribute.String("http.url", h.url),
		),
	)
	defer span.End()

	start := time.Now()
	status, err := h.deliver(ctx, ev, payload)
	result := h.record(ctx, status, err, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, result)
	}

	return err
}

// deliver runs the attempt loop and returns the last status seen. Caller
// cancellation returns the breaker slot without a verdict.
func (h *HTTP) deliver(ctx context.Context, ev *event.Event, payload []byte) (int, error) {
	var lastErr error

	for attempt := range h.cfg.MaxAttempts {
		if attempt > 0 {
			if err := h.wait(ctx, attempt); err != nil {
				h.breaker.Cancel()
				return 0, fmt.Errorf("delivering event %s: %w", ev.ID, err)
			}
		}

		status, err := h.attempt(ctx, ev, payload)

		switch {
		case err != nil && ctx.Err() != nil:
			h.breaker.Cancel()
			return 0, fmt.Errorf("delivering event %s: %w", ev.ID, ctx.Err())

		case err == nil && status < http.StatusBadRequest:
			h.breaker.Success()
			return status, nil

		case err == nil && status < http.StatusInternalServerError:
			h.breaker.Success()

			return status, fmt.Errorf("%w: %w", event.NewDroppedError(fmt.Sprintf("ingest answered %d", status)), ErrRejected)

		case err == nil:
			lastErr = fmt.Errorf("server error: %d", status)

		case !isRetryable(err):
			h.breaker.Failure()
			return 0, fmt.Errorf("%w: %w", event.NewUnavailableError(h.Name(), "request failed"), err)

		default:
			lastErr = err
		}

		h.logger.Debug("delivery attempt failed",
			slog.String("event_id", ev.ID),
			slog.Int("attempt", attempt+1),
			slog.Any("error", lastErr),
		)
	}

	h.breaker.Failure()

	return 0, fmt.Errorf("%w: %w: %w", event.NewUnavailableError(h.Name(), "delivery failed"), ErrMaxRetriesExceeded, lastErr)
}

func (h *HTTP) attempt(ctx context.Context, ev *event.Event, payload []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEventID, ev.ID)

	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	if id := ev.Tags["request_id"]; id != "" {
		req.Header.Set(HeaderRequestID, id)
	}

	if id := ev.Tags["correlation_id"]; id != "" {
		req.Header.Set(HeaderCorrelationID, id)
	}

	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	h.attempts.Add(ctx, 1)

	resp, err := h.client.Do(req)
	if err != nil {
		return 0, err
	}

	if closeErr := resp.Body.Close(); closeErr != nil {
		h.logger.Debug("failed to close response body", slog.Any("error", closeErr))
	}

	return resp.StatusCode, nil
}

func (h *HTTP) wait(ctx context.Context, attempt int) error {
	timer := time.NewTimer(h.backoff(attempt))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// backoff returns initial*multiplier^attempt capped at the max interval, with
// jitter.
func (h *HTTP) backoff(attempt int) time.Duration {
	d := float64(h.cfg.InitialInterval) * math.Pow(h.cfg.Multiplier, float64(attempt))
	d = math.Min(d, float64(h.cfg.MaxInterval))

	jitter := (rand.Float64()*2 - 1) * backoffJitterFactor //nolint:gosec // jitter needs no crypto randomness

	return time.Duration(d + d*jitter)
}

func (h *HTTP) record(ctx context.Context, status int, err error, d time.Duration) string {
	result := "delivered"

	switch {
	case errors.Is(err, ErrRejected):
		result = "rejected"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		result = "canceled"
	case err != nil:
		result = "failed"
	}

	attrs := []attribute.KeyValue{attribute.String("result", result)}
	if status > 0 {
		attrs = append(attrs, attribute.Int("http.status_code", status))
	}

	h.duration.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))

	return result
}

// Flush is a no-op; deliveries are synchronous.
func (h *HTTP) Flush(context.Context) error {
	return nil
}

// Close stops further deliveries and drops idle connections.
func (h *HTTP) Close() error {
	if h.closed.CompareAndSwap(false, true) {
		h.client.CloseIdleConnections()
	}

	return nil
}

// Check reports the endpoint unhealthy while the breaker is open. It
// implements ports.HealthChecker.
func (h *HTTP) Check(context.Context) error {
	if state := h.breaker.State(); state == BreakerOpen {
		return fmt.Errorf("ingest endpoint: %w", ErrCircuitOpen)
	}

	return nil
}

// isRetryable reports whether a transport error may succeed on retry.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError

	return errors.As(err, &opErr)
}
