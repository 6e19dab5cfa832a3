// Package hub routes events through the scope stack of the calling flow.
//
// A Hub owns a scope manager whose entries pair an event scope with the sink
// that receives events captured while that scope is on top. Capturing merges
// the top scope into the event and hands it to the paired sink.
package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jsamuelsen/go-scope-hub/internal/event"
	"github.com/jsamuelsen/go-scope-hub/internal/scope"
	"github.com/jsamuelsen/go-scope-hub/internal/sink"
)

const instrumentationName = "github.com/jsamuelsen/go-scope-hub/hub"

// Config configures a Hub.
type Config struct {
	// RootSink receives events while no other sink is bound. Defaults to sink.Disabled.
	RootSink sink.Sink

	// GlobalMode shares one stack across every flow and disables pushes.
	GlobalMode bool

	// MaxBreadcrumbs bounds the breadcrumbs kept per scope.
	MaxBreadcrumbs int

	// Release and Environment are stamped on events that carry none.
	Release     string
	Environment string

	// Debug enables the scope manager's diagnostic log lines.
	Debug bool

	Logger *slog.Logger

	// Registerer receives the hub's collectors. Nil leaves them unregistered.
	Registerer prometheus.Registerer
}

// Hub is the capture entry point.
type Hub struct {
	manager     *scope.Manager[*event.Scope, sink.Sink]
	rootSink    sink.Sink
	release     string
	environment string
	logger      *slog.Logger
	metrics     *metrics
	tracer      trace.Tracer
	lastEventID atomic.Pointer[string]
}

// New creates a Hub.
func New(cfg Config) (*Hub, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	rootSink := cfg.RootSink
	if rootSink == nil {
		rootSink = sink.Disabled
	}

	maxBreadcrumbs := cfg.MaxBreadcrumbs
	if maxBreadcrumbs <= 0 {
		maxBreadcrumbs = event.DefaultMaxBreadcrumbs
	}

	diagnostics := slog.New(slog.DiscardHandler)
	if cfg.Debug {
		diagnostics = logger.With(slog.String("component", "scope"))
	}

	manager, err := scope.New(scope.Config[*event.Scope, sink.Sink]{
		RootSink:     rootSink,
		DisabledSink: sink.Disabled,
		NewScope:     func() *event.Scope { return event.NewScope(maxBreadcrumbs) },
		GlobalMode:   cfg.GlobalMode,
		Logger:       diagnostics,
	})
	if err != nil {
		return nil, fmt.Errorf("creating scope manager: %w", err)
	}

	m, err := newMetrics(cfg.Registerer)
	if err != nil {
		return nil, err
	}

	return &Hub{
		manager:     manager,
		rootSink:    rootSink,
		release:     cfg.Release,
		environment: cfg.Environment,
		logger:      logger,
		metrics:     m,
		tracer:      otel.Tracer(instrumentationName),
	}, nil
}

// Manager exposes the underlying scope manager.
func (h *Hub) Manager() *scope.Manager[*event.Scope, sink.Sink] {
	return h.manager
}

// IsGlobal reports whether the hub runs in global mode.
func (h *Hub) IsGlobal() bool {
	return h.manager.IsGlobal()
}

// Scope returns the flow's current scope.
func (h *Hub) Scope(ctx context.Context) *event.Scope {
	return h.manager.Current(ctx).Scope()
}

// Sink returns the sink bound to the flow's current scope.
func (h *Hub) Sink(ctx context.Context) sink.Sink {
	return h.manager.Current(ctx).Sink()
}

// Depth returns the flow's stack depth.
func (h *Hub) Depth(ctx context.Context) int {
	return h.manager.Depth(ctx)
}

// ConfigureScope mutates the current scope in place.
func (h *Hub) ConfigureScope(ctx context.Context, fn func(*event.Scope)) {
	h.manager.ConfigureScope(ctx, fn)
}

// BindSink binds s to the current scope. Nil binds sink.Disabled.
func (h *Hub) BindSink(ctx context.Context, s sink.Sink) {
	h.manager.BindSink(ctx, s)
}

// PushScope pushes a copy of the current scope. Release the handle to pop it.
func (h *Hub) PushScope(ctx context.Context) scope.Handle {
	return h.PushScopeState(ctx, nil)
}

// PushScopeState pushes a copy of the current scope with state applied.
func (h *Hub) PushScopeState(ctx context.Context, state any) scope.Handle {
	handle := h.manager.PushScopeState(ctx, state)
	if handle != scope.Noop {
		h.metrics.pushes.Inc()
	}

	return handle
}

// WithScope runs fn on a temporary scope, popped when fn returns or panics.
func (h *Hub) WithScope(ctx context.Context, fn func(*event.Scope)) {
	handle := h.PushScope(ctx)
	defer handle.Release()

	fn(h.Scope(ctx))
}

// WithScopeContext runs fn on a temporary scope and returns its error.
func (h *Hub) WithScopeContext(ctx context.Context, fn func(context.Context, *event.Scope) error) error {
	handle := h.PushScope(ctx)
	defer handle.Release()

	return fn(ctx, h.Scope(ctx))
}

// Fork returns a context for a new flow inheriting the current stack.
func (h *Hub) Fork(ctx context.Context) context.Context {
	return h.manager.Fork(ctx)
}

// Dispose resets the flow's stack.
func (h *Hub) Dispose(ctx context.Context) {
	h.manager.Dispose(ctx)
}

// AddBreadcrumb records b on the current scope.
func (h *Hub) AddBreadcrumb(ctx context.Context, b event.Breadcrumb) {
	h.Scope(ctx).AddBreadcrumb(b)
	h.metrics.breadcrumbs.Inc()
}

// LastEventID returns the ID of the most recently delivered event.
func (h *Hub) LastEventID() string {
	if id := h.lastEventID.Load(); id != nil {
		return *id
	}

	return ""
}

// CaptureMessage captures msg at level.
func (h *Hub) CaptureMessage(ctx context.Context, level event.Level, msg string) (string, error) {
	return h.CaptureEvent(ctx, event.NewMessage(level, msg))
}

// CaptureError captures err with its wrapped chain.
func (h *Hub) CaptureError(ctx context.Context, err error) (string, error) {
	if err == nil {
		return "", event.NewValidationError("error", "is required")
	}

	return h.CaptureEvent(ctx, event.NewException(err))
}

// Recover captures a recovered panic value as a fatal event.
//
//	defer func() {
//	    if r := recover(); r != nil {
//	        h.Recover(ctx, r)
//	    }
//	}()
func (h *Hub) Recover(ctx context.Context, recovered any) (string, error) {
	if recovered == nil {
		return "", nil
	}

	var ev *event.Event
	if err, ok := recovered.(error); ok {
		ev = event.NewException(err)
	} else {
		ev = event.NewMessage(event.LevelFatal, fmt.Sprint(recovered))
	}

	ev.Level = event.LevelFatal

	return h.CaptureEvent(ctx, ev)
}

// CaptureEvent merges the current scope into ev and delivers it to the sink
// bound to that scope. It returns the event ID on delivery.
func (h *Hub) CaptureEvent(ctx context.Context, ev *event.Event) (string, error) {
	if ev == nil {
		return "", event.NewValidationError("event", "is required")
	}

	if err := ev.Validate(); err != nil {
		return "", err
	}

	ctx, span := h.tracer.Start(ctx, "hub.CaptureEvent")
	defer span.End()

	entry := h.manager.Current(ctx)
	depth := h.manager.Depth(ctx)

	h.prepare(ctx, ev)
	ev = entry.Scope().ApplyToEvent(ev)

	span.SetAttributes(
		attribute.String("event.id", ev.ID),
		attribute.String("event.level", string(ev.Level)),
		attribute.Int("scope.depth", depth),
	)

	target := entry.Sink()
	if target == nil {
		target = sink.Disabled
	}

	h.metrics.depth.Observe(float64(depth))

	if err := target.Capture(ctx, ev); err != nil {
		outcome := outcomeFailed
		if event.IsDropped(err) {
			outcome = outcomeDropped
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, "capture failed")
			h.logger.WarnContext(ctx, "event delivery failed",
				slog.String("event_id", ev.ID),
				slog.String("sink", target.Name()),
				slog.String("error", err.Error()),
			)
		}

		h.metrics.events.WithLabelValues(outcome, string(ev.Level)).Inc()

		return "", fmt.Errorf("capturing event %s: %w", ev.ID, err)
	}

	h.metrics.events.WithLabelValues(outcomeCaptured, string(ev.Level)).Inc()
	h.lastEventID.Store(&ev.ID)

	return ev.ID, nil
}

func (h *Hub) prepare(ctx context.Context, ev *event.Event) {
	if ev.ID == "" {
		ev.ID = strings.ReplaceAll(uuid.NewString(), "-", "")
	}

	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	if ev.Level == "" {
		ev.Level = event.LevelInfo
	}

	if ev.Release == "" {
		ev.Release = h.release
	}

	if ev.Environment == "" {
		ev.Environment = h.environment
	}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		if ev.Contexts == nil {
			ev.Contexts = make(map[string]any)
		}

		if _, ok := ev.Contexts["trace"]; !ok {
			ev.Contexts["trace"] = map[string]string{
				"trace_id": sc.TraceID().String(),
				"span_id":  sc.SpanID().String(),
			}
		}
	}
}

// Flush flushes the root sink.
func (h *Hub) Flush(ctx context.Context) error {
	if err := h.rootSink.Flush(ctx); err != nil {
		return fmt.Errorf("flushing %s: %w", h.rootSink.Name(), err)
	}

	return nil
}

// Close flushes and closes the root sink.
func (h *Hub) Close(ctx context.Context) error {
	flushErr := h.Flush(ctx)
	closeErr := h.rootSink.Close()

	return errors.Join(flushErr, closeErr)
}
