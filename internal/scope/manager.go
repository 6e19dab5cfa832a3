package scope

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
)

// ErrInvalidConfig is returned by New when the configuration cannot produce a
// usable manager.
var ErrInvalidConfig = errors.New("invalid scope manager config")

// Config configures a Manager.
type Config[S Scope[S], K any] struct {
	// RootSink is paired with the root scope of every new stack.
	RootSink K

	// DisabledSink replaces a nil sink passed to BindSink.
	DisabledSink K

	// NewScope creates the root scope. Required.
	NewScope func() S

	// GlobalMode selects GlobalStorage instead of FlowStorage.
	// Ignored when Storage is set.
	GlobalMode bool

	// Storage overrides the storage strategy.
	Storage Storage[S, K]

	// Logger receives debug diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// Manager orchestrates reads, pushes, pops and sink bindings over a Storage.
type Manager[S Scope[S], K any] struct {
	storage  Storage[S, K]
	global   bool
	rootSink K
	disabled K
	newScope func() S
	logger   *slog.Logger
}

// New creates a Manager.
func New[S Scope[S], K any](cfg Config[S, K]) (*Manager[S, K], error) {
	if cfg.NewScope == nil {
		return nil, fmt.Errorf("%w: NewScope is required", ErrInvalidConfig)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	storage := cfg.Storage
	if storage == nil {
		if cfg.GlobalMode {
			storage = NewGlobalStorage[S, K]()
		} else {
			storage = NewFlowStorage[S, K]()
		}
	}

	_, global := storage.(*GlobalStorage[S, K])

	return &Manager[S, K]{
		storage:  storage,
		global:   global,
		rootSink: cfg.RootSink,
		disabled: cfg.DisabledSink,
		newScope: cfg.NewScope,
		logger:   logger,
	}, nil
}

// IsGlobal reports whether the manager uses the process-wide slot.
func (m *Manager[S, K]) IsGlobal() bool {
	return m.global
}

// Current returns the top entry of the flow's stack, creating the root stack
// on first use.
func (m *Manager[S, K]) Current(ctx context.Context) Entry[S, K] {
	return m.stack(ctx).Top()
}

// Depth returns the number of entries on the flow's stack.
func (m *Manager[S, K]) Depth(ctx context.Context) int {
	return m.stack(ctx).Len()
}

// Stack returns the flow's current stack.
func (m *Manager[S, K]) Stack(ctx context.Context) *Stack[S, K] {
	return m.stack(ctx)
}

// ConfigureScope runs fn against the current scope in place.
func (m *Manager[S, K]) ConfigureScope(ctx context.Context, fn func(S)) {
	scope := m.Current(ctx).scope
	if fn != nil {
		fn(scope)
	}
}

// ConfigureScopeContext is ConfigureScope for callbacks that block or fail.
// The callback's error is returned unchanged.
func (m *Manager[S, K]) ConfigureScopeContext(ctx context.Context, fn func(context.Context, S) error) error {
	scope := m.Current(ctx).scope
	if fn == nil {
		return nil
	}

	return fn(ctx, scope)
}

// BindSink pairs the current scope with sink. A nil sink binds the disabled
// sink instead.
func (m *Manager[S, K]) BindSink(ctx context.Context, sink K) {
	m.logger.Debug("binding a new sink to the current scope")

	if isNil(sink) {
		sink = m.disabled
	}

	m.storage.Store(ctx, m.stack(ctx).withTopSink(sink))
}

// PushScope pushes a clone of the current scope.
func (m *Manager[S, K]) PushScope(ctx context.Context) Handle {
	return m.PushScopeState(ctx, nil)
}

// PushScopeState pushes a clone of the current scope with state applied to it.
// In global mode, or when the current scope is locked, nothing is pushed and
// Noop is returned; a locked scope still receives state.
func (m *Manager[S, K]) PushScopeState(ctx context.Context, state any) Handle {
	if m.global {
		m.logger.Debug("push scope called in global mode, returning")
		return Noop
	}

	current := m.stack(ctx)
	top := current.Top()

	if top.scope.Locked() {
		m.logger.Debug("locked scope, no new scope pushed")

		if state != nil {
			top.scope.Apply(state)
		}

		return Noop
	}

	cloned := top.scope.Clone()
	if state != nil {
		cloned.Apply(state)
	}

	m.logger.Debug("new scope pushed", slog.Int("depth", current.Len()+1))
	m.storage.Store(ctx, current.push(Entry[S, K]{scope: cloned, sink: top.sink}))

	return &snapshotHandle[S, K]{
		ctx:      ctx,
		storage:  m.storage,
		logger:   m.logger,
		snapshot: current,
	}
}

// WithScope runs fn against a freshly pushed scope and releases it before
// returning, including when fn panics.
func (m *Manager[S, K]) WithScope(ctx context.Context, fn func(S)) {
	h := m.PushScope(ctx)
	defer h.Release()

	fn(m.Current(ctx).scope)
}

// WithScopeContext is WithScope for callbacks that block or fail.
func (m *Manager[S, K]) WithScopeContext(ctx context.Context, fn func(context.Context, S) error) error {
	h := m.PushScope(ctx)
	defer h.Release()

	return fn(ctx, m.Current(ctx).scope)
}

// WithScopeValue is WithScopeContext for callbacks that produce a value.
func WithScopeValue[T any, S Scope[S], K any](
	ctx context.Context,
	m *Manager[S, K],
	fn func(context.Context, S) (T, error),
) (T, error) {
	h := m.PushScope(ctx)
	defer h.Release()

	return fn(ctx, m.Current(ctx).scope)
}

// Fork returns a context for a new flow that inherits the current stack.
// The calling flow is initialized first so parent and child share one root.
func (m *Manager[S, K]) Fork(ctx context.Context) context.Context {
	m.stack(ctx)
	return m.storage.Fork(ctx)
}

// Dispose clears the flow's slot. A later read starts a fresh root stack.
func (m *Manager[S, K]) Dispose(ctx context.Context) {
	m.logger.Debug("disposing scope manager")
	m.storage.Store(ctx, nil)
}

func (m *Manager[S, K]) stack(ctx context.Context) *Stack[S, K] {
	if s := m.storage.Load(ctx); s != nil {
		return s
	}

	s := NewStack(Entry[S, K]{scope: m.newScope(), sink: m.rootSink})
	m.storage.Store(ctx, s)

	return s
}

func isNil(v any) bool {
	if v == nil {
		return true
	}

	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}
