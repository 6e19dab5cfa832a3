package scope

import (
	"context"
	"sync/atomic"
)

// Storage holds the current Stack for each logical flow.
//
// Load returns nil when the flow has never been initialized. Store replaces
// the flow's stack wholesale. Fork returns a context for a new flow that starts
// from the calling flow's current stack.
type Storage[S Scope[S], K any] interface {
	Load(ctx context.Context) *Stack[S, K]
	Store(ctx context.Context, stack *Stack[S, K])
	Fork(ctx context.Context) context.Context
}

// GlobalStorage is a single slot shared by every flow in the process.
type GlobalStorage[S Scope[S], K any] struct {
	slot atomic.Pointer[Stack[S, K]]
}

// NewGlobalStorage creates an empty global slot.
func NewGlobalStorage[S Scope[S], K any]() *GlobalStorage[S, K] {
	return &GlobalStorage[S, K]{}
}

// Load returns the shared stack.
func (g *GlobalStorage[S, K]) Load(_ context.Context) *Stack[S, K] {
	return g.slot.Load()
}

// Store replaces the shared stack.
func (g *GlobalStorage[S, K]) Store(_ context.Context, stack *Stack[S, K]) {
	g.slot.Store(stack)
}

// Fork returns ctx unchanged; there is nothing to isolate.
func (g *GlobalStorage[S, K]) Fork(ctx context.Context) context.Context {
	return ctx
}

// cell is the slot owned by one flow.
type cell[S Scope[S], K any] struct {
	slot atomic.Pointer[Stack[S, K]]
}

// flowKey scopes context values to one FlowStorage instance.
type flowKey[S Scope[S], K any] struct {
	owner *FlowStorage[S, K]
}

// FlowStorage keeps one slot per flow. The slot travels in the
// context.Context; contexts that never went through Fork share the root slot.
type FlowStorage[S Scope[S], K any] struct {
	root cell[S, K]
}

// NewFlowStorage creates flow-local storage with an empty root slot.
func NewFlowStorage[S Scope[S], K any]() *FlowStorage[S, K] {
	return &FlowStorage[S, K]{}
}

// Load returns the stack of the flow identified by ctx.
func (f *FlowStorage[S, K]) Load(ctx context.Context) *Stack[S, K] {
	return f.cellFor(ctx).slot.Load()
}

// Store replaces the stack of the flow identified by ctx.
func (f *FlowStorage[S, K]) Store(ctx context.Context, stack *Stack[S, K]) {
	f.cellFor(ctx).slot.Store(stack)
}

// Fork returns a child context with its own slot, initialized from the parent
// slot's value at the time of the call.
func (f *FlowStorage[S, K]) Fork(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}

	child := &cell[S, K]{}
	child.slot.Store(f.cellFor(ctx).slot.Load())

	return context.WithValue(ctx, flowKey[S, K]{owner: f}, child)
}

func (f *FlowStorage[S, K]) cellFor(ctx context.Context) *cell[S, K] {
	if ctx == nil {
		return &f.root
	}

	if c, ok := ctx.Value(flowKey[S, K]{owner: f}).(*cell[S, K]); ok {
		return c
	}

	return &f.root
}
