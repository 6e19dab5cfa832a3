// Package scope maintains, per logical execution flow, an ordered stack of
// (scope, sink) pairs. Captured events are enriched with the nearest enclosing
// scope and routed to the sink paired with it.
//
// # Stacks
//
// A Stack is immutable once published. Every change builds a new Stack and
// replaces the flow's reference with a single atomic store, so readers never
// observe a half-written stack and the package needs no locks.
//
// # Flows
//
// A flow is identified by the context.Context passed to each operation. With
// the default flow-local storage, Fork returns a child context whose slot
// starts as a copy of the parent's; pushes made in the child are invisible to
// the parent and to siblings forked earlier:
//
//	ctx = mgr.Fork(ctx)
//	go func() {
//	    h := mgr.PushScope(ctx)
//	    defer h.Release()
//	    // ...
//	}()
//
// Global storage shares one slot across the process. Pushing is refused there
// and returns the Noop handle.
//
// # Handles
//
// PushScope returns a Handle whose Release restores the stack captured before
// the push, but only while the pushed scope is still on the flow's stack.
// Handles may therefore be released out of order without discarding the work
// of a nested handle that is still active.
package scope
