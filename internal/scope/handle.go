package scope

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Handle represents an active push. Release restores the stack that was
// current before the push; calling it more than once has no effect.
type Handle interface {
	Release()
}

type noopHandle struct{}

func (noopHandle) Release() {}

// Noop is returned when a push was refused or suppressed.
var Noop Handle = noopHandle{}

// snapshotHandle restores snapshot on release, provided the scope that was on
// top at push time is still present in the flow's current stack.
type snapshotHandle[S Scope[S], K any] struct {
	ctx      context.Context
	storage  Storage[S, K]
	logger   *slog.Logger
	snapshot *Stack[S, K]
	released atomic.Bool
}

func (h *snapshotHandle[S, K]) Release() {
	if !h.released.CompareAndSwap(false, true) {
		return
	}

	h.logger.Debug("disposing scope")

	previous := h.snapshot.Top().scope

	current := h.storage.Load(h.ctx)
	if current == nil || !current.contains(previous) {
		// Superseded by a later operation; restoring would discard it.
		return
	}

	h.storage.Store(h.ctx, h.snapshot)
}
