package hub

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/jsamuelsen/go-scope-hub/internal/event"
)

// Go runs fn in a new goroutine on a forked flow. Scopes pushed inside fn
// never leak into the caller's stack. A panic in fn is captured and the
// returned channel is closed when fn finishes.
func (h *Hub) Go(ctx context.Context, fn func(context.Context)) <-chan struct{} {
	child := h.Fork(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				_, _ = h.Recover(child, r)
			}
		}()

		fn(child)
	}()

	return done
}

// Parallel runs fns concurrently, each on its own forked flow, and returns
// their results in order. The first error cancels the rest.
//
// Example:
//
//	results, err := hub.Parallel(ctx, h,
//	    func(ctx context.Context) (int, error) { return count(ctx, "a") },
//	    func(ctx context.Context) (int, error) { return count(ctx, "b") },
//	)
func Parallel[T any](ctx context.Context, h *Hub, fns ...func(context.Context) (T, error)) ([]T, error) {
	g, gctx := errgroup.WithContext(ctx)
	results := make([]T, len(fns))

	for i, fn := range fns {
		child := h.Fork(gctx)

		g.Go(func() error {
			result, err := fn(child)
			if err != nil {
				return err
			}

			results[i] = result

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("parallel execution failed: %w", err)
	}

	return results, nil
}

// FanOut distributes items across a fixed number of workers. Each worker owns
// a forked flow, and every item runs inside its own pushed scope on it.
func FanOut[T any](ctx context.Context, h *Hub, workers int, items []T, fn func(context.Context, T) error) error {
	if workers <= 0 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	itemChan := make(chan T)

	for range workers {
		worker := h.Fork(gctx)

		g.Go(func() error {
			for item := range itemChan {
				err := h.WithScopeContext(worker, func(ctx context.Context, _ *event.Scope) error {
					return fn(ctx, item)
				})
				if err != nil {
					return err
				}
			}

			return nil
		})
	}

	g.Go(func() error {
		defer close(itemChan)

		for _, item := range items {
			select {
			case itemChan <- item:
			case <-gctx.Done():
				return gctx.Err()
			}
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("fan out failed: %w", err)
	}

	return nil
}
