package hub

import "context"

type ctxKey struct{}

// WithContext returns a context carrying h.
func WithContext(ctx context.Context, h *Hub) context.Context {
	return context.WithValue(ctx, ctxKey{}, h)
}

// FromContext returns the hub stored in ctx, or nil.
func FromContext(ctx context.Context) *Hub {
	if ctx == nil {
		return nil
	}

	h, _ := ctx.Value(ctxKey{}).(*Hub)

	return h
}
