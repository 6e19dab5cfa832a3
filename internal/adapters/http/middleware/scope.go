package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/go-scope-hub/internal/event"
	"github.com/jsamuelsen/go-scope-hub/internal/hub"
	"github.com/jsamuelsen/go-scope-hub/internal/platform/logging"
)

// ContextKeyEventID is the gin context key for the last event captured while
// handling the request.
const ContextKeyEventID = "event_id"

// Scope gives each request its own flow and a request scope on top of it.
//
// The request context is forked from the server flow so nothing a handler
// pushes or binds is visible to concurrent requests. The pushed scope carries
// the request and correlation IDs plus method and route tags, and is popped
// when the request completes. Errors attached with c.Error on a 5xx response
// are captured before the pop.
func Scope(h *hub.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		ctx := hub.WithContext(h.Fork(c.Request.Context()), h)

		handle := h.PushScopeState(ctx, map[string]string{
			"request_id":     GetRequestID(c),
			"correlation_id": GetCorrelationID(c),
			"http.method":    c.Request.Method,
			"http.route":     route,
		})
		defer handle.Release()

		if !h.IsGlobal() {
			h.ConfigureScope(ctx, func(s *event.Scope) {
				s.SetTransaction(c.Request.Method + " " + route)
			})
			h.AddBreadcrumb(ctx, event.Breadcrumb{
				Type:     "http",
				Category: "request",
				Message:  c.Request.Method + " " + c.Request.URL.Path,
			})
		}

		c.Request = c.Request.WithContext(logging.WithAttrs(ctx, slog.Int("scope_depth", h.Depth(ctx))))

		c.Next()

		if c.Writer.Status() < http.StatusInternalServerError {
			return
		}

		// The client may be gone by now; the capture still has to reach the sink.
		captureCtx := context.WithoutCancel(c.Request.Context())

		for _, ginErr := range c.Errors {
			if id, err := h.CaptureError(captureCtx, ginErr.Err); err == nil {
				c.Set(ContextKeyEventID, id)
			}
		}
	}
}

// GetEventID returns the ID of an event captured for the request, or "".
func GetEventID(c *gin.Context) string {
	return c.GetString(ContextKeyEventID)
}
