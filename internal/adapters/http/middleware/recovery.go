package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"github.com/jsamuelsen/go-scope-hub/internal/adapters/http/dto"
	"github.com/jsamuelsen/go-scope-hub/internal/hub"
	"github.com/jsamuelsen/go-scope-hub/internal/platform/logging"
)

// Recovery recovers from panics, captures them as fatal events on the
// request's hub and answers 500 with the standard error envelope.
//
// It runs after Scope so the request scope is still on the stack when the
// panic is captured.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}

			ctx := c.Request.Context()

			var traceID string
			if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
				traceID = sc.TraceID().String()
			}

			var eventID string
			if h := hub.FromContext(ctx); h != nil {
				if id, err := h.Recover(context.WithoutCancel(ctx), r); err == nil {
					eventID = id
					c.Set(ContextKeyEventID, id)
				}
			}

			logging.FromContext(ctx).Error("panic recovered",
				slog.Any("error", r),
				slog.String("stack", string(debug.Stack())),
				slog.String("path", c.Request.URL.Path),
				slog.String("method", c.Request.Method),
				slog.String("trace_id", traceID),
				slog.String("event_id", eventID),
			)

			errResp := dto.NewErrorResponse(dto.ErrorCodeInternal, "an internal error occurred").
				WithTraceID(traceID).
				WithEventID(eventID)

			if c.Writer.Written() {
				c.Abort()
				return
			}

			c.AbortWithStatusJSON(http.StatusInternalServerError, errResp)
		}()

		c.Next()
	}
}
