package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
)

// Timeout sets a deadline on the request context. Handlers and sinks observe
// it through ctx; the middleware never aborts a running handler. The original
// request is restored on the way out, panics included, so outer middleware
// never see the canceled context.
func Timeout(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		original := c.Request
		defer func() { c.Request = original }()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
