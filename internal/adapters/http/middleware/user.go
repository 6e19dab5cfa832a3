package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/go-scope-hub/internal/event"
	"github.com/jsamuelsen/go-scope-hub/internal/hub"
)

// Identity headers set by the gateway after it has authenticated the caller.
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserEmail = "X-User-Email"
	HeaderUserName  = "X-User-Name"
	HeaderUserRoles = "X-User-Roles"
)

// User copies the gateway identity headers onto the request scope, so events
// captured during the request name the affected user. Must run after Scope.
// A global hub has no request scope, so nothing is set.
func User() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		h := hub.FromContext(ctx)
		if h == nil || h.IsGlobal() {
			c.Next()
			return
		}

		user := event.User{
			ID:       c.GetHeader(HeaderUserID),
			Email:    c.GetHeader(HeaderUserEmail),
			Username: c.GetHeader(HeaderUserName),
		}
		roles := parseCommaSeparated(c.GetHeader(HeaderUserRoles))

		if !user.IsEmpty() {
			user.IPAddress = c.ClientIP()

			h.ConfigureScope(ctx, func(s *event.Scope) {
				s.SetUser(user)

				if len(roles) > 0 {
					s.SetTag("user.roles", strings.Join(roles, ","))
				}
			})
		}

		c.Next()
	}
}

// parseCommaSeparated splits a comma-separated string into trimmed values.
func parseCommaSeparated(s string) []string {
	parts := strings.Split(s, ",")

	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
