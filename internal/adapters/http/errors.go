package http

import (
	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/go-scope-hub/internal/adapters/http/dto"
)

// AbortWithErrorCode aborts the request chain with a specific error code.
func AbortWithErrorCode(c *gin.Context, code, message string) {
	errResp := dto.NewErrorResponse(code, message).WithTraceID(dto.GetTraceID(c))

	c.AbortWithStatusJSON(dto.HTTPStatusFromCode(code), errResp)
}

// NotFound answers requests for routes that are not registered.
func NotFound(c *gin.Context) {
	AbortWithErrorCode(c, dto.ErrorCodeNotFound, "route not found")
}

// MethodNotAllowed answers requests whose path exists under another method.
func MethodNotAllowed(c *gin.Context) {
	AbortWithErrorCode(c, dto.ErrorCodeMethodNotAllowed, "method not allowed")
}
