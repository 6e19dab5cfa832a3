package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/go-scope-hub/internal/adapters/http/dto"
	"github.com/jsamuelsen/go-scope-hub/internal/hub"
)

// ScopeHandler exposes the scope stack of the calling request for debugging.
type ScopeHandler struct {
	hub *hub.Hub
}

// NewScopeHandler creates a new scope handler.
func NewScopeHandler(h *hub.Hub) *ScopeHandler {
	return &ScopeHandler{hub: h}
}

// Current handles GET /api/v1/scope.
func (h *ScopeHandler) Current(c *gin.Context) {
	ctx := c.Request.Context()

	c.JSON(http.StatusOK, dto.NewScopeResponse(
		h.hub.Scope(ctx),
		h.hub.Depth(ctx),
		h.hub.IsGlobal(),
		h.hub.Sink(ctx).Name(),
	))
}

// Breadcrumbs handles GET /api/v1/scope/breadcrumbs, oldest first.
func (h *ScopeHandler) Breadcrumbs(c *gin.Context) {
	var page dto.PaginationRequest
	if err := dto.BindQueryAndValidate(c, &page); err != nil {
		dto.HandleError(c, err)
		return
	}

	crumbs := dto.NewBreadcrumbResponses(h.hub.Scope(c.Request.Context()).Breadcrumbs())

	resp, err := dto.Paginate(crumbs, page)
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// RegisterScopeRoutes registers scope routes on the given router group.
func (h *ScopeHandler) RegisterScopeRoutes(rg *gin.RouterGroup) {
	scope := rg.Group("/scope")
	scope.GET("", h.Current)
	scope.GET("/breadcrumbs", h.Breadcrumbs)
}
