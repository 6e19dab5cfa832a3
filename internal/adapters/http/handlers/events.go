package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/go-scope-hub/internal/adapters/http/dto"
	"github.com/jsamuelsen/go-scope-hub/internal/adapters/http/middleware"
	"github.com/jsamuelsen/go-scope-hub/internal/hub"
)

// DefaultBatchWorkers is the number of concurrent captures per batch request.
const DefaultBatchWorkers = 4

// EventsHandler accepts events over HTTP and captures them on the hub under
// the request scope.
type EventsHandler struct {
	hub     *hub.Hub
	workers int
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(h *hub.Hub) *EventsHandler {
	return &EventsHandler{
		hub:     h,
		workers: DefaultBatchWorkers,
	}
}

// Capture handles POST /api/v1/events.
//
// The event is merged with the request scope, so it carries the request ID,
// route tags and the caller identity set by middleware. Returns 202 with the
// event ID once the bound sink has accepted it.
func (h *EventsHandler) Capture(c *gin.Context) {
	var req dto.CaptureEventRequest
	if err := dto.BindAndValidate(c, &req); err != nil {
		dto.HandleError(c, err)
		return
	}

	id, err := h.hub.CaptureEvent(c.Request.Context(), req.ToEvent())
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	c.Set(middleware.ContextKeyEventID, id)
	c.JSON(http.StatusAccepted, dto.CaptureEventResponse{EventID: id})
}

// CaptureBatch handles POST /api/v1/events/batch.
//
// Events are captured concurrently, each in its own scope pushed on a worker
// flow forked from the request, so scope changes made for one event never
// reach another. Per-event failures are reported in the response body.
func (h *EventsHandler) CaptureBatch(c *gin.Context) {
	var req dto.BatchCaptureRequest
	if err := dto.BindAndValidate(c, &req); err != nil {
		dto.HandleError(c, err)
		return
	}

	results := make([]dto.BatchResult, len(req.Events))

	items := make([]int, len(req.Events))
	for i := range items {
		items[i] = i
	}

	err := hub.FanOut(c.Request.Context(), h.hub, h.workers, items, func(ctx context.Context, i int) error {
		id, err := h.hub.CaptureEvent(ctx, req.Events[i].ToEvent())
		if err != nil {
			_, resp := dto.MapError(err)
			results[i] = dto.BatchResult{Error: &resp.Error}

			return nil
		}

		results[i] = dto.BatchResult{EventID: id}

		return nil
	})
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	c.JSON(http.StatusMultiStatus, dto.BatchCaptureResponse{Results: results})
}

// RegisterEventRoutes registers event routes on the given router group.
func (h *EventsHandler) RegisterEventRoutes(rg *gin.RouterGroup) {
	events := rg.Group("/events")
	events.POST("", h.Capture)
	events.POST("/batch", h.CaptureBatch)
}
