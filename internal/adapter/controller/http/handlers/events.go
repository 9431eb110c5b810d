package handlers

import (
	"net/http"

	"github.com/kr1s57/sshsentinel/internal/entity"
	"github.com/kr1s57/sshsentinel/internal/usecase/pipeline"
)

// EventsHandler handles event ingestion requests
type EventsHandler struct {
	engine *pipeline.Engine
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(engine *pipeline.Engine) *EventsHandler {
	return &EventsHandler{engine: engine}
}

// Submit enqueues one authentication event for processing
// POST /api/v1/events
func (h *EventsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var event entity.Event
	if err := DecodeJSON(r, &event); err != nil {
		ErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result := h.engine.Submit(&event)
	switch {
	case result.Accepted:
		JSONResponse(w, http.StatusAccepted, result)
	case result.Reason == pipeline.RejectQueueFull:
		JSONResponse(w, http.StatusServiceUnavailable, result)
	case result.Reason == pipeline.RejectDraining:
		JSONResponse(w, http.StatusServiceUnavailable, result)
	default:
		JSONResponse(w, http.StatusBadRequest, result)
	}
}

// Stats returns the engine statistics snapshot
// GET /api/v1/stats
func (h *EventsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	JSONResponse(w, http.StatusOK, h.engine.GetStatistics())
}
