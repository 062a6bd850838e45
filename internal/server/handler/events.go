package handler

import (
	"log/slog"
	"net/http"

	"github.com/splitledger/splitledger/internal/domain"
)

// EventsHandler serves the durable event log.
type EventsHandler struct {
	log    domain.EventLog
	logger *slog.Logger
}

func NewEventsHandler(log domain.EventLog, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{log: log, logger: logHandler(logger, "events")}
}

// ListEvents returns emitted events, oldest first, with pagination and an
// optional RFC3339 time window (since/until).
// GET /api/events
func (h *EventsHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.log.List(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list events", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if events == nil {
		events = []domain.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}
