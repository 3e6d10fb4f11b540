package api

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/benchhub/hub/internal/eventservice"
	"github.com/benchhub/hub/internal/store"
)

// EventHandler groups the event publish/query HTTP handlers (spec.md §4.3).
type EventHandler struct {
	events eventservice.Service
	logger *zap.Logger
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(events eventservice.Service, logger *zap.Logger) *EventHandler {
	return &EventHandler{events: events, logger: logger.Named("event_handler")}
}

type eventResponse struct {
	ID            string          `json:"id"`
	Subject       string          `json:"subject"`
	Origin        string          `json:"origin"`
	CorrelationID string          `json:"correlation_id"`
	Payload       json.RawMessage `json:"payload"`
	Timestamp     string          `json:"timestamp"`
}

func eventToResponse(e *store.Event) eventResponse {
	return eventResponse{
		ID:            e.ID.String(),
		Subject:       e.Subject,
		Origin:        e.Origin,
		CorrelationID: e.CorrelationID,
		Payload:       json.RawMessage(e.Payload),
		Timestamp:     e.Timestamp.UTC().Format(timeFormat),
	}
}

type publishEventRequest struct {
	Subject       string          `json:"subject" validate:"required"`
	Payload       json.RawMessage `json:"payload"`
	Origin        string          `json:"origin"`
	CorrelationID string          `json:"correlation_id"`
}

type publishEventResponse struct {
	ID string `json:"id"`
}

// Publish handles POST /api/v1/events.
func (h *EventHandler) Publish(w http.ResponseWriter, r *http.Request) {
	var req publishEventRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if req.Payload == nil {
		req.Payload = json.RawMessage("{}")
	}
	if req.Origin == "" {
		req.Origin = "api"
	}

	id, err := h.events.Publish(r.Context(), req.Subject, req.Payload, req.Origin, req.CorrelationID)
	if err != nil {
		writeError(w, err)
		return
	}
	Created(w, publishEventResponse{ID: id.String()})
}

type listEventsResponse struct {
	Items []eventResponse `json:"items"`
}

// Query handles GET /api/v1/events. Supports subject (NATS-style wildcard
// pattern), correlation_id, since, and until query parameters.
func (h *EventHandler) Query(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := paginationOpts(r)

	filter := eventservice.Filter{
		SubjectPattern: q.Get("subject"),
		CorrelationID:  q.Get("correlation_id"),
		Limit:          opts.Limit,
		Offset:         opts.Offset,
	}
	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			ErrBadRequest(w, "invalid since: must be RFC3339")
			return
		}
		filter.Since = t
	}
	if until := q.Get("until"); until != "" {
		t, err := time.Parse(time.RFC3339, until)
		if err != nil {
			ErrBadRequest(w, "invalid until: must be RFC3339")
			return
		}
		filter.Until = t
	}

	events, err := h.events.Query(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to query events", zap.Error(err))
		ErrInternal(w)
		return
	}

	items := make([]eventResponse, len(events))
	for i := range events {
		items[i] = eventToResponse(&events[i])
	}
	Ok(w, listEventsResponse{Items: items})
}
