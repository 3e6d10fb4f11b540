package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/benchhub/hub/internal/bus"
	"github.com/benchhub/hub/internal/eventservice"
	"github.com/benchhub/hub/internal/wsbus"
)

// WSHandler handles the WebSocket subscribe endpoint GET /api/v1/ws
// (spec.md §4.5). Unlike the teacher's fixed-topic connection, the subject
// filter a client wants to watch is supplied as a query parameter and
// forwarded verbatim to the bus as a NATS subject pattern.
type WSHandler struct {
	hub    *wsbus.Hub
	bus    *bus.Bus
	events eventservice.Service
	logger *zap.Logger
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(hub *wsbus.Hub, b *bus.Bus, events eventservice.Service, logger *zap.Logger) *WSHandler {
	return &WSHandler{hub: hub, bus: b, events: events, logger: logger.Named("ws_handler")}
}

// ServeWS handles GET /api/v1/ws?filter=hub.*.project.*. filter defaults to
// ">" (every subject) when omitted. The handler blocks until the connection
// closes.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("filter")
	if filter == "" {
		filter = ">"
	}

	client, err := wsbus.NewClient(h.hub, h.bus, h.events, w, r, filter, h.logger)
	if err != nil {
		h.logger.Warn("ws: upgrade failed", zap.Error(err))
		return
	}

	h.logger.Info("ws: client connected", zap.String("remote_addr", r.RemoteAddr), zap.String("filter", filter))
	client.Run(r.Context())
	h.logger.Info("ws: client disconnected", zap.String("remote_addr", r.RemoteAddr), zap.String("filter", filter))
}
