package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/benchhub/hub/internal/repositories"
	"github.com/benchhub/hub/internal/store"
)

// NotificationHandler groups the in-app notification read handlers. Creation
// happens internally (see workflow.Engine.notify) — this handler only
// surfaces and acknowledges what was already recorded.
type NotificationHandler struct {
	repo   repositories.NotificationRepository
	logger *zap.Logger
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(repo repositories.NotificationRepository, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{repo: repo, logger: logger.Named("notification_handler")}
}

type notificationResponse struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Payload   string `json:"payload"`
	ReadAt    string `json:"read_at,omitempty"`
	CreatedAt string `json:"created_at"`
}

func notificationToResponse(n *store.Notification) notificationResponse {
	resp := notificationResponse{
		ID:        n.ID.String(),
		Type:      n.Type,
		Title:     n.Title,
		Body:      n.Body,
		Payload:   n.Payload,
		CreatedAt: n.CreatedAt.UTC().Format(timeFormat),
	}
	if n.ReadAt != nil {
		resp.ReadAt = n.ReadAt.UTC().Format(timeFormat)
	}
	return resp
}

type listNotificationsResponse struct {
	Items []notificationResponse `json:"items"`
	Total int64                  `json:"total"`
}

// List handles GET /api/v1/notifications.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	rows, total, err := h.repo.List(r.Context(), paginationOpts(r))
	if err != nil {
		h.logger.Error("failed to list notifications", zap.Error(err))
		ErrInternal(w)
		return
	}
	items := make([]notificationResponse, len(rows))
	for i := range rows {
		items[i] = notificationToResponse(&rows[i])
	}
	Ok(w, listNotificationsResponse{Items: items, Total: total})
}

// MarkAsRead handles POST /api/v1/notifications/{id}/read.
func (h *NotificationHandler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	if err := h.repo.MarkAsRead(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	NoContent(w)
}
