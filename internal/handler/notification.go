package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"matchengine/internal/model"
)

// NotificationAPI is the read-only view of agent notifications.
type NotificationAPI interface {
	ListNotifications(ctx context.Context, agentID string, unreadOnly bool, limit int) ([]model.Notification, error)
}

type NotificationHandler struct {
	svc NotificationAPI
}

func NewNotificationHandler(svc NotificationAPI) *NotificationHandler {
	return &NotificationHandler{svc: svc}
}

// List handles GET /api/v1/agents/:id/notifications?unread=true&limit=
func (h *NotificationHandler) List(c *gin.Context) {
	unread := false
	if raw := c.Query("unread"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid unread filter, expected true or false"})
			return
		}
		unread = v
	}
	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	out, err := h.svc.ListNotifications(c.Request.Context(), c.Param("id"), unread, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agent_id": c.Param("id"), "notifications": out, "total": len(out)})
}
