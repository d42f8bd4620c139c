package handlers

import (
	stderrors "errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/notifyd/internal/services"
	"github.com/charlesng35/notifyd/pkg/errors"
	"github.com/charlesng35/notifyd/pkg/response"
)

// NotificationHandler exposes HTTP endpoints for notifications.
type NotificationHandler struct {
	service *services.NotificationService
}

// NewNotificationHandler constructs a notification handler.
func NewNotificationHandler(service *services.NotificationService) (*NotificationHandler, error) {
	if service == nil {
		return nil, stderrors.New("notification handler: service is required")
	}
	return &NotificationHandler{service: service}, nil
}

type createNotificationRequest struct {
	Message  string         `json:"message"`
	Severity string         `json:"severity"`
	Metadata map[string]any `json:"metadata"`
}

// Create persists a notification for the user in the path and pushes it to any
// live subscribers.
func (h *NotificationHandler) Create(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("id"))

	var req createNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errors.NewBadRequest("request body must be JSON"))
		return
	}

	dto, err := h.service.Create(c.Request.Context(), services.CreateNotificationInput{
		UserID:   userID,
		Message:  req.Message,
		Severity: req.Severity,
		Metadata: req.Metadata,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, dto)
}

// List returns notifications for the user in the path, newest first.
func (h *NotificationHandler) List(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("id"))

	limit := parseIntQuery(c, "limit", 25)
	offset := parseIntQuery(c, "offset", 0)

	items, err := h.service.ListForUser(c.Request.Context(), services.ListNotificationsInput{
		UserID: userID,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, items, &response.Meta{Limit: limit, Offset: offset})
}

// UnreadCount reports the user's unread notification count.
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("id"))

	count, err := h.service.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"count": count})
}

// MarkRead flips a notification to read.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	dto, err := h.service.MarkRead(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, dto)
}

// MarkAllRead marks every unread notification for the user as read.
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("id"))

	affected, err := h.service.MarkAllRead(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"updated": affected})
}

func parseIntQuery(c *gin.Context, key string, fallback int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
