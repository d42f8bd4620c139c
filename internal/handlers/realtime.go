package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/notifyd/internal/realtime"
	"github.com/charlesng35/notifyd/pkg/errors"
	"github.com/charlesng35/notifyd/pkg/response"
)

// RealtimeHandler upgrades HTTP connections into per-user notification streams.
// Caller identity is resolved by the deployment's auth layer and arrives as a
// header or query parameter; this core does not authenticate.
type RealtimeHandler struct {
	hub *realtime.Hub
}

// NewRealtimeHandler constructs a realtime handler.
func NewRealtimeHandler(hub *realtime.Hub) *RealtimeHandler {
	return &RealtimeHandler{hub: hub}
}

// Stream subscribes the caller to their notification feed over a WebSocket.
// History is not replayed; clients fetch it through the list endpoint.
func (h *RealtimeHandler) Stream(c *gin.Context) {
	if h.hub == nil {
		response.Error(c, errors.ErrNotFound)
		return
	}

	userID := strings.TrimSpace(c.Query("user_id"))
	if userID == "" {
		userID = strings.TrimSpace(c.GetHeader("X-User-ID"))
	}
	if userID == "" {
		response.Error(c, errors.NewBadRequest("user_id is required"))
		return
	}

	h.hub.Serve(userID, c.Writer, c.Request)
}
