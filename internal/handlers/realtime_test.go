package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/notifyd/internal/dispatcher"
	"github.com/charlesng35/notifyd/internal/realtime"
)

func TestStreamRequiresUserIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handler := NewRealtimeHandler(realtime.NewHub(dispatcher.New()))

	router := gin.New()
	router.GET("/ws/notifications", handler.Stream)

	req := httptest.NewRequest(http.MethodGet, "/ws/notifications", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStreamWithoutHubIsNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handler := NewRealtimeHandler(nil)

	router := gin.New()
	router.GET("/ws/notifications", handler.Stream)

	req := httptest.NewRequest(http.MethodGet, "/ws/notifications?user_id=alice", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}
