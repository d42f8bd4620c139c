package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/charlesng35/notifyd/internal/app"
	"github.com/charlesng35/notifyd/internal/handlers"
	"github.com/charlesng35/notifyd/internal/middleware"
	"github.com/charlesng35/notifyd/internal/realtime"
	"github.com/charlesng35/notifyd/internal/services"
)

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(db *gorm.DB, cfg *app.Config, service *services.NotificationService, hub *realtime.Hub) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if service == nil {
		return nil, fmt.Errorf("notification service must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())

	registerHealthRoutes(r, cfg, db)

	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	notificationHandler, err := handlers.NewNotificationHandler(service)
	if err != nil {
		return nil, err
	}

	api := r.Group("/api")
	registerNotificationRoutes(api, notificationHandler)

	realtimeHandler := handlers.NewRealtimeHandler(hub)
	r.GET("/ws/notifications", realtimeHandler.Stream)

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
