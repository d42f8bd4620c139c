package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// NotificationsCreated counts persisted notifications.
	NotificationsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notifyd_notifications_created_total",
			Help: "Total number of notifications persisted",
		},
	)

	// Deliveries counts realtime delivery attempts by outcome (delivered|dropped).
	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifyd_deliveries_total",
			Help: "Total number of realtime delivery attempts",
		},
		[]string{"result"},
	)

	// LiveSubscriptions tracks currently registered dispatcher subscriptions.
	LiveSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "notifyd_live_subscriptions",
			Help: "Number of live notification subscriptions",
		},
	)

	// UnreadReconciliations counts reconcile sweeps per counter by outcome (clean|drift).
	UnreadReconciliations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifyd_unread_reconciliations_total",
			Help: "Total number of unread counter reconciliations",
		},
		[]string{"result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notifyd_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
