package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bitebell_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// AutomationFirings counts automation engine outcomes per trigger (created|skipped|failed|fallback).
	AutomationFirings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bitebell_automation_firings_total",
			Help: "Automation rule evaluations by trigger and outcome",
		},
		[]string{"trigger", "result"},
	)

	// NotificationsCreated counts persisted notifications by origin (automation|fallback|campaign|manual).
	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bitebell_notifications_created_total",
			Help: "Notifications written to the remote store",
		},
		[]string{"source"},
	)

	// CampaignDispatches counts campaign send attempts by result (success|failure|skipped|abandoned).
	CampaignDispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bitebell_campaign_dispatches_total",
			Help: "Campaign dispatch attempts",
		},
		[]string{"result"},
	)

	// FacadeFallbacks counts facade operations served from the local store.
	FacadeFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bitebell_facade_fallbacks_total",
			Help: "Facade operations that degraded to local storage",
		},
		[]string{"operation"},
	)

	// FunctionsBreakerState reports the remote functions circuit breaker (0 closed, 1 half-open, 2 open).
	FunctionsBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bitebell_functions_breaker_state",
			Help: "State of the remote functions circuit breaker",
		},
	)

	// RealtimeConnections tracks open websocket connections.
	RealtimeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bitebell_realtime_connections",
			Help: "Open realtime websocket connections",
		},
	)
)
