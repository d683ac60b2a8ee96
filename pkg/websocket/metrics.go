package websocket

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveConnections tracks active WebSocket connections.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arb_ws_active_connections",
		Help: "Number of active WebSocket connections",
	})

	// ReconnectAttemptsTotal tracks reconnection attempts.
	ReconnectAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_ws_reconnect_attempts_total",
		Help: "Total number of WebSocket reconnection attempts",
	})

	// ReconnectFailuresTotal tracks reconnection failures.
	ReconnectFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_ws_reconnect_failures_total",
		Help: "Total number of WebSocket reconnection failures",
	})

	// MessagesReceivedTotal tracks decoded events by type.
	MessagesReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_ws_messages_received_total",
			Help: "Total number of market events received",
		},
		[]string{"event_type"},
	)

	// MessagesSkippedTotal tracks events of types the engine does not consume.
	MessagesSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_ws_messages_skipped_total",
			Help: "Total number of market events skipped by type",
		},
		[]string{"event_type"},
	)

	// DecodeErrorsTotal tracks frames that could not be decoded.
	DecodeErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_ws_decode_errors_total",
		Help: "Total number of undecodable WebSocket frames",
	})

	// DeliveryLatencySeconds tracks time from frame receipt to hand-off.
	DeliveryLatencySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arb_ws_delivery_latency_seconds",
		Help:    "Time from frame receipt until the event is accepted downstream",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
	})

	SubscriptionCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arb_ws_subscription_count",
		Help: "Number of subscribed outcome tokens",
	})

	// ConnectionDuration tracks WebSocket connection lifetime.
	ConnectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arb_ws_connection_duration_seconds",
		Help:    "Duration of WebSocket connections before disconnect",
		Buckets: []float64{60, 300, 600, 1800, 3600, 7200, 14400, 28800, 43200, 86400},
	})

	UnsubscriptionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_ws_unsubscriptions_total",
		Help: "Total number of token unsubscriptions",
	})
)
