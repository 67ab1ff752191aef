package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Redis Operations Metrics
var (
	// RedisOpsTotal tracks total Redis operations by operation type and status
	RedisOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_operations_total",
			Help: "Total Redis operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	// RedisOpDuration tracks Redis operation latency in seconds
	RedisOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Redis operation duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// RedisConnectionErrors tracks Redis connection errors
	RedisConnectionErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "redis_connection_errors_total",
			Help: "Total Redis connection errors",
		},
	)

	// CircuitBreakerStateChanges tracks circuit breaker state transitions
	CircuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_changes_total",
			Help: "Circuit breaker state transitions by component and new state",
		},
		[]string{"component", "state"},
	)

	// CircuitBreakerState tracks current circuit breaker state (0=closed, 1=half-open, 2=open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"component"},
	)
)

// Broadcast Metrics
var (
	// BroadcastsTotal tracks broadcast calls by payload type
	BroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcasts_total",
			Help: "Total broadcast calls by payload type",
		},
		[]string{"payload_type"},
	)

	// BroadcastDeliveriesTotal tracks per-connection delivery outcomes
	BroadcastDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_deliveries_total",
			Help: "Per-connection broadcast delivery outcomes (delivered/stale_removed/failed)",
		},
		[]string{"outcome"},
	)

	// BroadcastDuration tracks wall time of one full broadcast fan-out
	BroadcastDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "broadcast_duration_seconds",
			Help:    "Duration of one full broadcast fan-out in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	// BroadcastInFlight tracks deliveries currently in flight
	BroadcastInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "broadcast_deliveries_in_flight",
			Help: "Broadcast deliveries currently in flight",
		},
	)

	// BroadcastSnapshotSize tracks registry snapshot size per broadcast
	BroadcastSnapshotSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "broadcast_snapshot_connections",
			Help:    "Number of connections in the registry snapshot per broadcast",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)
)

// Chat Metrics
var (
	// ConnectionsOpenedTotal tracks websocket connections accepted and registered
	ConnectionsOpenedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_connections_opened_total",
			Help: "Total websocket connections accepted and registered",
		},
	)

	// ConnectionsClosedTotal tracks websocket connections closed and deregistered
	ConnectionsClosedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_connections_closed_total",
			Help: "Total websocket connections closed and deregistered",
		},
	)

	// MessagesReceivedTotal tracks inbound chat messages by result
	MessagesReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_received_total",
			Help: "Inbound chat messages by result (accepted/malformed/ignored/persist_error)",
		},
		[]string{"result"},
	)

	// MessagesDeliveredTotal tracks chat messages successfully broadcast
	MessagesDeliveredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_messages_delivered_total",
			Help: "Total chat messages that completed a broadcast fan-out",
		},
	)
)

// Presence Queue Metrics
var (
	// PresenceEventsEnqueuedTotal tracks status change events enqueued by status
	PresenceEventsEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presence_events_enqueued_total",
			Help: "Status change events enqueued by status (ONLINE/OFFLINE)",
		},
		[]string{"status"},
	)

	// PresenceEventsProcessedTotal tracks consumed presence events by result
	PresenceEventsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presence_events_processed_total",
			Help: "Consumed presence events by result (broadcast/failed/malformed)",
		},
		[]string{"result"},
	)

	// PresenceBatchSize tracks presence events per consumed batch
	PresenceBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "presence_batch_events",
			Help:    "Number of presence events per consumed batch",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
		},
	)

	// PresenceQueueDepth tracks pending entries in the presence stream
	PresenceQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "presence_queue_depth",
			Help: "Pending entries in the presence event stream",
		},
	)
)

// WebSocket Metrics
var (
	// WebSocketConnectionsCurrent tracks current active WebSocket connections
	WebSocketConnectionsCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_current",
			Help: "Current number of active WebSocket connections",
		},
	)

	// WebSocketConnectionsTotal tracks total WebSocket connection attempts by result
	WebSocketConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_connections_total",
			Help: "Total WebSocket connection attempts by result (success/error/rejected)",
		},
		[]string{"result"},
	)

	// WebSocketConnectionsRejected tracks rejected connection attempts by reason
	WebSocketConnectionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_connections_rejected_total",
			Help: "Total WebSocket connections rejected by reason (rate_limit/per_ip_limit/global_limit/unauthorized)",
		},
		[]string{"reason"},
	)

	// WebSocketMessageSendDuration tracks WebSocket message send duration
	WebSocketMessageSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websocket_message_send_duration_seconds",
			Help:    "WebSocket message send duration in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25},
		},
	)

	// WebSocketConnectionDuration tracks WebSocket connection duration
	WebSocketConnectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websocket_connection_duration_seconds",
			Help:    "WebSocket connection duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 300, 600, 1800, 3600},
		},
	)

	// WebSocketSlowClientsEvicted tracks clients dropped because their send buffer filled
	WebSocketSlowClientsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_slow_clients_evicted_total",
			Help: "Total WebSocket clients evicted due to a full send buffer",
		},
	)

	// WebSocketUniqueIPs tracks number of unique IP addresses with active connections
	WebSocketUniqueIPs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_unique_ips",
			Help: "Number of unique IP addresses with active WebSocket connections",
		},
	)

	// WebSocketPingFailures tracks WebSocket ping failures
	WebSocketPingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_ping_failures_total",
			Help: "Total WebSocket ping failures (client not responding)",
		},
	)

	// WebSocketIdleDisconnects tracks disconnects due to idle timeout
	WebSocketIdleDisconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_idle_disconnects_total",
			Help: "Total WebSocket connections closed due to idle timeout (>5 minutes no pong)",
		},
	)
)

// Database Metrics
var (
	// DBQueryDuration tracks database query duration by query name
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"query"},
	)

	// DBErrorsTotal tracks database errors by query name
	DBErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_errors_total",
			Help: "Total database errors by query",
		},
		[]string{"query"},
	)
)

// HTTP Error Metrics
var (
	// HTTPErrorsTotal tracks HTTP errors by structured error type
	HTTPErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total HTTP errors by error type",
		},
		[]string{"type"},
	)
)

// Build Information Metrics
var (
	// BuildInfo is a gauge that always returns 1, with build metadata as labels
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build information with version, commit, build_time, and go_version labels (value is always 1)",
		},
		[]string{"version", "commit", "build_time", "go_version"},
	)
)

// HTTP Request Metrics
// Note: http_requests_total{method, path, status} and
// http_request_duration_seconds{method, path} come from the echoprometheus
// middleware wired in internal/server.
