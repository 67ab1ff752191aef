package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistration(t *testing.T) {
	// Verify all metrics are registered without conflicts
	// This test ensures no duplicate metric names

	metrics := []prometheus.Collector{
		// Redis metrics
		RedisOpsTotal,
		RedisOpDuration,
		RedisConnectionErrors,
		CircuitBreakerStateChanges,
		CircuitBreakerState,

		// Broadcast metrics
		BroadcastsTotal,
		BroadcastDeliveriesTotal,
		BroadcastDuration,
		BroadcastInFlight,
		BroadcastSnapshotSize,

		// Chat metrics
		ConnectionsOpenedTotal,
		ConnectionsClosedTotal,
		MessagesReceivedTotal,
		MessagesDeliveredTotal,

		// Presence queue metrics
		PresenceEventsEnqueuedTotal,
		PresenceEventsProcessedTotal,
		PresenceBatchSize,
		PresenceQueueDepth,

		// WebSocket metrics
		WebSocketConnectionsCurrent,
		WebSocketConnectionsTotal,
		WebSocketConnectionsRejected,
		WebSocketMessageSendDuration,
		WebSocketConnectionDuration,
		WebSocketSlowClientsEvicted,
		WebSocketUniqueIPs,

		// Database metrics
		DBQueryDuration,
		DBErrorsTotal,

		// HTTP error metrics
		HTTPErrorsTotal,
	}

	for _, metric := range metrics {
		desc := make(chan *prometheus.Desc, 1)
		metric.Describe(desc)
		close(desc)

		require.NotNil(t, <-desc, "metric should have a valid descriptor")
	}
}

func TestCounterMetrics(t *testing.T) {
	tests := []struct {
		name    string
		metric  *prometheus.CounterVec
		labels  prometheus.Labels
		incBy   float64
		wantVal float64
	}{
		{
			name:    "redis operations counter",
			metric:  RedisOpsTotal,
			labels:  prometheus.Labels{"operation": "get", "status": "success"},
			incBy:   5,
			wantVal: 5,
		},
		{
			name:    "broadcast delivery outcomes counter",
			metric:  BroadcastDeliveriesTotal,
			labels:  prometheus.Labels{"outcome": "delivered"},
			incBy:   10,
			wantVal: 10,
		},
		{
			name:    "presence events enqueued counter",
			metric:  PresenceEventsEnqueuedTotal,
			labels:  prometheus.Labels{"status": "ONLINE"},
			incBy:   3,
			wantVal: 3,
		},
		{
			name:    "messages received counter",
			metric:  MessagesReceivedTotal,
			labels:  prometheus.Labels{"result": "accepted"},
			incBy:   7,
			wantVal: 7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.metric.Reset()

			for i := 0; i < int(tt.incBy); i++ {
				tt.metric.With(tt.labels).Inc()
			}

			val := testutil.ToFloat64(tt.metric.With(tt.labels))
			assert.Equal(t, tt.wantVal, val)
		})
	}
}

func TestGaugeMetrics(t *testing.T) {
	tests := []struct {
		name     string
		metric   prometheus.Gauge
		setValue float64
	}{
		{
			name:     "websocket connections current",
			metric:   WebSocketConnectionsCurrent,
			setValue: 75,
		},
		{
			name:     "broadcast deliveries in flight",
			metric:   BroadcastInFlight,
			setValue: 5,
		},
		{
			name:     "presence queue depth",
			metric:   PresenceQueueDepth,
			setValue: 12,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.metric.Set(tt.setValue)

			val := testutil.ToFloat64(tt.metric)
			assert.Equal(t, tt.setValue, val)
		})
	}
}

func TestHistogramMetrics(t *testing.T) {
	t.Run("redis operation duration", func(t *testing.T) {
		RedisOpDuration.Reset()

		observations := []float64{0.001, 0.005, 0.010, 0.025, 0.050}
		for _, obs := range observations {
			RedisOpDuration.WithLabelValues("test_get").Observe(obs)
		}

		count := testutil.CollectAndCount(RedisOpDuration)
		assert.Greater(t, count, 0, "histogram should have metrics")
	})

	t.Run("broadcast duration", func(t *testing.T) {
		observations := []float64{0.002, 0.003, 0.004}
		for _, obs := range observations {
			BroadcastDuration.Observe(obs)
		}

		count := testutil.CollectAndCount(BroadcastDuration)
		assert.Greater(t, count, 0, "histogram should have metrics")
	})

	t.Run("websocket message send duration", func(t *testing.T) {
		observations := []float64{0.0001, 0.0002, 0.0003, 0.0004}
		for _, obs := range observations {
			WebSocketMessageSendDuration.Observe(obs)
		}

		count := testutil.CollectAndCount(WebSocketMessageSendDuration)
		assert.Greater(t, count, 0, "histogram should have metrics")
	})
}

func TestLabelCardinality(t *testing.T) {
	// Verify label cardinality is reasonable (prevent label explosion)

	tests := []struct {
		name           string
		metric         *prometheus.CounterVec
		labels         []prometheus.Labels
		maxCardinality int
		expectUnique   int
	}{
		{
			name:   "redis operations have bounded labels",
			metric: RedisOpsTotal,
			labels: []prometheus.Labels{
				{"operation": "get", "status": "success"},
				{"operation": "get", "status": "error"},
				{"operation": "hset", "status": "success"},
				{"operation": "scan", "status": "success"},
			},
			maxCardinality: 100,
			expectUnique:   4,
		},
		{
			name:   "delivery outcomes are bounded",
			metric: BroadcastDeliveriesTotal,
			labels: []prometheus.Labels{
				{"outcome": "delivered"},
				{"outcome": "stale_removed"},
				{"outcome": "failed"},
			},
			maxCardinality: 10,
			expectUnique:   3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.metric.Reset()

			for _, labels := range tt.labels {
				tt.metric.With(labels).Inc()
			}

			assert.LessOrEqual(t, tt.expectUnique, tt.maxCardinality,
				"label cardinality should be reasonable to prevent explosion")
		})
	}
}

func TestMetricNaming(t *testing.T) {
	// Verify metrics follow Prometheus naming conventions
	// - snake_case
	// - descriptive suffixes (_total, _seconds, _current)

	tests := []struct {
		name         string
		metricName   string
		wantContains string
	}{
		{"counter has _total suffix", "redis_operations_total", "_total"},
		{"duration has _seconds suffix", "broadcast_duration_seconds", "_seconds"},
		{"gauge has descriptive name", "presence_queue_depth", "depth"},
		{"counter has _total suffix", "chat_messages_delivered_total", "_total"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, strings.Contains(tt.metricName, tt.wantContains),
				"metric name %s should contain %s", tt.metricName, tt.wantContains)
		})
	}
}

func TestMetricTypes(t *testing.T) {
	t.Run("counters only increase", func(t *testing.T) {
		RedisOpsTotal.Reset()
		counter := RedisOpsTotal.WithLabelValues("test", "success")

		counter.Inc()
		val1 := testutil.ToFloat64(counter)

		counter.Inc()
		val2 := testutil.ToFloat64(counter)

		assert.Greater(t, val2, val1, "counters should only increase")
	})

	t.Run("gauges can increase and decrease", func(t *testing.T) {
		gauge := WebSocketConnectionsCurrent

		gauge.Set(10)
		assert.Equal(t, 10.0, testutil.ToFloat64(gauge))

		gauge.Inc()
		assert.Equal(t, 11.0, testutil.ToFloat64(gauge))

		gauge.Dec()
		assert.Equal(t, 10.0, testutil.ToFloat64(gauge))

		gauge.Set(5)
		assert.Equal(t, 5.0, testutil.ToFloat64(gauge))
	})

	t.Run("histograms track distributions", func(t *testing.T) {
		hist := BroadcastDuration

		hist.Observe(0.001)
		hist.Observe(0.010)
		hist.Observe(0.100)

		count := testutil.CollectAndCount(hist)
		assert.Greater(t, count, 0, "histogram should collect metrics")
	})
}
