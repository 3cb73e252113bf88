package prometheus

import (
	"time"

	"github.com/marmos91/ms2bridge/pkg/bridge"
	"github.com/marmos91/ms2bridge/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// bridgeMetrics is the Prometheus implementation of metrics.BridgeMetrics.
type bridgeMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	nodesReturned   *prometheus.HistogramVec
	cancellations   *prometheus.CounterVec
	endpoints       prometheus.Gauge
}

// NewBridgeMetrics creates a new Prometheus-backed BridgeMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewBridgeMetrics() metrics.BridgeMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopBridgeMetrics()
	}

	reg := metrics.GetRegistry()

	return &bridgeMetrics{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "ms2bridge_requests_total",
				Help: "Total number of bridge requests by provider, operation, and status",
			},
			[]string{"provider", "operation", "status", "error_kind"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "ms2bridge_request_duration_milliseconds",
				Help: "Duration of bridge requests in milliseconds, backend wait included",
				Buckets: []float64{
					1,     // 1ms
					10,    // 10ms
					100,   // 100ms
					1000,  // 1s
					10000, // 10s
				},
			},
			[]string{"provider", "operation"},
		),
		nodesReturned: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ms2bridge_nodes_returned",
				Help:    "Number of nodes returned per listing or search page",
				Buckets: []float64{0, 1, 10, 50, 100, 500, 1000},
			},
			[]string{"provider", "operation"},
		),
		cancellations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "ms2bridge_upstream_cancellations_total",
				Help: "Backend enumerations cancelled before exhaustion",
			},
			[]string{"provider"},
		),
		endpoints: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "ms2bridge_endpoints",
				Help: "Number of registered MediaServer2 endpoints",
			},
		),
	}
}

func (m *bridgeMetrics) RecordRequest(provider, operation string, duration time.Duration, err error) {
	status, kind := "success", ""
	if err != nil {
		status = "error"
		kind = bridge.KindOf(err).String()
	}

	m.requestsTotal.WithLabelValues(provider, operation, status, kind).Inc()
	m.requestDuration.WithLabelValues(provider, operation).Observe(duration.Seconds() * 1000) // Convert to milliseconds
}

func (m *bridgeMetrics) RecordNodes(provider, operation string, count int) {
	m.nodesReturned.WithLabelValues(provider, operation).Observe(float64(count))
}

func (m *bridgeMetrics) RecordCancellation(provider string) {
	m.cancellations.WithLabelValues(provider).Inc()
}

func (m *bridgeMetrics) SetEndpoints(count int) {
	m.endpoints.Set(float64(count))
}
