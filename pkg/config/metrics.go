package config

import (
	"context"

	"github.com/marmos91/ms2bridge/internal/logger"
	"github.com/marmos91/ms2bridge/pkg/metrics"
	promMetrics "github.com/marmos91/ms2bridge/pkg/metrics/prometheus"
)

// MetricsResult bundles the collector handed to every bridge with the HTTP
// server exposing it. Server is nil when server.metrics.enabled is false;
// BridgeMetrics is never nil.
type MetricsResult struct {
	Server        *metrics.Server
	BridgeMetrics metrics.BridgeMetrics
}

// InitializeMetrics prepares metrics collection from server.metrics. With
// metrics disabled the Prometheus registry is never created, so the bridges
// record into a no-op collector.
func InitializeMetrics(cfg *Config) *MetricsResult {
	mc := cfg.Server.Metrics
	if !mc.Enabled {
		return &MetricsResult{BridgeMetrics: metrics.NewNoopBridgeMetrics()}
	}

	metrics.InitRegistry()
	return &MetricsResult{
		Server:        metrics.NewServer(metrics.ServerConfig{Port: mc.Port}),
		BridgeMetrics: promMetrics.NewBridgeMetrics(),
	}
}

// Serve runs the metrics endpoint until ctx is done. It returns at once when
// metrics are disabled. Failures are logged, never fatal: losing /metrics
// must not take the bus endpoints down.
func (m *MetricsResult) Serve(ctx context.Context) {
	if m == nil || m.Server == nil {
		return
	}
	if err := m.Server.Start(ctx); err != nil {
		logger.Error("Metrics server on port %d: %v", m.Server.Port(), err)
	}
}
