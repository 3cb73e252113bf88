package metrics

import "time"

// BridgeMetrics provides observability for bridge operations.
//
// Implementations collect request counts, latencies, page sizes and upstream
// cancellations per provider. This interface is optional - bridges created
// without one use the no-op implementation.
//
// Example usage:
//
//	// With metrics enabled
//	m := prometheus.NewBridgeMetrics()
//	b := bridge.New(backend, bridge.Options{Metrics: m})
//
//	// Without metrics (no-op)
//	b := bridge.New(backend, bridge.Options{})
type BridgeMetrics interface {
	// RecordRequest records a completed bridge call.
	//
	// Parameters:
	//   - provider: native identifier of the backend
	//   - operation: "get_properties", "list_children", "list_containers",
	//     "list_items" or "search"
	//   - duration: time spent in the call, including the backend wait
	//   - err: error returned to the caller, nil on success
	RecordRequest(provider, operation string, duration time.Duration, err error)

	// RecordNodes records the number of nodes returned by a successful call.
	RecordNodes(provider, operation string, count int)

	// RecordCancellation counts upstream enumerations cancelled because the
	// requested page was full or the caller gave up.
	RecordCancellation(provider string)

	// SetEndpoints updates the number of registered endpoints.
	SetEndpoints(count int)
}

type noopBridgeMetrics struct{}

// NewNoopBridgeMetrics returns a BridgeMetrics that discards everything.
func NewNoopBridgeMetrics() BridgeMetrics {
	return noopBridgeMetrics{}
}

func (noopBridgeMetrics) RecordRequest(string, string, time.Duration, error) {}
func (noopBridgeMetrics) RecordNodes(string, string, int)                    {}
func (noopBridgeMetrics) RecordCancellation(string)                          {}
func (noopBridgeMetrics) SetEndpoints(int)                                   {}
