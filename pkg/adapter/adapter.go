package adapter

import (
	"context"

	"github.com/marmos91/ms2bridge/pkg/registry"
)

// Adapter represents a protocol-specific server adapter that can be managed by
// MediaServer.
//
// Each adapter publishes the endpoints of the shared registry over one IPC
// protocol (e.g., D-Bus MediaServer2). Adapters learn about endpoints by
// subscribing to the registry, so backends added or removed at runtime are
// reflected without restarting the adapter.
//
// Lifecycle:
//  1. Creation: Adapter is created with protocol-specific configuration
//  2. Registry injection: SetRegistry() provides the shared endpoints
//  3. Startup: Serve() connects and blocks until shutdown
//  4. Shutdown: Stop() withdraws every endpoint and disconnects
//
// Thread safety:
// Implementations must be safe for concurrent use. SetRegistry() is called
// once before Serve(), but Stop() may be called concurrently with Serve().
type Adapter interface {
	// Serve connects to the transport, publishes every registered endpoint
	// and blocks until the context is cancelled or an unrecoverable error
	// occurs.
	//
	// If Serve returns before context cancellation, MediaServer treats it as
	// a fatal error and stops all other adapters.
	//
	// Returns:
	//   - nil on graceful shutdown
	//   - context.Canceled if cancelled via context
	//   - error if startup fails or the transport is lost
	Serve(ctx context.Context) error

	// SetRegistry injects the shared endpoint registry.
	//
	// Called exactly once by MediaServer before Serve().
	SetRegistry(reg *registry.Registry)

	// Stop initiates graceful shutdown.
	//
	// Implementations must be idempotent, safe to call concurrently with
	// Serve() and respect the context timeout.
	Stop(ctx context.Context) error

	// Protocol returns the human-readable protocol name for logging and metrics.
	//
	// Examples: "D-Bus"
	Protocol() string

	// Address describes where the adapter is reachable (bus address, URL).
	// Empty until Serve() has connected.
	Address() string
}
