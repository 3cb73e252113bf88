package dbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	godbus "github.com/godbus/dbus/v5"
	"github.com/marmos91/ms2bridge/internal/logger"
	"github.com/marmos91/ms2bridge/pkg/registry"
)

// ErrNameTaken is returned when another connection owns an endpoint's bus name.
var ErrNameTaken = errors.New("bus name already owned")

// Conn is the subset of *godbus.Conn the adapter uses.
type Conn interface {
	RequestName(name string, flags godbus.RequestNameFlags) (godbus.RequestNameReply, error)
	ReleaseName(name string) (godbus.ReleaseNameReply, error)
	ExportSubtree(v interface{}, path godbus.ObjectPath, iface string) error
	Emit(path godbus.ObjectPath, name string, values ...interface{}) error
	Close() error
}

// DBusAdapter implements the adapter.Adapter interface for the MediaServer2
// D-Bus protocol.
//
// Every registry endpoint gets its own well-known bus name and an object
// subtree rooted at /org/gnome/UPnP/MediaServer2/<endpoint>. A single
// handler per interface serves every path of the subtree, decoding the
// target identifier from the message path.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. shutdownCtx cancelled (in-flight bridge calls abort)
//  3. Registry listener removed, every endpoint unexported and its name released
//  4. Wait for in-flight method calls (up to ShutdownTimeout)
//  5. Bus connection closed
//
// Thread safety:
// All methods are safe for concurrent use. godbus dispatches method calls
// on their own goroutines.
type DBusAdapter struct {
	config Config

	// dial opens the bus connection. Replaced in tests.
	dial func(Config) (Conn, error)

	registry *registry.Registry

	// mu protects conn and published
	mu        sync.Mutex
	conn      Conn
	published map[string]*registry.Endpoint

	// activeCalls tracks method calls in flight. callMu orders Add against
	// the Wait in shutdown.
	callMu      sync.Mutex
	activeCalls sync.WaitGroup
	callCount   atomic.Int32

	shutdownOnce sync.Once
	shutdown     chan struct{}
	stopped      chan struct{}

	// shutdownCtx is passed to every bridge call and cancelled on shutdown
	shutdownCtx    context.Context
	cancelRequests context.CancelFunc
}

// New creates a new DBusAdapter with the specified configuration.
//
// The adapter is created in a stopped state. Call SetRegistry() to inject
// the endpoints, then Serve() to connect and publish them.
//
// Panics if config validation fails.
func New(config Config) *DBusAdapter {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		panic(fmt.Sprintf("invalid D-Bus config: %v", err))
	}

	shutdownCtx, cancelRequests := context.WithCancel(context.Background())
	return &DBusAdapter{
		config:         config,
		dial:           dial,
		published:      make(map[string]*registry.Endpoint),
		shutdown:       make(chan struct{}),
		stopped:        make(chan struct{}),
		shutdownCtx:    shutdownCtx,
		cancelRequests: cancelRequests,
	}
}

func dial(cfg Config) (Conn, error) {
	var (
		conn *godbus.Conn
		err  error
	)
	switch {
	case cfg.Address != "":
		conn, err = godbus.Connect(cfg.Address)
	case cfg.Bus == BusSystem:
		conn, err = godbus.ConnectSystemBus()
	default:
		conn, err = godbus.ConnectSessionBus()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// SetRegistry injects the shared endpoint registry.
//
// Called exactly once before Serve(), no synchronization needed.
func (a *DBusAdapter) SetRegistry(reg *registry.Registry) {
	a.registry = reg
}

// Serve connects to the bus, subscribes to the registry and blocks until
// shutdown or until the bus connection is lost.
//
// Endpoints already registered are published during the subscription
// replay. An endpoint whose bus name is taken is dropped from the registry.
func (a *DBusAdapter) Serve(ctx context.Context) error {
	if a.registry == nil {
		return fmt.Errorf("D-Bus adapter has no registry")
	}

	conn, err := a.dial(a.config)
	if err != nil {
		return fmt.Errorf("failed to connect to %s bus: %w", a.config.describe(), err)
	}
	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()
	logger.Info("D-Bus adapter connected to %s bus", a.config.describe())

	a.registry.Subscribe(a)

	go func() {
		select {
		case <-ctx.Done():
			logger.Info("D-Bus shutdown signal received: %v", ctx.Err())
			a.initiateShutdown()
		case <-a.shutdown:
		}
	}()

	var lost <-chan struct{}
	if c, ok := conn.(interface{ Context() context.Context }); ok {
		lost = c.Context().Done()
	}

	select {
	case <-a.shutdown:
		<-a.stopped
		return nil
	case <-lost:
		a.initiateShutdown()
		<-a.stopped
		return fmt.Errorf("lost connection to %s bus", a.config.describe())
	}
}

// initiateShutdown withdraws every endpoint, waits for in-flight calls and
// closes the connection. Safe to call multiple times.
func (a *DBusAdapter) initiateShutdown() {
	a.shutdownOnce.Do(func() {
		logger.Debug("D-Bus shutdown initiated")
		close(a.shutdown)
		a.cancelRequests()

		go func() {
			defer close(a.stopped)

			if a.registry != nil {
				a.registry.Unsubscribe(a)
			}

			a.mu.Lock()
			for _, e := range a.published {
				a.withdrawLocked(e)
			}
			a.mu.Unlock()

			a.callMu.Lock()
			a.callMu.Unlock()
			a.activeCalls.Wait()

			a.mu.Lock()
			defer a.mu.Unlock()
			if a.conn != nil {
				if err := a.conn.Close(); err != nil {
					logger.Debug("Error closing D-Bus connection: %v", err)
				}
			}
			logger.Info("D-Bus adapter stopped")
		}()
	})
}

// Stop initiates graceful shutdown and waits until in-flight calls have
// finished and the connection is closed, or until ctx expires.
func (a *DBusAdapter) Stop(ctx context.Context) error {
	a.initiateShutdown()

	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), a.config.ShutdownTimeout)
		defer cancel()
	}

	select {
	case <-a.stopped:
		return nil
	case <-ctx.Done():
		logger.Warn("D-Bus shutdown context cancelled: %d call(s) still active: %v",
			a.callCount.Load(), ctx.Err())
		return ctx.Err()
	}
}

// beginCall registers an in-flight method call. The returned func ends it.
// It reports false once shutdown has begun.
func (a *DBusAdapter) beginCall() (func(), bool) {
	a.callMu.Lock()
	defer a.callMu.Unlock()
	select {
	case <-a.shutdown:
		return nil, false
	default:
	}
	a.activeCalls.Add(1)
	a.callCount.Add(1)
	return func() {
		a.callCount.Add(-1)
		a.activeCalls.Done()
	}, true
}

// EndpointAdded requests the endpoint's bus name and exports its subtree.
func (a *DBusAdapter) EndpointAdded(e *registry.Endpoint) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn == nil {
		return fmt.Errorf("D-Bus adapter is not connected")
	}
	select {
	case <-a.shutdown:
		return fmt.Errorf("D-Bus adapter is shutting down")
	default:
	}
	if _, exists := a.published[e.Name]; exists {
		return nil
	}

	name := busName(e.Name)
	reply, err := a.conn.RequestName(name, godbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("failed to request %s: %w", name, err)
	}
	if reply != godbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("%s: %w", name, ErrNameTaken)
	}

	obj := &object{adapter: a, endpoint: e}
	root := rootPath(e.Name)
	handlers := []struct {
		iface   string
		handler interface{}
	}{
		{IfaceContainer, containerHandler{obj}},
		{ifaceProperties, propertiesHandler{obj}},
		{ifaceIntrospectable, introspectHandler{obj}},
	}
	for i, h := range handlers {
		if err := a.conn.ExportSubtree(h.handler, root, h.iface); err != nil {
			for _, done := range handlers[:i] {
				_ = a.conn.ExportSubtree(nil, root, done.iface)
			}
			_, _ = a.conn.ReleaseName(name)
			return fmt.Errorf("failed to export %s on %s: %w", h.iface, root, err)
		}
	}

	a.published[e.Name] = e
	logger.Info("Published %s at %s", name, root)
	return nil
}

// EndpointRemoved unexports the endpoint and releases its bus name.
func (a *DBusAdapter) EndpointRemoved(e *registry.Endpoint) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.withdrawLocked(e)
}

func (a *DBusAdapter) withdrawLocked(e *registry.Endpoint) {
	if _, exists := a.published[e.Name]; !exists {
		return
	}
	delete(a.published, e.Name)

	root := rootPath(e.Name)
	for _, iface := range []string{IfaceContainer, ifaceProperties, ifaceIntrospectable} {
		if err := a.conn.ExportSubtree(nil, root, iface); err != nil {
			logger.Debug("Failed to unexport %s on %s: %v", iface, root, err)
		}
	}
	if _, err := a.conn.ReleaseName(busName(e.Name)); err != nil {
		logger.Debug("Failed to release %s: %v", busName(e.Name), err)
	}
	logger.Info("Withdrew %s", busName(e.Name))
}

// ObjectUpdated emits the Updated signal on the changed object.
func (a *DBusAdapter) ObjectUpdated(e *registry.Endpoint, id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.published[e.Name]; !exists {
		return
	}
	path := objectPath(e.Name, id)
	if err := a.conn.Emit(path, IfaceContainer+".Updated"); err != nil {
		logger.Debug("Failed to emit Updated on %s: %v", path, err)
	}
}

// Published returns the names of the endpoints currently on the bus.
func (a *DBusAdapter) Published() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	names := make([]string, 0, len(a.published))
	for name := range a.published {
		names = append(names, name)
	}
	return names
}

// Address returns the bus the adapter is connected to, or "" before Serve.
func (a *DBusAdapter) Address() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return ""
	}
	return a.config.describe()
}

// Protocol returns "D-Bus" as the protocol identifier.
func (a *DBusAdapter) Protocol() string {
	return "D-Bus"
}
