// Package registry tracks the media backends published by the server.
//
// Every backend becomes an Endpoint with a protocol-safe name derived from
// its native identifier. Protocol adapters subscribe as Listeners to create
// and destroy their objects as endpoints come and go, and to relay change
// notifications raised by backends.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/marmos91/ms2bridge/internal/logger"
	"github.com/marmos91/ms2bridge/pkg/bridge"
	"github.com/marmos91/ms2bridge/pkg/media"
	"github.com/marmos91/ms2bridge/pkg/metrics"
)

var (
	// ErrIncapable is returned for backends that cannot resolve and browse.
	ErrIncapable = errors.New("backend does not support resolve and browse")

	// ErrDuplicate is returned when another backend already uses the same
	// display name and duplicates are not allowed.
	ErrDuplicate = errors.New("backend with the same name already registered")

	// ErrNameTaken is returned when the endpoint name is already in use.
	ErrNameTaken = errors.New("endpoint name already registered")

	// ErrNotFound is returned for unknown endpoint names.
	ErrNotFound = errors.New("endpoint not found")
)

// Listener receives endpoint lifecycle events. Callbacks run on the
// goroutine that triggered them, outside the registry lock.
type Listener interface {
	// EndpointAdded publishes e. An error rolls back the registration of
	// this endpoint only.
	EndpointAdded(e *Endpoint) error

	// EndpointRemoved withdraws e.
	EndpointRemoved(e *Endpoint)

	// ObjectUpdated reports that the object id of e changed.
	ObjectUpdated(e *Endpoint, id string)
}

// Options configure a Registry.
type Options struct {
	// AllowDuplicates registers backends whose display name is already taken.
	AllowDuplicates bool

	// Limit and RequestTimeout are passed to every bridge.
	Limit          uint32
	RequestTimeout time.Duration

	Metrics metrics.BridgeMetrics
}

// Registry manages all published endpoints.
//
// Example usage:
//
//	reg := registry.New(registry.Options{Limit: 100})
//	reg.Subscribe(dbusAdapter)
//	ep, err := reg.AddBackend(fsBackend)
type Registry struct {
	opts Options

	mu        sync.RWMutex
	endpoints map[string]*Endpoint
	listeners []Listener
}

// New creates an empty registry.
func New(opts Options) *Registry {
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoopBridgeMetrics()
	}
	return &Registry{
		opts:      opts,
		endpoints: make(map[string]*Endpoint),
	}
}

// SanitizeName derives an endpoint name from a native backend identifier.
// Characters outside [A-Za-z0-9_] become '_' and a leading digit is
// prefixed with '_', so the result is a valid bus name element and object
// path element.
func SanitizeName(id string) string {
	if id == "" {
		return "_"
	}
	out := make([]byte, 0, len(id)+1)
	if id[0] >= '0' && id[0] <= '9' {
		out = append(out, '_')
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
			out = append(out, c)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

// AddBackend publishes b. On success the registry owns b and closes it when
// the endpoint is removed; on failure the caller keeps ownership.
func (r *Registry) AddBackend(b media.Backend) (*Endpoint, error) {
	if b == nil {
		return nil, fmt.Errorf("cannot register nil backend")
	}
	if !b.Operations().Has(media.OpResolve | media.OpBrowse) {
		return nil, fmt.Errorf("%s: %w", b.ID(), ErrIncapable)
	}

	e := newEndpoint(SanitizeName(b.ID()), b, bridge.Options{
		Limit:          r.opts.Limit,
		RequestTimeout: r.opts.RequestTimeout,
		Metrics:        r.opts.Metrics,
	})

	r.mu.Lock()
	if _, exists := r.endpoints[e.Name]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", e.Name, ErrNameTaken)
	}
	if !r.opts.AllowDuplicates {
		for _, other := range r.endpoints {
			if other.Backend.Name() == b.Name() {
				r.mu.Unlock()
				return nil, fmt.Errorf("%s (%q, also provided by %s): %w", b.ID(), b.Name(), other.Backend.ID(), ErrDuplicate)
			}
		}
	}
	r.endpoints[e.Name] = e
	r.watch(e)
	listeners := append([]Listener(nil), r.listeners...)
	r.mu.Unlock()

	for i, l := range listeners {
		if err := l.EndpointAdded(e); err != nil {
			r.mu.Lock()
			delete(r.endpoints, e.Name)
			r.mu.Unlock()
			e.stop()
			for _, done := range listeners[:i] {
				done.EndpointRemoved(e)
			}
			return nil, fmt.Errorf("failed to publish %s: %w", e.Name, err)
		}
	}

	r.opts.Metrics.SetEndpoints(r.Count())
	logger.Info("Registered endpoint %s for backend %s (%q, search=%t)", e.Name, b.ID(), b.Name(), e.Searchable())
	return e, nil
}

// watch relays backend change events for the lifetime of e.
func (r *Registry) watch(e *Endpoint) {
	w, ok := e.Backend.(media.Watcher)
	if !ok {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.stopWatch = cancel
	e.watchDone = make(chan struct{})

	go func() {
		defer close(e.watchDone)
		err := w.Watch(ctx, func(c media.Change) {
			if err := r.NotifyUpdated(e.Name, c.Path); err != nil {
				logger.Debug("Dropping change on %s: %v", e.Name, err)
			}
		})
		if err != nil && ctx.Err() == nil {
			logger.Warn("Change notifications for %s stopped: %v", e.Name, err)
		}
	}()
}

// RemoveBackend withdraws the endpoint name and closes its backend.
func (r *Registry) RemoveBackend(name string) error {
	r.mu.Lock()
	e, exists := r.endpoints[name]
	if !exists {
		r.mu.Unlock()
		return fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	delete(r.endpoints, name)
	listeners := append([]Listener(nil), r.listeners...)
	r.mu.Unlock()

	e.stop()
	for _, l := range listeners {
		l.EndpointRemoved(e)
	}
	r.opts.Metrics.SetEndpoints(r.Count())

	if err := e.Backend.Close(); err != nil {
		return fmt.Errorf("failed to close backend %s: %w", e.Backend.ID(), err)
	}
	logger.Info("Removed endpoint %s", name)
	return nil
}

// Subscribe registers l and replays every existing endpoint to it. An
// endpoint l refuses is removed from the registry, as if its registration
// had failed.
func (r *Registry) Subscribe(l Listener) {
	r.mu.Lock()
	r.listeners = append(r.listeners, l)
	existing := r.sortedLocked()
	r.mu.Unlock()

	for _, e := range existing {
		if err := l.EndpointAdded(e); err != nil {
			logger.Warn("Failed to publish %s, removing it: %v", e.Name, err)
			if err := r.RemoveBackend(e.Name); err != nil {
				logger.Warn("Failed to remove %s: %v", e.Name, err)
			}
		}
	}
}

// Unsubscribe removes l without notifying it.
func (r *Registry) Unsubscribe(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, other := range r.listeners {
		if other == l {
			r.listeners = append(r.listeners[:i:i], r.listeners[i+1:]...)
			return
		}
	}
}

// NotifyUpdated announces a change on the object reached through chain,
// which lists the nodes from the first child of the root down to the
// changed object. An empty chain designates the root.
//
// Callers decide which object changed: an item's modifications are
// announced on its parent container, a container's own on itself.
func (r *Registry) NotifyUpdated(name string, chain []*media.Node) error {
	r.mu.RLock()
	e, exists := r.endpoints[name]
	listeners := append([]Listener(nil), r.listeners...)
	r.mu.RUnlock()
	if !exists {
		return fmt.Errorf("%s: %w", name, ErrNotFound)
	}

	id := bridge.EncodePath(chain)
	for _, l := range listeners {
		l.ObjectUpdated(e, id)
	}
	return nil
}

// Endpoint returns the endpoint registered under name.
func (r *Registry) Endpoint(name string) (*Endpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.endpoints[name]
	return e, ok
}

// Endpoints returns all endpoints sorted by name.
func (r *Registry) Endpoints() []*Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedLocked()
}

func (r *Registry) sortedLocked() []*Endpoint {
	out := make([]*Endpoint, 0, len(r.endpoints))
	for _, e := range r.endpoints {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Count returns the number of registered endpoints.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.endpoints)
}

// Close removes every endpoint. It returns the first backend close error.
func (r *Registry) Close() error {
	var firstErr error
	for _, e := range r.Endpoints() {
		if err := r.RemoveBackend(e.Name); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
