package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/ms2bridge/pkg/media/memory"
	"github.com/marmos91/ms2bridge/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubAdapter blocks in Serve until stopped, or fails if failWith is set.
type stubAdapter struct {
	protocol string
	failWith error
	stops    *[]string
	mu       *sync.Mutex

	reg      *registry.Registry
	stopped  chan struct{}
	stopOnce sync.Once
}

func newStub(protocol string, stops *[]string, mu *sync.Mutex) *stubAdapter {
	return &stubAdapter{protocol: protocol, stops: stops, mu: mu, stopped: make(chan struct{})}
}

func (s *stubAdapter) Serve(ctx context.Context) error {
	if s.failWith != nil {
		return s.failWith
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		return nil
	}
}

func (s *stubAdapter) SetRegistry(reg *registry.Registry) { s.reg = reg }

func (s *stubAdapter) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		*s.stops = append(*s.stops, s.protocol)
		s.mu.Unlock()
		close(s.stopped)
	})
	return nil
}

func (s *stubAdapter) Protocol() string { return s.protocol }
func (s *stubAdapter) Address() string  { return "stub" }

func TestAddAdapter(t *testing.T) {
	reg := registry.New(registry.Options{})
	srv := New(reg, 0)
	var (
		stops []string
		mu    sync.Mutex
	)

	a := newStub("D-Bus", &stops, &mu)
	require.NoError(t, srv.AddAdapter(a))
	assert.Same(t, reg, a.reg)
	assert.Error(t, srv.AddAdapter(newStub("D-Bus", &stops, &mu)), "duplicate protocol")
	assert.Len(t, srv.Adapters(), 1)
	assert.Same(t, reg, srv.Registry())
}

func TestServe_ContextCancelStopsInReverseOrder(t *testing.T) {
	reg := registry.New(registry.Options{})
	_, err := reg.AddBackend(memory.New("grl-memory", "Memory", false))
	require.NoError(t, err)

	srv := New(reg, time.Second)
	var (
		stops []string
		mu    sync.Mutex
	)
	require.NoError(t, srv.AddAdapter(newStub("first", &stops, &mu)))
	require.NoError(t, srv.AddAdapter(newStub("second", &stops, &mu)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return")
	}

	mu.Lock()
	assert.Equal(t, []string{"second", "first"}, stops)
	mu.Unlock()
	assert.Zero(t, reg.Count(), "backends are closed on shutdown")

	assert.ErrorIs(t, srv.Serve(context.Background()), ErrAlreadyServed)
}

func TestServe_AdapterFailureStopsOthers(t *testing.T) {
	srv := New(registry.New(registry.Options{}), time.Second)
	var (
		stops []string
		mu    sync.Mutex
	)
	healthy := newStub("healthy", &stops, &mu)
	broken := newStub("broken", &stops, &mu)
	broken.failWith = errors.New("bus unavailable")
	require.NoError(t, srv.AddAdapter(healthy))
	require.NoError(t, srv.AddAdapter(broken))

	err := srv.Serve(context.Background())
	assert.ErrorContains(t, err, "bus unavailable")

	mu.Lock()
	assert.Contains(t, stops, "healthy")
	mu.Unlock()
}

func TestServe_NoAdapters(t *testing.T) {
	srv := New(registry.New(registry.Options{}), 0)
	assert.Error(t, srv.Serve(context.Background()))
}

func TestNew_NilRegistry(t *testing.T) {
	assert.Panics(t, func() { New(nil, 0) })
}
