package media

import (
	"context"
	"sync"
	"sync/atomic"
)

// Handle is the default Operation implementation used by the bundled
// backends. It is cancelled either explicitly or when its context ends.
type Handle struct {
	cancelled atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewHandle derives a cancellable handle from ctx.
func NewHandle(ctx context.Context) *Handle {
	c, cancel := context.WithCancel(ctx)
	return &Handle{ctx: c, cancel: cancel}
}

func (h *Handle) Cancel() {
	h.cancelled.Store(true)
	h.cancel()
}

// Cancelled reports whether the consumer asked to stop.
func (h *Handle) Cancelled() bool {
	return h.cancelled.Load() || h.ctx.Err() != nil
}

// Context is done once the handle is cancelled.
func (h *Handle) Context() context.Context {
	return h.ctx
}

func (h *Handle) release() {
	h.cancel()
}

// Window applies opts to a full listing. Count 0 means no upper bound.
func Window(nodes []*Node, opts Options) []*Node {
	if int(opts.Skip) >= len(nodes) {
		return nil
	}
	nodes = nodes[opts.Skip:]
	if opts.Count > 0 && int(opts.Count) < len(nodes) {
		nodes = nodes[:opts.Count]
	}
	return nodes
}

// Stream runs produce on a new goroutine and delivers its windowed result to
// cb one node at a time, stopping early when the handle is cancelled.
func Stream(ctx context.Context, opts Options, produce func(context.Context) ([]*Node, error), cb BrowseFunc) Operation {
	h := NewHandle(ctx)
	go func() {
		defer h.release()

		nodes, err := produce(h.Context())
		if err != nil {
			cb(nil, 0, err)
			return
		}
		Deliver(h, Window(nodes, opts), cb)
	}()
	return h
}

// Deliver emits nodes through cb with decreasing remaining counts.
func Deliver(h *Handle, nodes []*Node, cb BrowseFunc) {
	if len(nodes) == 0 {
		cb(nil, 0, nil)
		return
	}
	for i, n := range nodes {
		if h.Cancelled() {
			return
		}
		cb(n, uint32(len(nodes)-i-1), nil)
	}
}

// ResolveAsync runs fn on a new goroutine and reports through cb.
func ResolveAsync(ctx context.Context, fn func(context.Context) (*Node, error), cb ResolveFunc) Operation {
	h := NewHandle(ctx)
	go func() {
		defer h.release()
		n, err := fn(h.Context())
		if h.Cancelled() && err == nil {
			err = ErrCancelled
		}
		cb(n, err)
	}()
	return h
}

// Notifier fans change events out to Watch subscribers. Backends that track
// their own mutations embed it to implement Watcher.
type Notifier struct {
	mu   sync.Mutex
	subs map[int]func(Change)
	next int
}

func (n *Notifier) Watch(ctx context.Context, notify func(Change)) error {
	n.mu.Lock()
	if n.subs == nil {
		n.subs = make(map[int]func(Change))
	}
	id := n.next
	n.next++
	n.subs[id] = notify
	n.mu.Unlock()

	<-ctx.Done()

	n.mu.Lock()
	delete(n.subs, id)
	n.mu.Unlock()
	return nil
}

// Publish delivers c to every subscriber.
func (n *Notifier) Publish(c Change) {
	n.mu.Lock()
	subs := make([]func(Change), 0, len(n.subs))
	for _, s := range n.subs {
		subs = append(subs, s)
	}
	n.mu.Unlock()

	for _, s := range subs {
		s(c)
	}
}
