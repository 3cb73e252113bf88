// Package bridge turns a media backend into the synchronous, paginated
// property and listing operations of the MediaServer2 object model.
//
// A Bridge serves one backend. Every call decodes the target identifier,
// validates the requested fields, drives the backend's asynchronous
// primitives to completion on the calling goroutine and projects the
// resulting nodes onto the fixed property schema.
//
// Listing follows these rules:
//   - offset >= limit returns an empty page without contacting the backend
//   - an unfiltered listing pushes offset and count down to the backend
//   - a listing of containers or items only asks the backend for count nodes
//     from its start and skips the first offset matches itself
//   - once the page is full the upstream operation is cancelled
//   - a backend error discards anything collected so far
package bridge

import (
	"context"
	"math"
	"time"

	"github.com/marmos91/ms2bridge/internal/logger"
	"github.com/marmos91/ms2bridge/pkg/media"
	"github.com/marmos91/ms2bridge/pkg/metrics"
)

// Options configure a Bridge.
type Options struct {
	// Limit caps the number of nodes any listing or search returns.
	// 0 means unlimited.
	Limit uint32

	// RequestTimeout bounds each call. 0 waits for the backend forever.
	RequestTimeout time.Duration

	// Metrics receives request statistics. nil disables collection.
	Metrics metrics.BridgeMetrics
}

// Bridge serves the property and listing operations of one backend.
type Bridge struct {
	backend   media.Backend
	projector *Projector
	limit     uint32
	timeout   time.Duration
	metrics   metrics.BridgeMetrics
}

// New returns a bridge for backend.
func New(backend media.Backend, opts Options) *Bridge {
	limit := opts.Limit
	if limit == 0 || limit > math.MaxInt32 {
		limit = math.MaxInt32
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.NewNoopBridgeMetrics()
	}
	return &Bridge{
		backend:   backend,
		projector: NewProjector(backend.Name(), backend.Operations().Has(media.OpSearch)),
		limit:     limit,
		timeout:   opts.RequestTimeout,
		metrics:   m,
	}
}

func (b *Bridge) Backend() media.Backend {
	return b.backend
}

// Limit is the effective global cap.
func (b *Bridge) Limit() uint32 {
	return b.limit
}

// Searchable reports whether Search can succeed on the root.
func (b *Bridge) Searchable() bool {
	return b.backend.Operations().Has(media.OpSearch)
}

// Decode resolves id against this bridge's backend.
func (b *Bridge) Decode(id string) (*media.Node, error) {
	return DecodeIdentifier(id, b.backend.ID())
}

func (b *Bridge) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.timeout > 0 {
		return context.WithTimeout(ctx, b.timeout)
	}
	return context.WithCancel(ctx)
}

func (b *Bridge) record(op string, start time.Time, n int, err error) {
	b.metrics.RecordRequest(b.backend.ID(), op, time.Since(start), err)
	if err == nil {
		b.metrics.RecordNodes(b.backend.ID(), op, n)
	} else {
		logger.Debug("%s on %s failed: %v", op, b.backend.ID(), err)
	}
}

// GetProperties returns the values of names for the object id, in the order
// of names. The filter is validated before the backend is contacted.
func (b *Bridge) GetProperties(ctx context.Context, id string, names []string) (values []Value, err error) {
	start := time.Now()
	defer func() { b.record("get_properties", start, 1, err) }()

	f, err := ParseFilter(names)
	if err != nil {
		return nil, err
	}
	node, err := b.Decode(id)
	if err != nil {
		return nil, err
	}

	node, err = b.resolve(ctx, node, f.BackendKeys())
	if err != nil {
		return nil, err
	}
	return b.projector.ProjectFilter(node, f).Values(f.Properties()), nil
}

// resolve asks the backend for keys and waits for the answer. With no keys
// to fetch the node is returned as decoded.
func (b *Bridge) resolve(ctx context.Context, node *media.Node, keys []media.Key) (*media.Node, error) {
	if len(keys) == 0 {
		return node, nil
	}
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	var (
		resolved *media.Node
		failure  error
		done     bool
	)
	l := newLoop()
	op := b.backend.Resolve(ctx, node, keys, func(n *media.Node, err error) {
		l.post(func() {
			if done {
				return
			}
			resolved, failure, done = n, err, true
		})
	})

	if err := l.run(ctx, func() bool { return done }); err != nil {
		op.Cancel()
		return nil, backendError(err)
	}
	if failure != nil {
		return nil, backendError(failure)
	}
	if resolved == nil {
		return node, nil
	}
	resolved.Parent = node.Parent
	return resolved, nil
}

// List returns one page of the children of container id.
func (b *Bridge) List(ctx context.Context, id string, kind ListKind, offset, max uint32, names []string) (rows [][]Value, err error) {
	start := time.Now()
	op := "list_" + kind.String()
	defer func() { b.record(op, start, len(rows), err) }()

	f, err := ParseFilter(names)
	if err != nil {
		return nil, err
	}
	node, err := b.Decode(id)
	if err != nil {
		return nil, err
	}

	keys := f.BackendKeys()
	return b.enumerate(ctx, kind, offset, max, f, id,
		func(ctx context.Context, opts media.Options, cb media.BrowseFunc) media.Operation {
			return b.backend.Browse(ctx, node, keys, opts, cb)
		})
}

// Search returns one page of nodes matching query. It is only permitted on
// the root object.
func (b *Bridge) Search(ctx context.Context, id, query string, offset, max uint32, names []string) (rows [][]Value, err error) {
	start := time.Now()
	defer func() { b.record("search", start, len(rows), err) }()

	f, err := ParseFilter(names)
	if err != nil {
		return nil, err
	}
	node, err := b.Decode(id)
	if err != nil {
		return nil, err
	}
	if !node.IsRoot() {
		return nil, notPermitted("search is only supported on the root container")
	}
	if !b.Searchable() {
		return nil, Unavailable("search", b.backend.ID())
	}

	keys := f.BackendKeys()
	return b.enumerate(ctx, ListChildren, offset, max, f, RootID,
		func(ctx context.Context, opts media.Options, cb media.BrowseFunc) media.Operation {
			return b.backend.Search(ctx, query, keys, opts, cb)
		})
}

type startFunc func(ctx context.Context, opts media.Options, cb media.BrowseFunc) media.Operation

// window computes the backend request and the session quota.
func (b *Bridge) window(kind ListKind, offset, max uint32) (media.Options, uint32) {
	avail := b.limit - offset

	if kind == ListChildren {
		count := avail
		if max != 0 {
			count = min(max, avail)
		}
		return media.Options{Skip: offset, Count: count}, count
	}

	count := b.limit
	if max != 0 {
		count = max
	}
	return media.Options{Skip: 0, Count: count}, min(count, avail)
}

func (b *Bridge) enumerate(ctx context.Context, kind ListKind, offset, max uint32, f Filter, parent string, start startFunc) ([][]Value, error) {
	if offset >= b.limit {
		return [][]Value{}, nil
	}

	opts, quota := b.window(kind, offset, max)
	skip := offset
	if kind == ListChildren {
		skip = 0
	}

	props := f.Properties()
	s := newSession(kind, skip, quota, parent, func(n *media.Node) []Value {
		return b.projector.ProjectFilter(n, f).Values(props)
	})

	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	l := newLoop()
	s.op = start(ctx, opts, func(n *media.Node, remaining uint32, err error) {
		l.post(func() { s.handle(n, remaining, err) })
	})

	if err := l.run(ctx, s.finished); err != nil {
		s.abort(backendError(err))
	}
	if s.cancelled {
		b.metrics.RecordCancellation(b.backend.ID())
	}
	if s.state == stateFailed {
		return nil, s.err
	}
	return s.results, nil
}
