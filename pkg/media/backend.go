// Package media defines the contract between the bridge and content backends.
//
// A backend exposes a tree of nodes through three asynchronous primitives:
// Resolve (single result), Browse and Search (streaming, cancellable). Results
// are delivered through callbacks that may run on any goroutine, including the
// caller's own goroutine before the method returns.
package media

import (
	"context"
	"errors"
)

// Operations is a bit set of the primitives a backend implements.
type Operations uint8

const (
	OpResolve Operations = 1 << iota
	OpBrowse
	OpSearch
)

func (o Operations) Has(op Operations) bool {
	return o&op == op
}

// ErrCancelled is reported by backends that deliver a final callback after
// an operation was cancelled.
var ErrCancelled = errors.New("operation cancelled")

// ErrNotFound is reported when a node no longer exists in the backend.
var ErrNotFound = errors.New("node not found")

// ErrUnsupported is reported by primitives a backend does not implement.
var ErrUnsupported = errors.New("operation not supported")

// Options bound a streaming enumeration.
type Options struct {
	// Skip is the number of nodes the backend skips before the first callback.
	Skip uint32

	// Count is the maximum number of nodes delivered.
	Count uint32
}

// ResolveFunc receives the resolved node or an error.
type ResolveFunc func(node *Node, err error)

// BrowseFunc is invoked once per yielded node. remaining is the number of
// nodes still to come; the last callback carries remaining == 0. An empty
// result is signalled by a single callback with a nil node and remaining 0.
// A non-nil err terminates the stream.
type BrowseFunc func(node *Node, remaining uint32, err error)

// Operation is a handle on an in-flight request.
type Operation interface {
	// Cancel asks the backend to stop producing results. It is best-effort:
	// callbacks already in flight may still be delivered.
	Cancel()
}

// Backend is a source of media nodes.
//
// ID is the native identifier used to derive the endpoint name; Name is the
// human readable display name. Nodes passed to callbacks must be owned by the
// caller (backends return copies).
type Backend interface {
	ID() string
	Name() string
	Operations() Operations

	// Resolve fills the requested keys of node.
	Resolve(ctx context.Context, node *Node, keys []Key, cb ResolveFunc) Operation

	// Browse streams the children of container.
	Browse(ctx context.Context, container *Node, keys []Key, opts Options, cb BrowseFunc) Operation

	// Search streams nodes matching query across the whole backend.
	Search(ctx context.Context, query string, keys []Key, opts Options, cb BrowseFunc) Operation

	Close() error
}

// Change describes a modification observed by a backend. Path lists the
// nodes from the first child of the root down to the affected object; an
// empty Path designates the root itself.
type Change struct {
	Path []*Node
}

// Watcher is implemented by backends able to report content changes.
// Watch blocks until ctx is done.
type Watcher interface {
	Watch(ctx context.Context, notify func(Change)) error
}
