// Package memory implements an in-memory media backend.
//
// The catalog is a tree rooted at the synthetic root container (ID ""). It
// is populated from configuration or programmatically with Add, and every
// mutation is published to Watch subscribers. Results are delivered on
// background goroutines, like a remote backend would.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/marmos91/ms2bridge/pkg/media"
)

type entry struct {
	node     *media.Node
	parent   string
	children []string
}

// Backend is an in-memory catalog.
type Backend struct {
	media.Notifier

	id         string
	name       string
	searchable bool

	mu    sync.RWMutex
	nodes map[string]*entry
}

// New creates an empty catalog.
func New(id, name string, searchable bool) *Backend {
	b := &Backend{
		id:         id,
		name:       name,
		searchable: searchable,
		nodes:      make(map[string]*entry),
	}
	b.nodes[""] = &entry{node: media.NewRoot(id)}
	return b
}

func (b *Backend) ID() string   { return b.id }
func (b *Backend) Name() string { return b.name }

func (b *Backend) Operations() media.Operations {
	ops := media.OpResolve | media.OpBrowse
	if b.searchable {
		ops |= media.OpSearch
	}
	return ops
}

func (b *Backend) Close() error {
	return nil
}

// SetRootTitle names the root container.
func (b *Backend) SetRootTitle(title string) {
	b.mu.Lock()
	b.nodes[""].node.SetTitle(title)
	b.mu.Unlock()
}

// Add inserts n under the container parentID and returns the stored ID.
// An empty n.ID gets a random one.
func (b *Backend) Add(parentID string, n *media.Node) (string, error) {
	b.mu.Lock()

	parent, ok := b.nodes[parentID]
	if !ok {
		b.mu.Unlock()
		return "", fmt.Errorf("parent %q: %w", parentID, media.ErrNotFound)
	}
	if !parent.node.IsContainer() {
		b.mu.Unlock()
		return "", fmt.Errorf("parent %q is not a container", parentID)
	}

	stored := n.Clone()
	stored.Source = b.id
	stored.Parent = ""
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if _, exists := b.nodes[stored.ID]; exists {
		b.mu.Unlock()
		return "", fmt.Errorf("node %q already exists", stored.ID)
	}

	b.nodes[stored.ID] = &entry{node: stored, parent: parentID}
	parent.children = append(parent.children, stored.ID)
	path := b.pathLocked(parentID)
	b.mu.Unlock()

	b.Publish(media.Change{Path: path})
	return stored.ID, nil
}

// Update replaces the metadata of an existing node, keeping its position.
func (b *Backend) Update(n *media.Node) error {
	b.mu.Lock()
	e, ok := b.nodes[n.ID]
	if !ok || n.ID == "" {
		b.mu.Unlock()
		return fmt.Errorf("node %q: %w", n.ID, media.ErrNotFound)
	}
	updated := n.Clone()
	updated.Source = b.id
	updated.Parent = ""
	e.node = updated

	// A container's own properties are announced on itself, an item's on
	// its parent.
	target := e.parent
	if updated.IsContainer() {
		target = n.ID
	}
	path := b.pathLocked(target)
	b.mu.Unlock()

	b.Publish(media.Change{Path: path})
	return nil
}

// Remove deletes a node and its subtree.
func (b *Backend) Remove(id string) error {
	b.mu.Lock()
	e, ok := b.nodes[id]
	if !ok || id == "" {
		b.mu.Unlock()
		return fmt.Errorf("node %q: %w", id, media.ErrNotFound)
	}

	parent := b.nodes[e.parent]
	for i, c := range parent.children {
		if c == id {
			parent.children = append(parent.children[:i:i], parent.children[i+1:]...)
			break
		}
	}
	b.dropLocked(id)
	path := b.pathLocked(e.parent)
	b.mu.Unlock()

	b.Publish(media.Change{Path: path})
	return nil
}

func (b *Backend) dropLocked(id string) {
	for _, c := range b.nodes[id].children {
		b.dropLocked(c)
	}
	delete(b.nodes, id)
}

// pathLocked returns the chain from the first child of the root down to id.
func (b *Backend) pathLocked(id string) []*media.Node {
	var chain []*media.Node
	for id != "" {
		e := b.nodes[id]
		chain = append([]*media.Node{e.node.Clone()}, chain...)
		id = e.parent
	}
	return chain
}

// snapshotLocked returns a caller-owned copy with a live child count.
func (b *Backend) snapshotLocked(e *entry) *media.Node {
	n := e.node.Clone()
	if n.IsContainer() {
		n.SetInt(media.KeyChildCount, int64(len(e.children)))
	}
	return n
}

func (b *Backend) Resolve(ctx context.Context, node *media.Node, keys []media.Key, cb media.ResolveFunc) media.Operation {
	return media.ResolveAsync(ctx, func(context.Context) (*media.Node, error) {
		b.mu.RLock()
		defer b.mu.RUnlock()

		e, ok := b.nodes[node.ID]
		if !ok {
			return nil, fmt.Errorf("node %q: %w", node.ID, media.ErrNotFound)
		}
		return b.snapshotLocked(e), nil
	}, cb)
}

func (b *Backend) Browse(ctx context.Context, container *media.Node, keys []media.Key, opts media.Options, cb media.BrowseFunc) media.Operation {
	return media.Stream(ctx, opts, func(context.Context) ([]*media.Node, error) {
		b.mu.RLock()
		defer b.mu.RUnlock()

		e, ok := b.nodes[container.ID]
		if !ok {
			return nil, fmt.Errorf("container %q: %w", container.ID, media.ErrNotFound)
		}
		if !e.node.IsContainer() {
			return nil, fmt.Errorf("node %q is not a container", container.ID)
		}
		out := make([]*media.Node, 0, len(e.children))
		for _, c := range e.children {
			out = append(out, b.snapshotLocked(b.nodes[c]))
		}
		return out, nil
	}, cb)
}

// Search matches query case-insensitively against titles, walking the tree
// depth-first in insertion order.
func (b *Backend) Search(ctx context.Context, query string, keys []media.Key, opts media.Options, cb media.BrowseFunc) media.Operation {
	if !b.searchable {
		return media.Stream(ctx, opts, func(context.Context) ([]*media.Node, error) {
			return nil, media.ErrUnsupported
		}, cb)
	}
	q := strings.ToLower(query)
	return media.Stream(ctx, opts, func(context.Context) ([]*media.Node, error) {
		b.mu.RLock()
		defer b.mu.RUnlock()

		var out []*media.Node
		var walk func(id string)
		walk = func(id string) {
			for _, c := range b.nodes[id].children {
				e := b.nodes[c]
				if strings.Contains(strings.ToLower(e.node.Title()), q) {
					out = append(out, b.snapshotLocked(e))
				}
				walk(c)
			}
		}
		walk("")
		return out, nil
	}, cb)
}
