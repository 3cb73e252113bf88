package registry

import (
	"context"

	"github.com/marmos91/ms2bridge/pkg/bridge"
	"github.com/marmos91/ms2bridge/pkg/media"
)

type (
	// GetPropertiesFunc returns the values of names for the object id.
	GetPropertiesFunc func(ctx context.Context, id string, names []string) ([]bridge.Value, error)

	// ListFunc returns one page of the children of container id.
	ListFunc func(ctx context.Context, id string, kind bridge.ListKind, offset, max uint32, names []string) ([][]bridge.Value, error)

	// SearchFunc returns one page of objects matching query below id.
	SearchFunc func(ctx context.Context, id, query string, offset, max uint32, names []string) ([][]bridge.Value, error)
)

// Endpoint is one published backend. The three entry points are installed
// at registration; Search stays nil for backends that cannot search.
type Endpoint struct {
	// Name is the protocol-safe endpoint name.
	Name string

	Backend media.Backend
	Bridge  *bridge.Bridge

	GetProperties GetPropertiesFunc
	List          ListFunc
	Search        SearchFunc

	stopWatch context.CancelFunc
	watchDone chan struct{}
}

func newEndpoint(name string, b media.Backend, opts bridge.Options) *Endpoint {
	br := bridge.New(b, opts)
	e := &Endpoint{
		Name:          name,
		Backend:       b,
		Bridge:        br,
		GetProperties: br.GetProperties,
		List:          br.List,
	}
	if br.Searchable() {
		e.Search = br.Search
	}
	return e
}

// Searchable reports whether a search entry point is installed.
func (e *Endpoint) Searchable() bool {
	return e.Search != nil
}

// Properties calls the installed GetProperties entry point.
func (e *Endpoint) Properties(ctx context.Context, id string, names []string) ([]bridge.Value, error) {
	if e.GetProperties == nil {
		return nil, bridge.Unavailable("GetProperties", e.Name)
	}
	return e.GetProperties(ctx, id, names)
}

// Children calls the installed List entry point.
func (e *Endpoint) Children(ctx context.Context, id string, kind bridge.ListKind, offset, max uint32, names []string) ([][]bridge.Value, error) {
	if e.List == nil {
		return nil, bridge.Unavailable("List", e.Name)
	}
	return e.List(ctx, id, kind, offset, max, names)
}

// SearchObjects calls the installed Search entry point.
func (e *Endpoint) SearchObjects(ctx context.Context, id, query string, offset, max uint32, names []string) ([][]bridge.Value, error) {
	if e.Search == nil {
		return nil, bridge.Unavailable("Search", e.Name)
	}
	return e.Search(ctx, id, query, offset, max, names)
}

func (e *Endpoint) stop() {
	if e.stopWatch != nil {
		e.stopWatch()
		<-e.watchDone
	}
}
