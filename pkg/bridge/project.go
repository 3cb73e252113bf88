package bridge

import (
	"math"

	"github.com/marmos91/ms2bridge/pkg/media"
)

// Projector maps backend nodes onto the property schema for one provider.
type Projector struct {
	name       string
	searchable bool
}

// NewProjector returns a projector for a backend displayed as name.
// searchable controls the Searchable flag reported at the root.
func NewProjector(name string, searchable bool) *Projector {
	return &Projector{name: name, searchable: searchable}
}

// Project validates names and projects node onto them.
func (p *Projector) Project(node *media.Node, names []string) (PropertyMap, error) {
	f, err := ParseFilter(names)
	if err != nil {
		return nil, err
	}
	return p.ProjectFilter(node, f), nil
}

// ProjectFilter builds a map holding exactly the fields of f. Fields the
// backend did not supply get their placeholder.
func (p *Projector) ProjectFilter(node *media.Node, f Filter) PropertyMap {
	m := make(PropertyMap, f.Len())
	for _, prop := range f.Properties() {
		m[prop] = p.value(node, prop)
	}
	return m
}

func (p *Projector) value(node *media.Node, prop Property) Value {
	switch prop {
	case PropPath:
		return Object(EncodeIdentifier(node))
	case PropParent:
		if node.IsRoot() || node.Parent == "" {
			return Object(RootID)
		}
		return Object(node.Parent)
	case PropDisplayName:
		return String(p.title(node))
	case PropType:
		return String(node.Kind.String())
	case PropChildCount, PropItemCount, PropContainerCount:
		return Uint32(childCount(node))
	case PropSearchable:
		return Bool(p.searchable && node.IsRoot())
	}

	key, ok := prop.BackendKey()
	if !ok {
		return Placeholder(prop)
	}

	switch prop.Kind() {
	case ValueStringList:
		if s, ok := node.String(key); ok {
			return StringList(s)
		}
	case ValueString:
		if s, ok := node.String(key); ok {
			return String(s)
		}
	case ValueInt32:
		if n, ok := node.Int(key); ok {
			return Int32(clampInt32(n))
		}
	case ValueInt64:
		if n, ok := node.Int(key); ok {
			return Int64(n)
		}
	}
	return Placeholder(prop)
}

func (p *Projector) title(node *media.Node) string {
	if t := node.Title(); t != "" {
		return t
	}
	if node.IsRoot() && p.name != "" {
		return p.name
	}
	return UnknownString
}

// childCount is the reported child count for containers, UnknownCount when
// the backend cannot tell, and zero for items.
func childCount(node *media.Node) uint32 {
	if !node.IsContainer() {
		return 0
	}
	n, ok := node.Int(media.KeyChildCount)
	if !ok || n < 0 || n > math.MaxInt32 {
		return UnknownCount
	}
	return uint32(n)
}

func clampInt32(n int64) int32 {
	switch {
	case n > math.MaxInt32:
		return math.MaxInt32
	case n < math.MinInt32:
		return math.MinInt32
	}
	return int32(n)
}
