package bridge

import (
	"github.com/marmos91/ms2bridge/pkg/media"
)

// Filter is a validated field selection.
type Filter struct {
	props    []Property
	wildcard bool
}

// CheckFilter returns the first name that is neither a schema field nor the
// wildcard.
func CheckFilter(names []string) (string, bool) {
	for _, name := range names {
		if name == Wildcard {
			continue
		}
		if _, ok := LookupProperty(name); !ok {
			return name, false
		}
	}
	return "", true
}

// ParseFilter validates names. The wildcard anywhere in the list selects the
// full schema in declaration order.
func ParseFilter(names []string) (Filter, error) {
	if bad, ok := CheckFilter(names); !ok {
		return Filter{}, unknownProperty(bad)
	}

	for _, name := range names {
		if name == Wildcard {
			return Filter{props: AllProperties(), wildcard: true}, nil
		}
	}

	props := make([]Property, 0, len(names))
	for _, name := range names {
		p, _ := LookupProperty(name)
		props = append(props, p)
	}
	return Filter{props: props}, nil
}

// FilterOf builds a filter from already-typed properties.
func FilterOf(props ...Property) Filter {
	return Filter{props: props}
}

func (f Filter) Properties() []Property {
	return f.props
}

func (f Filter) IsWildcard() bool {
	return f.wildcard
}

func (f Filter) Len() int {
	return len(f.props)
}

// Names returns the protocol names in filter order.
func (f Filter) Names() []string {
	names := make([]string, len(f.props))
	for i, p := range f.props {
		names[i] = p.String()
	}
	return names
}

// BackendKeys returns the distinct metadata keys the backend has to supply
// to project f.
func (f Filter) BackendKeys() []media.Key {
	seen := make(map[media.Key]bool)
	var keys []media.Key
	for _, p := range f.props {
		k, ok := p.BackendKey()
		if !ok || seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}
	return keys
}
