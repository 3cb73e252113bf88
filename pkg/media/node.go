package media

import (
	"maps"
	"time"
)

// Kind classifies a node.
type Kind uint32

const (
	KindUnknown Kind = iota
	KindContainer
	KindAudio
	KindVideo
	KindImage
)

func (k Kind) String() string {
	switch k {
	case KindContainer:
		return "container"
	case KindAudio:
		return "audio"
	case KindVideo:
		return "video"
	case KindImage:
		return "image"
	default:
		return "unknown"
	}
}

// ParseKind is the inverse of Kind.String. Unrecognized names map to KindUnknown.
func ParseKind(s string) Kind {
	switch s {
	case "container", "box", "folder":
		return KindContainer
	case "audio", "music":
		return KindAudio
	case "video":
		return KindVideo
	case "image", "photo":
		return KindImage
	default:
		return KindUnknown
	}
}

// Key names a metadata field a backend may supply for a node.
type Key uint8

const (
	KeyTitle Key = iota + 1
	KeyURL
	KeyMIME
	KeySize
	KeyArtist
	KeyAlbum
	KeyGenre
	KeyPublicationDate
	KeyDuration
	KeyBitrate
	KeySampleRate
	KeyWidth
	KeyHeight
	KeyThumbnail
	KeyChildCount
)

var keyNames = map[Key]string{
	KeyTitle:           "title",
	KeyURL:             "url",
	KeyMIME:            "mime",
	KeySize:            "size",
	KeyArtist:          "artist",
	KeyAlbum:           "album",
	KeyGenre:           "genre",
	KeyPublicationDate: "publication-date",
	KeyDuration:        "duration",
	KeyBitrate:         "bitrate",
	KeySampleRate:      "sample-rate",
	KeyWidth:           "width",
	KeyHeight:          "height",
	KeyThumbnail:       "thumbnail",
	KeyChildCount:      "childcount",
}

func (k Key) String() string {
	if name, ok := keyNames[k]; ok {
		return name
	}
	return "invalid"
}

// LookupKey resolves a key by its String() name.
func LookupKey(name string) (Key, bool) {
	for k, n := range keyNames {
		if n == name {
			return k, true
		}
	}
	return 0, false
}

// Node is a backend-owned record for a container or an item.
//
// ID is the backend-local identifier and is empty only for the root.
// Parent holds the protocol identifier of the enclosing container; it is
// filled in by the bridge when a node is decoded or enumerated, never by
// backends.
//
// Values are stored sparsely: strings for text fields and the publication
// date (RFC 3339), int64 for every numeric field.
type Node struct {
	ID     string
	Source string
	Kind   Kind
	Parent string

	values map[Key]any
}

// NewNode returns an empty node owned by source.
func NewNode(source, id string, kind Kind) *Node {
	return &Node{ID: id, Source: source, Kind: kind}
}

// NewRoot returns the synthetic root container of source.
func NewRoot(source string) *Node {
	return NewNode(source, "", KindContainer)
}

func (n *Node) IsRoot() bool {
	return n.ID == ""
}

func (n *Node) IsContainer() bool {
	return n.Kind == KindContainer
}

func (n *Node) set(k Key, v any) *Node {
	if n.values == nil {
		n.values = make(map[Key]any)
	}
	n.values[k] = v
	return n
}

// SetString stores a text value. Empty strings are treated as absent.
func (n *Node) SetString(k Key, v string) *Node {
	if v == "" {
		delete(n.values, k)
		return n
	}
	return n.set(k, v)
}

func (n *Node) SetInt(k Key, v int64) *Node {
	return n.set(k, v)
}

func (n *Node) SetTime(k Key, t time.Time) *Node {
	if t.IsZero() {
		return n
	}
	return n.set(k, t.UTC().Format(time.RFC3339))
}

func (n *Node) SetTitle(title string) *Node {
	return n.SetString(KeyTitle, title)
}

func (n *Node) Has(k Key) bool {
	_, ok := n.values[k]
	return ok
}

func (n *Node) String(k Key) (string, bool) {
	v, ok := n.values[k].(string)
	return v, ok
}

func (n *Node) Int(k Key) (int64, bool) {
	v, ok := n.values[k].(int64)
	return v, ok
}

func (n *Node) Title() string {
	s, _ := n.String(KeyTitle)
	return s
}

// Keys returns the keys that currently hold a value.
func (n *Node) Keys() []Key {
	keys := make([]Key, 0, len(n.values))
	for k := range n.values {
		keys = append(keys, k)
	}
	return keys
}

// Clone returns a deep copy. Backends hand out clones so the bridge can tag
// parents without touching backend state.
func (n *Node) Clone() *Node {
	c := *n
	c.values = maps.Clone(n.values)
	return &c
}

// Equal reports whether two nodes carry the same identity and values.
func (n *Node) Equal(o *Node) bool {
	if n == nil || o == nil {
		return n == o
	}
	if n.ID != o.ID || n.Source != o.Source || n.Kind != o.Kind || n.Parent != o.Parent {
		return false
	}
	return maps.Equal(n.values, o.values)
}
