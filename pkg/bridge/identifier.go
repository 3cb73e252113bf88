package bridge

import (
	"bytes"
	"encoding/base32"
	"errors"
	"fmt"

	"github.com/marmos91/ms2bridge/pkg/media"
	xdr "github.com/rasky/go-xdr/xdr2"
)

// RootID is the identifier of every backend's root container.
const RootID = "0"

const tokenVersion = 1

// Tokens use the RFC 4648 alphabet without padding so they are valid object
// path elements. "0" is outside that alphabet, so it never collides with a token.
var tokenEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// token is the XDR layout of a non-root identifier.
type token struct {
	Version uint32
	Source  string
	ID      string
	Kind    uint32
	Parent  string
}

// EncodeIdentifier returns the identifier of node. The result only depends on
// the node's source, backend-local ID, kind and parent identifier.
func EncodeIdentifier(node *media.Node) string {
	if node.IsRoot() {
		return RootID
	}

	parent := node.Parent
	if parent == "" {
		parent = RootID
	}

	var buf bytes.Buffer
	t := token{
		Version: tokenVersion,
		Source:  node.Source,
		ID:      node.ID,
		Kind:    uint32(node.Kind),
		Parent:  parent,
	}
	// Writing into a bytes.Buffer cannot fail for this fixed struct.
	if _, err := xdr.Marshal(&buf, &t); err != nil {
		panic(fmt.Sprintf("encode identifier: %v", err))
	}
	return tokenEncoding.EncodeToString(buf.Bytes())
}

// DecodeIdentifier reconstructs the node designated by id for the backend
// whose native identifier is source. The node is tagged with its parent's
// identifier; the root is its own parent.
func DecodeIdentifier(id, source string) (*media.Node, error) {
	if id == RootID {
		root := media.NewRoot(source)
		root.Parent = RootID
		return root, nil
	}
	if id == "" {
		return nil, invalidIdentifier(id, errors.New("empty identifier"))
	}

	raw, err := tokenEncoding.DecodeString(id)
	if err != nil {
		return nil, invalidIdentifier(id, err)
	}

	// No element can be longer than the token that carries it.
	r := bytes.NewReader(raw)
	var t token
	if _, err := xdr.UnmarshalLimited(r, &t, uint(len(raw))); err != nil {
		return nil, invalidIdentifier(id, err)
	}

	switch {
	case r.Len() != 0:
		return nil, invalidIdentifier(id, fmt.Errorf("%d trailing bytes", r.Len()))
	case t.Version != tokenVersion:
		return nil, invalidIdentifier(id, fmt.Errorf("unsupported token version %d", t.Version))
	case t.ID == "":
		return nil, invalidIdentifier(id, errors.New("missing node id"))
	case t.Source != source:
		return nil, invalidIdentifier(id, fmt.Errorf("identifier belongs to %q", t.Source))
	case t.Parent == "" || t.Parent == id:
		return nil, invalidIdentifier(id, errors.New("invalid parent"))
	}

	node := media.NewNode(t.Source, t.ID, media.Kind(t.Kind))
	node.Parent = t.Parent
	return node, nil
}

// EncodePath returns the identifier of the last node of chain, a list of
// nodes ordered from the first child of the root downwards. Parents are
// threaded through the chain; an empty chain designates the root.
func EncodePath(chain []*media.Node) string {
	id := RootID
	for _, n := range chain {
		c := n.Clone()
		c.Parent = id
		id = EncodeIdentifier(c)
	}
	return id
}
