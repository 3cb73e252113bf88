package bridge

import (
	"github.com/marmos91/ms2bridge/pkg/media"
)

// ListKind selects which children a listing returns.
type ListKind uint8

const (
	ListChildren ListKind = iota
	ListContainers
	ListItems
)

func (k ListKind) String() string {
	switch k {
	case ListContainers:
		return "containers"
	case ListItems:
		return "items"
	default:
		return "children"
	}
}

func (k ListKind) matches(n *media.Node) bool {
	switch k {
	case ListContainers:
		return n.IsContainer()
	case ListItems:
		return !n.IsContainer()
	default:
		return true
	}
}

type sessionState uint8

const (
	statePending sessionState = iota
	stateCollecting
	stateDone
	stateFailed
)

// session is the state of one enumeration. It is only touched from the
// loop that owns it.
type session struct {
	state     sessionState
	kind      ListKind
	skip      uint32
	quota     uint32
	parent    string
	project   func(*media.Node) []Value
	op        media.Operation
	results   [][]Value
	err       error
	cancelled bool
}

func newSession(kind ListKind, skip, quota uint32, parent string, project func(*media.Node) []Value) *session {
	return &session{
		kind:    kind,
		skip:    skip,
		quota:   quota,
		parent:  parent,
		project: project,
		results: make([][]Value, 0),
	}
}

func (s *session) finished() bool {
	return s.state == stateDone || s.state == stateFailed
}

// handle consumes one backend callback.
func (s *session) handle(node *media.Node, remaining uint32, err error) {
	if s.finished() {
		return
	}
	s.state = stateCollecting

	if err != nil {
		s.fail(backendError(err))
		return
	}

	if node != nil && s.kind.matches(node) {
		if s.skip > 0 {
			s.skip--
		} else {
			node.Parent = s.parent
			s.results = append(s.results, s.project(node))
			s.quota--
		}
	}

	if s.quota == 0 {
		if remaining > 0 && s.op != nil {
			s.op.Cancel()
			s.cancelled = true
		}
		s.state = stateDone
		return
	}
	if remaining == 0 {
		s.state = stateDone
	}
}

func (s *session) fail(err error) {
	s.state = stateFailed
	s.err = err
	s.results = nil
}

// abort stops the upstream operation after the wait was interrupted.
func (s *session) abort(err error) {
	if s.op != nil && !s.finished() {
		s.op.Cancel()
		s.cancelled = true
	}
	s.fail(err)
}
