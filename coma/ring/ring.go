// Package ring implements the FIFO-ordered forwarding element of the
// coherence substrate (spec.md §2 "Ring Node"): messages enter from
// the upstream node or from the local client and leave toward the
// downstream node, in hop order, never overtaking within a ring.
package ring

import (
	"github.com/sarchlab/mgsim/coma"
	"github.com/sarchlab/mgsim/sim2"
)

// Sender is the downstream hookup of a node: the next node's intake,
// or a directory's ring-side intake. CanAccept is checked during
// phase 1; Send runs inside a commit record, so a node that answered
// CanAccept must honor the Send.
type Sender interface {
	CanAccept() bool
	Send(m *coma.Msg)
}

// Client is the component attached at this node (a cache or a
// directory side). Wants lets it consume a passing message instead of
// forwarding it; Receive hands the message over (a move).
type Client interface {
	Wants(m *coma.Msg) bool
	Receive(buf *sim2.CommitBuffer, m *coma.Msg)
}

// Node is one ring stop. At most one message advances per cycle; ring
// traffic has priority over local injection so a full ring never
// starves (injected messages wait for an empty slot).
type Node struct {
	name   string
	next   Sender
	client Client

	ring   []*coma.Msg
	inject []*coma.Msg

	capacity int
}

// NewNode builds a node with the given incoming-buffer capacity.
func NewNode(name string, capacity int) *Node {
	return &Node{name: name, capacity: capacity}
}

// Name returns the node's name.
func (n *Node) Name() string { return n.name }

// SetNext hooks up the downstream node.
func (n *Node) SetNext(next Sender) { n.next = next }

// SetClient attaches the local cache or directory.
func (n *Node) SetClient(c Client) { n.client = c }

// Pending returns how many messages this node currently owns.
func (n *Node) Pending() int { return len(n.ring) + len(n.inject) }

// CanAccept implements Sender for the upstream node.
func (n *Node) CanAccept() bool { return len(n.ring) < n.capacity }

// Send implements Sender: the message moves into this node's ring
// buffer. Called from a commit record after CanAccept succeeded.
func (n *Node) Send(m *coma.Msg) {
	n.ring = append(n.ring, m)
}

// Inject admits a locally originated message. It travels only when
// the ring slot is empty.
func (n *Node) Inject(m *coma.Msg) bool {
	if len(n.inject) >= n.capacity {
		return false
	}
	n.inject = append(n.inject, m)
	return true
}

// DoForward advances at most one message per cycle: the head of the
// ring buffer if present, otherwise the head of the injection buffer.
// A message the local client wants is moved to it instead of
// downstream.
func (n *Node) DoForward(buf *sim2.CommitBuffer) sim2.Result {
	var m *coma.Msg
	fromRing := false
	switch {
	case len(n.ring) > 0:
		m = n.ring[0]
		fromRing = true
	case len(n.inject) > 0:
		m = n.inject[0]
	default:
		return sim2.Success
	}

	if fromRing && n.client != nil && n.client.Wants(m) {
		n.client.Receive(buf, m)
		buf.Stage(func() { n.ring = n.ring[1:] })
		return sim2.Success
	}

	if !n.next.CanAccept() {
		return sim2.Failed
	}
	buf.Stage(func() {
		if fromRing {
			n.ring = n.ring[1:]
		} else {
			n.inject = n.inject[1:]
		}
		n.next.Send(m)
	})
	return sim2.Success
}
