// Package netplane implements the two message planes shared by the
// ring nodes (spec.md §4.7): the link plane, point-to-point along the
// place ring, and the delegate plane, any-to-any across places. Per
// source-destination pair, link messages are FIFO; delegate messages
// carry no inter-pair ordering guarantee.
package netplane

import (
	"github.com/sarchlab/mgsim/ids"
)

// LinkPlane is the place ring's message plane. Forward sends go to
// the next core in the ring; backward sends walk allocation responses
// the other way (spec.md §4.1 DoAllocResponse "walks the link in the
// reverse direction").
type LinkPlane struct {
	size    int
	bufSize int
	inbox   [][]*LinkMsg
}

// NewLinkPlane builds a plane over numCores cores with the given
// per-core buffer size.
func NewLinkPlane(numCores, bufSize int) *LinkPlane {
	return &LinkPlane{
		size:    numCores,
		bufSize: bufSize,
		inbox:   make([][]*LinkMsg, numCores),
	}
}

// Size returns the ring's core count.
func (p *LinkPlane) Size() int { return p.size }

// Next returns the core after c on the ring.
func (p *LinkPlane) Next(c ids.CoreID) ids.CoreID {
	return ids.CoreID((int(c) + 1) % p.size)
}

// Prev returns the core before c on the ring.
func (p *LinkPlane) Prev(c ids.CoreID) ids.CoreID {
	return ids.CoreID((int(c) - 1 + p.size) % p.size)
}

// SendForward enqueues m at the next core in the ring.
func (p *LinkPlane) SendForward(from ids.CoreID, m *LinkMsg) bool {
	return p.deliver(p.Next(from), m)
}

// SendBackward enqueues m at the previous core in the ring.
func (p *LinkPlane) SendBackward(from ids.CoreID, m *LinkMsg) bool {
	return p.deliver(p.Prev(from), m)
}

func (p *LinkPlane) deliver(to ids.CoreID, m *LinkMsg) bool {
	if len(p.inbox[to]) >= p.bufSize {
		return false
	}
	p.inbox[to] = append(p.inbox[to], m)
	return true
}

// Recv removes and returns the oldest message waiting at core c.
func (p *LinkPlane) Recv(c ids.CoreID) (*LinkMsg, bool) {
	if len(p.inbox[c]) == 0 {
		return nil, false
	}
	m := p.inbox[c][0]
	p.inbox[c] = p.inbox[c][1:]
	return m, true
}

// Pending returns how many messages wait at core c.
func (p *LinkPlane) Pending(c ids.CoreID) int { return len(p.inbox[c]) }

// DelegatePlane is the any-to-any cross-place plane.
type DelegatePlane struct {
	size    int
	bufSize int
	inbox   [][]*DelegateMsg

	// selfIn holds a core's message to itself; it short-circuits into
	// the core's own input for the next cycle instead of competing
	// for the output buffer (spec.md §4.7).
	selfIn []*DelegateMsg
}

// NewDelegatePlane builds a plane over numCores cores.
func NewDelegatePlane(numCores, bufSize int) *DelegatePlane {
	return &DelegatePlane{
		size:    numCores,
		bufSize: bufSize,
		inbox:   make([][]*DelegateMsg, numCores),
		selfIn:  make([]*DelegateMsg, numCores),
	}
}

// Send enqueues m at core to. A self-send takes the short-circuit
// input register; it fails only if that register is still occupied.
func (p *DelegatePlane) Send(from, to ids.CoreID, m *DelegateMsg) bool {
	m.SrcCore = from
	m.DstCore = to
	if from == to {
		if p.selfIn[to] != nil {
			return false
		}
		p.selfIn[to] = m
		return true
	}
	if len(p.inbox[to]) >= p.bufSize {
		return false
	}
	p.inbox[to] = append(p.inbox[to], m)
	return true
}

// Recv removes and returns the oldest message waiting at core c; the
// short-circuit register drains first.
func (p *DelegatePlane) Recv(c ids.CoreID) (*DelegateMsg, bool) {
	if m := p.selfIn[c]; m != nil {
		p.selfIn[c] = nil
		return m, true
	}
	if len(p.inbox[c]) == 0 {
		return nil, false
	}
	m := p.inbox[c][0]
	p.inbox[c] = p.inbox[c][1:]
	return m, true
}

// Pending returns how many messages wait at core c.
func (p *DelegatePlane) Pending(c ids.CoreID) int {
	n := len(p.inbox[c])
	if p.selfIn[c] != nil {
		n++
	}
	return n
}
