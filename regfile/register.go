// Package regfile implements the per-core Register File: banked
// storage with per-register state (empty/waiting/pending/full) and an
// intrusive wake-up list threaded through the owning core's Thread
// Table (spec.md §3 "Register").
package regfile

import "github.com/sarchlab/mgsim/ids"

// State is a register's externally visible lifecycle state.
type State int

const (
	// Empty: no value, no waiters, no outstanding request.
	Empty State = iota
	// Waiting: one or more threads are blocked reading this register;
	// the list runs through the ThreadLinker, and only its head is
	// kept here, in WaitHead.
	Waiting
	// Pending: a memory request is outstanding and will resolve to a
	// value written by a cache fill.
	Pending
	// Full: a value is present and may be read without blocking.
	Full
)

// String renders the state for register-file dumps.
func (s State) String() string {
	switch s {
	case Empty:
		return "Empty"
	case Waiting:
		return "Waiting"
	case Pending:
		return "Pending"
	case Full:
		return "Full"
	default:
		return "Unknown"
	}
}

// PendingRequest is the memory-request descriptor a Pending register
// carries (spec.md §3): which family issued the load, where in the
// line the requested bytes start, how many bytes, whether to
// sign-extend, and which register (if any) continues a multi-word
// load.
type PendingRequest struct {
	Family       ids.FamilyID
	ByteOffset   uint32
	Size         uint8
	SignExtend   bool
	NextRegister ids.RegIndex
	HasNext      bool
}

// Register is one banked storage cell.
type Register struct {
	State   State
	Value   uint64
	Pending PendingRequest
	// WaitHead is the thread id at the head of this register's wait
	// list. The list itself threads through the Thread Table's `next`
	// field (spec.md design note "Cyclic family/thread graphs"); the
	// register only remembers where the list starts.
	WaitHead ids.ThreadID
}

func newRegister() Register {
	return Register{State: Empty, WaitHead: ids.InvalidThread}
}
