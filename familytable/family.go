// Package familytable implements the per-core Family Table: a
// fixed-size table of family descriptors with the dependency counters
// that drive termination and cleanup (spec.md §3 "Family", §4.1
// dependency state machine).
package familytable

import "github.com/sarchlab/mgsim/ids"

// State is a family's lifecycle state (spec.md §3: "Empty->Allocated
// ->Active->Terminated->(freed after all deps cleared)").
type State int

const (
	// Empty: slot is free.
	Empty State = iota
	// Allocated: a family-table entry and register-region reservation
	// exist, but BroadcastingCreate/ActivatingFamily have not run.
	Allocated
	// Active: threads are being allocated and executed.
	Active
	// Terminated: all threads have run to completion; dependency
	// counters may still be draining before the entry can be freed.
	Terminated
)

// String names the state for family-table dumps.
func (s State) String() string {
	switch s {
	case Empty:
		return "Empty"
	case Allocated:
		return "Allocated"
	case Active:
		return "Active"
	case Terminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// RegCounts is the (globals, shareds, locals) triplet decoded from the
// register-count encoding of spec.md §6.
type RegCounts struct {
	Globals uint8
	Shareds uint8
	Locals  uint8
}

// Sum returns the total register count this class needs; DoFamilyCreate
// rejects any RegCounts whose Sum exceeds 31 (spec.md §4.1, §6).
func (c RegCounts) Sum() int { return int(c.Globals) + int(c.Shareds) + int(c.Locals) }

// RegInfo is the per-register-type allocation record (spec.md §3).
type RegInfo struct {
	Base           ids.RegIndex
	TotalSize      int
	Counts         RegCounts
	LastSharedIdx  ids.RegIndex
}

// SyncContinuation is the remote-waiter record delivered exactly once
// when a family's sync conditions are satisfied (spec.md §4.1
// invariant: "the sync continuation is delivered exactly once even if
// the sync arrives after termination").
type SyncContinuation struct {
	Valid bool
	Core  ids.CoreID
	Reg   ids.RegIndex
}

// Dependency is the 6-field dependency record of spec.md §3/§4.1.
type Dependency struct {
	NumThreadsAllocated int
	NumPendingReads     int
	PrevSynchronized    bool
	AllocationDone      bool
	SyncSent            bool
	Detached            bool
}

// SyncDone is the monotone predicate of spec.md §4.1: "ALL of
// {numThreadsAllocated=0, allocationDone, numPendingReads=0,
// prevSynchronized}".
func (d Dependency) SyncDone() bool {
	return d.NumThreadsAllocated == 0 &&
		d.AllocationDone &&
		d.NumPendingReads == 0 &&
		d.PrevSynchronized
}

// Freeable is the second predicate of spec.md §4.1: sync-done, and
// also detached and syncSent.
func (d Dependency) Freeable() bool {
	return d.SyncDone() && d.Detached && d.SyncSent
}

// CountThreads returns the logical thread count of an index range:
// start inclusive, limit exclusive, stepping by step.
func CountThreads(start, limit, step int64) int {
	if step > 0 && limit > start {
		return int((limit - start + step - 1) / step)
	}
	if step < 0 && limit < start {
		return int((start - limit + (-step) - 1) / -step)
	}
	return 0
}

// Family is one row of the Family Table.
type Family struct {
	State      State
	Capability uint64

	PC               uint64
	Start, Limit, Step int64
	LogicalCount     uint64
	PhysBlockSize    int
	NumCores         int
	LinkFID          ids.FamilyID // on the next core in the place; InvalidFamily if none
	Legacy           bool

	// Exclusive families hold the core's single exclusive context
	// (spec.md §8 invariant 4).
	Exclusive bool

	Dep    Dependency
	Regs   [ids.NumRegTypes]RegInfo
	Sync   SyncContinuation
	Broken bool
}

func emptyFamily() Family {
	return Family{State: Empty, LinkFID: ids.InvalidFamily}
}
