// Package threadtable implements the per-core Thread Table: a
// fixed-size table of thread contexts with free-lists per context
// class (spec.md §3 "Thread", §9 "Cyclic family/thread graphs").
package threadtable

import "github.com/sarchlab/mgsim/ids"

// State is a thread's externally visible lifecycle state.
type State int

const (
	// Empty: the slot holds no thread (on a free list).
	Empty State = iota
	// Waiting: blocked on a register read.
	Waiting
	// Active: allocated, not yet fetched into the pipeline.
	Active
	// Ready: instruction line is resident, queued for Fetch.
	Ready
	// Running: currently in the pipeline.
	Running
	// Suspended: parked mid-pipeline (missing data, write barrier).
	Suspended
	// Terminated: finished execution, awaiting cleanup.
	Terminated
)

// String names the state for thread-table dumps.
func (s State) String() string {
	switch s {
	case Empty:
		return "Empty"
	case Waiting:
		return "Waiting"
	case Active:
		return "Active"
	case Ready:
		return "Ready"
	case Running:
		return "Running"
	case Suspended:
		return "Suspended"
	case Terminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// NumStates is the number of distinct thread states, for
// numThreadsPerState bookkeeping (spec.md §4.1 invariant).
const NumStates = int(Suspended) + 1 - int(Empty) + 1

// RegBase gives a thread's per-register-type base indices for its
// locals, shareds, and dependents (spec.md §3 "Thread").
type RegBase struct {
	Local     ids.RegIndex
	Shared    ids.RegIndex
	Dependent ids.RegIndex
}

// Dependency is the 3-field per-thread dependency record controlling
// cleanup (spec.md §3, §4.1 DoThreadAllocate).
type Dependency struct {
	Killed        bool
	PrevCleanedUp bool
	PendingWrites int
}

// Done reports whether this thread may be reclaimed: killed, its
// predecessor has finished cleaning up, and no writes are still in
// flight.
func (d Dependency) Done() bool {
	return d.Killed && d.PrevCleanedUp && d.PendingWrites == 0
}

// ContextClass is the pool a Thread Table slot was reserved from
// (spec.md Glossary "Context").
type ContextClass int

const (
	// ClassNormal slots serve ordinary thread allocation.
	ClassNormal ContextClass = iota
	// ClassReserved slots are held back for the first thread of any
	// family, so a family can always make progress allocating its
	// first thread even under table pressure.
	ClassReserved
	// ClassExclusive is the single slot held by at most one family at
	// a time (spec.md §4.1 invariant, §8 invariant 4).
	ClassExclusive
)

// Thread is one row of the Thread Table.
type Thread struct {
	State State
	Class ContextClass

	PC          uint64
	Family      ids.FamilyID
	Bases       [ids.NumRegTypes]RegBase
	LineID      uint64 // cache-line id of the current instruction line
	Successor        ids.ThreadID
	Dep              Dependency
	WaitingForWrites bool

	// WakePending records a wake-up that arrived while the thread was
	// still in the pipeline; the suspend point consumes it instead of
	// parking (the fill-vs-suspend race).
	WakePending bool

	// Next threads the Register File's intrusive wait lists through
	// this table (regfile.ThreadLinker). The free lists are separate
	// slices and do not use it.
	Next ids.ThreadID
}

func emptyThread() Thread {
	return Thread{
		State:     Empty,
		Family:    ids.InvalidFamily,
		Successor: ids.InvalidThread,
		Next:      ids.InvalidThread,
	}
}
