package threadtable

import (
	"github.com/sarchlab/mgsim/ids"
	"github.com/sarchlab/mgsim/sim2"
)

// Table is a fixed-size Thread Table with per-context-class free
// lists (spec.md §3, §4.1). The exclusive slot, when present, is
// always index exclusiveIndex; there is at most one.
type Table struct {
	waker func(ids.ThreadID)

	entries []Thread

	freeNormal   []ids.ThreadID
	freeReserved []ids.ThreadID

	hasExclusive   bool
	exclusiveFree  bool
	exclusiveIndex ids.ThreadID
}

// NewTable builds a table with `size` total slots, `reserved` of them
// held in the reserved pool, and one (if exclusive is true) held out
// as the table's single exclusive slot; the rest form the normal pool.
func NewTable(size, reserved int, exclusive bool) *Table {
	t := &Table{entries: make([]Thread, size)}
	for i := range t.entries {
		t.entries[i] = emptyThread()
	}

	next := 0
	if exclusive {
		t.hasExclusive = true
		t.exclusiveFree = true
		t.exclusiveIndex = ids.ThreadID(next)
		t.entries[next].Class = ClassExclusive
		next++
	}
	for i := 0; i < reserved; i++ {
		t.entries[next].Class = ClassReserved
		t.freeReserved = append(t.freeReserved, ids.ThreadID(next))
		next++
	}
	for ; next < size; next++ {
		t.entries[next].Class = ClassNormal
		t.freeNormal = append(t.freeNormal, ids.ThreadID(next))
	}

	return t
}

// Size returns the table's capacity.
func (t *Table) Size() int { return len(t.entries) }

// Get returns a read-only snapshot of a thread row.
func (t *Table) Get(tid ids.ThreadID) Thread { return t.entries[tid] }

// CountByState returns, for the committed state, how many threads sit
// in each State (spec.md §4.1 invariant "numThreadsPerState[s]
// accurately reflects the thread table").
func (t *Table) CountByState() [NumStates]int {
	var counts [NumStates]int
	for _, th := range t.entries {
		counts[int(th.State)]++
	}
	return counts
}

// CountForFamily returns the number of non-Empty threads that
// reference family f (spec.md §3 "Thread" invariant, §8 invariant 1).
func (t *Table) CountForFamily(f ids.FamilyID) int {
	n := 0
	for _, th := range t.entries {
		if th.State != Empty && th.Family == f {
			n++
		}
	}
	return n
}

// TryAlloc attempts to pop a free slot from the given class's pool.
// For ClassExclusive there is only ever one slot; TryAlloc fails if
// it is currently held by another family (spec.md §8 invariant 4).
func (t *Table) TryAlloc(buf *sim2.CommitBuffer, class ContextClass) (ids.ThreadID, bool) {
	switch class {
	case ClassExclusive:
		if !t.hasExclusive || !t.exclusiveFree {
			return ids.InvalidThread, false
		}
		tid := t.exclusiveIndex
		buf.Stage(func() { t.exclusiveFree = false })
		return tid, true
	case ClassReserved:
		if len(t.freeReserved) == 0 {
			return ids.InvalidThread, false
		}
		tid := t.freeReserved[len(t.freeReserved)-1]
		buf.Stage(func() { t.freeReserved = t.freeReserved[:len(t.freeReserved)-1] })
		return tid, true
	default:
		if len(t.freeNormal) == 0 {
			return ids.InvalidThread, false
		}
		tid := t.freeNormal[len(t.freeNormal)-1]
		buf.Stage(func() { t.freeNormal = t.freeNormal[:len(t.freeNormal)-1] })
		return tid, true
	}
}

// StageInit stages the initial field values of a freshly allocated
// thread: the caller-provided fields, including State, with the
// slot's Class kept and Next reset.
func (t *Table) StageInit(buf *sim2.CommitBuffer, tid ids.ThreadID, init Thread) {
	init.Class = t.entries[tid].Class
	buf.Stage(func() {
		preserved := init
		preserved.Next = ids.InvalidThread
		t.entries[tid] = preserved
	})
}

// StageSetState stages a thread's state transition.
func (t *Table) StageSetState(buf *sim2.CommitBuffer, tid ids.ThreadID, s State) {
	buf.Stage(func() { t.entries[tid].State = s })
}

// StageSetPC stages a thread's program-counter update (branches,
// sequential advance).
func (t *Table) StageSetPC(buf *sim2.CommitBuffer, tid ids.ThreadID, pc uint64) {
	buf.Stage(func() { t.entries[tid].PC = pc })
}

// StageSetDependency stages an update to a thread's dependency triple.
func (t *Table) StageSetDependency(buf *sim2.CommitBuffer, tid ids.ThreadID, d Dependency) {
	buf.Stage(func() { t.entries[tid].Dep = d })
}

// StageFree returns a thread's slot to its class's free pool and
// resets it to an empty row (spec.md §4.1 DoThreadAllocate cleanup:
// "decrements numThreadsAllocated" happens in familytable, this only
// reclaims the Thread Table slot itself).
func (t *Table) StageFree(buf *sim2.CommitBuffer, tid ids.ThreadID) {
	class := t.entries[tid].Class
	buf.Stage(func() {
		t.entries[tid] = emptyThread()
		t.entries[tid].Class = class
		switch class {
		case ClassExclusive:
			t.exclusiveFree = true
		case ClassReserved:
			t.freeReserved = append(t.freeReserved, tid)
		default:
			t.freeNormal = append(t.freeNormal, tid)
		}
	})
}

// Next implements regfile.ThreadLinker.
func (t *Table) Next(tid ids.ThreadID) ids.ThreadID {
	if tid == ids.InvalidThread {
		return ids.InvalidThread
	}
	return t.entries[tid].Next
}

// StageSetSuccessor stages the successor-in-block link used by
// cleanup to pass PREV_CLEANED_UP down the block.
func (t *Table) StageSetSuccessor(buf *sim2.CommitBuffer, tid, succ ids.ThreadID) {
	buf.Stage(func() { t.entries[tid].Successor = succ })
}

// StageSetNext implements regfile.ThreadLinker.
func (t *Table) StageSetNext(buf *sim2.CommitBuffer, tid, next ids.ThreadID) {
	buf.Stage(func() { t.entries[tid].Next = next })
}

// SetWaker installs the callback run when a thread transitions back
// to Ready, so the owning core's allocator re-queues it for
// activation.
func (t *Table) SetWaker(waker func(ids.ThreadID)) { t.waker = waker }

// StageWake implements regfile.ThreadLinker: a woken thread moves
// from Waiting back to Ready and is handed to the waker. A wake that
// lands while the thread is still in the pipeline is remembered in
// WakePending so the suspend point consumes it.
func (t *Table) StageWake(buf *sim2.CommitBuffer, tid ids.ThreadID) {
	buf.Stage(func() {
		th := &t.entries[tid]
		switch th.State {
		case Waiting:
			th.State = Ready
			if t.waker != nil {
				t.waker(tid)
			}
		case Active, Ready, Running, Suspended:
			th.WakePending = true
		}
	})
}

// StageSuspend parks a thread that read a missing operand. The
// wake-vs-suspend race resolves at commit time: a wake that already
// landed turns the suspend into an immediate re-activation.
func (t *Table) StageSuspend(buf *sim2.CommitBuffer, tid ids.ThreadID) {
	buf.Stage(func() {
		th := &t.entries[tid]
		if th.WakePending {
			th.WakePending = false
			th.State = Ready
			if t.waker != nil {
				t.waker(tid)
			}
			return
		}
		th.State = Waiting
	})
}
