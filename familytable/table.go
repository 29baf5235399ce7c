package familytable

import (
	"math/rand"

	"github.com/sarchlab/mgsim/ids"
	"github.com/sarchlab/mgsim/sim2"
)

// Table is a fixed-size Family Table (spec.md §3 "Family", §4.1).
//
// The sync/free tie-break of §4.1 ("allocationDone and the last
// threadCount decrement race in the same cycle; the terminal predicate
// is evaluated exactly once") is implemented by deferring predicate
// evaluation out of the commit closures entirely: every staged mutator
// below marks its family dirty, and FinalizeCycle evaluates the
// predicates once per dirty family after the whole commit buffer has
// applied, so it always sees the fully-updated Dependency regardless of
// which mutator ran first within the cycle.
type Table struct {
	entries []Family
	free    []ids.FamilyID
	rng     *rand.Rand

	dirty map[ids.FamilyID]bool
	wasSyncDone  map[ids.FamilyID]bool
	wasFreeable  map[ids.FamilyID]bool
}

// NewTable builds a table with the given number of slots.
func NewTable(size int) *Table {
	t := &Table{
		entries:     make([]Family, size),
		rng:         rand.New(rand.NewSource(1)),
		dirty:       make(map[ids.FamilyID]bool),
		wasSyncDone: make(map[ids.FamilyID]bool),
		wasFreeable: make(map[ids.FamilyID]bool),
	}
	for i := range t.entries {
		t.entries[i] = emptyFamily()
		t.free = append(t.free, ids.FamilyID(size-1-i))
	}
	return t
}

// Size returns the table's capacity.
func (t *Table) Size() int { return len(t.entries) }

// Get returns a read-only snapshot of a family row.
func (t *Table) Get(fid ids.FamilyID) Family { return t.entries[fid] }

// Authenticate reports whether capability matches the live occupant of
// fid, guarding against stale remote handles (spec.md §6 "capability").
func (t *Table) Authenticate(fid ids.FamilyID, capability uint64) bool {
	if fid == ids.InvalidFamily || int(fid) >= len(t.entries) {
		return false
	}
	f := t.entries[fid]
	return f.State != Empty && f.Capability == capability
}

// TryAlloc reserves a free slot and assigns it a fresh capability.
func (t *Table) TryAlloc(buf *sim2.CommitBuffer) (ids.FamilyID, uint64, bool) {
	if len(t.free) == 0 {
		return ids.InvalidFamily, 0, false
	}
	fid := t.free[len(t.free)-1]
	capability := t.rng.Uint64()
	buf.Stage(func() {
		t.free = t.free[:len(t.free)-1]
		t.entries[fid] = emptyFamily()
		t.entries[fid].State = Allocated
		t.entries[fid].Capability = capability
	})
	return fid, capability, true
}

// StageInit stages the descriptor fields decoded from a create message
// (spec.md §4.1 DoFamilyCreate).
func (t *Table) StageInit(buf *sim2.CommitBuffer, fid ids.FamilyID, pc uint64, start, limit, step int64, physBlockSize, numCores int, link ids.FamilyID) {
	buf.Stage(func() {
		f := &t.entries[fid]
		f.PC = pc
		f.Start, f.Limit, f.Step = start, limit, step
		f.PhysBlockSize = physBlockSize
		f.NumCores = numCores
		f.LinkFID = link
		f.LogicalCount = uint64(CountThreads(start, limit, step))
	})
}

// StageSetRegInfo stages one register type's allocation record.
func (t *Table) StageSetRegInfo(buf *sim2.CommitBuffer, fid ids.FamilyID, rt ids.RegType, info RegInfo) {
	buf.Stage(func() { t.entries[fid].Regs[rt] = info })
}

// StageSetState stages a family's lifecycle transition.
func (t *Table) StageSetState(buf *sim2.CommitBuffer, fid ids.FamilyID, s State) {
	buf.Stage(func() { t.entries[fid].State = s })
}

// StageSetNumCores stages the final place size once DoAllocResponse's
// commit pass reaches this family (spec.md §4.1 DoAllocResponse
// "commit writes the final numCores into each family entry along the
// path").
func (t *Table) StageSetNumCores(buf *sim2.CommitBuffer, fid ids.FamilyID, n int) {
	buf.Stage(func() { t.entries[fid].NumCores = n })
}

// StageSetStart stages the family's index-range start (delegate
// set-property surface, spec.md §4.7).
func (t *Table) StageSetStart(buf *sim2.CommitBuffer, fid ids.FamilyID, v int64) {
	buf.Stage(func() {
		f := &t.entries[fid]
		f.Start = v
		f.LogicalCount = uint64(CountThreads(f.Start, f.Limit, f.Step))
	})
}

// StageSetLimit stages the family's index-range limit.
func (t *Table) StageSetLimit(buf *sim2.CommitBuffer, fid ids.FamilyID, v int64) {
	buf.Stage(func() {
		f := &t.entries[fid]
		f.Limit = v
		f.LogicalCount = uint64(CountThreads(f.Start, f.Limit, f.Step))
	})
}

// StageSetStep stages the family's index-range step.
func (t *Table) StageSetStep(buf *sim2.CommitBuffer, fid ids.FamilyID, v int64) {
	buf.Stage(func() {
		f := &t.entries[fid]
		f.Step = v
		f.LogicalCount = uint64(CountThreads(f.Start, f.Limit, f.Step))
	})
}

// StageSetBlockSize stages the family's physical block size.
func (t *Table) StageSetBlockSize(buf *sim2.CommitBuffer, fid ids.FamilyID, v int) {
	buf.Stage(func() { t.entries[fid].PhysBlockSize = v })
}

// StageSetExclusive stages the family's claim on the exclusive
// context.
func (t *Table) StageSetExclusive(buf *sim2.CommitBuffer, fid ids.FamilyID) {
	buf.Stage(func() { t.entries[fid].Exclusive = true })
}

// StageSetLinkFID stages the family's link to its entry on the next
// core of the place, recorded as the allocation response walks back
// (spec.md §4.1 DoAllocResponse).
func (t *Table) StageSetLinkFID(buf *sim2.CommitBuffer, fid, link ids.FamilyID) {
	buf.Stage(func() { t.entries[fid].LinkFID = link })
}

// StageSetSyncContinuation stages the (core, register) pair to notify
// when this family's sync predicate becomes true (spec.md §4.1
// "the sync continuation is delivered exactly once").
func (t *Table) StageSetSyncContinuation(buf *sim2.CommitBuffer, fid ids.FamilyID, core ids.CoreID, reg ids.RegIndex) {
	buf.Stage(func() {
		t.entries[fid].Sync = SyncContinuation{Valid: true, Core: core, Reg: reg}
	})
}

// StageIncThreadsAllocated stages +1 to numThreadsAllocated (a new
// thread was allocated for this family).
func (t *Table) StageIncThreadsAllocated(buf *sim2.CommitBuffer, fid ids.FamilyID) {
	buf.Stage(func() {
		t.entries[fid].Dep.NumThreadsAllocated++
		t.markDirty(fid)
	})
}

// StageDecThreadsAllocated stages -1 to numThreadsAllocated (a thread
// of this family finished cleanup, spec.md §4.1 DoThreadAllocate).
func (t *Table) StageDecThreadsAllocated(buf *sim2.CommitBuffer, fid ids.FamilyID) {
	buf.Stage(func() {
		t.entries[fid].Dep.NumThreadsAllocated--
		t.markDirty(fid)
	})
}

// StageSetAllocationDone stages allocationDone := true (no more threads
// will ever be allocated for this family, spec.md §4.1).
func (t *Table) StageSetAllocationDone(buf *sim2.CommitBuffer, fid ids.FamilyID) {
	buf.Stage(func() {
		t.entries[fid].Dep.AllocationDone = true
		t.markDirty(fid)
	})
}

// StageIncPendingReads stages +1 to numPendingReads (a remote read of
// this family's shareds is outstanding).
func (t *Table) StageIncPendingReads(buf *sim2.CommitBuffer, fid ids.FamilyID) {
	buf.Stage(func() {
		t.entries[fid].Dep.NumPendingReads++
		t.markDirty(fid)
	})
}

// StageDecPendingReads stages -1 to numPendingReads.
func (t *Table) StageDecPendingReads(buf *sim2.CommitBuffer, fid ids.FamilyID) {
	buf.Stage(func() {
		t.entries[fid].Dep.NumPendingReads--
		t.markDirty(fid)
	})
}

// StageSetPrevSynchronized stages prevSynchronized := true (the
// preceding core in the place has forwarded its own sync).
func (t *Table) StageSetPrevSynchronized(buf *sim2.CommitBuffer, fid ids.FamilyID) {
	buf.Stage(func() {
		t.entries[fid].Dep.PrevSynchronized = true
		t.markDirty(fid)
	})
}

// StageSetDetached stages detached := true (the parent thread that
// created this family issued a detach).
func (t *Table) StageSetDetached(buf *sim2.CommitBuffer, fid ids.FamilyID) {
	buf.Stage(func() {
		t.entries[fid].Dep.Detached = true
		t.markDirty(fid)
	})
}

// StageSetSyncSent stages syncSent := true (the sync continuation has
// been delivered).
func (t *Table) StageSetSyncSent(buf *sim2.CommitBuffer, fid ids.FamilyID) {
	buf.Stage(func() {
		t.entries[fid].Dep.SyncSent = true
		t.markDirty(fid)
	})
}

// StageSetBroken stages broken := true (an exception was raised inside
// the family; spec.md §4.1 exception propagation).
func (t *Table) StageSetBroken(buf *sim2.CommitBuffer, fid ids.FamilyID) {
	buf.Stage(func() { t.entries[fid].Broken = true })
}

// StageFree returns fid's slot to the free pool.
func (t *Table) StageFree(buf *sim2.CommitBuffer, fid ids.FamilyID) {
	buf.Stage(func() {
		t.entries[fid] = emptyFamily()
		t.free = append(t.free, fid)
		delete(t.wasSyncDone, fid)
		delete(t.wasFreeable, fid)
	})
}

func (t *Table) markDirty(fid ids.FamilyID) { t.dirty[fid] = true }

// FinalizeCycle evaluates the sync/free predicates exactly once for
// every family whose dependency record changed this cycle, after the
// whole commit buffer has been applied. It returns the families that
// newly became sync-ready (their continuation, if any, should fire) and
// the families that newly became freeable.
func (t *Table) FinalizeCycle() (newlySynced, newlyFreeable []ids.FamilyID) {
	for fid := range t.dirty {
		dep := t.entries[fid].Dep
		if dep.SyncDone() && !t.wasSyncDone[fid] {
			t.wasSyncDone[fid] = true
			newlySynced = append(newlySynced, fid)
		}
		if dep.Freeable() && !t.wasFreeable[fid] {
			t.wasFreeable[fid] = true
			newlyFreeable = append(newlyFreeable, fid)
		}
		delete(t.dirty, fid)
	}
	return newlySynced, newlyFreeable
}
