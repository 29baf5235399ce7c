package allocator

import (
	"github.com/sarchlab/mgsim/familytable"
	"github.com/sarchlab/mgsim/ids"
	"github.com/sarchlab/mgsim/sim2"
)

// HandleLinkAllocate extends a multi-core allocation walk onto this
// core (spec.md §4.1 DoFamilyAllocate's forwarding). It either
// reserves an entry and forwards, turns the walk around with a
// committed response, or starts the unwind.
func (a *Allocator) HandleLinkAllocate(buf *sim2.CommitBuffer, msg LinkAllocate) sim2.Result {
	if msg.FirstCore == a.localCore {
		// Wrapped the whole ring: the place cannot grow further.
		a.turnAround(buf, msg, msg.NumAllocated)
		return sim2.Success
	}

	fid, _, ok := a.families.TryAlloc(buf)
	if !ok {
		a.turnAround(buf, msg, msg.NumAllocated)
		return sim2.Success
	}

	buf.Stage(func() {
		a.linkPrev[fid] = msg.PrevFID

		if msg.RemainingSize > 1 {
			next := msg
			next.PrevFID = fid
			next.RemainingSize--
			next.NumAllocated++
			a.link.SendAllocate(next)
			return
		}

		// The walk ends here with the full place reserved.
		a.link.SendResponse(AllocResponse{
			FID:            msg.PrevFID,
			NextFID:        fid,
			Committed:      true,
			NumCores:       msg.NumAllocated + 1,
			CompletionCore: msg.CompletionCore,
			CompletionReg:  msg.CompletionReg,
		})
	})
	return sim2.Success
}

// turnAround originates the response when the walk cannot reach the
// requested size: an exact request unwinds everything; a non-exact
// request unwinds back to the largest power of two at most the
// allocated count (spec.md §4.1 DoAllocResponse).
func (a *Allocator) turnAround(buf *sim2.CommitBuffer, msg LinkAllocate, allocated int) {
	final := ids.Pow2Floor(allocated)
	if msg.Exact {
		final = 0
	}
	buf.Stage(func() {
		a.link.SendResponse(AllocResponse{
			FID:             msg.PrevFID,
			NextFID:         ids.InvalidFamily,
			Committed:       final > 0,
			NumCores:        final,
			UnwindRemaining: allocated - final,
			CompletionCore:  msg.CompletionCore,
			CompletionReg:   msg.CompletionReg,
		})
	})
}

// HandleLinkCreate admits a create broadcast for this core's entry of
// the family (spec.md §4.1 BroadcastingCreate).
func (a *Allocator) HandleLinkCreate(buf *sim2.CommitBuffer, msg LinkCreate) sim2.Result {
	buf.Stage(func() {
		a.createQ.Push(CreateRequest{
			FID:            msg.FirstFID,
			PC:             msg.PC,
			Start:          msg.Start,
			Limit:          msg.Limit,
			Step:           msg.Step,
			NumCores:       msg.NumCores,
			PhysBlockSize:  msg.PhysBlockSize,
			Requester:      msg.Requester,
			CompletionCore: msg.CompletionCore,
			CompletionReg:  msg.CompletionReg,
		})
	})
	return sim2.Success
}

// HandleLinkSync marks this core's entry prev-synchronized and stores
// the traveling continuation; the entry's own sync-done edge forwards
// the token further (spec.md §4.1 dependency state machine).
func (a *Allocator) HandleLinkSync(buf *sim2.CommitBuffer, msg LinkSync) sim2.Result {
	if msg.HasCont {
		a.families.StageSetSyncContinuation(buf, msg.FID, msg.Core, msg.Reg)
	}
	a.families.StageSetPrevSynchronized(buf, msg.FID)
	return sim2.Success
}

// HandleLinkDetach detaches this core's entry and forwards along the
// place.
func (a *Allocator) HandleLinkDetach(buf *sim2.CommitBuffer, msg LinkDetach) sim2.Result {
	a.stageDetach(buf, msg.FID)
	return sim2.Success
}

// HandleLinkBreak marks the family broken and stops further thread
// allocation on this core.
func (a *Allocator) HandleLinkBreak(buf *sim2.CommitBuffer, msg LinkBreak) sim2.Result {
	a.stageBreak(buf, msg.FID)
	return sim2.Success
}

// HandleLinkGlobalWrite writes one family global delivered from
// another core of the place.
func (a *Allocator) HandleLinkGlobalWrite(buf *sim2.CommitBuffer, msg LinkGlobalWrite) sim2.Result {
	f := a.families.Get(msg.FID)
	info := f.Regs[msg.Type]
	if int(msg.Window) >= int(info.Counts.Globals) {
		return sim2.Success
	}
	a.regs.StageWriteFull(buf, msg.Type, info.Base+msg.Window, msg.Value)
	if f.LinkFID != ids.InvalidFamily {
		next := msg
		next.FID = f.LinkFID
		buf.Stage(func() { a.link.SendGlobalWrite(next) })
	}
	return sim2.Success
}

// HandleSync services a sync operation on a family this core owns
// (spec.md §4.1: "the sync continuation is delivered exactly once
// even if the sync arrives after termination").
func (a *Allocator) HandleSync(buf *sim2.CommitBuffer, fid ids.FamilyID, capability uint64, retCore ids.CoreID, retReg ids.RegIndex) sim2.Result {
	if !a.authenticate(fid, capability) {
		return sim2.Success
	}
	f := a.families.Get(fid)
	if f.Dep.SyncDone() && !f.Dep.SyncSent {
		a.families.StageSetSyncSent(buf, fid)
		buf.Stage(func() {
			a.notifyCompletion(retCore, RegAddr{Type: ids.Integer, Index: retReg}, a.syncValue(fid))
		})
		return sim2.Success
	}
	a.families.StageSetSyncContinuation(buf, fid, retCore, retReg)
	return sim2.Success
}

// HandleDetach services a detach: the parent gives up its handle and
// the family may free itself once its other dependencies clear.
func (a *Allocator) HandleDetach(buf *sim2.CommitBuffer, fid ids.FamilyID, capability uint64) sim2.Result {
	if !a.authenticate(fid, capability) {
		return sim2.Success
	}
	a.stageDetach(buf, fid)
	return sim2.Success
}

// HandleBreak services a break: no further threads are created and
// the family reports broken at sync.
func (a *Allocator) HandleBreak(buf *sim2.CommitBuffer, fid ids.FamilyID, capability uint64) sim2.Result {
	if !a.authenticate(fid, capability) {
		return sim2.Success
	}
	a.stageBreak(buf, fid)
	return sim2.Success
}

func (a *Allocator) stageDetach(buf *sim2.CommitBuffer, fid ids.FamilyID) {
	f := a.families.Get(fid)
	a.families.StageSetDetached(buf, fid)
	if f.LinkFID != ids.InvalidFamily {
		next := f.LinkFID
		buf.Stage(func() { a.link.SendDetach(LinkDetach{FID: next}) })
	}
}

func (a *Allocator) stageBreak(buf *sim2.CommitBuffer, fid ids.FamilyID) {
	f := a.families.Get(fid)
	a.families.StageSetBroken(buf, fid)
	a.families.StageSetAllocationDone(buf, fid)
	if f.LinkFID != ids.InvalidFamily {
		next := f.LinkFID
		buf.Stage(func() { a.link.SendBreak(LinkBreak{FID: next}) })
	}
}

func (a *Allocator) authenticate(fid ids.FamilyID, capability uint64) bool {
	mask := a.fidCodec.CapabilityMask()
	if fid == ids.InvalidFamily {
		return false
	}
	f := a.families.Get(fid)
	return f.State != familytable.Empty && f.Capability&mask == capability&mask
}

// syncValue is what a completed sync writes back: the family's
// logical thread count, or the all-ones broken marker when the family
// broke.
func (a *Allocator) syncValue(fid ids.FamilyID) uint64 {
	f := a.families.Get(fid)
	if f.Broken {
		return ^uint64(0)
	}
	return f.LogicalCount
}

// FinalizeCycle consumes the family table's once-per-cycle predicate
// edges after the commit phase, queueing the actual deliveries for
// the next cycle's processes.
func (a *Allocator) FinalizeCycle() {
	synced, freeable := a.families.FinalizeCycle()
	for _, fid := range synced {
		a.syncQ.Push(fid)
	}
	for _, fid := range freeable {
		a.freeQ.Push(fid)
	}
}

// DoSyncDelivery fires a family's sync completion: forward the token
// on the link, or write back the sync value (spec.md §4.1 dependency
// state machine).
func (a *Allocator) DoSyncDelivery(buf *sim2.CommitBuffer) sim2.Result {
	fid, ok := a.syncQ.Peek()
	if !ok {
		return sim2.Success
	}
	f := a.families.Get(fid)

	a.families.StageSetState(buf, fid, familytable.Terminated)

	switch {
	case f.LinkFID != ids.InvalidFamily:
		next := f.LinkFID
		cont := f.Sync
		// The continuation, if registered here, travels with the
		// token; syncSent only flips once a continuation has been
		// handed off or written back.
		if cont.Valid {
			a.families.StageSetSyncSent(buf, fid)
		}
		buf.Stage(func() {
			a.link.SendSync(LinkSync{
				FID:     next,
				HasCont: cont.Valid,
				Core:    cont.Core,
				Reg:     cont.Reg,
			})
		})
	case f.Sync.Valid && !f.Dep.SyncSent:
		cont := f.Sync
		a.families.StageSetSyncSent(buf, fid)
		buf.Stage(func() {
			a.notifyCompletion(cont.Core, RegAddr{Type: ids.Integer, Index: cont.Reg}, a.syncValue(fid))
		})
	}

	buf.Stage(func() { a.syncQ.StagePop() })
	return sim2.Success
}

// DoFamilyCleanup frees a family whose every dependency has cleared:
// registers first, then the table entry (spec.md §4.1: "free
// registers, free family entry").
func (a *Allocator) DoFamilyCleanup(buf *sim2.CommitBuffer) sim2.Result {
	fid, ok := a.freeQ.Peek()
	if !ok {
		return sim2.Success
	}
	f := a.families.Get(fid)
	for rt := ids.RegType(0); rt < ids.NumRegTypes; rt++ {
		if f.Regs[rt].TotalSize > 0 {
			a.raUnits[rt].StageFree(buf, f.Regs[rt].Base, f.Regs[rt].TotalSize)
		}
	}
	a.families.StageFree(buf, fid)
	buf.Stage(func() {
		a.freeQ.StagePop()
		delete(a.allocated, fid)
		delete(a.issued, fid)
		delete(a.lastThread, fid)
	})
	return sim2.Success
}
