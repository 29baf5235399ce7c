// Package allocator implements the family/thread control core of
// spec.md §4.1: six cooperating processes that allocate families and
// threads, drive multi-core create broadcasts, and feed ready threads
// to the pipeline's Fetch stage.
package allocator

import (
	"github.com/sarchlab/mgsim/familytable"
	"github.com/sarchlab/mgsim/ids"
	"github.com/sarchlab/mgsim/raunit"
	"github.com/sarchlab/mgsim/sim2"
	"github.com/sarchlab/mgsim/threadtable"
)

// familyInit is the subset of an AllocateRequest a multi-core family
// needs to remember on its origin core until DoAllocResponse's commit
// hands it to DoFamilyCreate.
type familyInit struct {
	PC                 uint64
	Start, Limit, Step int64
}

// AllocResponse is a reply traveling back along the place's link ring
// during DoAllocResponse (spec.md §4.1). The first UnwindRemaining
// hops release their reservation; the rest commit NumCores and record
// NextFID as their link to the following core.
type AllocResponse struct {
	FID       ids.FamilyID
	NextFID   ids.FamilyID
	Committed bool
	NumCores  int

	UnwindRemaining int

	CompletionCore ids.CoreID
	CompletionReg  RegAddr
}

// Allocator owns the Thread/Family control state machines for one
// core. Its eight Do* methods are sim2-Process-shaped (take the core's
// shared CommitBuffer, return a sim2.Result) so the owning core
// assembly registers them into the same Scheduler that drives the
// Pipeline, per spec.md §5's single-CommitBuffer-per-core-cycle rule.
type Allocator struct {
	name string

	families *familytable.Table
	threads  *threadtable.Table
	raUnits  [ids.NumRegTypes]*raunit.Unit
	regs     RegisterWriter
	icache   InstructionSource
	dcache   DataSource
	link     LinkPort

	localCore ids.CoreID
	fidCodec  ids.FIDCodec

	exclusiveQ  reqQueue[AllocateRequest]
	normalQ     reqQueue[AllocateRequest]
	suspendingQ reqQueue[AllocateRequest]
	allocRespQ  reqQueue[AllocResponse]
	createQ     reqQueue[CreateRequest]
	bundleQ     reqQueue[BundleRequest]
	cleanupQ    reqQueue[ids.ThreadID]

	readyPipeline reqQueue[ids.ThreadID]
	readyOther    reqQueue[ids.ThreadID]
	lastReadyWasPipeline bool

	activeQ reqQueue[ids.ThreadID]

	// allocQueue holds families with thread-allocation work still
	// pending, in FIFO (round-robin) order.
	allocQueue reqQueue[ids.FamilyID]
	// allocated tracks, per family, how many thread slots are live on
	// this core; issued counts every thread ever started here, so slot
	// reuse after cleanup still advances through the index range.
	allocated map[ids.FamilyID]int
	issued    map[ids.FamilyID]int
	// pendingInit remembers a multi-core family's entry point and
	// index range between DoFamilyAllocate forwarding the reservation
	// down the ring and DoAllocResponse's commit handing it to
	// DoFamilyCreate.
	pendingInit map[ids.FamilyID]familyInit
	// linkPrev records, per family entry reserved by an inbound
	// LinkAllocate, the sender's entry, so the response can walk back.
	linkPrev map[ids.FamilyID]ids.FamilyID
	// lastThread tracks each family's most recently allocated thread
	// on this core, for successor-in-block linking.
	lastThread map[ids.FamilyID]ids.ThreadID

	// syncQ and freeQ carry FinalizeCycle's predicate edges into the
	// next cycle's DoSyncDelivery / DoFamilyCleanup.
	syncQ reqQueue[ids.FamilyID]
	freeQ reqQueue[ids.FamilyID]

	create *createCtx
	bundle *bundleCtx
}

// New builds an Allocator for one core of a gridSize-core grid.
func New(
	name string,
	localCore ids.CoreID,
	gridSize int,
	families *familytable.Table,
	threads *threadtable.Table,
	raUnits [ids.NumRegTypes]*raunit.Unit,
	regs RegisterWriter,
	icache InstructionSource,
	dcache DataSource,
	link LinkPort,
) *Allocator {
	return &Allocator{
		name:        name,
		localCore:   localCore,
		fidCodec:    ids.NewFIDCodec(gridSize, families.Size()),
		families:    families,
		threads:     threads,
		raUnits:     raUnits,
		regs:        regs,
		icache:      icache,
		dcache:      dcache,
		link:        link,
		allocated:   make(map[ids.FamilyID]int),
		issued:      make(map[ids.FamilyID]int),
		pendingInit: make(map[ids.FamilyID]familyInit),
		linkPrev:    make(map[ids.FamilyID]ids.FamilyID),
		lastThread:  make(map[ids.FamilyID]ids.ThreadID),
	}
}

func (a *Allocator) Name() string { return a.name }

// Codec returns the packed-FID codec sized for this grid and family
// table.
func (a *Allocator) Codec() ids.FIDCodec { return a.fidCodec }

// EnqueueAllocate admits a new ALLOCATE request into the appropriate
// priority queue (spec.md §4.1 DoFamilyAllocate).
func (a *Allocator) EnqueueAllocate(req AllocateRequest) {
	switch req.Kind {
	case KindExclusive:
		a.exclusiveQ.Push(req)
	case KindSuspending:
		a.suspendingQ.Push(req)
	default:
		a.normalQ.Push(req)
	}
}

// DeliverAllocResponse admits an inbound link response for
// DoAllocResponse.
func (a *Allocator) DeliverAllocResponse(resp AllocResponse) { a.allocRespQ.Push(resp) }

// EnqueueBundle admits a new indirect/bundle create request for
// DoBundle.
func (a *Allocator) EnqueueBundle(req BundleRequest) { a.bundleQ.Push(req) }

// EnqueueCleanup schedules a terminated thread for DoThreadAllocate's
// cleanup half.
func (a *Allocator) EnqueueCleanup(tid ids.ThreadID) { a.cleanupQ.Push(tid) }

// EnqueueReady feeds a thread that became runnable back into one of
// DoThreadActivation's two source queues.
func (a *Allocator) EnqueueReady(tid ids.ThreadID, fromPipeline bool) {
	if fromPipeline {
		a.readyPipeline.Push(tid)
	} else {
		a.readyOther.Push(tid)
	}
}

// ActiveQueue exposes the threads DoThreadActivation has handed to
// Fetch this cycle, so the owning core can drain it into the pipeline.
func (a *Allocator) ActiveQueue() *reqQueue[ids.ThreadID] { return &a.activeQ }

// ActivateThread implements icache.Activator: a waiting thread's line
// arrived, so it becomes eligible for Fetch.
func (a *Allocator) ActivateThread(buf *sim2.CommitBuffer, tid ids.ThreadID) {
	buf.Stage(func() {
		a.activeQ.Push(tid)
	})
}

// WakeFamilyCreate implements icache.Activator: the register-spec
// line DoFamilyCreate was waiting on has arrived, so the fetch is
// retried against the now-resident line.
func (a *Allocator) WakeFamilyCreate(buf *sim2.CommitBuffer, addr uint64) {
	buf.Stage(func() {
		if a.create != nil && a.create.state == fcLoadingLine {
			a.create.state = fcLoadRegSpec
		}
	})
}

// Busy reports whether the allocator still has queued or in-flight
// control work, for the driver's idle detection.
func (a *Allocator) Busy() bool {
	queued := a.exclusiveQ.Len() + a.normalQ.Len() + a.suspendingQ.Len() +
		a.allocRespQ.Len() + a.createQ.Len() + a.bundleQ.Len() +
		a.cleanupQ.Len() + a.readyPipeline.Len() + a.readyOther.Len() +
		a.activeQ.Len() + a.allocQueue.Len() + a.syncQ.Len() + a.freeQ.Len()
	return queued > 0 || a.create != nil || a.bundle != nil || len(a.pendingInit) > 0
}

// DoFamilyAllocate implements spec.md §4.1's first bullet: pop from
// exclusive, then non-suspending, then suspending, in that priority,
// and reserve a family-table entry for whichever request is served.
func (a *Allocator) DoFamilyAllocate(buf *sim2.CommitBuffer) sim2.Result {
	req, kind, ok := a.peekAllocate()
	if !ok {
		return sim2.Success
	}

	fid, _, ok := a.families.TryAlloc(buf)
	if !ok {
		return sim2.Failed
	}
	if kind == KindExclusive {
		a.families.StageSetExclusive(buf, fid)
	}

	buf.Stage(func() {
		a.popAllocate(kind)

		if req.PlaceSize > 1 {
			a.pendingInit[fid] = familyInit{PC: req.PC, Start: req.Start, Limit: req.Limit, Step: req.Step}
			a.link.SendAllocate(LinkAllocate{
				FirstFID:       fid,
				PrevFID:        fid,
				FirstCore:      a.localCore,
				RemainingSize:  req.PlaceSize - 1,
				NumAllocated:   1,
				Exact:          req.Exact,
				CompletionCore: req.CompletionCore,
				CompletionReg:  req.CompletionReg,
			})
			return
		}

		a.createQ.Push(CreateRequest{
			FID:            fid,
			PC:             req.PC,
			Start:          req.Start,
			Limit:          req.Limit,
			Step:           req.Step,
			NumCores:       1,
			Requester:      req.Requester,
			CompletionCore: req.CompletionCore,
			CompletionReg:  req.CompletionReg,
			IsFirst:        true,
		})
	})
	return sim2.Success
}

// notifyCompletion delivers a value to a completion register through
// the delegate plane; a local destination short-circuits into this
// core's own input (spec.md §4.7).
func (a *Allocator) notifyCompletion(core ids.CoreID, reg RegAddr, value uint64) {
	a.link.Notify(core, reg, value)
}

func (a *Allocator) peekAllocate() (AllocateRequest, RequestKind, bool) {
	if req, ok := a.exclusiveQ.Peek(); ok {
		return req, KindExclusive, true
	}
	if req, ok := a.normalQ.Peek(); ok {
		return req, KindNormal, true
	}
	if req, ok := a.suspendingQ.Peek(); ok {
		return req, KindSuspending, true
	}
	return AllocateRequest{}, 0, false
}

func (a *Allocator) popAllocate(kind RequestKind) {
	switch kind {
	case KindExclusive:
		a.exclusiveQ.StagePop()
	case KindSuspending:
		a.suspendingQ.StagePop()
	default:
		a.normalQ.StagePop()
	}
}

// DoAllocResponse implements spec.md §4.1's second bullet: commits or
// unwinds a multi-core allocation as its response travels back along
// the link. The place's first core ends the walk; every other hop
// processes its own entry and forwards the response to its
// predecessor.
func (a *Allocator) DoAllocResponse(buf *sim2.CommitBuffer) sim2.Result {
	resp, ok := a.allocRespQ.Peek()
	if !ok {
		return sim2.Success
	}

	if _, origin := a.pendingInit[resp.FID]; origin {
		return a.respondAtOrigin(buf, resp)
	}

	prev := a.linkPrev[resp.FID]
	if resp.UnwindRemaining > 0 {
		// This core's reservation did not survive the unwind.
		a.families.StageFree(buf, resp.FID)
		buf.Stage(func() {
			a.allocRespQ.StagePop()
			delete(a.linkPrev, resp.FID)
			next := resp
			next.FID = prev
			next.NextFID = ids.InvalidFamily
			next.UnwindRemaining--
			a.link.SendResponse(next)
		})
		return sim2.Success
	}

	a.families.StageSetNumCores(buf, resp.FID, resp.NumCores)
	a.families.StageSetLinkFID(buf, resp.FID, resp.NextFID)
	fid := resp.FID
	buf.Stage(func() {
		a.allocRespQ.StagePop()
		delete(a.linkPrev, fid)
		next := resp
		next.FID = prev
		next.NextFID = fid
		a.link.SendResponse(next)
	})
	return sim2.Success
}

// respondAtOrigin finishes the walk on the place's first core: commit
// hands the family to DoFamilyCreate, unwind releases the reservation
// and reports a zero handle (spec.md §8 scenario S6).
func (a *Allocator) respondAtOrigin(buf *sim2.CommitBuffer, resp AllocResponse) sim2.Result {
	if resp.Committed {
		a.families.StageSetNumCores(buf, resp.FID, resp.NumCores)
		a.families.StageSetLinkFID(buf, resp.FID, resp.NextFID)
		init := a.pendingInit[resp.FID]
		buf.Stage(func() {
			a.allocRespQ.StagePop()
			delete(a.pendingInit, resp.FID)
			a.createQ.Push(CreateRequest{
				FID:            resp.FID,
				PC:             init.PC,
				Start:          init.Start,
				Limit:          init.Limit,
				Step:           init.Step,
				NumCores:       resp.NumCores,
				CompletionCore: resp.CompletionCore,
				CompletionReg:  resp.CompletionReg,
				IsFirst:        true,
			})
		})
		return sim2.Success
	}

	a.families.StageFree(buf, resp.FID)
	buf.Stage(func() {
		a.allocRespQ.StagePop()
		delete(a.pendingInit, resp.FID)
		a.notifyCompletion(resp.CompletionCore, resp.CompletionReg, 0)
	})
	return sim2.Success
}

// DoFamilyCreate drives the per-family create state machine one step
// per cycle (spec.md §4.1's third bullet).
func (a *Allocator) DoFamilyCreate(buf *sim2.CommitBuffer) sim2.Result {
	if a.create == nil {
		req, ok := a.createQ.Peek()
		if !ok {
			return sim2.Success
		}
		buf.Stage(func() {
			a.createQ.StagePop()
			a.create = &createCtx{
				state:          fcInitial,
				fid:            req.FID,
				pc:             req.PC,
				start:          req.Start,
				limit:          req.Limit,
				step:           req.Step,
				numCores:       req.NumCores,
				physBlockSize:  req.PhysBlockSize,
				requester:      req.Requester,
				completionCore: req.CompletionCore,
				completionReg:  req.CompletionReg,
				isFirst:        req.IsFirst,
			}
		})
		return sim2.Success
	}

	switch a.create.state {
	case fcInitial:
		buf.Stage(func() { a.create.state = fcLoadRegSpec })

	case fcLoadRegSpec:
		addr := a.create.pc - 4
		word, _, _, hit := a.icache.Fetch(ids.InvalidThread, addr)
		if hit {
			buf.Stage(func() {
				a.create.regWord = word
				a.create.state = fcLineLoaded
			})
		} else {
			a.icache.RequestCreationPreload(addr)
			buf.Stage(func() { a.create.state = fcLoadingLine })
		}

	case fcLoadingLine:
		return sim2.Delayed

	case fcLineLoaded:
		for rt := ids.RegType(0); rt < ids.NumRegTypes; rt++ {
			g, s, l := decodeRegSpec(a.create.regWord, rt)
			if int(g)+int(s)+int(l) > 31 {
				// The window cannot hold the requested counts; the
				// create is rejected and the requester gets the zero
				// handle.
				a.families.StageFree(buf, a.create.fid)
				core, reg := a.create.completionCore, a.create.completionReg
				notify := a.create.isFirst
				buf.Stage(func() {
					if notify {
						a.notifyCompletion(core, reg, 0)
					}
					a.create = nil
				})
				return sim2.Success
			}
		}
		buf.Stage(func() {
			for rt := ids.RegType(0); rt < ids.NumRegTypes; rt++ {
				g, s, l := decodeRegSpec(a.create.regWord, rt)
				a.create.counts[rt].Globals = g
				a.create.counts[rt].Shareds = s
				a.create.counts[rt].Locals = l
			}
			a.create.state = fcRestricting
		})

	case fcRestricting:
		threadCount := familytable.CountThreads(a.create.start, a.create.limit, a.create.step)
		numCores := a.create.numCores
		if a.create.isFirst {
			// Only the place's first core recomputes the core count;
			// the broadcast already carries the restricted value.
			hasShareds := false
			for rt := ids.RegType(0); rt < ids.NumRegTypes; rt++ {
				if a.create.counts[rt].Shareds > 0 {
					hasShareds = true
				}
			}
			if hasShareds {
				numCores = 1
			} else if threadCount > 0 {
				numCores = min(numCores, threadCount)
			}
		}
		physBlockSize := a.create.physBlockSize
		if a.create.isFirst || physBlockSize <= 0 {
			physBlockSize = max(threadCount/max(numCores, 1), 1)
		}

		link := a.families.Get(a.create.fid).LinkFID
		a.families.StageInit(buf, a.create.fid, a.create.pc,
			a.create.start, a.create.limit, a.create.step,
			physBlockSize, numCores, link)
		if a.create.isFirst {
			a.families.StageSetPrevSynchronized(buf, a.create.fid)
		}

		buf.Stage(func() {
			a.create.numCores = numCores
			a.create.regTypeIdx = 0
			a.create.state = fcAllocatingRegisters
		})

	case fcAllocatingRegisters:
		return a.stepAllocatingRegisters(buf)

	case fcBroadcastingCreate:
		f := a.families.Get(a.create.fid)
		if a.create.numCores > 1 && f.LinkFID != ids.InvalidFamily {
			msg := LinkCreate{
				FirstFID:       f.LinkFID,
				PC:             a.create.pc,
				Start:          a.create.start,
				Limit:          a.create.limit,
				Step:           a.create.step,
				PhysBlockSize:  f.PhysBlockSize,
				NumCores:       a.create.numCores - 1,
				Requester:      a.create.requester,
				CompletionCore: a.create.completionCore,
				CompletionReg:  a.create.completionReg,
			}
			buf.Stage(func() { a.link.SendCreate(msg) })
		} else if a.create.numCores <= 1 {
			// The broadcast ends here; this core's link is cleared so
			// the sync token knows where the place stops.
			a.families.StageSetLinkFID(buf, a.create.fid, ids.InvalidFamily)
		}
		buf.Stage(func() { a.create.state = fcActivatingFamily })

	case fcActivatingFamily:
		fid := a.create.fid
		a.families.StageSetState(buf, fid, familytable.Active)
		buf.Stage(func() {
			a.allocQueue.Push(fid)
			a.create.state = fcNotify
		})

	case fcNotify:
		if !a.create.isFirst {
			buf.Stage(func() { a.create.state = fcDone })
			break
		}
		core := a.create.completionCore
		reg := a.create.completionReg
		capability := a.families.Get(a.create.fid).Capability
		packed := a.fidCodec.Pack(a.localCore, a.create.fid, capability)
		if core == a.localCore {
			a.regs.StageWriteFull(buf, reg.Type, reg.Index, packed)
		} else {
			buf.Stage(func() { a.link.Notify(core, reg, packed) })
		}
		buf.Stage(func() { a.create.state = fcDone })

	case fcDone:
		buf.Stage(func() { a.create = nil })
	}
	return sim2.Success
}

func (a *Allocator) stepAllocatingRegisters(buf *sim2.CommitBuffer) sim2.Result {
	rt := ids.RegType(a.create.regTypeIdx)
	if rt >= ids.NumRegTypes {
		buf.Stage(func() { a.create.state = fcBroadcastingCreate })
		return sim2.Success
	}

	f := a.families.Get(a.create.fid)
	block := max(f.PhysBlockSize, 1)
	c := a.create.counts[rt]
	size := int(c.Globals) + int(c.Shareds)*2 + int(c.Locals)*block
	if size == 0 {
		buf.Stage(func() { a.create.regTypeIdx++ })
		return sim2.Success
	}

	base, ok := a.raUnits[rt].TryAlloc(size)
	if !ok {
		return sim2.Failed
	}

	fid := a.create.fid
	a.raUnits[rt].StageAlloc(buf, base, size)
	a.families.StageSetRegInfo(buf, fid, rt, familytable.RegInfo{
		Base:      base,
		TotalSize: size,
		Counts: familytable.RegCounts{
			Globals: c.Globals,
			Shareds: c.Shareds,
			Locals:  c.Locals,
		},
	})
	buf.Stage(func() { a.create.regTypeIdx++ })
	return sim2.Success
}

// DoThreadAllocate implements spec.md §4.1's fourth bullet: cleanup
// takes precedence over fresh allocation.
func (a *Allocator) DoThreadAllocate(buf *sim2.CommitBuffer) sim2.Result {
	if tid, ok := a.cleanupQ.Peek(); ok {
		th := a.threads.Get(tid)
		if !th.Dep.Done() {
			// Pending writes or an uncleaned predecessor still hold
			// this thread; revisit after other cleanups.
			buf.Stage(func() {
				a.cleanupQ.StagePop()
				a.cleanupQ.Push(tid)
			})
			return sim2.Success
		}
		if th.Successor != ids.InvalidThread {
			succDep := a.threads.Get(th.Successor).Dep
			succDep.PrevCleanedUp = true
			a.threads.StageSetDependency(buf, th.Successor, succDep)
		}
		a.threads.StageFree(buf, tid)
		a.families.StageDecThreadsAllocated(buf, th.Family)
		buf.Stage(func() {
			a.cleanupQ.StagePop()
			a.allocated[th.Family]--
		})
		return sim2.Success
	}

	fid, ok := a.allocQueue.Peek()
	if !ok {
		return sim2.Success
	}

	f := a.families.Get(fid)
	block := max(f.PhysBlockSize, 1)
	target := min(block, int(f.LogicalCount))
	if f.Dep.AllocationDone || a.issued[fid] >= target {
		a.families.StageSetAllocationDone(buf, fid)
		buf.Stage(func() { a.allocQueue.StagePop() })
		return sim2.Success
	}
	if a.allocated[fid] >= block {
		// Every physical slot is live; rotate so other families make
		// progress while cleanup recycles one.
		buf.Stage(func() {
			a.allocQueue.StagePop()
			a.allocQueue.Push(fid)
		})
		return sim2.Success
	}

	class := threadtable.ClassNormal
	if a.issued[fid] == 0 {
		if f.Exclusive {
			class = threadtable.ClassExclusive
		} else {
			class = threadtable.ClassReserved
		}
	}
	tid, ok := a.threads.TryAlloc(buf, class)
	if !ok {
		return sim2.Failed
	}

	first := a.issued[fid] == 0
	prev := a.lastThread[fid]
	init := threadtable.Thread{
		State:     threadtable.Active,
		Family:    fid,
		PC:        f.PC,
		Successor: ids.InvalidThread,
	}
	// The first thread of a block has no predecessor to wait for.
	init.Dep.PrevCleanedUp = first
	for rt := ids.RegType(0); rt < ids.NumRegTypes; rt++ {
		init.Bases[rt] = a.threadBases(f.Regs[rt], a.issued[fid]%block)
	}
	a.threads.StageInit(buf, tid, init)
	if !first {
		a.threads.StageSetSuccessor(buf, prev, tid)
	}
	a.families.StageIncThreadsAllocated(buf, fid)
	buf.Stage(func() {
		a.allocated[fid]++
		a.issued[fid]++
		a.lastThread[fid] = tid
		a.readyOther.Push(tid)
	})
	return sim2.Success
}

// threadBases lays a thread's locals, shareds, and dependents out in
// the family's register region: globals first, then the two shared
// banks, then per-slot locals.
func (a *Allocator) threadBases(info familytable.RegInfo, slot int) threadtable.RegBase {
	globals := ids.RegIndex(info.Counts.Globals)
	shareds := ids.RegIndex(info.Counts.Shareds)
	locals := ids.RegIndex(info.Counts.Locals)
	return threadtable.RegBase{
		Shared:    info.Base + globals + ids.RegIndex(slot%2)*shareds,
		Dependent: info.Base + globals + ids.RegIndex((slot+1)%2)*shareds,
		Local:     info.Base + globals + 2*shareds + ids.RegIndex(slot)*locals,
	}
}

// DoThreadActivation implements spec.md §4.1's fifth bullet:
// round-robins between the pipeline-fed and other ready queues.
func (a *Allocator) DoThreadActivation(buf *sim2.CommitBuffer) sim2.Result {
	tid, fromPipeline, ok := a.nextReady()
	if !ok {
		return sim2.Success
	}

	th := a.threads.Get(tid)
	_, _, _, hit := a.icache.Fetch(tid, th.PC)

	if hit {
		a.threads.StageSetState(buf, tid, threadtable.Ready)
	}
	buf.Stage(func() {
		if fromPipeline {
			a.readyPipeline.StagePop()
		} else {
			a.readyOther.StagePop()
		}
		a.lastReadyWasPipeline = fromPipeline
		if hit {
			a.activeQ.Push(tid)
		}
	})
	return sim2.Success
}

func (a *Allocator) nextReady() (ids.ThreadID, bool, bool) {
	pTid, pOk := a.readyPipeline.Peek()
	oTid, oOk := a.readyOther.Peek()
	if !pOk && !oOk {
		return ids.InvalidThread, false, false
	}
	if pOk && (!oOk || !a.lastReadyWasPipeline) {
		return pTid, true, true
	}
	return oTid, false, true
}

// DoBundle implements spec.md §4.1's sixth bullet: indirect/bundle
// creation via a three-word descriptor read from the D-Cache.
func (a *Allocator) DoBundle(buf *sim2.CommitBuffer) sim2.Result {
	if a.bundle == nil {
		req, ok := a.bundleQ.Peek()
		if !ok {
			return sim2.Success
		}
		buf.Stage(func() {
			a.bundleQ.StagePop()
			a.bundle = &bundleCtx{state: bsLoadingDescriptor, descAddr: req.DescriptorAddr, requester: req.Requester}
		})
		return sim2.Success
	}

	switch a.bundle.state {
	case bsLoadingDescriptor:
		addr := a.bundle.descAddr + uint64(a.bundle.wordsLoaded)*4
		val, hit := a.dcache.Read(a.bundle.requester, addr, 4, RegAddr{}, false)
		if !hit {
			return sim2.Failed
		}
		buf.Stage(func() {
			switch a.bundle.wordsLoaded {
			case 0:
				a.bundle.place = val
			case 1:
				a.bundle.pc = val
			case 2:
				a.bundle.index = val
			}
			a.bundle.wordsLoaded++
			if a.bundle.wordsLoaded >= 3 {
				a.bundle.state = bsDescriptorLoaded
			}
		})

	case bsDescriptorLoaded:
		req := a.bundle.requester
		pc := a.bundle.pc
		buf.Stage(func() {
			a.exclusiveQ.Push(AllocateRequest{
				Kind:      KindExclusive,
				PC:        pc,
				PlaceSize: 1,
				Exact:     true,
				Requester: req,
			})
			a.bundle.state = bsIssuing
		})

	case bsIssuing:
		buf.Stage(func() { a.bundle.state = bsDone })

	case bsDone:
		buf.Stage(func() { a.bundle = nil })
	}
	return sim2.Success
}
