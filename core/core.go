// Package core assembles one Microgrid core: the Register File, RA
// units, Thread/Family tables, I/D caches, the pipeline, and the
// Allocator, driven as one clock domain on the shared two-phase
// commit scheduler, plus the glue binding the core to the link and
// delegate planes and to its stop on the coherence ring.
package core

import (
	"log/slog"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/mgsim/allocator"
	"github.com/sarchlab/mgsim/coma"
	"github.com/sarchlab/mgsim/coma/ring"
	"github.com/sarchlab/mgsim/dcache"
	"github.com/sarchlab/mgsim/familytable"
	"github.com/sarchlab/mgsim/icache"
	"github.com/sarchlab/mgsim/ids"
	"github.com/sarchlab/mgsim/isa"
	"github.com/sarchlab/mgsim/netplane"
	"github.com/sarchlab/mgsim/pipeline"
	"github.com/sarchlab/mgsim/raunit"
	"github.com/sarchlab/mgsim/regfile"
	"github.com/sarchlab/mgsim/sim2"
	"github.com/sarchlab/mgsim/threadtable"
)

// Core is one Microgrid core.
type Core struct {
	*sim.TickingComponent

	name  string
	id    ids.CoreID
	sched *sim2.Scheduler

	Families *familytable.Table
	Threads  *threadtable.Table
	Regs     [ids.NumRegTypes]*regfile.File
	RAUnits  [ids.NumRegTypes]*raunit.Unit
	ICache   *icache.Cache
	DCache   *dcache.Cache
	Pipe     *pipeline.Pipeline
	Alloc    *allocator.Allocator

	links     *netplane.LinkPlane
	delegates *netplane.DelegatePlane

	node        *ring.Node
	nodeID      coma.NodeID
	totalTokens int

	// pendingIFills / pendingDFills track which cache asked for each
	// outstanding line, keyed by line tag.
	pendingIFills map[uint64]bool
	pendingDFills map[uint64]bool
	// lineTokens credits tokens received per line so eviction returns
	// exactly what the core holds.
	lineTokens map[uint64]int
}

// Name returns the core's name, with or without an attached engine.
func (c *Core) Name() string { return c.name }

// ID returns the core's position in the grid.
func (c *Core) ID() ids.CoreID { return c.id }

// TokensHeld returns the coherence tokens this core holds for a line
// tag, for token-conservation checks.
func (c *Core) TokensHeld(tag uint64) int { return c.lineTokens[tag] }

// SchedulerBuffer exposes the core's commit buffer for drivers that
// stage work between cycles (tests, the outer simulator's variable
// pokes).
func (c *Core) SchedulerBuffer() *sim2.CommitBuffer { return c.sched.Buffer() }

// Node returns the core's ring stop, for cluster wiring.
func (c *Core) Node() *ring.Node { return c.node }

// NodeID returns the core's coherence identity.
func (c *Core) NodeID() coma.NodeID { return c.nodeID }

// Busy reports whether the core still has queued or in-flight work,
// for the driver's idle detection.
func (c *Core) Busy() bool {
	if c.node.Pending() > 0 || len(c.pendingIFills) > 0 || len(c.pendingDFills) > 0 {
		return true
	}
	if c.links.Pending(c.id) > 0 || c.delegates.Pending(c.id) > 0 {
		return true
	}
	if c.Alloc.Busy() || c.Pipe.Busy() {
		return true
	}
	states := c.Threads.CountByState()
	live := 0
	for s, n := range states {
		if threadtable.State(s) != threadtable.Empty {
			live += n
		}
	}
	return live > 0
}

// Tick runs one core cycle: drain inbound network traffic, fire every
// process against last cycle's state, commit, then evaluate the
// family predicates exactly once.
func (c *Core) Tick() bool {
	buf := c.sched.Buffer()

	progress := c.drainLink(buf)
	progress = c.drainDelegate(buf) || progress

	progress = c.sched.RunCycle() || progress
	c.Alloc.FinalizeCycle()

	return progress
}

// drainLink dispatches one waiting link-plane message per cycle.
func (c *Core) drainLink(buf *sim2.CommitBuffer) bool {
	m, ok := c.links.Recv(c.id)
	if !ok {
		return false
	}
	switch m.Kind {
	case netplane.LinkAllocate:
		c.Alloc.HandleLinkAllocate(buf, allocator.LinkAllocate{
			FirstFID:       m.FirstFID,
			PrevFID:        m.PrevFID,
			FirstCore:      m.FirstCore,
			RemainingSize:  m.RemainingSize,
			NumAllocated:   m.NumAllocated,
			Exact:          m.Exact,
			CompletionCore: m.CompletionCore,
			CompletionReg:  regAddrIn(m.CompletionReg),
		})
	case netplane.LinkAllocResponse:
		c.Alloc.DeliverAllocResponse(allocator.AllocResponse{
			FID:             m.FID,
			NextFID:         m.NextFID,
			Committed:       m.Committed,
			NumCores:        m.NumCores,
			UnwindRemaining: m.UnwindRemaining,
			CompletionCore:  m.CompletionCore,
			CompletionReg:   regAddrIn(m.CompletionReg),
		})
	case netplane.LinkCreate:
		c.Alloc.HandleLinkCreate(buf, allocator.LinkCreate{
			FirstFID:       m.FirstFID,
			PC:             m.PC,
			Start:          m.Start,
			Limit:          m.Limit,
			Step:           m.Step,
			PhysBlockSize:  m.PhysBlockSize,
			NumCores:       m.NumCores,
			CompletionCore: m.CompletionCore,
			CompletionReg:  regAddrIn(m.CompletionReg),
		})
	case netplane.LinkSync, netplane.LinkDone:
		c.Alloc.HandleLinkSync(buf, allocator.LinkSync{
			FID:     m.FID,
			HasCont: m.HasCont,
			Core:    m.CompletionCore,
			Reg:     m.CompletionReg.Index,
		})
	case netplane.LinkDetach:
		c.Alloc.HandleLinkDetach(buf, allocator.LinkDetach{FID: m.FID})
	case netplane.LinkBreak:
		c.Alloc.HandleLinkBreak(buf, allocator.LinkBreak{FID: m.FID})
	case netplane.LinkGlobalWrite:
		c.Alloc.HandleLinkGlobalWrite(buf, allocator.LinkGlobalWrite{
			FID:    m.FID,
			Type:   m.Reg.Type,
			Window: m.Reg.Index,
			Value:  m.Value,
		})
	}
	return true
}

// drainDelegate dispatches one waiting delegate-plane message per
// cycle.
func (c *Core) drainDelegate(buf *sim2.CommitBuffer) bool {
	m, ok := c.delegates.Recv(c.id)
	if !ok {
		return false
	}
	switch m.Kind {
	case netplane.DelegateCreate:
		kind := allocator.KindNormal
		if m.Exclusive {
			kind = allocator.KindExclusive
		} else if m.Suspend {
			kind = allocator.KindSuspending
		}
		c.Alloc.EnqueueAllocate(allocator.AllocateRequest{
			Kind:           kind,
			PC:             m.PC,
			Start:          0,
			Limit:          1,
			Step:           1,
			PlaceSize:      m.PlaceSize,
			Exact:          m.Exact,
			CompletionCore: m.SrcCore,
			CompletionReg:  regAddrIn(m.CompletionReg),
		})
	case netplane.DelegateSetProperty:
		c.applyProperty(buf, m)
	case netplane.DelegateRawRegister:
		c.Regs[m.Reg.Type].StageWriteFull(buf, threadLinker{c.Threads}, m.Reg.Type, m.Reg.Index, m.Value)
	case netplane.DelegateFamilyRegister:
		c.Alloc.HandleLinkGlobalWrite(buf, allocator.LinkGlobalWrite{
			FID:    m.FID,
			Type:   m.Reg.Type,
			Window: m.Reg.Index,
			Value:  m.Value,
		})
	case netplane.DelegateSync:
		c.Alloc.HandleSync(buf, m.FID, m.Capability, m.SrcCore, m.CompletionReg.Index)
	case netplane.DelegateDetach:
		c.Alloc.HandleDetach(buf, m.FID, m.Capability)
	case netplane.DelegateBreak:
		c.Alloc.HandleBreak(buf, m.FID, m.Capability)
	}
	return true
}

func (c *Core) applyProperty(buf *sim2.CommitBuffer, m *netplane.DelegateMsg) {
	switch m.Property {
	case netplane.PropStart:
		c.Families.StageSetStart(buf, m.FID, int64(m.Value))
	case netplane.PropLimit:
		c.Families.StageSetLimit(buf, m.FID, int64(m.Value))
	case netplane.PropStep:
		c.Families.StageSetStep(buf, m.FID, int64(m.Value))
	case netplane.PropBlockSize:
		c.Families.StageSetBlockSize(buf, m.FID, int(m.Value))
	}
}

// doThreadControl retires last cycle's Writeback output: advance or
// park the thread, route its remote message, and hand the Fetch stage
// its next thread.
func (c *Core) doThreadControl(buf *sim2.CommitBuffer) sim2.Result {
	wb := c.Pipe.WritebackOutput()
	if wb.Valid {
		if wb.Remote != nil {
			c.dispatchRemote(buf, wb)
		}
		switch {
		case wb.Suspended:
			c.Threads.StageSuspend(buf, wb.Thread)
		case wb.KillAfter:
			th := c.Threads.Get(wb.Thread)
			dep := th.Dep
			dep.Killed = true
			c.Threads.StageSetDependency(buf, wb.Thread, dep)
			c.Threads.StageSetState(buf, wb.Thread, threadtable.Terminated)
			c.Alloc.EnqueueCleanup(wb.Thread)
		default:
			c.Threads.StageSetPC(buf, wb.Thread, wb.NextPC)
			c.Alloc.EnqueueReady(wb.Thread, true)
		}
	}

	if c.Pipe.CurrentThread() == ids.InvalidThread {
		if tid, ok := c.Alloc.ActiveQueue().Peek(); ok {
			// A stale activation (the thread died or is already
			// running) is dropped; the queue can hold duplicates when
			// a fill races a branch.
			if st := c.Threads.Get(tid).State; st == threadtable.Ready || st == threadtable.Active {
				c.Threads.StageSetState(buf, tid, threadtable.Running)
				c.Pipe.SetCurrentThread(tid)
			}
			buf.Stage(func() { c.Alloc.ActiveQueue().StagePop() })
		}
	}
	return sim2.Success
}

// dispatchRemote translates an Execute-stage remote message into
// allocator or delegate traffic (spec.md §4.2 Execute).
func (c *Core) dispatchRemote(buf *sim2.CommitBuffer, wb pipeline.WritebackLatch) {
	payload := wb.Remote.Payload
	switch wb.Remote.Kind {
	case isa.RemoteAllocate, isa.RemoteCreate:
		c.Alloc.EnqueueAllocate(allocator.AllocateRequest{
			Kind:           allocator.KindNormal,
			PC:             payload,
			Start:          0,
			Limit:          1,
			Step:           1,
			PlaceSize:      1,
			Requester:      wb.Thread,
			CompletionCore: c.id,
			CompletionReg:  allocator.RegAddr{Type: wb.Rd.Type, Index: wb.Rd.Index},
		})
	case isa.RemoteSync:
		pid, lfid, capability := c.Alloc.Codec().Unpack(payload)
		if pid == c.id {
			c.Alloc.HandleSync(buf, lfid, capability, c.id, wb.Rd.Index)
		} else {
			c.delegates.Send(c.id, pid, &netplane.DelegateMsg{
				Kind:          netplane.DelegateSync,
				FID:           lfid,
				Capability:    capability,
				CompletionReg: netplane.RegAddr{Type: wb.Rd.Type, Index: wb.Rd.Index},
			})
		}
	case isa.RemoteDetach:
		pid, lfid, capability := c.Alloc.Codec().Unpack(payload)
		if pid == c.id {
			c.Alloc.HandleDetach(buf, lfid, capability)
		} else {
			c.delegates.Send(c.id, pid, &netplane.DelegateMsg{
				Kind: netplane.DelegateDetach, FID: lfid, Capability: capability,
			})
		}
	case isa.RemoteBreak:
		pid, lfid, capability := c.Alloc.Codec().Unpack(payload)
		if pid == c.id {
			c.Alloc.HandleBreak(buf, lfid, capability)
		} else {
			c.delegates.Send(c.id, pid, &netplane.DelegateMsg{
				Kind: netplane.DelegateBreak, FID: lfid, Capability: capability,
			})
		}
	default:
		slog.Warn("unrouted remote message", "core", c.Name(), "kind", wb.Remote.Kind)
	}
}

// threadLinker adapts the Thread Table to regfile.ThreadLinker for
// network-delivered register writes.
type threadLinker struct{ t *threadtable.Table }

func (l threadLinker) Next(tid ids.ThreadID) ids.ThreadID { return l.t.Next(tid) }
func (l threadLinker) StageSetNext(buf *sim2.CommitBuffer, tid, next ids.ThreadID) {
	l.t.StageSetNext(buf, tid, next)
}
func (l threadLinker) StageWake(buf *sim2.CommitBuffer, tid ids.ThreadID) {
	l.t.StageWake(buf, tid)
}

func regAddrIn(r netplane.RegAddr) allocator.RegAddr {
	return allocator.RegAddr{Type: r.Type, Index: r.Index}
}

func regAddrOut(r allocator.RegAddr) netplane.RegAddr {
	return netplane.RegAddr{Type: r.Type, Index: r.Index}
}
