package pipeline

import (
	"github.com/sarchlab/mgsim/ids"
	"github.com/sarchlab/mgsim/isa"
	"github.com/sarchlab/mgsim/regfile"
	"github.com/sarchlab/mgsim/sim2"
	"github.com/sarchlab/mgsim/threadtable"
)

// Pipeline is the six-stage in-order core pipeline (spec.md §4.2). It
// owns no register/thread storage itself; it is driven against the
// core's shared Register File and Thread Table, and against whatever
// Decoder/RegisterResolver/ICache/DCache/ExecUnit the owning core
// assembly supplies.
//
// Every stage method takes the core's single per-cycle CommitBuffer.
// The latches are sim2.Staged, so each stage reads last cycle's output
// whatever the registration order (a fresh Decode consumes last
// cycle's Fetch output, and so on), but Execute/Memory/Writeback must run
// before Read within the SAME cycle for the bypass network below to
// see this cycle's values rather than last cycle's — see
// ClearBypass.
type Pipeline struct {
	name string

	regs    [ids.NumRegTypes]*regfile.File
	threads *threadtable.Table

	decoder  Decoder
	resolver RegisterResolver
	exec     ExecUnit
	icache   ICache
	dcache   DCache

	fetch     sim2.Staged[FetchLatch]
	decode    sim2.Staged[DecodeLatch]
	read      sim2.Staged[ReadLatch]
	execute   sim2.Staged[ExecuteLatch]
	memory    sim2.Staged[MemoryLatch]
	writeback sim2.Staged[WritebackLatch]

	bypass map[RegAddr]uint64

	current ids.ThreadID // which thread Fetch is currently issuing from
}

// WritebackLatch is Writeback's own record: everything the owning
// core needs to retire the instruction (advance or park the thread,
// route a remote message, start cleanup).
type WritebackLatch struct {
	Valid   bool
	Thread  ids.ThreadID
	Rd      RegAddr
	WroteRd bool
	Remote  *isa.RemoteMessage

	NextPC     uint64
	Pending    bool
	Suspended  bool
	WantSwitch bool
	KillAfter  bool
}

// New builds a pipeline bound to the given shared tables and plug-ins.
func New(name string, regs [ids.NumRegTypes]*regfile.File, threads *threadtable.Table, decoder Decoder, resolver RegisterResolver, exec ExecUnit, icache ICache, dcache DCache) *Pipeline {
	return &Pipeline{
		name:     name,
		regs:     regs,
		threads:  threads,
		decoder:  decoder,
		resolver: resolver,
		exec:     exec,
		icache:   icache,
		dcache:   dcache,
		fetch:     sim2.NewStaged(FetchLatch{}),
		decode:    sim2.NewStaged(DecodeLatch{}),
		read:      sim2.NewStaged(ReadLatch{}),
		execute:   sim2.NewStaged(ExecuteLatch{}),
		memory:    sim2.NewStaged(MemoryLatch{}),
		writeback: sim2.NewStaged(WritebackLatch{}),
		bypass:    make(map[RegAddr]uint64),
		current:   ids.InvalidThread,
	}
}

// Name satisfies sim2.Process-adjacent naming conventions for dumps.
func (p *Pipeline) Name() string { return p.name }

// ClearBypass must be called once at the start of every cycle, before
// Execute/Memory/Writeback run, so stale forwarded values from a prior
// cycle are never seen by this cycle's Read.
func (p *Pipeline) ClearBypass() {
	for k := range p.bypass {
		delete(p.bypass, k)
	}
}

// SetCurrentThread is called by the owning core's thread-switch logic
// (spec.md §4.2 Fetch: "switches thread on kill, branch, want-switch,
// end-of-cache-line...") to pick which thread Fetch issues from next.
func (p *Pipeline) SetCurrentThread(tid ids.ThreadID) { p.current = tid }

// CurrentThread returns the thread Fetch will issue from next.
func (p *Pipeline) CurrentThread() ids.ThreadID { return p.current }

// Busy reports whether any instruction is still in flight.
func (p *Pipeline) Busy() bool {
	return p.current != ids.InvalidThread ||
		p.fetch.Get().Valid || p.decode.Get().Valid || p.read.Get().Valid ||
		p.execute.Get().Valid || p.memory.Get().Valid || p.writeback.Get().Valid
}

// WritebackOutput exposes the committed Writeback latch, e.g. for the
// Network to pick up a remote message.
func (p *Pipeline) WritebackOutput() WritebackLatch { return p.writeback.Get() }
