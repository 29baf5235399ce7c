package core

import (
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

// Builder can create new cores.
type Builder struct {
	engine sim.Engine
	freq   sim.Freq

	id       ids.CoreID
	gridSize int

	numIntRegisters int
	numFltRegisters int
	numFamilies     int
	numThreads      int
	reservedThreads int

	cacheSets  int
	cacheWays  int
	ringBuffer int

	totalTokens int

	links     *netplane.LinkPlane
	delegates *netplane.DelegatePlane
	table     *isa.Table
}

// MakeBuilder creates a builder with the default geometry.
func MakeBuilder() Builder {
	return Builder{
		freq:            1 * sim.GHz,
		numIntRegisters: 1024,
		numFltRegisters: 512,
		numFamilies:     32,
		numThreads:      256,
		reservedThreads: 8,
		cacheSets:       16,
		cacheWays:       4,
		ringBuffer:      8,
		totalTokens:     4,
	}
}

// WithEngine sets the engine that drives the core.
func (b Builder) WithEngine(engine sim.Engine) Builder {
	b.engine = engine
	return b
}

// WithFreq sets the frequency of the core.
func (b Builder) WithFreq(freq sim.Freq) Builder {
	b.freq = freq
	return b
}

// WithID sets the core's position in a gridSize-core grid.
func (b Builder) WithID(id ids.CoreID, gridSize int) Builder {
	b.id = id
	b.gridSize = gridSize
	return b
}

// WithRegisters sets the per-type register-file sizes.
func (b Builder) WithRegisters(integers, floats int) Builder {
	b.numIntRegisters = integers
	b.numFltRegisters = floats
	return b
}

// WithContexts sets the family/thread table sizes.
func (b Builder) WithContexts(families, threads, reserved int) Builder {
	b.numFamilies = families
	b.numThreads = threads
	b.reservedThreads = reserved
	return b
}

// WithCacheGeometry sets both caches' sets and ways.
func (b Builder) WithCacheGeometry(sets, ways int) Builder {
	b.cacheSets = sets
	b.cacheWays = ways
	return b
}

// WithTotalTokens sets the coherence token constant T.
func (b Builder) WithTotalTokens(t int) Builder {
	b.totalTokens = t
	return b
}

// WithPlanes hooks the core up to the grid's link and delegate planes.
func (b Builder) WithPlanes(links *netplane.LinkPlane, delegates *netplane.DelegatePlane) Builder {
	b.links = links
	b.delegates = delegates
	return b
}

// WithISA sets the opcode table; defaults to isa.NewDefault.
func (b Builder) WithISA(table *isa.Table) Builder {
	b.table = table
	return b
}

// Build creates a core.
func (b Builder) Build(name string) *Core {
	c := &Core{
		name:          name,
		id:            b.id,
		sched:         sim2.NewScheduler(name),
		links:         b.links,
		delegates:     b.delegates,
		nodeID:        coma.NodeID(b.id),
		totalTokens:   b.totalTokens,
		pendingIFills: make(map[uint64]bool),
		pendingDFills: make(map[uint64]bool),
		lineTokens:    make(map[uint64]int),
	}
	if b.engine != nil {
		c.TickingComponent = sim.NewTickingComponent(name, b.engine, b.freq, c)
	}

	var counts [ids.NumRegTypes]int
	counts[ids.Integer] = b.numIntRegisters
	counts[ids.Float] = b.numFltRegisters
	file := regfile.NewFile(counts)
	for rt := range c.Regs {
		c.Regs[rt] = file
	}
	c.RAUnits[ids.Integer] = raunit.NewUnit(b.numIntRegisters)
	c.RAUnits[ids.Float] = raunit.NewUnit(b.numFltRegisters)

	c.Families = familytable.NewTable(b.numFamilies)
	c.Threads = threadtable.NewTable(b.numThreads, b.reservedThreads, true)

	c.node = ring.NewNode(name+".RingNode", b.ringBuffer)
	c.node.SetClient(c)

	c.ICache = icache.New(name+".ICache", b.cacheSets, b.cacheWays,
		coma.LineBytes/4, iCoherence{c}, nil)
	c.DCache = dcache.New(name+".DCache", b.cacheSets, b.cacheWays,
		dCoherence{c}, file, threadLinker{c.Threads})

	table := b.table
	if table == nil {
		table = isa.NewDefault()
	}
	c.Pipe = pipeline.New(name+".Pipeline", c.Regs, c.Threads,
		defaultDecoder{}, &windowResolver{c}, table, c.ICache, pipeDCache{c})

	c.Alloc = allocator.New(name+".Allocator", b.id, max(b.gridSize, 1),
		c.Families, c.Threads, c.RAUnits, regWriter{c},
		c.ICache, dataSource{c}, linkPort{c})
	c.ICache.SetActivator(c.Alloc)
	c.Threads.SetWaker(func(tid ids.ThreadID) { c.Alloc.EnqueueReady(tid, false) })

	c.registerProcesses()

	return c
}

// registerProcesses fixes the per-cycle firing list. Every process
// observes only end-of-previous-cycle state, but commit replay order
// follows this registration order, and the pipeline's bypass network
// requires Execute/Memory/Writeback before Read within the cycle.
func (c *Core) registerProcesses() {
	buf := func(fn func(*sim2.CommitBuffer) sim2.Result) func(sim2.Cycle) sim2.Result {
		return func(sim2.Cycle) sim2.Result { return fn(c.sched.Buffer()) }
	}

	c.sched.Register(sim2.ProcessFunc{ProcName: "RingForward", Fn: buf(c.node.DoForward)})

	c.sched.Register(sim2.ProcessFunc{ProcName: "ClearBypass", Fn: func(sim2.Cycle) sim2.Result {
		c.Pipe.ClearBypass()
		return sim2.Success
	}})
	c.sched.Register(sim2.ProcessFunc{ProcName: "Writeback", Fn: buf(c.Pipe.Writeback)})
	c.sched.Register(sim2.ProcessFunc{ProcName: "Memory", Fn: buf(c.Pipe.Memory)})
	c.sched.Register(sim2.ProcessFunc{ProcName: "Execute", Fn: buf(c.Pipe.Execute)})
	c.sched.Register(sim2.ProcessFunc{ProcName: "Read", Fn: buf(c.Pipe.Read)})
	c.sched.Register(sim2.ProcessFunc{ProcName: "Decode", Fn: buf(c.Pipe.Decode)})
	c.sched.Register(sim2.ProcessFunc{ProcName: "ThreadControl", Fn: buf(c.doThreadControl)})
	c.sched.Register(sim2.ProcessFunc{ProcName: "Fetch", Fn: buf(c.Pipe.Fetch)})

	c.sched.Register(sim2.ProcessFunc{ProcName: "DoFamilyAllocate", Fn: buf(c.Alloc.DoFamilyAllocate)})
	c.sched.Register(sim2.ProcessFunc{ProcName: "DoAllocResponse", Fn: buf(c.Alloc.DoAllocResponse)})
	c.sched.Register(sim2.ProcessFunc{ProcName: "DoFamilyCreate", Fn: buf(c.Alloc.DoFamilyCreate)})
	c.sched.Register(sim2.ProcessFunc{ProcName: "DoThreadAllocate", Fn: buf(c.Alloc.DoThreadAllocate)})
	c.sched.Register(sim2.ProcessFunc{ProcName: "DoThreadActivation", Fn: buf(c.Alloc.DoThreadActivation)})
	c.sched.Register(sim2.ProcessFunc{ProcName: "DoBundle", Fn: buf(c.Alloc.DoBundle)})
	c.sched.Register(sim2.ProcessFunc{ProcName: "DoSyncDelivery", Fn: buf(c.Alloc.DoSyncDelivery)})
	c.sched.Register(sim2.ProcessFunc{ProcName: "DoFamilyCleanup", Fn: buf(c.Alloc.DoFamilyCleanup)})
}

// StallReasons exposes the per-process stall map for the structural
// deadlock dump (spec.md §7).
func (c *Core) StallReasons() map[string]sim2.Result { return c.sched.StallReasons() }

// regWriter adapts the Register File to the allocator's narrow write
// seam.
type regWriter struct{ c *Core }

func (w regWriter) StageWriteFull(buf *sim2.CommitBuffer, rt ids.RegType, idx ids.RegIndex, value uint64) {
	w.c.Regs[rt].StageWriteFull(buf, threadLinker{w.c.Threads}, rt, idx, value)
}

// dataSource adapts the D-Cache to the allocator's descriptor-read
// seam (DoBundle).
type dataSource struct{ c *Core }

func (d dataSource) Read(tid ids.ThreadID, addr uint64, size int, dest allocator.RegAddr, signed bool) (uint64, bool) {
	return d.c.DCache.Read(tid, addr, size, dcache.RegAddr{Type: dest.Type, Index: dest.Index}, signed)
}

// pipeDCache adapts the D-Cache to the pipeline's descriptor-read seam.
type pipeDCache struct{ c *Core }

func (d pipeDCache) Read(tid ids.ThreadID, addr uint64, size int, dest pipeline.RegAddr, signed bool) (uint64, bool) {
	return d.c.DCache.Read(tid, addr, size, dcache.RegAddr{Type: dest.Type, Index: dest.Index}, signed)
}

func (d pipeDCache) Write(tid ids.ThreadID, addr uint64, size int, value uint64) bool {
	return d.c.DCache.Write(tid, addr, size, value)
}
