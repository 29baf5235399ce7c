// Command mgsim builds a small Microgrid and runs a demonstration
// family on it: a multi-threaded create spread over the place, run to
// completion, synced, and reported.
package main

import (
	"encoding/binary"
	"flag"
	"log/slog"
	"os"

	"github.com/sarchlab/akita/v4/monitoring"
	"github.com/sarchlab/akita/v4/sim"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/mgsim/allocator"
	"github.com/sarchlab/mgsim/grid"
	"github.com/sarchlab/mgsim/ids"
	"github.com/sarchlab/mgsim/isa"
	"github.com/sarchlab/mgsim/regfile"
)

var (
	numCores   = flag.Int("cores", 4, "number of cores in the grid")
	numThreads = flag.Int("threads", 16, "logical threads in the demo family")
	maxCycles  = flag.Int("cycles", 100000, "cycle budget before giving up")
	useAkita   = flag.Bool("akita", false, "back main memory with akita's ideal memory controller")
	monitor    = flag.Bool("monitor", false, "start the akita monitoring server")
)

const (
	imageBase = 0x4000
	entryPC   = imageBase + 8
	handleReg = ids.RegIndex(200)
	syncReg   = ids.RegIndex(201)
)

func instr(op isa.Opcode, rd, rs1 uint32, imm int32) uint32 {
	return uint32(op)<<26 | rd<<21 | rs1<<16 | 1<<15 | uint32(imm)&0x7FFF
}

// demoImage is one cache line: control word, register spec (two
// integer locals), and two instructions, the second carrying the kill
// bit.
func demoImage() []byte {
	line := []uint32{
		0x2 << (2 * 3),              // kill after the instruction at index 3
		2 << 10,                     // two integer locals
		instr(isa.OpMove, 0, 0, 40), // r0 = 40
		instr(isa.OpAdd, 1, 0, 2),   // r1 = r0 + 2
	}
	out := make([]byte, 4*len(line))
	for i, w := range line {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out
}

func main() {
	flag.Parse()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	builder := grid.MakeBuilder().WithGridSize(*numCores)
	if *useAkita {
		engine := sim.NewSerialEngine()
		builder = builder.WithEngine(engine)
		if *monitor {
			m := monitoring.NewMonitor()
			m.RegisterEngine(engine)
			builder = builder.WithMonitor(m)
			m.StartServer()
		}
	}
	s := builder.Build("Grid")
	s.LoadImage(imageBase, demoImage())

	atexit.Register(func() {
		for _, c := range s.Cores() {
			if dump, err := s.DumpStorage(c.Name() + ".Families"); err == nil {
				slog.Info("family table", "core", c.Name(), "dump", "\n"+dump)
			}
		}
	})

	origin := s.Cores()[0]
	origin.Alloc.EnqueueAllocate(allocator.AllocateRequest{
		Kind:          allocator.KindNormal,
		PC:            entryPC,
		Start:         0,
		Limit:         int64(*numThreads),
		Step:          1,
		PlaceSize:     *numCores,
		CompletionReg: allocator.RegAddr{Type: ids.Integer, Index: handleReg},
	})

	res := s.Step(*maxCycles)
	slog.Info("create phase finished", "outcome", res.Kind.String(), "cycles", res.Cycles)
	if res.Kind != grid.Idle {
		atexit.Exit(1)
	}

	handle := origin.Regs[ids.Integer].Read(ids.Integer, handleReg)
	if handle.State != regfile.Full {
		slog.Error("no family handle delivered")
		atexit.Exit(1)
	}
	pid, fid, capability := origin.Alloc.Codec().Unpack(handle.Value)
	slog.Info("family created", "pid", uint32(pid), "fid", uint32(fid))

	buf := origin.SchedulerBuffer()
	origin.Alloc.HandleSync(buf, fid, capability, 0, syncReg)
	buf.Commit()
	res = s.Step(1000)
	if res.Kind != grid.Idle {
		slog.Error("sync did not settle", "outcome", res.Kind.String())
		atexit.Exit(1)
	}

	synced := origin.Regs[ids.Integer].Read(ids.Integer, syncReg)
	slog.Info("family synchronized", "threads", synced.Value)
	atexit.Exit(0)
}
