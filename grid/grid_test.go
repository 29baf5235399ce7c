package grid_test

import (
	"encoding/binary"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/mgsim/allocator"
	"github.com/sarchlab/mgsim/coma"
	"github.com/sarchlab/mgsim/familytable"
	"github.com/sarchlab/mgsim/grid"
	"github.com/sarchlab/mgsim/ids"
	"github.com/sarchlab/mgsim/isa"
	"github.com/sarchlab/mgsim/regfile"
	"github.com/sarchlab/mgsim/threadtable"
)

func instr(op isa.Opcode, rd, rs1 uint32, imm int32) uint32 {
	return uint32(op)<<26 | rd<<21 | rs1<<16 | 1<<15 | uint32(imm)&0x7FFF
}

func words(ws ...uint32) []byte {
	out := make([]byte, 4*len(ws))
	for i, w := range ws {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out
}

// loadKillerFamily places a family image at 0x4000: control word,
// register spec, then the given instructions, killing the thread
// after the last one.
func loadKillerFamily(s *grid.Simulator, locals uint32, instrs ...uint32) {
	lastIdx := uint(2 + len(instrs) - 1)
	control := uint32(0x2) << (2 * lastIdx)
	line := append([]uint32{control, locals << 10}, instrs...)
	s.LoadImage(0x4000, words(line...))
}

const entryPC = 0x4008

var _ = Describe("Simulator", func() {
	It("runs a single-thread create on the local core", func() {
		// Scenario: one core, one thread, four integer locals; the
		// completion register receives a packed FID with a live
		// capability and sync returns the thread count.
		s := grid.MakeBuilder().WithGridSize(1).Build("Grid")
		loadKillerFamily(s, 4, instr(isa.OpMove, 0, 0, 7))
		c := s.Cores()[0]

		c.Alloc.EnqueueAllocate(allocator.AllocateRequest{
			Kind:          allocator.KindNormal,
			PC:            entryPC,
			Start:         0,
			Limit:         1,
			Step:          1,
			PlaceSize:     1,
			CompletionReg: allocator.RegAddr{Type: ids.Integer, Index: 200},
		})

		res := s.Step(500)
		Expect(res.Kind).To(Equal(grid.Idle))

		handle := c.Regs[ids.Integer].Read(ids.Integer, 200)
		Expect(handle.State).To(Equal(regfile.Full))
		pid, fid, capability := c.Alloc.Codec().Unpack(handle.Value)
		Expect(pid).To(Equal(ids.CoreID(0)))
		Expect(capability).NotTo(BeZero())
		Expect(c.Families.Get(fid).NumCores).To(Equal(1))

		buf := c.SchedulerBuffer()
		c.Alloc.HandleSync(buf, fid, capability, 0, 201)
		buf.Commit()
		s.Step(20)
		Expect(c.Regs[ids.Integer].Read(ids.Integer, 201).Value).To(Equal(uint64(1)))
	})

	It("spreads a group create across four cores, four threads each", func() {
		s := grid.MakeBuilder().WithGridSize(4).Build("Grid")
		loadKillerFamily(s, 2, instr(isa.OpMove, 0, 0, 3))
		origin := s.Cores()[0]

		origin.Alloc.EnqueueAllocate(allocator.AllocateRequest{
			Kind:          allocator.KindNormal,
			PC:            entryPC,
			Start:         0,
			Limit:         16,
			Step:          1,
			PlaceSize:     4,
			CompletionReg: allocator.RegAddr{Type: ids.Integer, Index: 200},
		})

		res := s.Step(3000)
		Expect(res.Kind).To(Equal(grid.Idle))

		handle := origin.Regs[ids.Integer].Read(ids.Integer, 200)
		Expect(handle.State).To(Equal(regfile.Full))
		_, fid, capability := origin.Alloc.Codec().Unpack(handle.Value)
		Expect(origin.Families.Get(fid).NumCores).To(Equal(4))

		// Every core ran its block and cleaned every thread up.
		for _, c := range s.Cores() {
			counts := c.Threads.CountByState()
			for st, n := range counts {
				if threadtable.State(st) != threadtable.Empty {
					Expect(n).To(BeZero(), "core %s state %s", c.Name(), threadtable.State(st))
				}
			}
		}

		// The sync token made it around the place; syncing at the
		// origin reports all sixteen threads.
		buf := origin.SchedulerBuffer()
		origin.Alloc.HandleSync(buf, fid, capability, 0, 201)
		buf.Commit()
		s.Step(50)
		Expect(origin.Regs[ids.Integer].Read(ids.Integer, 201).Value).To(Equal(uint64(16)))
	})

	It("conserves tokens when two cores load the same line", func() {
		s := grid.MakeBuilder().WithGridSize(2).Build("Grid")
		loadKillerFamily(s, 2,
			instr(isa.OpMove, 0, 0, 0x1000),
			instr(isa.OpLoadWord, 1, 0, 0),
		)
		s.LoadImage(0x1000, words(0xDEADBEEF))

		for _, c := range s.Cores() {
			c.Alloc.EnqueueAllocate(allocator.AllocateRequest{
				Kind:          allocator.KindNormal,
				PC:            entryPC,
				Start:         0,
				Limit:         1,
				Step:          1,
				PlaceSize:     1,
				CompletionReg: allocator.RegAddr{Type: ids.Integer, Index: 200},
			})
		}

		res := s.Step(2000)
		Expect(res.Kind).To(Equal(grid.Idle))

		tag := uint64(0x1000) / coma.LineBytes
		sum := s.Root().Tokens(tag)
		for _, c := range s.Cores() {
			sum += c.TokensHeld(tag)
		}
		if dir, ok := s.Component("Grid.Dir0"); ok {
			type liner interface {
				Line(uint64) (int, int, int, int, int, bool, bool)
			}
			if d, ok := dir.(liner); ok {
				tokens, _, _, _, _, _, present := d.Line(tag)
				if present {
					sum += tokens
				}
			}
		}
		Expect(sum).To(Equal(4))
	})

	It("fails an exact allocate larger than the grid without leaking contexts", func() {
		s := grid.MakeBuilder().WithGridSize(4).Build("Grid")
		origin := s.Cores()[0]

		origin.Alloc.EnqueueAllocate(allocator.AllocateRequest{
			Kind:          allocator.KindNormal,
			PC:            entryPC,
			Start:         0,
			Limit:         1,
			Step:          1,
			PlaceSize:     8,
			Exact:         true,
			CompletionReg: allocator.RegAddr{Type: ids.Integer, Index: 200},
		})

		res := s.Step(500)
		Expect(res.Kind).To(Equal(grid.Idle))

		// The walk unwound every reservation on every core.
		for _, c := range s.Cores() {
			for fid := ids.FamilyID(0); int(fid) < c.Families.Size(); fid++ {
				Expect(c.Families.Get(fid).State).To(Equal(familytable.Empty))
			}
		}
		// And the completion register reports the zero handle.
		handle := origin.Regs[ids.Integer].Read(ids.Integer, 200)
		Expect(handle.State).To(Equal(regfile.Full))
		Expect(handle.Value).To(BeZero())
	})

	It("rounds a non-exact oversized allocate down to a power of two", func() {
		s := grid.MakeBuilder().WithGridSize(3).Build("Grid")
		loadKillerFamily(s, 1, instr(isa.OpNop, 0, 0, 0))
		origin := s.Cores()[0]

		origin.Alloc.EnqueueAllocate(allocator.AllocateRequest{
			Kind:          allocator.KindNormal,
			PC:            entryPC,
			Start:         0,
			Limit:         2,
			Step:          1,
			PlaceSize:     6,
			CompletionReg: allocator.RegAddr{Type: ids.Integer, Index: 200},
		})

		res := s.Step(2000)
		Expect(res.Kind).To(Equal(grid.Idle))

		handle := origin.Regs[ids.Integer].Read(ids.Integer, 200)
		Expect(handle.State).To(Equal(regfile.Full))
		_, fid, _ := origin.Alloc.Codec().Unpack(handle.Value)
		Expect(origin.Families.Get(fid).NumCores).To(Equal(2))
	})

	It("parses configuration through Construct and applies it", func() {
		cores, s, err := grid.Construct(map[string]string{
			"Grid.Core0.NumThreads":  "64",
			"Grid.Core0.NumFamilies": "8",
		}, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(cores).To(HaveLen(1))
		Expect(cores[0].Threads.Size()).To(Equal(64))
		Expect(cores[0].Families.Size()).To(Equal(8))

		_, _, err = grid.Construct(map[string]string{"Grid.Core0.Mystery": "1"}, 1)
		Expect(err).To(HaveOccurred())
		_ = s
	})

	It("dumps family storage as a table and rejects an unknown storage", func() {
		s := grid.MakeBuilder().WithGridSize(1).Build("Grid")
		out, err := s.DumpStorage("Grid.Core0.Families")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("FID"))

		_, err = s.DumpStorage("Grid.Core0.Nonsense")
		Expect(err).To(HaveOccurred())
	})
})
