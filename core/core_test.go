package core_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/mgsim/allocator"
	"github.com/sarchlab/mgsim/coma"
	"github.com/sarchlab/mgsim/core"
	"github.com/sarchlab/mgsim/familytable"
	"github.com/sarchlab/mgsim/ids"
	"github.com/sarchlab/mgsim/isa"
	"github.com/sarchlab/mgsim/netplane"
	"github.com/sarchlab/mgsim/regfile"
	"github.com/sarchlab/mgsim/threadtable"
)

// memorySink stands in for the whole coherence substrate below one
// core: every acquire is answered immediately with data from a flat
// image and the full token set, re-entered on the core's own ring
// node.
type memorySink struct {
	node  interface{ Send(m *coma.Msg) }
	image map[uint64]byte
}

func (s *memorySink) CanAccept() bool { return true }

func (s *memorySink) Send(m *coma.Msg) {
	if m.Kind == coma.DisseminateTokenData {
		return
	}
	m.Tokens = 4
	m.Priority = true
	m.DataValid = true
	base := m.Addr / coma.LineBytes * coma.LineBytes
	for i := range m.Data {
		m.Data[i] = s.image[base+uint64(i)]
	}
	s.node.Send(m)
}

// instr packs the built-in decoder's layout.
func instr(op isa.Opcode, rd, rs1 uint32, imm int32) uint32 {
	return uint32(op)<<26 | rd<<21 | rs1<<16 | 1<<15 | uint32(imm)&0x7FFF
}

var _ = Describe("Core", func() {
	var (
		c    *core.Core
		sink *memorySink
	)

	writeWord := func(addr uint64, w uint32) {
		sink.image[addr] = byte(w)
		sink.image[addr+1] = byte(w >> 8)
		sink.image[addr+2] = byte(w >> 16)
		sink.image[addr+3] = byte(w >> 24)
	}

	run := func(n int) {
		for i := 0; i < n; i++ {
			c.Tick()
		}
	}

	BeforeEach(func() {
		links := netplane.NewLinkPlane(1, 8)
		delegates := netplane.NewDelegatePlane(1, 8)
		c = core.MakeBuilder().
			WithID(0, 1).
			WithPlanes(links, delegates).
			Build("Core0")
		sink = &memorySink{node: c.Node(), image: make(map[uint64]byte)}
		c.Node().SetNext(sink)
	})

	It("runs a one-thread family to completion and answers sync", func() {
		// Line at 0x4000: control word, register spec (4 integer
		// locals), then two instructions; the second carries the
		// kill bit.
		writeWord(0x4000, 0x2<<6) // kill after the instruction at index 3
		writeWord(0x4004, 4<<10)  // regspec: 4 integer locals
		writeWord(0x4008, instr(isa.OpMove, 0, 0, 7))
		writeWord(0x400C, instr(isa.OpAdd, 1, 0, 1))

		c.Alloc.EnqueueAllocate(allocator.AllocateRequest{
			Kind:           allocator.KindNormal,
			PC:             0x4008,
			Start:          0,
			Limit:          1,
			Step:           1,
			PlaceSize:      1,
			CompletionCore: 0,
			CompletionReg:  allocator.RegAddr{Type: ids.Integer, Index: 100},
		})

		run(100)

		// The completion register holds a packed FID with a live
		// capability.
		handle := c.Regs[ids.Integer].Read(ids.Integer, 100)
		Expect(handle.State).To(Equal(regfile.Full))
		pid, fid, capability := c.Alloc.Codec().Unpack(handle.Value)
		Expect(pid).To(Equal(ids.CoreID(0)))

		// The thread ran both instructions: locals 0 and 1 of the
		// family's region hold 7 and 8.
		f := c.Families.Get(fid)
		base := f.Regs[ids.Integer].Base
		Expect(c.Regs[ids.Integer].Read(ids.Integer, base).Value).To(Equal(uint64(7)))
		Expect(c.Regs[ids.Integer].Read(ids.Integer, base+1).Value).To(Equal(uint64(8)))

		// All threads terminated and cleaned up.
		Expect(f.Dep.NumThreadsAllocated).To(BeZero())
		Expect(f.Dep.SyncDone()).To(BeTrue())
		Expect(f.State).To(Equal(familytable.Terminated))

		// Sync returns the thread count.
		buf := c.SchedulerBuffer()
		c.Alloc.HandleSync(buf, fid, capability, 0, 101)
		buf.Commit()
		run(4)
		Expect(c.Regs[ids.Integer].Read(ids.Integer, 101).Value).To(Equal(uint64(1)))
	})

	It("leaves the thread tables empty after cleanup", func() {
		writeWord(0x4000, 0x2<<(2*2)) // kill after the instruction at index 2
		writeWord(0x4004, 1<<10)      // one integer local
		writeWord(0x4008, instr(isa.OpNop, 0, 0, 0))

		c.Alloc.EnqueueAllocate(allocator.AllocateRequest{
			Kind:          allocator.KindNormal,
			PC:            0x4008,
			Start:         0,
			Limit:         1,
			Step:          1,
			PlaceSize:     1,
			CompletionReg: allocator.RegAddr{Type: ids.Integer, Index: 100},
		})

		run(100)

		counts := c.Threads.CountByState()
		for s, n := range counts {
			if threadtable.State(s) != threadtable.Empty {
				Expect(n).To(BeZero())
			}
		}
	})
})
