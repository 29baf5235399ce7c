package dcache_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/mgsim/dcache"
	"github.com/sarchlab/mgsim/ids"
	"github.com/sarchlab/mgsim/regfile"
	"github.com/sarchlab/mgsim/sim2"
)

type fakeCoherence struct {
	fills      []uint64
	writebacks [][dcache.LineBytes]byte
}

func (c *fakeCoherence) RequestFill(addr uint64, forWrite bool) uint64 {
	c.fills = append(c.fills, addr)
	return uint64(len(c.fills))
}

func (c *fakeCoherence) RequestWriteBack(addr uint64, data [dcache.LineBytes]byte) {
	c.writebacks = append(c.writebacks, data)
}

type fakeLinker struct{}

func (fakeLinker) Next(ids.ThreadID) ids.ThreadID                             { return ids.InvalidThread }
func (fakeLinker) StageSetNext(*sim2.CommitBuffer, ids.ThreadID, ids.ThreadID) {}
func (fakeLinker) StageWake(*sim2.CommitBuffer, ids.ThreadID)                  {}

var _ = Describe("D-Cache", func() {
	var (
		coh  *fakeCoherence
		regs *regfile.File
		c    *dcache.Cache
		buf  sim2.CommitBuffer
	)

	BeforeEach(func() {
		coh = &fakeCoherence{}
		var counts [ids.NumRegTypes]int
		counts[ids.Integer] = 4
		regs = regfile.NewFile(counts)
		c = dcache.New("core0.dcache", 4, 2, coh, regs, fakeLinker{})
		buf = sim2.CommitBuffer{}
	})

	It("misses on first read and issues exactly one fill", func() {
		dest := dcache.RegAddr{Type: ids.Integer, Index: 1}
		_, hit := c.Read(0, 0x100, 4, dest, false)
		Expect(hit).To(BeFalse())
		Expect(coh.fills).To(HaveLen(1))
	})

	It("delivers the filled word to the waiting register through CompletedReads", func() {
		dest := dcache.RegAddr{Type: ids.Integer, Index: 1}
		_, hit := c.Read(0, 0x100, 4, dest, false)
		Expect(hit).To(BeFalse())

		var data [dcache.LineBytes]byte
		data[0] = 0x2A
		Expect(c.CompletedReads(&buf, 0, 0, data)).To(Equal(sim2.Success))
		buf.Commit()

		reg := regs.Read(ids.Integer, 1)
		Expect(reg.State).To(Equal(regfile.Full))
		Expect(reg.Value).To(Equal(uint64(0x2A)))
	})

	It("misses on a write to an absent line and still issues a fill", func() {
		ok := c.Write(0, 0x200, 4, 0xDEADBEEF)
		Expect(ok).To(BeFalse())
		Expect(coh.fills).To(HaveLen(1))
	})

	It("merges a snoop into a resident line's bytes", func() {
		dest := dcache.RegAddr{Type: ids.Integer, Index: 1}
		c.Read(0, 0x100, 4, dest, false)
		var data [dcache.LineBytes]byte
		c.CompletedReads(&buf, 0, 0, data)
		buf.Commit()

		var snoopData [dcache.LineBytes]byte
		snoopData[4] = 0x7
		var validBytes [dcache.LineBytes]bool
		validBytes[4] = true
		c.Snoop(0x100, snoopData, validBytes)

		dest2 := dcache.RegAddr{Type: ids.Integer, Index: 2}
		val, hit := c.Read(0, 0x104, 4, dest2, false)
		Expect(hit).To(BeTrue())
		Expect(val & 0xFF).To(Equal(uint64(0x7)))
	})

	It("invalidates an unreferenced full line straight to empty", func() {
		dest := dcache.RegAddr{Type: ids.Integer, Index: 1}
		c.Read(0, 0x100, 4, dest, false)
		var data [dcache.LineBytes]byte
		c.CompletedReads(&buf, 0, 0, data)
		buf.Commit()

		c.Invalidate(0x100)

		dest2 := dcache.RegAddr{Type: ids.Integer, Index: 2}
		_, hit := c.Read(0, 0x100, 4, dest2, false)
		Expect(hit).To(BeFalse())
		Expect(coh.fills).To(HaveLen(2))
	})
})
