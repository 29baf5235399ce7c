package icache_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/mgsim/icache"
	"github.com/sarchlab/mgsim/ids"
	"github.com/sarchlab/mgsim/sim2"
)

type fakeCoherence struct{ fills []uint64 }

func (c *fakeCoherence) RequestFill(addr uint64, forWrite bool) uint64 {
	c.fills = append(c.fills, addr)
	return uint64(len(c.fills))
}

type fakeActivator struct {
	activated   []ids.ThreadID
	familyWoken []uint64
}

func (a *fakeActivator) ActivateThread(buf *sim2.CommitBuffer, tid ids.ThreadID) {
	a.activated = append(a.activated, tid)
}

func (a *fakeActivator) WakeFamilyCreate(buf *sim2.CommitBuffer, addr uint64) {
	a.familyWoken = append(a.familyWoken, addr)
}

var _ = Describe("I-Cache", func() {
	var (
		coh *fakeCoherence
		act *fakeActivator
		c   *icache.Cache
		buf sim2.CommitBuffer
	)

	const linesz = 4 // words per line

	BeforeEach(func() {
		coh = &fakeCoherence{}
		act = &fakeActivator{}
		c = icache.New("core0.icache", 4, 2, linesz, coh, act)
		buf = sim2.CommitBuffer{}
	})

	It("misses on an empty line and registers the fetching thread as a waiter", func() {
		_, _, _, hit := c.Fetch(7, 0x40)
		Expect(hit).To(BeFalse())
		Expect(coh.fills).To(HaveLen(1))
	})

	It("wakes every waiting thread once the fill completes", func() {
		c.Fetch(7, 0x40)
		c.Fetch(9, 0x40)

		words := []uint32{0x11, 0x22, 0x33, 0x44}
		c.CompleteFill(&buf, 0, 0, words, 0, 0x40)

		Expect(act.activated).To(ConsistOf(ids.ThreadID(7), ids.ThreadID(9)))
	})

	It("serves a hit with the word at the PC's offset and decodes control bits", func() {
		words := []uint32{0x11, 0x22, 0x33, 0x44}
		// control word: instruction 1 wants a switch (bit0=1), instruction 2 kills after (bit1=1)
		control := uint32(0b01<<2 | 0b10<<4)
		c.Fetch(7, 0x40) // triggers the miss allocation
		c.CompleteFill(&buf, 0, 0, words, control, 0x40)

		word, wantSwitch, killAfter, hit := c.Fetch(9, 0x44)
		Expect(hit).To(BeTrue())
		Expect(word).To(Equal(uint32(0x22)))
		Expect(wantSwitch).To(BeTrue())
		Expect(killAfter).To(BeFalse())

		word, wantSwitch, killAfter, hit = c.Fetch(9, 0x48)
		Expect(hit).To(BeTrue())
		Expect(word).To(Equal(uint32(0x33)))
		Expect(wantSwitch).To(BeFalse())
		Expect(killAfter).To(BeTrue())
	})

	It("wakes FamilyCreate only when the fill was a creation preload", func() {
		c.RequestCreationPreload(0x80)
		words := []uint32{0, 0, 0, 0}
		c.CompleteFill(&buf, 0, 0, words, 0, 0x80)
		Expect(act.familyWoken).To(ConsistOf(uint64(0x80)))
	})
})
