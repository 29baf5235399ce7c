package evictbuf_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/mgsim/coma/evictbuf"
	"github.com/sarchlab/mgsim/sim2"
)

var _ = Describe("Buffer", func() {
	var (
		b   *evictbuf.Buffer
		buf sim2.CommitBuffer
	)

	BeforeEach(func() {
		b = evictbuf.NewBuffer("EB", 4, 2)
		buf = sim2.CommitBuffer{}
	})

	It("rejects a capacity that does not exceed max in-flight lines", func() {
		Expect(func() { evictbuf.NewBuffer("EB", 2, 2) }).To(Panic())
	})

	It("keeps an evicted line's residue findable by tag", func() {
		b.StagePut(&buf, evictbuf.Entry{Tag: 0x40, NTokenRem: 2, NRequestIn: 1})
		buf.Commit()

		e, ok := b.Lookup(0x40)
		Expect(ok).To(BeTrue())
		Expect(e.NTokenRem).To(Equal(2))
		Expect(e.NRequestIn).To(Equal(1))
	})

	It("merges a second eviction of the same tag", func() {
		b.StagePut(&buf, evictbuf.Entry{Tag: 0x40, NTokenRem: 1})
		b.StagePut(&buf, evictbuf.Entry{Tag: 0x40, NRequestIn: 2})
		buf.Commit()

		e, _ := b.Lookup(0x40)
		Expect(e.NTokenRem).To(Equal(1))
		Expect(e.NRequestIn).To(Equal(2))
		Expect(b.Len()).To(Equal(1))
	})

	It("hands residue to a new directory line via Take", func() {
		b.StagePut(&buf, evictbuf.Entry{Tag: 0x80, NTokenRem: 3})
		buf.Commit()

		b.StageTake(&buf, 0x80)
		buf.Commit()

		_, ok := b.Lookup(0x80)
		Expect(ok).To(BeFalse())
	})

	It("reclaims an entry once an in-flight message drains it", func() {
		b.StagePut(&buf, evictbuf.Entry{Tag: 0xC0, NTokenRem: 1, NRequestIn: 1})
		buf.Commit()

		b.StageAdjust(&buf, 0xC0, -1, 0)
		buf.Commit()
		Expect(b.Len()).To(Equal(1))

		b.StageAdjust(&buf, 0xC0, 0, -1)
		buf.Commit()
		Expect(b.Len()).To(Equal(0))
	})
})
