package raunit_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/mgsim/ids"
	"github.com/sarchlab/mgsim/raunit"
	"github.com/sarchlab/mgsim/sim2"
)

var _ = Describe("RA Unit", func() {
	var (
		u   *raunit.Unit
		buf sim2.CommitBuffer
	)

	BeforeEach(func() {
		u = raunit.NewUnit(32)
		buf = sim2.CommitBuffer{}
	})

	It("never hands out register index 0", func() {
		base, ok := u.TryAlloc(31)
		Expect(ok).To(BeTrue())
		Expect(base).To(Equal(ids.RegIndex(1)))
	})

	It("fails a request larger than the available space", func() {
		_, ok := u.TryAlloc(32)
		Expect(ok).To(BeFalse())
	})

	It("shrinks availability after a staged allocation commits", func() {
		base, _ := u.TryAlloc(8)
		u.StageAlloc(&buf, base, 8)
		buf.Commit()
		Expect(u.Available()).To(Equal(31 - 8))

		_, ok := u.TryAlloc(24)
		Expect(ok).To(BeFalse())
	})

	It("coalesces a freed extent back with its neighbors", func() {
		a, _ := u.TryAlloc(8)
		u.StageAlloc(&buf, a, 8)
		buf.Commit()
		b, _ := u.TryAlloc(8)
		u.StageAlloc(&buf, b, 8)
		buf.Commit()

		u.StageFree(&buf, a, 8)
		buf.Commit()
		u.StageFree(&buf, b, 8)
		buf.Commit()

		Expect(u.Available()).To(Equal(31))
		base, ok := u.TryAlloc(31)
		Expect(ok).To(BeTrue())
		Expect(base).To(Equal(ids.RegIndex(1)))
	})
})
