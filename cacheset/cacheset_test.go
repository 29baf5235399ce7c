package cacheset_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/mgsim/cacheset"
)

type fakeLine struct {
	valid, referenced bool
	tag               uint64
}

func (l fakeLine) Valid() bool      { return l.valid }
func (l fakeLine) Tag() uint64      { return l.tag }
func (l fakeLine) Referenced() bool { return l.referenced }

var _ = Describe("Array", func() {
	var a *cacheset.Array[fakeLine]

	BeforeEach(func() {
		a = cacheset.NewArray[fakeLine](4, 2, fakeLine{})
	})

	It("finds a line by tag within its set only", func() {
		a.Set(1, 0, fakeLine{valid: true, tag: 7})
		way, ok := a.Find(1, 7)
		Expect(ok).To(BeTrue())
		Expect(way).To(Equal(0))

		_, ok = a.Find(0, 7)
		Expect(ok).To(BeFalse())
	})

	It("picks the least-recently-touched unreferenced way as victim", func() {
		a.Set(2, 0, fakeLine{valid: true, tag: 1})
		a.Set(2, 1, fakeLine{valid: true, tag: 2})
		a.Touch(2, 1)

		way, ok := a.VictimWay(2)
		Expect(ok).To(BeTrue())
		Expect(way).To(Equal(0))
	})

	It("never picks a referenced line as victim", func() {
		a.Set(3, 0, fakeLine{valid: true, tag: 1, referenced: true})
		a.Set(3, 1, fakeLine{valid: true, tag: 2, referenced: true})

		_, ok := a.VictimWay(3)
		Expect(ok).To(BeFalse())
	})
})
