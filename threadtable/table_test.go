package threadtable_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/mgsim/ids"
	"github.com/sarchlab/mgsim/sim2"
	"github.com/sarchlab/mgsim/threadtable"
)

var _ = Describe("Thread Table", func() {
	var (
		tbl *threadtable.Table
		buf sim2.CommitBuffer
	)

	BeforeEach(func() {
		tbl = threadtable.NewTable(8, 2, true)
		buf = sim2.CommitBuffer{}
	})

	It("holds exactly one exclusive slot across all families", func() {
		_, ok := tbl.TryAlloc(&buf, threadtable.ClassExclusive)
		buf.Commit()
		Expect(ok).To(BeTrue())

		_, ok2 := tbl.TryAlloc(&buf, threadtable.ClassExclusive)
		buf.Commit()
		Expect(ok2).To(BeFalse())
	})

	It("frees the exclusive slot back for a later family", func() {
		tid, _ := tbl.TryAlloc(&buf, threadtable.ClassExclusive)
		buf.Commit()
		tbl.StageFree(&buf, tid)
		buf.Commit()

		_, ok := tbl.TryAlloc(&buf, threadtable.ClassExclusive)
		buf.Commit()
		Expect(ok).To(BeTrue())
	})

	It("keeps numThreadsPerState consistent with allocated threads", func() {
		tid, ok := tbl.TryAlloc(&buf, threadtable.ClassNormal)
		Expect(ok).To(BeTrue())
		tbl.StageInit(&buf, tid, threadtable.Thread{
			State:  threadtable.Active,
			Family: 4,
		})
		buf.Commit()

		counts := tbl.CountByState()
		Expect(counts[threadtable.Active]).To(Equal(1))
		Expect(tbl.CountForFamily(4)).To(Equal(1))
	})

	It("exhausts the reserved pool independently of the normal pool", func() {
		for i := 0; i < 2; i++ {
			_, ok := tbl.TryAlloc(&buf, threadtable.ClassReserved)
			buf.Commit()
			Expect(ok).To(BeTrue())
		}
		_, ok := tbl.TryAlloc(&buf, threadtable.ClassReserved)
		buf.Commit()
		Expect(ok).To(BeFalse())

		_, ok = tbl.TryAlloc(&buf, threadtable.ClassNormal)
		buf.Commit()
		Expect(ok).To(BeTrue())
	})

	It("threads a wait list through Next without aliasing across lists", func() {
		a, _ := tbl.TryAlloc(&buf, threadtable.ClassNormal)
		buf.Commit()
		b, _ := tbl.TryAlloc(&buf, threadtable.ClassNormal)
		buf.Commit()

		tbl.StageSetNext(&buf, a, b)
		buf.Commit()
		Expect(tbl.Next(a)).To(Equal(b))
		Expect(tbl.Next(b)).To(Equal(ids.InvalidThread))
	})

	Describe("the wake/suspend race", func() {
		var (
			tid   ids.ThreadID
			woken []ids.ThreadID
		)

		BeforeEach(func() {
			woken = nil
			tbl.SetWaker(func(t ids.ThreadID) { woken = append(woken, t) })
			tid, _ = tbl.TryAlloc(&buf, threadtable.ClassNormal)
			tbl.StageInit(&buf, tid, threadtable.Thread{State: threadtable.Running})
			buf.Commit()
		})

		It("wakes a Waiting thread back to Ready through the waker", func() {
			tbl.StageSetState(&buf, tid, threadtable.Waiting)
			buf.Commit()

			tbl.StageWake(&buf, tid)
			buf.Commit()

			Expect(tbl.Get(tid).State).To(Equal(threadtable.Ready))
			Expect(woken).To(Equal([]ids.ThreadID{tid}))
		})

		It("re-activates instead of parking when the wake lands first", func() {
			// The fill's wake commits while the thread is still in
			// the pipeline; the suspend point must not strand it.
			tbl.StageWake(&buf, tid)
			tbl.StageSuspend(&buf, tid)
			buf.Commit()

			Expect(tbl.Get(tid).State).To(Equal(threadtable.Ready))
			Expect(woken).To(Equal([]ids.ThreadID{tid}))
			Expect(tbl.Get(tid).WakePending).To(BeFalse())
		})

		It("parks normally when no wake has landed", func() {
			tbl.StageSuspend(&buf, tid)
			buf.Commit()

			Expect(tbl.Get(tid).State).To(Equal(threadtable.Waiting))
			Expect(woken).To(BeEmpty())
		})
	})
})
