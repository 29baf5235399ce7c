package familytable_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/mgsim/familytable"
	"github.com/sarchlab/mgsim/ids"
	"github.com/sarchlab/mgsim/sim2"
)

var _ = Describe("Family Table", func() {
	var (
		tbl *familytable.Table
		buf sim2.CommitBuffer
	)

	BeforeEach(func() {
		tbl = familytable.NewTable(4)
		buf = sim2.CommitBuffer{}
	})

	It("assigns a fresh capability on every allocation and authenticates by it", func() {
		fid, capability, ok := tbl.TryAlloc(&buf)
		buf.Commit()
		Expect(ok).To(BeTrue())
		Expect(tbl.Authenticate(fid, capability)).To(BeTrue())
		Expect(tbl.Authenticate(fid, capability+1)).To(BeFalse())
	})

	It("rejects a capability for a slot that has since been freed and reused", func() {
		fid, oldCap, _ := tbl.TryAlloc(&buf)
		buf.Commit()
		tbl.StageFree(&buf, fid)
		buf.Commit()

		fid2, newCap, _ := tbl.TryAlloc(&buf)
		buf.Commit()
		Expect(fid2).To(Equal(fid))
		Expect(newCap).NotTo(Equal(oldCap))
		Expect(tbl.Authenticate(fid, oldCap)).To(BeFalse())
	})

	It("computes the logical thread count from the exclusive index range", func() {
		fid, _, _ := tbl.TryAlloc(&buf)
		buf.Commit()
		tbl.StageInit(&buf, fid, 0x1000, 0, 10, 1, 1, 1, ids.InvalidFamily)
		buf.Commit()
		Expect(tbl.Get(fid).LogicalCount).To(Equal(uint64(10)))

		fid2, _, _ := tbl.TryAlloc(&buf)
		buf.Commit()
		tbl.StageInit(&buf, fid2, 0x1000, 0, 10, 3, 1, 1, ids.InvalidFamily)
		buf.Commit()
		Expect(tbl.Get(fid2).LogicalCount).To(Equal(uint64(4)))
	})

	Describe("the sync/free tie-break", func() {
		var fid ids.FamilyID

		BeforeEach(func() {
			fid, _, _ = tbl.TryAlloc(&buf)
			buf.Commit()
			tbl.StageSetPrevSynchronized(&buf, fid)
			buf.Commit()
			tbl.FinalizeCycle()
		})

		It("does not report sync-done while a thread is still allocated", func() {
			tbl.StageIncThreadsAllocated(&buf, fid)
			tbl.StageSetAllocationDone(&buf, fid)
			buf.Commit()
			synced, _ := tbl.FinalizeCycle()
			Expect(synced).To(BeEmpty())
		})

		It("reports sync-done exactly once, regardless of which mutator ran last in the cycle", func() {
			tbl.StageIncThreadsAllocated(&buf, fid)
			tbl.StageSetAllocationDone(&buf, fid)
			buf.Commit()
			tbl.FinalizeCycle()

			tbl.StageDecThreadsAllocated(&buf, fid)
			buf.Commit()
			synced, _ := tbl.FinalizeCycle()
			Expect(synced).To(ConsistOf(fid))

			again, _ := tbl.FinalizeCycle()
			Expect(again).To(BeEmpty())
		})

		It("only becomes freeable once sync-done, detached, and syncSent all hold", func() {
			tbl.StageSetAllocationDone(&buf, fid)
			buf.Commit()
			_, freeable := tbl.FinalizeCycle()
			Expect(freeable).To(BeEmpty())

			tbl.StageSetDetached(&buf, fid)
			tbl.StageSetSyncSent(&buf, fid)
			buf.Commit()
			_, freeable = tbl.FinalizeCycle()
			Expect(freeable).To(ConsistOf(fid))
		})
	})
})
