package allocator_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/mgsim/allocator"
	"github.com/sarchlab/mgsim/familytable"
	"github.com/sarchlab/mgsim/ids"
	"github.com/sarchlab/mgsim/raunit"
	"github.com/sarchlab/mgsim/sim2"
	"github.com/sarchlab/mgsim/threadtable"
)

type fakeICache struct{}

func (fakeICache) Fetch(tid ids.ThreadID, pc uint64) (uint32, bool, bool, bool) {
	return 0, false, false, true
}
func (fakeICache) RequestCreationPreload(pc uint64) {}

type fakeDCache struct{}

func (fakeDCache) Read(tid ids.ThreadID, addr uint64, size int, dest allocator.RegAddr, signed bool) (uint64, bool) {
	return 0, true
}

type fakeLink struct {
	allocates []allocator.LinkAllocate
	creates   []allocator.LinkCreate
	responses []allocator.AllocResponse
	syncs     []allocator.LinkSync
	notified  []uint64
}

func (l *fakeLink) SendAllocate(msg allocator.LinkAllocate) { l.allocates = append(l.allocates, msg) }
func (l *fakeLink) SendCreate(msg allocator.LinkCreate)     { l.creates = append(l.creates, msg) }
func (l *fakeLink) SendResponse(msg allocator.AllocResponse) {
	l.responses = append(l.responses, msg)
}
func (l *fakeLink) SendSync(msg allocator.LinkSync)               { l.syncs = append(l.syncs, msg) }
func (l *fakeLink) SendDetach(msg allocator.LinkDetach)           {}
func (l *fakeLink) SendBreak(msg allocator.LinkBreak)             {}
func (l *fakeLink) SendGlobalWrite(msg allocator.LinkGlobalWrite) {}
func (l *fakeLink) Notify(core ids.CoreID, reg allocator.RegAddr, value uint64) {
	l.notified = append(l.notified, value)
}

type fakeRegs struct {
	written map[ids.RegIndex]uint64
}

func (r *fakeRegs) StageWriteFull(buf *sim2.CommitBuffer, rt ids.RegType, idx ids.RegIndex, value uint64) {
	buf.Stage(func() { r.written[idx] = value })
}

const gridSize = 4

var _ = Describe("Allocator", func() {
	var (
		families *familytable.Table
		threads  *threadtable.Table
		raUnits  [ids.NumRegTypes]*raunit.Unit
		regs     *fakeRegs
		link     *fakeLink
		a        *allocator.Allocator
		buf      sim2.CommitBuffer
		codec    ids.FIDCodec
	)

	runCycles := func(n int) {
		for i := 0; i < n; i++ {
			a.DoFamilyAllocate(&buf)
			a.DoAllocResponse(&buf)
			a.DoFamilyCreate(&buf)
			a.DoThreadAllocate(&buf)
			a.DoSyncDelivery(&buf)
			a.DoFamilyCleanup(&buf)
			buf.Commit()
			a.FinalizeCycle()
		}
	}

	BeforeEach(func() {
		families = familytable.NewTable(4)
		threads = threadtable.NewTable(8, 2, true)
		raUnits[ids.Integer] = raunit.NewUnit(64)
		raUnits[ids.Float] = raunit.NewUnit(64)
		regs = &fakeRegs{written: make(map[ids.RegIndex]uint64)}
		link = &fakeLink{}
		buf = sim2.CommitBuffer{}
		codec = ids.NewFIDCodec(gridSize, 4)

		a = allocator.New("core0.allocator", 0, gridSize,
			families, threads, raUnits, regs, fakeICache{}, fakeDCache{}, link)
	})

	It("drives a single-core family through allocate/create to a completion-register write", func() {
		a.EnqueueAllocate(allocator.AllocateRequest{
			Kind:           allocator.KindNormal,
			PC:             0x1000,
			Start:          0,
			Limit:          1,
			Step:           1,
			PlaceSize:      1,
			CompletionCore: 0,
			CompletionReg:  allocator.RegAddr{Type: ids.Integer, Index: 5},
		})

		runCycles(20)

		Expect(regs.written).To(HaveKey(ids.RegIndex(5)))
		pid, fid, capability := codec.Unpack(regs.written[5])
		Expect(pid).To(Equal(ids.CoreID(0)))
		Expect(capability).NotTo(BeZero())
		Expect(families.Get(fid).State).To(Equal(familytable.Active))
	})

	It("allocates a fresh thread once a family becomes active", func() {
		a.EnqueueAllocate(allocator.AllocateRequest{
			Kind:          allocator.KindNormal,
			PC:            0x2000,
			Start:         0,
			Limit:         2,
			Step:          1,
			PlaceSize:     1,
			CompletionReg: allocator.RegAddr{Type: ids.Integer, Index: 6},
		})

		runCycles(20)

		_, fid, _ := codec.Unpack(regs.written[6])
		Expect(families.Get(fid).Dep.NumThreadsAllocated).To(BeNumerically(">=", 1))
	})

	It("forwards a multi-core allocate down the link with itself as first core", func() {
		a.EnqueueAllocate(allocator.AllocateRequest{
			Kind:      allocator.KindNormal,
			PC:        0x3000,
			PlaceSize: 4,
		})

		runCycles(2)

		Expect(link.allocates).To(HaveLen(1))
		msg := link.allocates[0]
		Expect(msg.FirstCore).To(Equal(ids.CoreID(0)))
		Expect(msg.RemainingSize).To(Equal(3))
		Expect(msg.NumAllocated).To(Equal(1))
		Expect(msg.PrevFID).To(Equal(msg.FirstFID))
	})

	It("turns a wrapped exact allocate into a full unwind", func() {
		// A walk that returns to the first core cannot extend; with
		// Exact set every reservation unwinds (spec.md §8 S6).
		msg := allocator.LinkAllocate{
			FirstFID:      1,
			PrevFID:       3,
			FirstCore:     0,
			RemainingSize: 4,
			NumAllocated:  4,
			Exact:         true,
		}
		a.HandleLinkAllocate(&buf, msg)
		buf.Commit()

		Expect(link.responses).To(HaveLen(1))
		resp := link.responses[0]
		Expect(resp.Committed).To(BeFalse())
		Expect(resp.NumCores).To(BeZero())
		Expect(resp.UnwindRemaining).To(Equal(4))
	})

	It("unwinds a wrapped non-exact allocate to the largest power of two", func() {
		msg := allocator.LinkAllocate{
			FirstCore:    0,
			PrevFID:      2,
			NumAllocated: 3,
		}
		a.HandleLinkAllocate(&buf, msg)
		buf.Commit()

		resp := link.responses[0]
		Expect(resp.Committed).To(BeTrue())
		Expect(resp.NumCores).To(Equal(2))
		Expect(resp.UnwindRemaining).To(Equal(1))
	})

	It("reserves an entry and forwards when the walk has room", func() {
		msg := allocator.LinkAllocate{
			FirstFID:      7,
			PrevFID:       7,
			FirstCore:     3,
			RemainingSize: 2,
			NumAllocated:  1,
		}
		a.HandleLinkAllocate(&buf, msg)
		buf.Commit()

		Expect(link.allocates).To(HaveLen(1))
		Expect(link.allocates[0].RemainingSize).To(Equal(1))
		Expect(link.allocates[0].NumAllocated).To(Equal(2))
	})

	It("turns the walk around committed when it completes the place", func() {
		msg := allocator.LinkAllocate{
			FirstFID:      7,
			PrevFID:       5,
			FirstCore:     3,
			RemainingSize: 1,
			NumAllocated:  1,
		}
		a.HandleLinkAllocate(&buf, msg)
		buf.Commit()

		Expect(link.responses).To(HaveLen(1))
		resp := link.responses[0]
		Expect(resp.Committed).To(BeTrue())
		Expect(resp.NumCores).To(Equal(2))
		Expect(resp.FID).To(Equal(ids.FamilyID(5)))
		Expect(resp.UnwindRemaining).To(BeZero())
	})

	It("returns context counters to initial values after an allocate/release pair", func() {
		freeBefore := 0
		for fid := ids.FamilyID(0); int(fid) < families.Size(); fid++ {
			if families.Get(fid).State == familytable.Empty {
				freeBefore++
			}
		}

		msg := allocator.LinkAllocate{
			FirstCore:     3,
			PrevFID:       5,
			RemainingSize: 2,
			NumAllocated:  1,
		}
		a.HandleLinkAllocate(&buf, msg)
		buf.Commit()

		// Unwind response releases the reservation this core made.
		fid := link.allocates[0].PrevFID
		a.DeliverAllocResponse(allocator.AllocResponse{
			FID:             fid,
			UnwindRemaining: 1,
		})
		runCycles(2)

		freeAfter := 0
		for fid := ids.FamilyID(0); int(fid) < families.Size(); fid++ {
			if families.Get(fid).State == familytable.Empty {
				freeAfter++
			}
		}
		Expect(freeAfter).To(Equal(freeBefore))
	})

	It("delivers a sync continuation exactly once when sync arrives after termination", func() {
		a.EnqueueAllocate(allocator.AllocateRequest{
			Kind:          allocator.KindNormal,
			PC:            0x4000,
			Start:         0,
			Limit:         0, // zero threads: terminates at creation
			Step:          1,
			PlaceSize:     1,
			CompletionReg: allocator.RegAddr{Type: ids.Integer, Index: 7},
		})
		runCycles(20)

		_, fid, capability := codec.Unpack(regs.written[7])
		Expect(families.Get(fid).Dep.SyncDone()).To(BeTrue())

		a.HandleSync(&buf, fid, capability, 0, 9)
		buf.Commit()
		a.HandleSync(&buf, fid, capability, 0, 9)
		buf.Commit()

		Expect(link.notified).To(Equal([]uint64{0}))
	})

	It("frees registers and the family entry once detached and synced", func() {
		a.EnqueueAllocate(allocator.AllocateRequest{
			Kind:          allocator.KindNormal,
			PC:            0x5000,
			Start:         0,
			Limit:         0,
			Step:          1,
			PlaceSize:     1,
			CompletionReg: allocator.RegAddr{Type: ids.Integer, Index: 8},
		})
		runCycles(20)

		_, fid, capability := codec.Unpack(regs.written[8])
		a.HandleSync(&buf, fid, capability, 0, 9)
		buf.Commit()
		a.HandleDetach(&buf, fid, capability)
		buf.Commit()
		a.FinalizeCycle()
		runCycles(4)

		Expect(families.Get(fid).State).To(Equal(familytable.Empty))
	})
})
