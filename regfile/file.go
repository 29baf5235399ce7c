package regfile

import (
	"github.com/sarchlab/mgsim/ids"
	"github.com/sarchlab/mgsim/sim2"
)

// ThreadLinker lets the register file thread a wait list through the
// owning core's Thread Table without importing it (spec.md design
// note: the wait-list's `next` field lives in the Thread Table, the
// register only remembers the head). Implemented by threadtable.Table.
type ThreadLinker interface {
	// Next returns the thread linked after tid on whatever wait list
	// tid currently sits on.
	Next(tid ids.ThreadID) ids.ThreadID
	// StageSetNext stages tid.next = next, to take effect on Commit.
	StageSetNext(buf *sim2.CommitBuffer, tid ids.ThreadID, next ids.ThreadID)
	// StageWake stages tid transitioning from Waiting back to Ready.
	StageWake(buf *sim2.CommitBuffer, tid ids.ThreadID)
}

// File is a banked Register File: one bank per ids.RegType, each a
// dense slice of Register indexed by ids.RegIndex.
type File struct {
	banks [ids.NumRegTypes][]Register
	// WritePort is an arbitrator over the async write port shared by
	// pipeline Writeback, D-Cache fill, and network delivery. None of
	// those writers consults it, so same-cycle writes to the file are
	// not arbitrated.
	WritePort *sim2.Arbitrator
}

// NewFile builds a Register File with counts[t] registers in bank t.
func NewFile(counts [ids.NumRegTypes]int) *File {
	f := &File{
		WritePort: sim2.NewArbitrator([]string{
			"Writeback", "DCacheFill", "NetworkDeliver",
		}),
	}
	for t := range counts {
		bank := make([]Register, counts[t])
		for i := range bank {
			bank[i] = newRegister()
		}
		f.banks[t] = bank
	}
	return f
}

// Read returns the committed state of one register. Callers must not
// mutate the returned value; it is a snapshot.
func (f *File) Read(rt ids.RegType, idx ids.RegIndex) Register {
	return f.banks[rt][idx]
}

// Size returns the number of registers in a bank.
func (f *File) Size(rt ids.RegType) int {
	return len(f.banks[rt])
}

// StageAppendWaiter implements the Read stage's miss handling
// (spec.md §4.2 Read): if the register is Empty, the calling thread
// becomes the sole entry of a new Waiting list (CAS Empty->Waiting);
// if it is already Waiting, the thread is appended to the tail.
// Returns false if the register is already Full or Pending (the
// caller should not block).
func (f *File) StageAppendWaiter(
	buf *sim2.CommitBuffer,
	linker ThreadLinker,
	rt ids.RegType,
	idx ids.RegIndex,
	tid ids.ThreadID,
) bool {
	reg := &f.banks[rt][idx]
	switch reg.State {
	case Empty:
		buf.Stage(func() {
			reg.State = Waiting
			reg.WaitHead = tid
		})
		linker.StageSetNext(buf, tid, ids.InvalidThread)
		return true
	case Waiting:
		tail := reg.WaitHead
		for {
			next := linker.Next(tail)
			if next == ids.InvalidThread {
				break
			}
			tail = next
		}
		linker.StageSetNext(buf, tail, tid)
		linker.StageSetNext(buf, tid, ids.InvalidThread)
		return true
	default:
		return false
	}
}

// StageWriteFull implements Writeback's register-file write (spec.md
// §3 invariant: "writing Full over Waiting wakes every thread on the
// list"). It does not consult f.WritePort.
func (f *File) StageWriteFull(
	buf *sim2.CommitBuffer,
	linker ThreadLinker,
	rt ids.RegType,
	idx ids.RegIndex,
	value uint64,
) {
	reg := &f.banks[rt][idx]
	waking := reg.State == Waiting
	head := reg.WaitHead

	buf.Stage(func() {
		reg.State = Full
		reg.Value = value
		reg.WaitHead = ids.InvalidThread
	})

	if waking {
		for tid := head; tid != ids.InvalidThread; {
			next := linker.Next(tid)
			linker.StageWake(buf, tid)
			tid = next
		}
	}
}

// StageStartMiss implements the D-Cache-miss path of Memory (spec.md
// §4.2 Memory / §4.3): Empty -> Pending, recording the memory-request
// descriptor. This is one of the two externally visible transitions
// that may occur during a miss (spec.md §3 invariant).
func (f *File) StageStartMiss(
	buf *sim2.CommitBuffer,
	rt ids.RegType,
	idx ids.RegIndex,
	req PendingRequest,
) {
	reg := &f.banks[rt][idx]
	buf.Stage(func() {
		reg.State = Pending
		reg.Pending = req
	})
}

// StageCompleteMiss implements the cache-fill-driven Pending -> Full
// transition (spec.md §4.3 "CompletedReads"): it writes one register
// Full, waking any waiters. No caller follows Pending.NextRegister, so
// a load is never chained across several registers.
func (f *File) StageCompleteMiss(
	buf *sim2.CommitBuffer,
	linker ThreadLinker,
	rt ids.RegType,
	idx ids.RegIndex,
	value uint64,
) {
	f.StageWriteFull(buf, linker, rt, idx, value)
}
