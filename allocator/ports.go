package allocator

import (
	"github.com/sarchlab/mgsim/ids"
	"github.com/sarchlab/mgsim/sim2"
)

// InstructionSource is the Allocator's dependency on the I-Cache:
// DoFamilyCreate's LoadRegSpec/LoadingLine steps fetch the register-
// spec instruction word, and DoThreadActivation fetches a thread's
// first instruction line to decide hit-vs-miss (spec.md §4.1, §4.4).
type InstructionSource interface {
	Fetch(tid ids.ThreadID, pc uint64) (word uint32, wantSwitch, killAfter, hit bool)
	RequestCreationPreload(pc uint64)
}

// DataSource is the Allocator's dependency on the D-Cache: DoBundle
// reads a three-word (place, pc, index) descriptor (spec.md §4.1
// DoBundle).
type DataSource interface {
	Read(tid ids.ThreadID, addr uint64, size int, dest RegAddr, signed bool) (value uint64, hit bool)
}

// LinkPort is the Allocator's dependency on the place's link ring:
// allocate/create/sync/detach/break traffic forward to the next core,
// allocation responses walk backward, and Notify delivers a value to
// a completion register on a remote core over the delegate plane
// (spec.md §4.1, §4.7).
type LinkPort interface {
	SendAllocate(msg LinkAllocate)
	SendCreate(msg LinkCreate)
	SendResponse(msg AllocResponse)
	SendSync(msg LinkSync)
	SendDetach(msg LinkDetach)
	SendBreak(msg LinkBreak)
	SendGlobalWrite(msg LinkGlobalWrite)
	Notify(core ids.CoreID, reg RegAddr, value uint64)
}

// RegisterWriter is the narrow register-file seam the Allocator needs
// to initialize globals and deliver completion/sync values, without
// depending on regfile.File's whole surface or its ThreadLinker.
type RegisterWriter interface {
	StageWriteFull(buf *sim2.CommitBuffer, rt ids.RegType, idx ids.RegIndex, value uint64)
}
