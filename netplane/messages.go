package netplane

import (
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/mgsim/ids"
)

// RegAddr mirrors the (type, index) register address used by the
// allocator and pipeline, without importing either.
type RegAddr struct {
	Type  ids.RegType
	Index ids.RegIndex
}

// LinkKind is the link-plane message variant (spec.md §3's Link*
// members plus the allocation walk of §4.1).
type LinkKind int

const (
	// LinkAllocate walks a multi-core allocation forward along the
	// place.
	LinkAllocate LinkKind = iota
	// LinkAllocResponse walks the commit/unwind back along the place.
	LinkAllocResponse
	// LinkCreate broadcasts a family create to the next core.
	LinkCreate
	// LinkDone carries a family's completion token forward.
	LinkDone
	// LinkSync forwards the sync token along the place.
	LinkSync
	// LinkDetach propagates a detach along the place.
	LinkDetach
	// LinkBreak propagates a break along the place.
	LinkBreak
	// LinkGlobalWrite carries a global-register write to the
	// family's other cores.
	LinkGlobalWrite
)

// String names the kind for network traces.
func (k LinkKind) String() string {
	switch k {
	case LinkAllocate:
		return "LinkAllocate"
	case LinkAllocResponse:
		return "LinkAllocResponse"
	case LinkCreate:
		return "LinkCreate"
	case LinkDone:
		return "LinkDone"
	case LinkSync:
		return "LinkSync"
	case LinkDetach:
		return "LinkDetach"
	case LinkBreak:
		return "LinkBreak"
	case LinkGlobalWrite:
		return "LinkGlobalWrite"
	default:
		return "Unknown"
	}
}

// LinkMsg is one link-plane message. Field use depends on Kind; the
// link plane transports it opaquely.
type LinkMsg struct {
	sim.MsgMeta

	Kind LinkKind

	// FID addresses the family entry on the receiving core.
	FID ids.FamilyID
	// FirstFID is the family entry on the place's first core.
	FirstFID ids.FamilyID
	// PrevFID is the sender's family entry, recorded by the receiver
	// so responses can walk back.
	PrevFID ids.FamilyID
	// NextFID tells a response's receiver its successor's entry.
	NextFID ids.FamilyID

	PC                 uint64
	Start, Limit, Step int64

	// FirstCore is the place's first core, for wrap detection on the
	// allocation walk.
	FirstCore ids.CoreID

	RemainingSize   int
	NumAllocated    int
	NumCores        int
	PhysBlockSize   int
	UnwindRemaining int
	Exact           bool
	Committed       bool
	Broken          bool
	// HasCont marks a LinkSync carrying its continuation.
	HasCont bool

	CompletionCore ids.CoreID
	CompletionReg  RegAddr

	// Reg/Value carry a global-register write or a completion value.
	Reg   RegAddr
	Value uint64
}

// Meta implements sim.Msg.
func (m *LinkMsg) Meta() *sim.MsgMeta { return &m.MsgMeta }

// Clone implements sim.Msg.
func (m *LinkMsg) Clone() sim.Msg {
	c := *m
	c.ID = sim.GetIDGenerator().Generate()
	return &c
}

// DelegateKind is the delegate-plane message variant (spec.md §3's
// Delegate* members).
type DelegateKind int

const (
	// DelegateSetProperty sets a family property (start/limit/step/
	// block size) on a remote core before create.
	DelegateSetProperty DelegateKind = iota
	// DelegateCreate requests an allocate+create on a remote place.
	DelegateCreate
	// DelegateRawRegister writes a raw register on a remote core
	// (completion and sync deliveries).
	DelegateRawRegister
	// DelegateFamilyRegister reads or writes a family's global/shared
	// register remotely.
	DelegateFamilyRegister
	// DelegateSync requests a remote family's sync completion.
	DelegateSync
	// DelegateDetach detaches a remote family.
	DelegateDetach
	// DelegateBreak breaks a remote family.
	DelegateBreak
)

// String names the kind for network traces.
func (k DelegateKind) String() string {
	switch k {
	case DelegateSetProperty:
		return "DelegateSetProperty"
	case DelegateCreate:
		return "DelegateCreate"
	case DelegateRawRegister:
		return "DelegateRawRegister"
	case DelegateFamilyRegister:
		return "DelegateFamilyRegister"
	case DelegateSync:
		return "DelegateSync"
	case DelegateDetach:
		return "DelegateDetach"
	case DelegateBreak:
		return "DelegateBreak"
	default:
		return "Unknown"
	}
}

// FamilyProperty selects which family field a DelegateSetProperty
// writes.
type FamilyProperty int

const (
	// PropStart sets the family's index-range start.
	PropStart FamilyProperty = iota
	// PropLimit sets the index-range limit.
	PropLimit
	// PropStep sets the index-range step.
	PropStep
	// PropBlockSize sets the physical block size.
	PropBlockSize
)

// DelegateMsg is one delegate-plane message.
type DelegateMsg struct {
	sim.MsgMeta

	Kind DelegateKind

	SrcCore ids.CoreID
	DstCore ids.CoreID

	FID        ids.FamilyID
	Capability uint64

	Property FamilyProperty
	Value    uint64

	// Allocation parameters for DelegateCreate.
	PC        uint64
	PlaceSize int
	Exact     bool
	Suspend   bool
	Exclusive bool

	Reg   RegAddr
	Write bool

	CompletionCore ids.CoreID
	CompletionReg  RegAddr
}

// Meta implements sim.Msg.
func (m *DelegateMsg) Meta() *sim.MsgMeta { return &m.MsgMeta }

// Clone implements sim.Msg.
func (m *DelegateMsg) Clone() sim.Msg {
	c := *m
	c.ID = sim.GetIDGenerator().Generate()
	return &c
}
