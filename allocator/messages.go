package allocator

import "github.com/sarchlab/mgsim/ids"

// RequestKind distinguishes the three admission-priority queues of
// spec.md §4.1 DoFamilyAllocate.
type RequestKind int

const (
	// KindExclusive requests the single exclusive context.
	KindExclusive RequestKind = iota
	// KindNormal is an ordinary, non-suspending allocation.
	KindNormal
	// KindSuspending allocates a context that will suspend the
	// requesting thread until the child family synchronizes.
	KindSuspending
)

// AllocateRequest is one entry in DoFamilyAllocate's input queues.
type AllocateRequest struct {
	Kind RequestKind

	// PC is the family's entry point, carried through to the
	// eventual CreateRequest once the family-table reservation
	// succeeds (spec.md §4.1 DoFamilyAllocate -> DoFamilyCreate
	// handoff).
	PC uint64
	// Start, Limit, Step describe the family's index range, also
	// carried through to the CreateRequest.
	Start, Limit, Step int64

	// PlaceSize is the number of cores requested (1 for a
	// single-core family).
	PlaceSize int
	// Exact requires PlaceSize cores exactly; otherwise the family
	// may unwind to the largest power-of-two at most PlaceSize.
	Exact bool

	CompletionCore ids.CoreID
	CompletionReg  RegAddr

	// Requester is the thread that issued ALLOCATE, for the eventual
	// Notify step to know who to wake (spec.md §4.1 DoFamilyCreate
	// "Notify").
	Requester ids.ThreadID
}

// LinkAllocate is forwarded along the place's ring during multi-core
// allocation (spec.md §4.1 DoFamilyAllocate/DoAllocResponse).
type LinkAllocate struct {
	FirstFID ids.FamilyID
	PrevFID  ids.FamilyID

	// FirstCore detects the walk wrapping around the whole ring: an
	// allocate arriving back at the place's first core cannot extend
	// further.
	FirstCore ids.CoreID

	RemainingSize int
	// NumAllocated counts the cores that have reserved an entry so
	// far, including the sender.
	NumAllocated int
	Exact        bool

	CompletionCore ids.CoreID
	CompletionReg  RegAddr
}

// LinkSync carries a family's sync token forward along the place
// (spec.md §4.1 dependency state machine: "forward token on link").
type LinkSync struct {
	FID ids.FamilyID

	// The continuation travels with the token so whichever core ends
	// the chain can deliver the completion.
	HasCont bool
	Core    ids.CoreID
	Reg     ids.RegIndex
}

// LinkDetach propagates a detach to the family's entry on the next
// core.
type LinkDetach struct {
	FID ids.FamilyID
}

// LinkBreak propagates a break to the family's entry on the next
// core.
type LinkBreak struct {
	FID ids.FamilyID
}

// LinkGlobalWrite distributes a write of one family global register
// to the family's other cores (spec.md §4.7 link plane).
type LinkGlobalWrite struct {
	FID    ids.FamilyID
	Type   ids.RegType
	Window ids.RegIndex // register index within the family's window
	Value  uint64
}

// LinkCreate is forwarded along the place's ring during
// BroadcastingCreate (spec.md §4.1 DoFamilyCreate).
type LinkCreate struct {
	FirstFID ids.FamilyID
	PC       uint64
	Start, Limit, Step int64
	PhysBlockSize int
	NumCores      int
	Requester     ids.ThreadID
	CompletionCore ids.CoreID
	CompletionReg  RegAddr
}

// CreateRequest starts DoFamilyCreate for a family this core just
// allocated (spec.md §4.1 DoFamilyAllocate -> DoFamilyCreate handoff).
type CreateRequest struct {
	FID                ids.FamilyID
	PC                 uint64
	Start, Limit, Step int64
	NumCores           int
	PhysBlockSize      int
	Requester          ids.ThreadID
	CompletionCore     ids.CoreID
	CompletionReg      RegAddr

	// IsFirst marks the create on the place's first core: the one
	// that restricts the core count, seeds prevSynchronized, and
	// notifies the completion register.
	IsFirst bool
}

// BundleRequest starts DoBundle for an indirect/bundle create (spec.md
// §4.1 DoBundle).
type BundleRequest struct {
	DescriptorAddr uint64
	Requester      ids.ThreadID
}

// RegAddr mirrors pipeline.RegAddr/dcache.RegAddr without importing
// either, so the allocator stays independently testable with fakes.
type RegAddr struct {
	Type  ids.RegType
	Index ids.RegIndex
}
