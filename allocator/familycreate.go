package allocator

import "github.com/sarchlab/mgsim/ids"

// familyCreateState is the per-family-create state enum of spec.md
// §4.1 DoFamilyCreate: "Initial -> LoadRegSpec -> LoadingLine ->
// LineLoaded -> Restricting -> AllocatingRegisters ->
// BroadcastingCreate -> ActivatingFamily -> Notify". Implemented as a
// pure function of (state, inputs, latch); no goroutines (Design Note
// "Coroutine-like state machines").
type familyCreateState int

const (
	fcInitial familyCreateState = iota
	fcLoadRegSpec
	fcLoadingLine
	fcLineLoaded
	fcRestricting
	fcAllocatingRegisters
	fcBroadcastingCreate
	fcActivatingFamily
	fcNotify
	fcDone
)

// createCtx is the latch a family-create state machine carries between
// cycles: everything DoFamilyCreate needs once it starts that is not
// already recorded in the family table.
type createCtx struct {
	state familyCreateState

	fid ids.FamilyID
	pc  uint64

	start, limit, step int64
	numCores           int
	physBlockSize      int
	requester          ids.ThreadID
	completionCore     ids.CoreID
	completionReg      RegAddr
	isFirst            bool

	regWord uint32 // the instruction word preceding pc, decoded in LoadRegSpec
	counts  [ids.NumRegTypes]struct {
		Globals, Shareds, Locals uint8
	}

	regTypeIdx int // which RegType AllocatingRegisters is currently working on
}

// decodeRegSpec splits the 5-bit (globals, shareds, locals) fields for
// one register type out of the preceding instruction word, per
// spec.md §6's packed register-count encoding. Each register type's
// triplet occupies 15 bits of the word, type Integer first.
func decodeRegSpec(word uint32, rt ids.RegType) (globals, shareds, locals uint8) {
	shift := uint(rt) * 15
	globals = uint8((word >> shift) & 0x1F)
	shareds = uint8((word >> (shift + 5)) & 0x1F)
	locals = uint8((word >> (shift + 10)) & 0x1F)
	return
}
