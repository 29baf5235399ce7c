// Package isa implements the pluggable instruction dispatch table
// (spec.md §1 "the ISA semantics are a pluggable table", Design Note
// "ISA plug-in"). Target-specific decoders (MT-Alpha/MT-SPARC/MIPS/
// OR1K) are out of scope; this package only fixes the shape a decoder
// plugs into and ships the handful of opcodes the allocator/pipeline
// contract itself depends on (register ALU ops, loads/stores, control
// flow, and the family-control pseudo-ops translated into remote
// messages).
package isa

import "github.com/sarchlab/mgsim/ids"

// Opcode identifies one dispatch-table entry. The numeric values are
// private to a given Table; nothing in this module assumes a specific
// encoding.
type Opcode uint8

// Family-control pseudo-ops: translated by Execute into a RemoteMessage
// on the output latch rather than producing a register result
// (spec.md §4.2 Execute stage: "create, sync, detach, break, allocate,
// put/get global, put/get shared ... are translated into a
// RemoteMessage").
const (
	OpNop Opcode = iota
	OpAdd
	OpSub
	OpAnd
	OpOr
	OpXor
	OpMove
	OpBranchEqual
	OpBranchNotEqual
	OpJump
	OpLoadWord
	OpStoreWord
	OpAllocate
	OpCreate
	OpSync
	OpDetach
	OpBreak
	OpPutGlobal
	OpGetGlobal
	OpPutShared
	OpGetShared
)

// Operands is the decoded, ISA-neutral operand set a Decode function
// produces. Not every field is meaningful for every opcode.
type Operands struct {
	Op       Opcode
	RegType  ids.RegType
	Rd       ids.RegIndex
	Rs1      ids.RegIndex
	Rs2      ids.RegIndex
	HasImm   bool
	Imm      int64
	UsesMem  bool
	MemBytes int
	Signed   bool
}

// RemoteMessageKind distinguishes the family-control pseudo-ops for the
// Allocator's remote-message translation (spec.md §4.2).
type RemoteMessageKind int

const (
	RemoteNone RemoteMessageKind = iota
	RemoteAllocate
	RemoteCreate
	RemoteSync
	RemoteDetach
	RemoteBreak
	RemotePutGlobal
	RemoteGetGlobal
	RemotePutShared
	RemoteGetShared
)

// RemoteKind reports which pseudo-op, if any, this opcode translates
// into on the Execute stage's output latch.
func (o Opcode) RemoteKind() RemoteMessageKind {
	switch o {
	case OpAllocate:
		return RemoteAllocate
	case OpCreate:
		return RemoteCreate
	case OpSync:
		return RemoteSync
	case OpDetach:
		return RemoteDetach
	case OpBreak:
		return RemoteBreak
	case OpPutGlobal:
		return RemotePutGlobal
	case OpGetGlobal:
		return RemoteGetGlobal
	case OpPutShared:
		return RemotePutShared
	case OpGetShared:
		return RemoteGetShared
	default:
		return RemoteNone
	}
}

// ReadsRs1 reports whether the opcode consumes its first source
// operand; Read skips registers an instruction never uses so an
// untouched register cannot fake a data dependency.
func (o Opcode) ReadsRs1() bool {
	switch o {
	case OpNop, OpMove, OpJump:
		return false
	default:
		return true
	}
}

// IsMemoryOp reports whether this opcode computes an effective address
// and issues a D-Cache request (spec.md §4.2 Execute: "Memory ops
// compute effective address").
func (o Opcode) IsMemoryOp() bool {
	return o == OpLoadWord || o == OpStoreWord
}

// IsControlFlow reports whether this opcode may redirect the program
// counter.
func (o Opcode) IsControlFlow() bool {
	return o == OpBranchEqual || o == OpBranchNotEqual || o == OpJump
}
