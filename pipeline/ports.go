package pipeline

import (
	"github.com/sarchlab/mgsim/ids"
	"github.com/sarchlab/mgsim/isa"
)

// ICache is the Fetch stage's dependency on instruction storage.
// Target-specific decode stays outside this module's scope (spec.md
// §1); Fetch only needs the raw word, the line's control bits for this
// instruction, and whether the read hit.
type ICache interface {
	Fetch(thread ids.ThreadID, pc uint64) (word uint32, wantSwitch, killAfter, hit bool)
}

// DCache is the Memory stage's dependency on data storage (spec.md
// §4.2 Memory, §4.3).
type DCache interface {
	// Read returns (value, hit). On a miss the cache itself registers
	// dest as the fill's wake-up target; Memory only needs to know
	// whether to emit Pending or Full.
	Read(thread ids.ThreadID, addr uint64, size int, dest RegAddr, signed bool) (value uint64, hit bool)
	// Write returns hit; a miss still allocates and counts as a
	// pending write against the thread (spec.md §4.2 Memory: "Stores
	// set the writeback register to Invalid and increment the
	// thread's pending-writes counter").
	Write(thread ids.ThreadID, addr uint64, size int, value uint64) (hit bool)
}

// Decoder turns a raw instruction word into ISA-neutral operands (the
// 5-bit register fields are still relative to the thread's window;
// RegisterResolver below turns them into full register-file
// addresses). Target-specific decoders plug in here.
type Decoder interface {
	Decode(word uint32) (isa.Operands, error)
}

// RegisterResolver resolves a thread's 5-bit register-window fields
// into full register-file addresses (spec.md §4.2 Decode: "translates
// 5-bit register fields into full register-file indices using the
// family's register base and the thread's local/shared/dependent
// bases... Register classes are resolved by an ISA-specific partition
// of the 32-register window into {globals, locals, shareds,
// dependents, read-as-zero}").
type RegisterResolver interface {
	Resolve(thread ids.ThreadID, regType ids.RegType, window uint8) (RegAddr, ids.RegClass, error)
}

// ExecUnit runs one opcode's Execute-stage behavior; satisfied by
// isa.Table.
type ExecUnit interface {
	Lookup(op isa.Opcode) (isa.Entry, bool)
}
