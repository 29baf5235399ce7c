// Package pipeline implements the six-stage in-order pipeline of
// spec.md §4.2: Fetch, Decode, Read, Execute, Memory, Writeback, with
// a bypass network from Execute/Memory/Writeback back into Read.
package pipeline

import (
	"github.com/sarchlab/mgsim/ids"
	"github.com/sarchlab/mgsim/isa"
)

// RegAddr names one register-file slot.
type RegAddr struct {
	Type  ids.RegType
	Index ids.RegIndex
}

// FetchLatch is Fetch's output: a raw instruction word plus its
// 2-bit control field (spec.md §4.2 Fetch, §6 "Instruction-control
// encoding").
type FetchLatch struct {
	Valid        bool
	Thread       ids.ThreadID
	PC           uint64
	Word         uint32
	WantSwitch   bool
	KillAfter    bool
}

// DecodeLatch is Decode's output: the raw operand word resolved into
// full register-file addresses (spec.md §4.2 Decode).
type DecodeLatch struct {
	Valid      bool
	Thread     ids.ThreadID
	PC         uint64
	Op         isa.Opcode
	Rd         RegAddr
	Rs1        RegAddr
	Rs2        RegAddr
	HasImm     bool
	Imm        int64
	UsesRs1    bool
	WriteRd    bool
	WantSwitch bool
	KillAfter  bool
}

// ReadLatch is Read's output: resolved source values, or a suspend
// signal if a source was not yet available (spec.md §4.2 Read).
type ReadLatch struct {
	Valid      bool
	Thread     ids.ThreadID
	PC         uint64
	Op         isa.Opcode
	Rd         RegAddr
	HasImm     bool
	Imm        int64
	UsesRs1    bool
	WriteRd    bool
	Rs1Val     uint64
	Rs2Val     uint64
	Suspended  bool // SUSPEND_MISSING_DATA
	WantSwitch bool
	KillAfter  bool
}

// ExecuteLatch is Execute's output.
type ExecuteLatch struct {
	Valid      bool
	Thread     ids.ThreadID
	PC         uint64
	Op         isa.Opcode
	Rd         RegAddr
	WriteRd    bool
	Value      uint64
	Branch     bool
	TargetPC   uint64
	EffAddr    uint64
	Remote     *isa.RemoteMessage
	Suspended  bool
	WantSwitch bool
	KillAfter  bool
}

// MemoryLatch is Memory's output, ready for Writeback.
type MemoryLatch struct {
	Valid      bool
	Thread     ids.ThreadID
	PC         uint64
	Op         isa.Opcode
	Rd         RegAddr
	WriteRd    bool
	Value      uint64
	Pending    bool // load missed; Rd becomes Pending rather than Full
	IsStore    bool
	Remote     *isa.RemoteMessage
	Branch     bool
	TargetPC   uint64
	Suspended  bool
	WantSwitch bool
	KillAfter  bool
}
