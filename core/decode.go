package core

import (
	"github.com/sarchlab/mgsim/ids"
	"github.com/sarchlab/mgsim/isa"
	"github.com/sarchlab/mgsim/pipeline"
	"github.com/sarchlab/mgsim/sim2"
)

// defaultDecoder is the built-in instruction-word layout used when no
// target decoder is plugged in: opcode in the top 6 bits, then three
// 5-bit window fields, an immediate-select bit, and a 15-bit signed
// immediate overlapping rs2.
//
//	[31:26] opcode  [25:21] rd  [20:16] rs1  [15] hasImm
//	[14:0] imm (signed)  /  [14:10] rs2
type defaultDecoder struct{}

func (defaultDecoder) Decode(word uint32) (isa.Operands, error) {
	ops := isa.Operands{
		Op:      isa.Opcode(word >> 26),
		RegType: ids.Integer,
		Rd:      ids.RegIndex(word >> 21 & 0x1F),
		Rs1:     ids.RegIndex(word >> 16 & 0x1F),
	}
	if word>>15&1 != 0 {
		ops.HasImm = true
		imm := int64(word & 0x7FFF)
		if imm&0x4000 != 0 {
			imm -= 0x8000
		}
		ops.Imm = imm
	} else {
		ops.Rs2 = ids.RegIndex(word >> 10 & 0x1F)
	}
	return ops, nil
}

// windowResolver maps a thread's 5-bit register-window fields onto
// the Register File through the family's RegInfo and the thread's
// bases (spec.md §4.2 Decode): globals first, then shareds, locals,
// and dependents; the last window index reads as zero.
type windowResolver struct{ c *Core }

func (r *windowResolver) Resolve(thread ids.ThreadID, rt ids.RegType, window uint8) (pipeline.RegAddr, ids.RegClass, error) {
	th := r.c.Threads.Get(thread)
	if th.Family == ids.InvalidFamily {
		return pipeline.RegAddr{}, ids.ClassZero,
			sim2.NewFault(sim2.IllegalInstruction, r.c.Name(), r.c.sched.Cycle(),
				"register access outside any family window")
	}
	f := r.c.Families.Get(th.Family)
	counts := f.Regs[rt].Counts
	g, s, l := uint8(counts.Globals), uint8(counts.Shareds), uint8(counts.Locals)

	switch {
	case window < g:
		return pipeline.RegAddr{Type: rt, Index: f.Regs[rt].Base + ids.RegIndex(window)}, ids.ClassGlobal, nil
	case window < g+s:
		return pipeline.RegAddr{Type: rt, Index: th.Bases[rt].Shared + ids.RegIndex(window-g)}, ids.ClassShared, nil
	case window < g+s+l:
		return pipeline.RegAddr{Type: rt, Index: th.Bases[rt].Local + ids.RegIndex(window-g-s)}, ids.ClassLocal, nil
	case window < g+2*s+l:
		return pipeline.RegAddr{Type: rt, Index: th.Bases[rt].Dependent + ids.RegIndex(window-g-s-l)}, ids.ClassDependent, nil
	case window == 31:
		// Read-as-zero; the zero slot of the family's region serves.
		return pipeline.RegAddr{Type: rt, Index: f.Regs[rt].Base}, ids.ClassZero, nil
	default:
		return pipeline.RegAddr{}, ids.ClassZero,
			sim2.NewFault(sim2.IllegalInstruction, r.c.Name(), r.c.sched.Cycle(),
				"operand overflows its register class")
	}
}
