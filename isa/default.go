package isa

// NewDefault builds the built-in opcode table: the integer ALU ops,
// loads/stores, control flow, and the family-control pseudo-ops every
// MGSim target ISA shares, regardless of its own arithmetic/decode
// front-end (spec.md §1: target decoders are out of scope, but the
// allocator-facing opcodes are not).
func NewDefault() *Table {
	t := NewTable("Default Microgrid ISA")

	t.Register(OpNop, "nop", func(in ExecInput) (ExecOutput, error) {
		return ExecOutput{}, nil
	})
	t.Register(OpAdd, "add", func(in ExecInput) (ExecOutput, error) {
		return ExecOutput{WriteRd: true, Value: in.Rs1Val + rhs(in)}, nil
	})
	t.Register(OpSub, "sub", func(in ExecInput) (ExecOutput, error) {
		return ExecOutput{WriteRd: true, Value: in.Rs1Val - rhs(in)}, nil
	})
	t.Register(OpAnd, "and", func(in ExecInput) (ExecOutput, error) {
		return ExecOutput{WriteRd: true, Value: in.Rs1Val & rhs(in)}, nil
	})
	t.Register(OpOr, "or", func(in ExecInput) (ExecOutput, error) {
		return ExecOutput{WriteRd: true, Value: in.Rs1Val | rhs(in)}, nil
	})
	t.Register(OpXor, "xor", func(in ExecInput) (ExecOutput, error) {
		return ExecOutput{WriteRd: true, Value: in.Rs1Val ^ rhs(in)}, nil
	})
	t.Register(OpMove, "move", func(in ExecInput) (ExecOutput, error) {
		return ExecOutput{WriteRd: true, Value: rhs(in)}, nil
	})

	t.Register(OpBranchEqual, "beq", func(in ExecInput) (ExecOutput, error) {
		if in.Rs1Val == in.Rs2Val {
			return ExecOutput{Branch: true, TargetPC: uint64(int64(in.PC) + in.Operands.Imm)}, nil
		}
		return ExecOutput{}, nil
	})
	t.Register(OpBranchNotEqual, "bne", func(in ExecInput) (ExecOutput, error) {
		if in.Rs1Val != in.Rs2Val {
			return ExecOutput{Branch: true, TargetPC: uint64(int64(in.PC) + in.Operands.Imm)}, nil
		}
		return ExecOutput{}, nil
	})
	t.Register(OpJump, "jmp", func(in ExecInput) (ExecOutput, error) {
		return ExecOutput{Branch: true, TargetPC: uint64(int64(in.PC) + in.Operands.Imm)}, nil
	})

	t.Register(OpLoadWord, "ldw", func(in ExecInput) (ExecOutput, error) {
		return ExecOutput{EffAddr: uint64(int64(in.Rs1Val) + in.Operands.Imm)}, nil
	})
	t.Register(OpStoreWord, "stw", func(in ExecInput) (ExecOutput, error) {
		// stw rs2, [rs1]: the store data rides in the second source.
		return ExecOutput{EffAddr: uint64(int64(in.Rs1Val) + in.Operands.Imm), Value: in.Rs2Val}, nil
	})

	registerRemote := func(op Opcode, mnemonic string, kind RemoteMessageKind) {
		t.Register(op, mnemonic, func(in ExecInput) (ExecOutput, error) {
			return ExecOutput{Remote: &RemoteMessage{Kind: kind, Payload: in.Rs1Val}}, nil
		})
	}
	registerRemote(OpAllocate, "allocate", RemoteAllocate)
	registerRemote(OpCreate, "create", RemoteCreate)
	registerRemote(OpSync, "sync", RemoteSync)
	registerRemote(OpDetach, "detach", RemoteDetach)
	registerRemote(OpBreak, "break", RemoteBreak)
	registerRemote(OpPutGlobal, "putg", RemotePutGlobal)
	registerRemote(OpGetGlobal, "getg", RemoteGetGlobal)
	registerRemote(OpPutShared, "puts", RemotePutShared)
	registerRemote(OpGetShared, "gets", RemoteGetShared)

	return t
}

func rhs(in ExecInput) uint64 {
	if in.Operands.HasImm {
		return uint64(in.Operands.Imm)
	}
	return in.Rs2Val
}
