package pipeline

import (
	"github.com/sarchlab/mgsim/ids"
	"github.com/sarchlab/mgsim/isa"
	"github.com/sarchlab/mgsim/regfile"
	"github.com/sarchlab/mgsim/sim2"
	"github.com/sarchlab/mgsim/threadtable"
)

// Fetch implements spec.md §4.2 stage 1.
func (p *Pipeline) Fetch(buf *sim2.CommitBuffer) sim2.Result {
	tid := p.current
	if tid == ids.InvalidThread {
		p.fetch.Set(FetchLatch{})
		buf.Stage(p.fetch.Commit)
		return sim2.Success
	}

	th := p.threads.Get(tid)
	word, wantSwitch, killAfter, hit := p.icache.Fetch(tid, th.PC)
	if !hit {
		// The activator already guaranteed the line's residency; a
		// miss here can only be a first-word race with invalidation.
		return sim2.Delayed
	}

	out := FetchLatch{Valid: true, Thread: tid, PC: th.PC, Word: word, WantSwitch: wantSwitch, KillAfter: killAfter}
	p.fetch.Set(out)
	buf.Stage(p.fetch.Commit)
	// One instruction in flight per thread: the owning core re-issues
	// the thread once this instruction clears Writeback.
	p.current = ids.InvalidThread
	return sim2.Success
}

// Decode implements spec.md §4.2 stage 2.
func (p *Pipeline) Decode(buf *sim2.CommitBuffer) sim2.Result {
	in := p.fetch.Get()
	if !in.Valid {
		p.decode.Set(DecodeLatch{})
		buf.Stage(p.decode.Commit)
		return sim2.Success
	}

	ops, err := p.decoder.Decode(in.Word)
	if err != nil {
		return sim2.Failed
	}

	rd, _, err := p.resolver.Resolve(in.Thread, ops.RegType, uint8(ops.Rd))
	if err != nil {
		return sim2.Failed
	}
	var rs1 RegAddr
	if ops.Op.ReadsRs1() {
		rs1, _, err = p.resolver.Resolve(in.Thread, ops.RegType, uint8(ops.Rs1))
		if err != nil {
			return sim2.Failed
		}
	}
	var rs2 RegAddr
	if !ops.HasImm {
		rs2, _, err = p.resolver.Resolve(in.Thread, ops.RegType, uint8(ops.Rs2))
		if err != nil {
			return sim2.Failed
		}
	}

	out := DecodeLatch{
		Valid: true, Thread: in.Thread, PC: in.PC, Op: ops.Op,
		Rd: rd, Rs1: rs1, Rs2: rs2, HasImm: ops.HasImm, Imm: ops.Imm,
		UsesRs1:    ops.Op.ReadsRs1(),
		WriteRd:    !ops.Op.IsMemoryOp() && !ops.Op.IsControlFlow() && ops.Op.RemoteKind() == isa.RemoteNone,
		WantSwitch: in.WantSwitch, KillAfter: in.KillAfter,
	}
	p.decode.Set(out)
	buf.Stage(p.decode.Commit)
	return sim2.Success
}

// Read implements spec.md §4.2 stage 3, including bypass forwarding
// and the CAS-style Empty->Waiting wait-list append.
func (p *Pipeline) Read(buf *sim2.CommitBuffer) sim2.Result {
	in := p.decode.Get()
	if !in.Valid {
		p.read.Set(ReadLatch{})
		buf.Stage(p.read.Commit)
		return sim2.Success
	}

	var rs1Val, rs2Val uint64
	ok1, ok2 := true, true
	if in.UsesRs1 {
		rs1Val, ok1 = p.readOperand(buf, in.Thread, in.Rs1)
	}
	if !in.HasImm {
		rs2Val, ok2 = p.readOperand(buf, in.Thread, in.Rs2)
	}

	out := ReadLatch{
		Valid: true, Thread: in.Thread, PC: in.PC, Op: in.Op, Rd: in.Rd,
		HasImm: in.HasImm, Imm: in.Imm, WriteRd: in.WriteRd,
		Rs1Val: rs1Val, Rs2Val: rs2Val,
		WantSwitch: in.WantSwitch, KillAfter: in.KillAfter,
	}
	if !ok1 || !ok2 {
		out.Suspended = true
	}
	p.read.Set(out)
	buf.Stage(p.read.Commit)
	return sim2.Success
}

func (p *Pipeline) readOperand(buf *sim2.CommitBuffer, tid ids.ThreadID, addr RegAddr) (uint64, bool) {
	if v, ok := p.bypass[addr]; ok {
		return v, true
	}
	reg := p.regs[addr.Type].Read(addr.Type, addr.Index)
	if reg.State == regfile.Full {
		return reg.Value, true
	}
	p.regs[addr.Type].StageAppendWaiter(buf, threadLinker{p.threads}, addr.Type, addr.Index, tid)
	return 0, false
}

// threadLinker adapts *threadtable.Table to regfile.ThreadLinker.
type threadLinker struct{ t *threadtable.Table }

func (l threadLinker) Next(tid ids.ThreadID) ids.ThreadID { return l.t.Next(tid) }
func (l threadLinker) StageSetNext(buf *sim2.CommitBuffer, tid, next ids.ThreadID) {
	l.t.StageSetNext(buf, tid, next)
}
func (l threadLinker) StageWake(buf *sim2.CommitBuffer, tid ids.ThreadID) {
	l.t.StageWake(buf, tid)
}

// Execute implements spec.md §4.2 stage 4. Its Rd/value output is
// written directly into the bypass map (not staged) so Read can
// forward it within the same cycle; Execute must therefore run before
// Read in the owning core's process registration order.
func (p *Pipeline) Execute(buf *sim2.CommitBuffer) sim2.Result {
	in := p.read.Get()
	if !in.Valid {
		p.execute.Set(ExecuteLatch{})
		buf.Stage(p.execute.Commit)
		return sim2.Success
	}
	if in.Suspended {
		// SUSPEND_MISSING_DATA travels to the Writeback latch so the
		// owning core parks the thread (spec.md §4.2 Read).
		p.execute.Set(ExecuteLatch{Valid: true, Thread: in.Thread, PC: in.PC, Suspended: true})
		buf.Stage(p.execute.Commit)
		return sim2.Success
	}

	entry, ok := p.exec.Lookup(in.Op)
	if !ok {
		return sim2.Failed
	}
	res, err := entry.Execute(isa.ExecInput{
		Operands: isa.Operands{Op: in.Op, HasImm: in.HasImm, Imm: in.Imm},
		PC:       in.PC,
		Rs1Val:   in.Rs1Val,
		Rs2Val:   in.Rs2Val,
	})
	if err != nil {
		return sim2.Failed
	}

	out := ExecuteLatch{
		Valid: true, Thread: in.Thread, PC: in.PC, Op: in.Op, Rd: in.Rd,
		WriteRd: res.WriteRd, Value: res.Value, Branch: res.Branch,
		TargetPC: res.TargetPC, EffAddr: res.EffAddr, Remote: res.Remote,
		WantSwitch: in.WantSwitch, KillAfter: in.KillAfter,
	}
	if res.WriteRd {
		p.bypass[in.Rd] = res.Value
	}
	p.execute.Set(out)
	buf.Stage(p.execute.Commit)
	return sim2.Success
}

// Memory implements spec.md §4.2 stage 5.
func (p *Pipeline) Memory(buf *sim2.CommitBuffer) sim2.Result {
	in := p.execute.Get()
	if !in.Valid {
		p.memory.Set(MemoryLatch{})
		buf.Stage(p.memory.Commit)
		return sim2.Success
	}

	out := MemoryLatch{
		Valid: true, Thread: in.Thread, PC: in.PC, Op: in.Op, Rd: in.Rd,
		WriteRd: in.WriteRd, Value: in.Value, Remote: in.Remote,
		Branch: in.Branch, TargetPC: in.TargetPC,
		Suspended: in.Suspended, WantSwitch: in.WantSwitch, KillAfter: in.KillAfter,
	}
	if in.Suspended {
		out.WriteRd = false
		p.memory.Set(out)
		buf.Stage(p.memory.Commit)
		return sim2.Success
	}

	if in.Op.IsMemoryOp() {
		if in.Op == isa.OpStoreWord {
			p.dcache.Write(in.Thread, in.EffAddr, 4, in.Value)
			out.IsStore = true
			out.WriteRd = false
		} else {
			val, hit := p.dcache.Read(in.Thread, in.EffAddr, 4, in.Rd, true)
			out.WriteRd = true
			out.Value = val
			out.Pending = !hit
			if out.Pending {
				p.regs[in.Rd.Type].StageStartMiss(buf, in.Rd.Type, in.Rd.Index, regfile.PendingRequest{})
			}
		}
	}

	if out.WriteRd && !out.Pending {
		p.bypass[in.Rd] = out.Value
	}
	p.memory.Set(out)
	buf.Stage(p.memory.Commit)
	return sim2.Success
}

// Writeback implements spec.md §4.2 stage 6.
func (p *Pipeline) Writeback(buf *sim2.CommitBuffer) sim2.Result {
	in := p.memory.Get()
	if !in.Valid {
		p.writeback.Set(WritebackLatch{})
		buf.Stage(p.writeback.Commit)
		return sim2.Success
	}

	if in.WriteRd && !in.Pending && !in.Suspended {
		p.regs[in.Rd.Type].StageWriteFull(buf, threadLinker{p.threads}, in.Rd.Type, in.Rd.Index, in.Value)
		p.bypass[in.Rd] = in.Value
	}

	nextPC := in.PC + 4
	if in.Branch {
		nextPC = in.TargetPC
	}
	out := WritebackLatch{
		Valid: true, Thread: in.Thread, Rd: in.Rd,
		WroteRd: in.WriteRd && !in.Pending && !in.Suspended,
		Remote:  in.Remote,
		NextPC:  nextPC, Pending: in.Pending,
		Suspended: in.Suspended, WantSwitch: in.WantSwitch, KillAfter: in.KillAfter,
	}
	p.writeback.Set(out)
	buf.Stage(p.writeback.Commit)
	return sim2.Success
}
