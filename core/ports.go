package core

import (
	"log/slog"

	"github.com/sarchlab/mgsim/allocator"
	"github.com/sarchlab/mgsim/ids"
	"github.com/sarchlab/mgsim/netplane"
)

// send pushes onto the link plane, shouting if the plane's buffer
// overflows (the planes are sized so this cannot happen in a correct
// configuration).
func (p linkPort) send(forward bool, m *netplane.LinkMsg) {
	ok := false
	if forward {
		ok = p.c.links.SendForward(p.c.id, m)
	} else {
		ok = p.c.links.SendBackward(p.c.id, m)
	}
	if !ok {
		slog.Warn("link plane overflow, message dropped",
			"core", p.c.Name(), "kind", m.Kind.String())
	}
}

// linkPort implements allocator.LinkPort over the grid's two message
// planes: ring traffic on the link plane, completion deliveries on
// the delegate plane (spec.md §4.7).
type linkPort struct{ c *Core }

func (p linkPort) SendAllocate(msg allocator.LinkAllocate) {
	p.send(true, &netplane.LinkMsg{
		Kind:           netplane.LinkAllocate,
		FirstFID:       msg.FirstFID,
		PrevFID:        msg.PrevFID,
		FirstCore:      msg.FirstCore,
		RemainingSize:  msg.RemainingSize,
		NumAllocated:   msg.NumAllocated,
		Exact:          msg.Exact,
		CompletionCore: msg.CompletionCore,
		CompletionReg:  regAddrOut(msg.CompletionReg),
	})
}

func (p linkPort) SendCreate(msg allocator.LinkCreate) {
	p.send(true, &netplane.LinkMsg{
		Kind:           netplane.LinkCreate,
		FirstFID:       msg.FirstFID,
		PC:             msg.PC,
		Start:          msg.Start,
		Limit:          msg.Limit,
		Step:           msg.Step,
		PhysBlockSize:  msg.PhysBlockSize,
		NumCores:       msg.NumCores,
		CompletionCore: msg.CompletionCore,
		CompletionReg:  regAddrOut(msg.CompletionReg),
	})
}

func (p linkPort) SendResponse(msg allocator.AllocResponse) {
	p.send(false, &netplane.LinkMsg{
		Kind:            netplane.LinkAllocResponse,
		FID:             msg.FID,
		NextFID:         msg.NextFID,
		Committed:       msg.Committed,
		NumCores:        msg.NumCores,
		UnwindRemaining: msg.UnwindRemaining,
		CompletionCore:  msg.CompletionCore,
		CompletionReg:   regAddrOut(msg.CompletionReg),
	})
}

func (p linkPort) SendSync(msg allocator.LinkSync) {
	p.send(true, &netplane.LinkMsg{
		Kind:           netplane.LinkSync,
		FID:            msg.FID,
		HasCont:        msg.HasCont,
		CompletionCore: msg.Core,
		CompletionReg:  netplane.RegAddr{Type: ids.Integer, Index: msg.Reg},
	})
}

func (p linkPort) SendDetach(msg allocator.LinkDetach) {
	p.send(true, &netplane.LinkMsg{
		Kind: netplane.LinkDetach,
		FID:  msg.FID,
	})
}

func (p linkPort) SendBreak(msg allocator.LinkBreak) {
	p.send(true, &netplane.LinkMsg{
		Kind: netplane.LinkBreak,
		FID:  msg.FID,
	})
}

func (p linkPort) SendGlobalWrite(msg allocator.LinkGlobalWrite) {
	p.send(true, &netplane.LinkMsg{
		Kind:  netplane.LinkGlobalWrite,
		FID:   msg.FID,
		Reg:   netplane.RegAddr{Type: msg.Type, Index: msg.Window},
		Value: msg.Value,
	})
}

func (p linkPort) Notify(core ids.CoreID, reg allocator.RegAddr, value uint64) {
	ok := p.c.delegates.Send(p.c.id, core, &netplane.DelegateMsg{
		Kind:  netplane.DelegateRawRegister,
		Reg:   regAddrOut(reg),
		Value: value,
	})
	if !ok {
		slog.Warn("delegate plane overflow, notify dropped",
			"core", p.c.Name(), "dst", uint32(core))
	}
}
