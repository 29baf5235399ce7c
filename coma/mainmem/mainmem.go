// Package mainmem adapts akita's ideal memory controller into the
// Root Directory's off-chip backing store (spec.md §2 "Main Memory"):
// fills and write-backs become mem.ReadReq/mem.WriteReq traffic, and
// completions are delivered back to the root's commit phase.
package mainmem

import (
	"log/slog"

	"github.com/sarchlab/akita/v4/mem/mem"
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/mgsim/coma"
	"github.com/sarchlab/mgsim/sim2"
)

// Listener receives completed memory operations; the Root Directory
// implements it.
type Listener interface {
	OnFillComplete(buf *sim2.CommitBuffer, addr uint64, data [coma.LineBytes]byte)
	OnWriteBackComplete(buf *sim2.CommitBuffer, addr uint64)
}

// Comp bridges the coherence substrate and an idealmemcontroller.
type Comp struct {
	*sim.TickingComponent

	port     sim.Port
	memory   sim.RemotePort
	listener Listener

	pendingReads  map[string]uint64
	pendingWrites map[string]uint64
}

// SetListener attaches the root directory fed by this memory.
func (c *Comp) SetListener(l Listener) { c.listener = l }

// Port returns the component's memory-side port, for wiring.
func (c *Comp) Port() sim.Port { return c.port }

// StartFill implements rootdir.Memory: begin a line read.
func (c *Comp) StartFill(addr uint64) bool {
	req := mem.ReadReqBuilder{}.
		WithSrc(c.port.AsRemote()).
		WithDst(c.memory).
		WithAddress(addr).
		WithByteSize(coma.LineBytes).
		Build()
	if err := c.port.Send(req); err != nil {
		return false
	}
	c.pendingReads[req.Meta().ID] = addr
	return true
}

// StartWriteBack implements rootdir.Memory: begin a line write.
func (c *Comp) StartWriteBack(addr uint64, data [coma.LineBytes]byte) bool {
	req := mem.WriteReqBuilder{}.
		WithSrc(c.port.AsRemote()).
		WithDst(c.memory).
		WithAddress(addr).
		WithData(data[:]).
		Build()
	if err := c.port.Send(req); err != nil {
		return false
	}
	c.pendingWrites[req.Meta().ID] = addr
	return true
}

// Tick drains completed memory responses back into the root.
func (c *Comp) Tick() bool {
	msg := c.port.PeekIncoming()
	if msg == nil {
		return false
	}

	var buf sim2.CommitBuffer
	switch rsp := msg.(type) {
	case *mem.DataReadyRsp:
		addr, ok := c.pendingReads[rsp.RespondTo]
		if !ok {
			slog.Warn("data-ready for unknown request", "comp", c.Name(), "id", rsp.RespondTo)
			break
		}
		delete(c.pendingReads, rsp.RespondTo)
		var data [coma.LineBytes]byte
		copy(data[:], rsp.Data)
		c.listener.OnFillComplete(&buf, addr, data)
	case *mem.WriteDoneRsp:
		addr, ok := c.pendingWrites[rsp.RespondTo]
		if !ok {
			slog.Warn("write-done for unknown request", "comp", c.Name(), "id", rsp.RespondTo)
			break
		}
		delete(c.pendingWrites, rsp.RespondTo)
		c.listener.OnWriteBackComplete(&buf, addr)
	}
	buf.Commit()

	c.port.RetrieveIncoming()
	return true
}

// Builder builds mainmem components the way the rest of the platform
// is built.
type Builder struct {
	engine sim.Engine
	freq   sim.Freq
	memory sim.RemotePort
}

// MakeBuilder creates a builder with default frequency.
func MakeBuilder() Builder {
	return Builder{freq: 1 * sim.GHz}
}

// WithEngine sets the engine that drives the component.
func (b Builder) WithEngine(engine sim.Engine) Builder {
	b.engine = engine
	return b
}

// WithFreq sets the component's frequency.
func (b Builder) WithFreq(freq sim.Freq) Builder {
	b.freq = freq
	return b
}

// WithMemory sets the memory controller's port to talk to.
func (b Builder) WithMemory(memory sim.RemotePort) Builder {
	b.memory = memory
	return b
}

// Build creates the component.
func (b Builder) Build(name string) *Comp {
	c := &Comp{
		memory:        b.memory,
		pendingReads:  make(map[string]uint64),
		pendingWrites: make(map[string]uint64),
	}
	c.TickingComponent = sim.NewTickingComponent(name, b.engine, b.freq, c)
	c.port = sim.NewPort(c, 4, 4, name+".Port")
	c.AddPort("Port", c.port)
	return c
}
