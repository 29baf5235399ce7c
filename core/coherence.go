package core

import (
	"log/slog"

	"github.com/sarchlab/mgsim/coma"
	"github.com/sarchlab/mgsim/dcache"
	"github.com/sarchlab/mgsim/sim2"
)

// The core is the "Below" leaf of its cluster's coherence ring
// (spec.md §4.5): cache misses inject Acquire messages, evictions and
// write-backs inject Disseminations, and satisfied requests coming
// back around the ring complete the waiting cache line.

// iCoherence and dCoherence bind each cache's miss traffic to the
// core's ring stop, remembering which cache owns each outstanding
// line.
type iCoherence struct{ c *Core }

func (i iCoherence) RequestFill(addr uint64, forWrite bool) uint64 {
	if i.c.requestFill(addr, forWrite) {
		i.c.pendingIFills[addr/coma.LineBytes] = true
	}
	return 0
}

type dCoherence struct{ c *Core }

func (d dCoherence) RequestFill(addr uint64, forWrite bool) uint64 {
	if d.c.requestFill(addr, forWrite) {
		d.c.pendingDFills[addr/coma.LineBytes] = true
	}
	return 0
}

func (d dCoherence) RequestWriteBack(addr uint64, data [dcache.LineBytes]byte) {
	d.c.RequestWriteBack(addr, data)
}

// requestFill injects an Acquire for a missing line; write misses ask
// for the full token set.
func (c *Core) requestFill(addr uint64, forWrite bool) bool {
	tag := addr / coma.LineBytes
	lineAddr := tag * coma.LineBytes
	if c.pendingDFills[tag] || c.pendingIFills[tag] {
		return false
	}

	wanted := 1
	kind := coma.AcquireTokenData
	if forWrite {
		wanted = c.totalTokens
		kind = coma.AcquireToken
	}
	m := coma.MsgBuilder{}.
		WithKind(kind).
		WithAddr(lineAddr).
		WithSource(c.nodeID).
		WithTokensRequested(wanted).
		Build()
	if !c.node.Inject(m) {
		slog.Warn("coherence injection stalled", "core", c.Name(), "addr", lineAddr)
		return false
	}
	return true
}

// RequestWriteBack implements dcache.Coherence: the line's data and
// every token this core holds for it return to the ring.
func (c *Core) RequestWriteBack(addr uint64, data [dcache.LineBytes]byte) {
	tag := addr / coma.LineBytes
	m := coma.MsgBuilder{}.
		WithKind(coma.DisseminateTokenData).
		WithAddr(tag * coma.LineBytes).
		WithSource(c.nodeID).
		WithTokens(c.lineTokens[tag]).
		WithData(data[:]).
		WithDirty(true).
		Build()
	delete(c.lineTokens, tag)
	if !c.node.Inject(m) {
		slog.Warn("write-back injection stalled", "core", c.Name(), "addr", addr)
	}
}

// Wants implements ring.Client: the core consumes messages it sourced
// that come back satisfied.
func (c *Core) Wants(m *coma.Msg) bool {
	if m.Source != c.nodeID {
		return false
	}
	tag := m.Addr / coma.LineBytes
	return c.pendingIFills[tag] || c.pendingDFills[tag]
}

// Receive implements ring.Client: a returning fill completes the
// waiting cache line and credits the tokens it carried.
func (c *Core) Receive(buf *sim2.CommitBuffer, m *coma.Msg) {
	tag := m.Addr / coma.LineBytes

	if m.Tokens > 0 {
		buf.Stage(func() { c.lineTokens[tag] += m.Tokens })
	}

	if c.pendingIFills[tag] {
		buf.Stage(func() { delete(c.pendingIFills, tag) })
		if set, way, ok := c.ICache.LineFor(m.Addr); ok {
			words := make([]uint32, coma.LineBytes/4)
			for i := range words {
				words[i] = uint32(m.Data[i*4]) |
					uint32(m.Data[i*4+1])<<8 |
					uint32(m.Data[i*4+2])<<16 |
					uint32(m.Data[i*4+3])<<24
			}
			c.ICache.CompleteFill(buf, set, way, words, words[0], m.Addr)
		}
		return
	}

	buf.Stage(func() { delete(c.pendingDFills, tag) })
	if set, way, ok := c.DCache.LineFor(m.Addr); ok {
		for c.DCache.Loading(set, way) {
			c.DCache.CompletedReads(buf, set, way, m.Data)
		}
	}
}
