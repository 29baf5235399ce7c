// Package coma defines the message vocabulary of the token-based
// cache-coherence protocol (spec.md §3 "Coherence message", §4.5,
// §4.6): the tagged message variant carried around the local and
// global rings, with the token, transient, and priority fields every
// implementation must transport faithfully.
package coma

import "github.com/sarchlab/akita/v4/sim"

// LineBytes is the coherence line size, matching the D-Cache's.
const LineBytes = 64

// NodeID identifies one ring node (a cache, a directory side, or the
// root) within the coherence substrate.
type NodeID int

// InvalidNode marks the absence of a node, e.g. a message not yet
// sourced.
const InvalidNode NodeID = -1

// Kind is the coherence message variant tag.
type Kind int

const (
	// AcquireToken requests write permission: tokens without data.
	AcquireToken Kind = iota
	// AcquireTokenData requests tokens and a copy of the line's data.
	AcquireTokenData
	// DisseminateTokenData returns tokens (and possibly dirty data)
	// to the ring on eviction or write-back.
	DisseminateTokenData
	// LocalDirNotification informs a local directory of a token-count
	// change it did not itself observe.
	LocalDirNotification
)

// String names the kind for directory logs and stall dumps.
func (k Kind) String() string {
	switch k {
	case AcquireToken:
		return "AcquireToken"
	case AcquireTokenData:
		return "AcquireTokenData"
	case DisseminateTokenData:
		return "DisseminateTokenData"
	case LocalDirNotification:
		return "LocalDirNotification"
	default:
		return "Unknown"
	}
}

// Msg is one coherence message. It embeds an akita MsgMeta so it can
// travel over akita connections unmodified; the protocol fields are
// the wire layout of spec.md §3. A Msg is owned by exactly one queue
// or ring node at a time; forwarding is a move, never a copy.
type Msg struct {
	sim.MsgMeta

	Kind   Kind
	Addr   uint64
	Source NodeID

	// Tokens acquired so far by this request, or returned by this
	// dissemination.
	Tokens int
	// TokensRequested is how many the requester ultimately needs.
	TokensRequested int

	// Transient requests may not permanently keep the tokens they
	// pick up; they upgrade when they meet the priority token
	// (spec.md Glossary "Transient request").
	Transient bool
	// Priority marks the message as carrying the priority token. At
	// most one message carries it per address (spec.md §8 inv. 3).
	Priority bool

	DataValid bool
	Data      [LineBytes]byte
	// Dirty marks a dissemination carrying data that must reach main
	// memory (a write-back rather than a clean eviction).
	Dirty bool

	// LoopedOnce is set when the message has been around its local
	// ring once without being satisfied; the local directory then
	// forwards it to the global ring (spec.md §4.5).
	LoopedOnce bool
}

// Meta implements sim.Msg.
func (m *Msg) Meta() *sim.MsgMeta { return &m.MsgMeta }

// Clone implements sim.Msg. Cloning is only ever used by akita's
// connection plumbing; protocol code moves messages, never copies.
func (m *Msg) Clone() sim.Msg {
	c := *m
	c.ID = sim.GetIDGenerator().Generate()
	return &c
}

// MsgBuilder builds coherence messages.
type MsgBuilder struct {
	kind            Kind
	addr            uint64
	source          NodeID
	tokens          int
	tokensRequested int
	transient       bool
	priority        bool
	data            []byte
	dirty           bool
}

// WithKind sets the message variant.
func (b MsgBuilder) WithKind(k Kind) MsgBuilder {
	b.kind = k
	return b
}

// WithAddr sets the line address.
func (b MsgBuilder) WithAddr(addr uint64) MsgBuilder {
	b.addr = addr
	return b
}

// WithSource sets the requesting node.
func (b MsgBuilder) WithSource(src NodeID) MsgBuilder {
	b.source = src
	return b
}

// WithTokens sets the tokens carried.
func (b MsgBuilder) WithTokens(n int) MsgBuilder {
	b.tokens = n
	return b
}

// WithTokensRequested sets the tokens the requester needs.
func (b MsgBuilder) WithTokensRequested(n int) MsgBuilder {
	b.tokensRequested = n
	return b
}

// WithTransient marks the request transient.
func (b MsgBuilder) WithTransient(t bool) MsgBuilder {
	b.transient = t
	return b
}

// WithPriority attaches the priority token.
func (b MsgBuilder) WithPriority(p bool) MsgBuilder {
	b.priority = p
	return b
}

// WithData attaches line data and sets DataValid.
func (b MsgBuilder) WithData(data []byte) MsgBuilder {
	b.data = data
	return b
}

// WithDirty marks carried data as needing write-back.
func (b MsgBuilder) WithDirty(d bool) MsgBuilder {
	b.dirty = d
	return b
}

// Build creates the message.
func (b MsgBuilder) Build() *Msg {
	m := &Msg{
		MsgMeta: sim.MsgMeta{
			ID: sim.GetIDGenerator().Generate(),
		},
		Kind:            b.kind,
		Addr:            b.addr,
		Source:          b.source,
		Tokens:          b.tokens,
		TokensRequested: b.tokensRequested,
		Transient:       b.transient,
		Priority:        b.priority,
		Dirty:           b.dirty,
	}
	if b.data != nil {
		m.DataValid = true
		copy(m.Data[:], b.data)
	}
	return m
}
