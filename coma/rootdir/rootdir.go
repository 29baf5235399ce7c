// Package rootdir implements the Root Directory (spec.md §4.6): the
// only component allowed to fetch a line from, or evict a line to,
// main memory. Requests arriving while a fill is in flight serialize
// behind it in a per-entry FIFO; per-address ordering between a
// deferred write-back and a pending fill is FIFO as well.
package rootdir

import (
	"log/slog"
	"sort"

	"github.com/sarchlab/mgsim/coma"
	"github.com/sarchlab/mgsim/coma/ring"
	"github.com/sarchlab/mgsim/sim2"
)

// Memory is the root's seam to the off-chip backing store; mainmem
// implements it over akita's ideal memory controller. Completion is
// delivered back through OnFillComplete/OnWriteBackComplete.
type Memory interface {
	StartFill(addr uint64) bool
	StartWriteBack(addr uint64, data [coma.LineBytes]byte) bool
}

// AddressFilter is the split-directory partition of spec.md §4.6: the
// instance owns addr iff (addr >> Shift) mod Mod == Index. The zero
// value (Mod 0 is treated as 1) owns everything.
type AddressFilter struct {
	Shift uint
	Mod   int
	Index int
}

// Owns reports whether this instance serves addr.
func (f AddressFilter) Owns(addr uint64) bool {
	if f.Mod <= 1 {
		return true
	}
	return int((addr>>f.Shift)%uint64(f.Mod)) == f.Index
}

// entry is one root-directory line.
type entry struct {
	tag   uint64
	valid bool

	tokens   int
	priority bool
	// reserved is true while a memory fill is in flight.
	reserved bool

	dirty   bool
	hasData bool
	data    [coma.LineBytes]byte

	// minted is true once the line's token set exists on-chip; a
	// fill completing for a minted line refreshes data only, so the
	// per-address total never exceeds T (spec.md §8 inv. 2).
	minted bool

	// deferred serializes requests behind the in-flight fill and
	// behind each other, FIFO per entry.
	deferred []*coma.Msg

	// wbPending is true while a memory write for this line is in
	// flight; a reuse of the slot waits for it.
	wbPending bool
}

// Root is one root-directory instance.
type Root struct {
	name        string
	totalTokens int
	capacity    int
	filter      AddressFilter

	mem  Memory
	ring ring.Sender

	in      []*coma.Msg
	bufSize int

	lines map[uint64]*entry
}

// Config carries the root's construction parameters.
type Config struct {
	Name        string
	TotalTokens int
	Capacity    int
	BufferSize  int
	Filter      AddressFilter
	Memory      Memory
}

// New builds a root directory.
func New(cfg Config) *Root {
	return &Root{
		name:        cfg.Name,
		totalTokens: cfg.TotalTokens,
		capacity:    cfg.Capacity,
		filter:      cfg.Filter,
		mem:         cfg.Memory,
		bufSize:     cfg.BufferSize,
		lines:       make(map[uint64]*entry),
	}
}

// Name returns the root's name.
func (r *Root) Name() string { return r.name }

// SetRing hooks up the top ring's intake for responses re-entering
// the chip.
func (r *Root) SetRing(s ring.Sender) { r.ring = s }

// CanAccept implements ring.Sender.
func (r *Root) CanAccept() bool { return len(r.in) < r.bufSize }

// Send implements ring.Sender: a message leaves the top ring into the
// root.
func (r *Root) Send(m *coma.Msg) { r.in = append(r.in, m) }

// Pending returns how many messages the root currently owns,
// including deferred ones.
func (r *Root) Pending() int {
	n := len(r.in)
	for _, e := range r.lines {
		n += len(e.deferred)
	}
	return n
}

// Tokens returns the tokens parked at the root for a line, for
// invariant checks.
func (r *Root) Tokens(tag uint64) int {
	if e, ok := r.lines[tag]; ok && e.valid {
		return e.tokens
	}
	return 0
}

// DoReceive handles at most one arriving message per cycle.
func (r *Root) DoReceive(buf *sim2.CommitBuffer) sim2.Result {
	if len(r.in) == 0 {
		return sim2.Success
	}
	m := r.in[0]

	if !r.filter.Owns(m.Addr) {
		// Split mode: each instance owns a strict subset of
		// addresses and never observes messages outside it.
		return sim2.Failed
	}

	var res sim2.Result
	switch m.Kind {
	case coma.AcquireToken, coma.AcquireTokenData:
		res = r.receiveAcquire(buf, m)
	case coma.DisseminateTokenData:
		res = r.receiveDisseminate(buf, m)
	default:
		res = sim2.Success // notifications carry no root-side state
	}

	if res == sim2.Success {
		buf.Stage(func() { r.in = r.in[1:] })
	}
	return res
}

func (r *Root) receiveAcquire(buf *sim2.CommitBuffer, m *coma.Msg) sim2.Result {
	tag := m.Addr / coma.LineBytes
	e, present := r.lines[tag]

	if !present || !e.valid {
		// First sight of this line: allocate, start the memory fill,
		// and defer the request behind it.
		if len(r.lines) >= r.capacity && !r.canReuseOne() {
			return sim2.Failed
		}
		lineAddr := tag * coma.LineBytes
		if !r.mem.StartFill(lineAddr) {
			return sim2.Failed
		}
		buf.Stage(func() {
			r.makeRoom()
			r.lines[tag] = &entry{
				tag:      tag,
				valid:    true,
				reserved: true,
				deferred: []*coma.Msg{m},
			}
		})
		return sim2.Success
	}

	if e.reserved || len(e.deferred) > 0 {
		// Serialize behind the in-flight fill and earlier arrivals.
		buf.Stage(func() { e.deferred = append(e.deferred, m) })
		return sim2.Success
	}

	return r.grant(buf, e, m)
}

// grant satisfies a request from what the root holds and re-enters it
// into the ring.
func (r *Root) grant(buf *sim2.CommitBuffer, e *entry, m *coma.Msg) sim2.Result {
	if !r.ring.CanAccept() {
		return sim2.Failed
	}
	buf.Stage(func() {
		if !m.Transient {
			m.Tokens += e.tokens
			e.tokens = 0
			if e.priority {
				e.priority = false
				m.Priority = true
			}
		}
		if e.hasData && !m.DataValid && m.Kind == coma.AcquireTokenData {
			m.Data = e.data
			m.DataValid = true
		}
		r.ring.Send(m)
	})
	return sim2.Success
}

func (r *Root) receiveDisseminate(buf *sim2.CommitBuffer, m *coma.Msg) sim2.Result {
	tag := m.Addr / coma.LineBytes
	e, present := r.lines[tag]
	if !present || !e.valid {
		if len(r.lines) >= r.capacity && !r.canReuseOne() {
			return sim2.Failed
		}
		buf.Stage(func() {
			r.makeRoom()
			ne := &entry{tag: tag, valid: true}
			ne.absorb(m, r)
			r.lines[tag] = ne
		})
		return sim2.Success
	}
	buf.Stage(func() { e.absorb(m, r) })
	return sim2.Success
}

// absorb folds a dissemination's tokens and data into the entry and
// issues the memory write once every token has gathered on a dirty
// line (spec.md §4.6). Runs at commit time.
func (e *entry) absorb(m *coma.Msg, r *Root) {
	e.tokens += m.Tokens
	if m.Tokens > 0 {
		e.minted = true
	}
	if m.Priority {
		e.priority = true
	}
	if m.DataValid {
		e.data = m.Data
		e.hasData = true
		if m.Dirty {
			e.dirty = true
		}
	}
	// Per-address operations reach memory in FIFO order: a write-back
	// arriving while a fill is still in flight waits for the fill to
	// complete before it may issue.
	if e.tokens >= r.totalTokens && e.dirty && !e.wbPending && !e.reserved {
		if r.mem.StartWriteBack(e.tag*coma.LineBytes, e.data) {
			e.wbPending = true
		}
	}
}

// DoDeferred re-enters one deferred request per cycle for entries
// whose fill has completed.
func (r *Root) DoDeferred(buf *sim2.CommitBuffer) sim2.Result {
	tags := make([]uint64, 0, len(r.lines))
	for tag := range r.lines {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })

	for _, tag := range tags {
		e := r.lines[tag]
		if !e.valid || e.reserved || len(e.deferred) == 0 {
			continue
		}
		m := e.deferred[0]
		if !r.ring.CanAccept() {
			return sim2.Failed
		}
		res := r.grant(buf, e, m)
		if res == sim2.Success {
			buf.Stage(func() { e.deferred = e.deferred[1:] })
		}
		return res
	}
	return sim2.Success
}

// OnFillComplete delivers a finished memory read: the line's full
// token set materializes at the root and the head of the deferred
// queue re-enters the ring with the fetched data attached.
func (r *Root) OnFillComplete(buf *sim2.CommitBuffer, addr uint64, data [coma.LineBytes]byte) {
	tag := addr / coma.LineBytes
	e, ok := r.lines[tag]
	if !ok || !e.valid || !e.reserved {
		slog.Warn("fill completion for untracked line", "root", r.name, "addr", addr)
		return
	}
	buf.Stage(func() {
		e.reserved = false
		if !e.hasData {
			e.data = data
			e.hasData = true
		}
		if !e.minted {
			e.tokens += r.totalTokens
			e.priority = true
			e.minted = true
		}
	})
}

// OnWriteBackComplete delivers a finished memory write; the line is
// now clean and may be dropped on reuse.
func (r *Root) OnWriteBackComplete(buf *sim2.CommitBuffer, addr uint64) {
	tag := addr / coma.LineBytes
	e, ok := r.lines[tag]
	if !ok || !e.valid {
		return
	}
	buf.Stage(func() {
		e.wbPending = false
		e.dirty = false
	})
}

func (r *Root) canReuseOne() bool {
	for _, e := range r.lines {
		if r.reusable(e) {
			return true
		}
	}
	return false
}

// reusable reports whether the entry may be dropped to make room: no
// fill or write in flight, nothing deferred, no dirty data that has
// not reached memory, and no token of the line's set still roaming
// the chip (dropping the entry retires the set; the next fill mints a
// fresh one).
func (r *Root) reusable(e *entry) bool {
	return e.valid && !e.reserved && !e.wbPending &&
		len(e.deferred) == 0 && !e.dirty &&
		(!e.minted || e.tokens >= r.totalTokens)
}

// makeRoom drops one reusable entry when at capacity. Runs at commit
// time; callers checked canReuseOne in phase 1. When the entry must be
// reused while dirty, the write is issued first and reuse waits
// (enforced by reusable excluding dirty entries).
func (r *Root) makeRoom() {
	if len(r.lines) < r.capacity {
		return
	}
	tags := make([]uint64, 0, len(r.lines))
	for tag := range r.lines {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	for _, tag := range tags {
		if r.reusable(r.lines[tag]) {
			delete(r.lines, tag)
			return
		}
	}
}

// DoEvict issues the memory write for one dirty, fully-gathered entry
// per cycle, so slots stuck dirty become reusable even without a
// conflicting allocation forcing it.
func (r *Root) DoEvict(buf *sim2.CommitBuffer) sim2.Result {
	tags := make([]uint64, 0, len(r.lines))
	for tag := range r.lines {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	for _, tag := range tags {
		e := r.lines[tag]
		if !e.valid || !e.dirty || e.wbPending || e.reserved || e.tokens < r.totalTokens {
			continue
		}
		lineAddr := e.tag * coma.LineBytes
		data := e.data
		if !r.mem.StartWriteBack(lineAddr, data) {
			return sim2.Failed
		}
		buf.Stage(func() { e.wbPending = true })
		return sim2.Success
	}
	return sim2.Success
}
