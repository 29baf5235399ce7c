// Package localdir implements the Local Directory of the COMA
// substrate (spec.md §4.5): one entry per line cached in its cluster,
// tracking tokens held below, tokens in transit, and requests in
// flight, and filtering which coherence traffic enters or skips the
// cluster.
package localdir

import (
	"log/slog"
	"sort"

	"github.com/sarchlab/mgsim/coma"
	"github.com/sarchlab/mgsim/coma/evictbuf"
	"github.com/sarchlab/mgsim/coma/ring"
	"github.com/sarchlab/mgsim/sim2"
)

// InjectionPolicy selects how locally parked tokens re-enter the ring
// (spec.md §6 InjectionPolicy).
type InjectionPolicy int

const (
	// InjectNone never proactively ejects parked tokens; they leave
	// only when a request collects them.
	InjectNone InjectionPolicy = iota
	// InjectEmptySlotOneEject ejects the tokens of one parked line
	// whenever the outbound ring slot is empty.
	InjectEmptySlotOneEject
)

// Directory is one local directory, sitting between a lower ring of
// caches (Below) and the global ring (Above).
type Directory struct {
	name        string
	totalTokens int
	capacity    int
	policy      InjectionPolicy

	lines map[uint64]*line
	ebuf  *evictbuf.Buffer

	below ring.Sender
	above ring.Sender

	inBelow []*coma.Msg
	inAbove []*coma.Msg
	bufSize int

	members map[coma.NodeID]struct{}
}

// Config carries the construction parameters of spec.md §6's
// per-directory key surface.
type Config struct {
	Name            string
	TotalTokens     int
	Capacity        int
	BufferSize      int
	InjectionPolicy InjectionPolicy
	EvictBuf        *evictbuf.Buffer
}

// New builds a directory.
func New(cfg Config) *Directory {
	return &Directory{
		name:        cfg.Name,
		totalTokens: cfg.TotalTokens,
		capacity:    cfg.Capacity,
		policy:      cfg.InjectionPolicy,
		lines:       make(map[uint64]*line),
		ebuf:        cfg.EvictBuf,
		bufSize:     cfg.BufferSize,
		members:     make(map[coma.NodeID]struct{}),
	}
}

// Name returns the directory's name.
func (d *Directory) Name() string { return d.name }

// SetBelow hooks up the lower ring's intake.
func (d *Directory) SetBelow(s ring.Sender) { d.below = s }

// SetAbove hooks up the global ring's intake.
func (d *Directory) SetAbove(s ring.Sender) { d.above = s }

// AddMember registers a cache node as living under this directory, so
// arrivals from Above can be classified as returns vs. foreign traffic.
func (d *Directory) AddMember(id coma.NodeID) { d.members[id] = struct{}{} }

func (d *Directory) isMember(id coma.NodeID) bool {
	_, ok := d.members[id]
	return ok
}

// DeliverFromBelow admits a message arriving off the lower ring.
func (d *Directory) DeliverFromBelow(m *coma.Msg) bool {
	if len(d.inBelow) >= d.bufSize {
		return false
	}
	d.inBelow = append(d.inBelow, m)
	return true
}

// DeliverFromAbove admits a message arriving off the global ring.
func (d *Directory) DeliverFromAbove(m *coma.Msg) bool {
	if len(d.inAbove) >= d.bufSize {
		return false
	}
	d.inAbove = append(d.inAbove, m)
	return true
}

// Pending returns how many messages the directory currently owns.
func (d *Directory) Pending() int { return len(d.inBelow) + len(d.inAbove) }

// BelowIntake adapts DeliverFromBelow to ring.Sender.
func (d *Directory) BelowIntake() ring.Sender { return belowIntake{d} }

// AboveIntake adapts DeliverFromAbove to ring.Sender.
func (d *Directory) AboveIntake() ring.Sender { return aboveIntake{d} }

type belowIntake struct{ d *Directory }

func (i belowIntake) CanAccept() bool  { return len(i.d.inBelow) < i.d.bufSize }
func (i belowIntake) Send(m *coma.Msg) { i.d.inBelow = append(i.d.inBelow, m) }

type aboveIntake struct{ d *Directory }

func (i aboveIntake) CanAccept() bool  { return len(i.d.inAbove) < i.d.bufSize }
func (i aboveIntake) Send(m *coma.Msg) { i.d.inAbove = append(i.d.inAbove, m) }

// Line returns the book-keeping counters for a line, for invariant
// checks and storage dumps. The second result is false if the line is
// not tracked.
func (d *Directory) Line(tag uint64) (tokens, ntokenline, ntokenrem, nrequestin, nrequestout int, priority bool, ok bool) {
	l, present := d.lines[tag]
	if !present || !l.valid {
		return 0, 0, 0, 0, 0, false, false
	}
	return l.tokens, l.ntokenline, l.ntokenrem, l.nrequestin, l.nrequestout, l.priority, true
}

// DoBelow handles at most one message arriving from the lower ring
// per cycle (spec.md §4.5, "from Below" rules).
func (d *Directory) DoBelow(buf *sim2.CommitBuffer) sim2.Result {
	if len(d.inBelow) == 0 {
		return sim2.Success
	}
	m := d.inBelow[0]

	var res sim2.Result
	switch m.Kind {
	case coma.AcquireToken, coma.AcquireTokenData:
		if d.isMember(m.Source) {
			res = d.belowAcquire(buf, m)
		} else {
			res = d.belowForeignExit(buf, m)
		}
	case coma.DisseminateTokenData:
		res = d.belowDisseminate(buf, m)
	default:
		res = d.forward(buf, d.above, m)
	}

	if res == sim2.Success {
		buf.Stage(func() { d.inBelow = d.inBelow[1:] })
	}
	return res
}

// belowAcquire handles a local cache's Acquire(Token|TokenData)
// reaching the directory.
func (d *Directory) belowAcquire(buf *sim2.CommitBuffer, m *coma.Msg) sim2.Result {
	tag := m.Addr / coma.LineBytes
	l, present := d.lines[tag]

	if !present || !l.valid {
		// Line absent: allocate an entry, mark it reserved, forward
		// the request to the global ring (spec.md §4.5 first rule).
		if len(d.lines) >= d.capacity && !d.canEvictOne() {
			return sim2.Failed
		}
		if !d.above.CanAccept() {
			return sim2.Failed
		}
		rem, reqIn := 0, 0
		if e, ok := d.ebuf.Lookup(tag); ok {
			rem, reqIn = e.NTokenRem, e.NRequestIn
			d.ebuf.StageTake(buf, tag)
		}
		buf.Stage(func() {
			d.makeRoom()
			d.lines[tag] = &line{
				tag:         tag,
				valid:       true,
				reserved:    true,
				ntokenrem:   rem,
				nrequestin:  reqIn,
				nrequestout: 1,
			}
			d.above.Send(m)
		})
		return sim2.Success
	}

	// Line present: resolve the transient/priority interaction, then
	// transfer directory-held tokens into the request. The line's
	// priority bit is cleared before the copy; the test "clears
	// priority before copying tokens" pins this order.
	keepLocal := l.ntokenline+l.ntokenrem > 0 || !m.LoopedOnce
	dest := d.above
	if keepLocal {
		dest = d.below
	}
	if !dest.CanAccept() {
		return sim2.Failed
	}

	buf.Stage(func() {
		transferred := 0
		if m.Transient && l.priority {
			l.priority = false
			m.Transient = false
			m.Priority = true
		}
		if !m.Transient {
			transferred = l.tokens
			m.Tokens += l.tokens
			l.tokens = 0
			if l.priority {
				l.priority = false
				m.Priority = true
			}
		}
		// Tokens handed to the request count as below while it stays
		// in the lower ring, and leave the cluster with it otherwise.
		l.ntokenline += transferred
		if keepLocal {
			m.LoopedOnce = true
		} else {
			l.nrequestout++
			l.ntokenline -= m.Tokens
		}
		l.normalize()
		dest.Send(m)
	})
	return sim2.Success
}

// belowForeignExit handles a foreign request leaving the cluster after
// its pass through the lower ring.
func (d *Directory) belowForeignExit(buf *sim2.CommitBuffer, m *coma.Msg) sim2.Result {
	if !d.above.CanAccept() {
		return sim2.Failed
	}
	tag := m.Addr / coma.LineBytes
	buf.Stage(func() {
		if l, ok := d.lines[tag]; ok && l.valid {
			l.nrequestin--
			l.ntokenrem -= m.Tokens
			l.normalize()
		} else {
			d.ebuf.Adjust(tag, -m.Tokens, -1)
		}
		d.above.Send(m)
	})
	return sim2.Success
}

// belowDisseminate handles an eviction or write-back from a local
// cache (spec.md §4.5 DisseminateTokenData from Below).
func (d *Directory) belowDisseminate(buf *sim2.CommitBuffer, m *coma.Msg) sim2.Result {
	tag := m.Addr / coma.LineBytes
	l, present := d.lines[tag]

	// The disseminated tokens are still counted in ntokenline until
	// the park/forward below moves them, so the would-reach-total
	// check is against the post-move sum: once every token for the
	// line would sit in this cluster the message must reach the root
	// so the line can be evicted off-chip.
	canPark := present && l.valid &&
		!m.Dirty && // write-backs always flow out to the root
		l.nrequestout == 0 && l.nrequestin == 0 &&
		l.tokens+l.ntokenline < d.totalTokens

	if canPark {
		buf.Stage(func() {
			l.tokens += m.Tokens
			l.ntokenline -= m.Tokens
			if m.Priority {
				l.priority = true
			}
			l.normalize()
		})
		return sim2.Success
	}

	if !d.above.CanAccept() {
		return sim2.Failed
	}
	buf.Stage(func() {
		if present && l.valid {
			l.ntokenline -= m.Tokens
			l.normalize()
		}
		d.above.Send(m)
	})
	return sim2.Success
}

// DoAbove handles at most one message arriving from the global ring
// per cycle (spec.md §4.5, "from Above" rules).
func (d *Directory) DoAbove(buf *sim2.CommitBuffer) sim2.Result {
	if len(d.inAbove) == 0 {
		return sim2.Success
	}
	m := d.inAbove[0]
	tag := m.Addr / coma.LineBytes

	var res sim2.Result
	if d.isMember(m.Source) {
		// The return of one of our Below requests.
		if d.below.CanAccept() {
			buf.Stage(func() {
				if l, ok := d.lines[tag]; ok && l.valid {
					l.nrequestout--
					l.ntokenline += m.Tokens
					if l.reserved {
						l.reserved = false
					}
					l.normalize()
				}
				d.below.Send(m)
			})
			res = sim2.Success
		} else {
			res = sim2.Failed
		}
	} else {
		l, present := d.lines[tag]
		_, trailed := d.ebuf.Lookup(tag)
		if (!present || !l.valid) && !trailed {
			// Nothing of ours: skip the cluster.
			res = d.forward(buf, d.above, m)
		} else if d.below.CanAccept() {
			buf.Stage(func() {
				if present && l.valid {
					l.nrequestin++
					l.ntokenrem += m.Tokens
				} else {
					d.ebuf.Adjust(tag, m.Tokens, 1)
				}
				d.below.Send(m)
			})
			res = sim2.Success
		} else {
			res = sim2.Failed
		}
	}

	if res == sim2.Success {
		buf.Stage(func() { d.inAbove = d.inAbove[1:] })
	}
	return res
}

// DoInject ejects one parked line's tokens back onto the global ring
// when the policy asks for it and the outbound slot is free.
func (d *Directory) DoInject(buf *sim2.CommitBuffer) sim2.Result {
	if d.policy != InjectEmptySlotOneEject || !d.above.CanAccept() {
		return sim2.Success
	}
	tags := make([]uint64, 0, len(d.lines))
	for tag := range d.lines {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	for _, tag := range tags {
		l := d.lines[tag]
		if !l.valid || l.tokens == 0 || l.reserved {
			continue
		}
		buf.Stage(func() {
			out := coma.MsgBuilder{}.
				WithKind(coma.DisseminateTokenData).
				WithAddr(l.tag * coma.LineBytes).
				WithTokens(l.tokens).
				WithPriority(l.priority).
				Build()
			l.tokens = 0
			l.priority = false
			d.above.Send(out)
		})
		return sim2.Success
	}
	return sim2.Success
}

func (d *Directory) forward(buf *sim2.CommitBuffer, dest ring.Sender, m *coma.Msg) sim2.Result {
	if !dest.CanAccept() {
		return sim2.Failed
	}
	buf.Stage(func() { dest.Send(m) })
	return sim2.Success
}

func (d *Directory) canEvictOne() bool {
	for _, l := range d.lines {
		if l.valid && l.evictable() {
			return true
		}
	}
	return false
}

// makeRoom drops one evictable line if the directory is at capacity,
// moving any residual in-flight counts into the evicted-line buffer so
// a later message still finds them (spec.md §4.5 last rule). Runs
// inside a commit record; callers checked canEvictOne in phase 1.
func (d *Directory) makeRoom() {
	if len(d.lines) < d.capacity {
		return
	}
	tags := make([]uint64, 0, len(d.lines))
	for tag := range d.lines {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	for _, tag := range tags {
		l := d.lines[tag]
		if !l.valid || !l.evictable() {
			continue
		}
		if l.ntokenrem > 0 || l.nrequestin > 0 {
			if d.ebuf.Full() {
				continue
			}
			d.ebuf.Put(evictbuf.Entry{
				Tag:        l.tag,
				NTokenRem:  l.ntokenrem,
				NRequestIn: l.nrequestin,
			})
		}
		if l.tokens > 0 {
			slog.Warn("evicting directory line with parked tokens",
				"dir", d.name, "tag", tag, "tokens", l.tokens)
		}
		delete(d.lines, tag)
		return
	}
}
