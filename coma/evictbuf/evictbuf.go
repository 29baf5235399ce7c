// Package evictbuf implements the Evicted-Line Buffer (spec.md §2,
// §4.5): short-term memory of lines just evicted from a local ring,
// kept so an in-flight message racing the eviction still finds the
// residual token and request counts it expects.
package evictbuf

import "github.com/sarchlab/mgsim/sim2"

// Entry is the residue of one evicted directory line.
type Entry struct {
	Tag uint64

	// NTokenRem is the count of tokens that were in transit between
	// below and above when the line was evicted.
	NTokenRem int
	// NRequestIn is the count of requests that were below when the
	// line was evicted.
	NRequestIn int
}

// Live reports whether the entry still has anything an in-flight
// message could need; a drained entry is reclaimed.
func (e Entry) Live() bool { return e.NTokenRem != 0 || e.NRequestIn != 0 }

// Buffer holds evicted-line residues. Capacity must be strictly
// greater than the maximum number of lines the owning sub-ring can
// have in flight (spec.md §5 deadlock avoidance (b)); NewBuffer
// enforces that.
type Buffer struct {
	name     string
	capacity int
	entries  []Entry
}

// NewBuffer builds a buffer sized for a sub-ring with at most
// maxInFlight lines in flight. It panics if capacity is not strictly
// greater than maxInFlight, because an undersized buffer can deadlock
// the coherence protocol.
func NewBuffer(name string, capacity, maxInFlight int) *Buffer {
	if capacity <= maxInFlight {
		panic("evictbuf: capacity must exceed the sub-ring's max in-flight lines")
	}
	return &Buffer{name: name, capacity: capacity}
}

// Name returns the buffer's name.
func (b *Buffer) Name() string { return b.name }

// Len returns the number of live entries.
func (b *Buffer) Len() int { return len(b.entries) }

// Full reports whether the buffer holds its capacity of entries or
// more. Put does not consult it: Put always merges or appends.
func (b *Buffer) Full() bool { return len(b.entries) >= b.capacity }

// Lookup returns the entry for tag, if present.
func (b *Buffer) Lookup(tag uint64) (Entry, bool) {
	for _, e := range b.entries {
		if e.Tag == tag {
			return e, true
		}
	}
	return Entry{}, false
}

// Put deposits an evicted line's residue immediately. If an entry for
// the tag already exists the counts merge into it. Callers inside a
// process body should use StagePut; Put exists for code already
// running at commit time (a directory's eviction path).
func (b *Buffer) Put(e Entry) {
	for i := range b.entries {
		if b.entries[i].Tag == e.Tag {
			b.entries[i].NTokenRem += e.NTokenRem
			b.entries[i].NRequestIn += e.NRequestIn
			return
		}
	}
	b.entries = append(b.entries, e)
}

// StagePut stages the deposit of an evicted line's residue.
func (b *Buffer) StagePut(buf *sim2.CommitBuffer, e Entry) {
	buf.Stage(func() { b.Put(e) })
}

// StageTake stages the removal of the entry for tag, handing its
// residue to a freshly allocated directory line (spec.md §4.5
// "AcquireTokenData from Below, line absent": merge ntokenrem and
// nrequestin into the new line).
func (b *Buffer) StageTake(buf *sim2.CommitBuffer, tag uint64) {
	buf.Stage(func() {
		for i := range b.entries {
			if b.entries[i].Tag == tag {
				b.entries = append(b.entries[:i], b.entries[i+1:]...)
				return
			}
		}
	})
}

// Adjust applies an in-flight message's update of an entry's residual
// counts immediately; the entry is reclaimed once drained.
func (b *Buffer) Adjust(tag uint64, dTokenRem, dRequestIn int) {
	for i := range b.entries {
		if b.entries[i].Tag != tag {
			continue
		}
		b.entries[i].NTokenRem += dTokenRem
		b.entries[i].NRequestIn += dRequestIn
		if !b.entries[i].Live() {
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
		}
		return
	}
}

// StageAdjust stages an Adjust.
func (b *Buffer) StageAdjust(buf *sim2.CommitBuffer, tag uint64, dTokenRem, dRequestIn int) {
	buf.Stage(func() { b.Adjust(tag, dTokenRem, dRequestIn) })
}
