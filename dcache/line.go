// Package dcache implements the per-core D-Cache: set-associative,
// LRU-replaced, and a coherence client of the local directory
// (spec.md §4.3).
package dcache

import "github.com/sarchlab/mgsim/ids"

// State is a line's lifecycle state.
type State int

const (
	// Empty: no data, not in use.
	Empty State = iota
	// Loading: a fill is outstanding.
	Loading
	// Invalid: was Full or Loading, but coherence traffic voided it;
	// cleared to Empty once its last reference drops (spec.md §4.3
	// snoop rules).
	Invalid
	// Full: valid data present.
	Full
)

// FillWaiter is one destination register waiting on this line's fill
// (spec.md §4.3 "records the destination register").
type FillWaiter struct {
	Reg        RegAddr
	ByteOffset uint32
	Size       uint8
	SignExtend bool
}

// RegAddr mirrors pipeline.RegAddr without importing pipeline (dcache
// is a pipeline dependency, not the reverse).
type RegAddr struct {
	Type  ids.RegType
	Index ids.RegIndex
}

// Line is one cache line.
type Line struct {
	State      State
	LineTag    uint64
	Data       [LineBytes]byte
	ByteValid  [LineBytes]bool
	References int // outstanding waiters + in-flight fill
	Waiters    []FillWaiter
}

// LineBytes is the fixed line size.
const LineBytes = 64

// Valid implements cacheset.Line.
func (l Line) Valid() bool { return l.State != Empty }

// Tag implements cacheset.Line.
func (l Line) Tag() uint64 { return l.LineTag }

// Referenced implements cacheset.Line.
func (l Line) Referenced() bool { return l.References > 0 }
