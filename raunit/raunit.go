// Package raunit implements the RA Unit: a block-grained allocator
// over one register type's index space, handing the Allocator a
// contiguous base/size extent per family (spec.md §2 "RA Unit").
package raunit

import (
	"sort"

	"github.com/sarchlab/mgsim/ids"
	"github.com/sarchlab/mgsim/sim2"
)

// extent is a free run of register indices [Base, Base+Size).
type extent struct {
	Base ids.RegIndex
	Size int
}

// Unit is a first-fit, coalescing free-extent allocator over
// [0, capacity) register indices of one register type.
type Unit struct {
	capacity int
	free     []extent // kept sorted by Base, non-adjacent entries only
}

// NewUnit builds a unit covering `capacity` register slots, with
// register 0 reserved (index 0 is never a valid local base; spec.md
// Glossary treats register index 0 as the null/zero register for the
// ClassZero register class).
func NewUnit(capacity int) *Unit {
	u := &Unit{capacity: capacity}
	if capacity > 1 {
		u.free = []extent{{Base: 1, Size: capacity - 1}}
	}
	return u
}

// Capacity returns the unit's total index-space size.
func (u *Unit) Capacity() int { return u.capacity }

// Available returns the number of free register slots, for admission
// checks before staging an allocation (spec.md §4.1 DoFamilyAllocate
// "allocates ... a register-region reservation").
func (u *Unit) Available() int {
	n := 0
	for _, e := range u.free {
		n += e.Size
	}
	return n
}

// TryAlloc finds the first free extent of at least `size` slots and
// returns its base without mutating the unit; call StageAlloc with the
// same base/size in the same cycle's commit buffer to actually reserve
// it. Splitting the call from the stage keeps this allocator consistent
// with every other table in the module, where reads only ever see
// end-of-previous-cycle state.
func (u *Unit) TryAlloc(size int) (ids.RegIndex, bool) {
	if size <= 0 {
		return 0, false
	}
	for _, e := range u.free {
		if e.Size >= size {
			return e.Base, true
		}
	}
	return 0, false
}

// StageAlloc removes [base, base+size) from the free list.
func (u *Unit) StageAlloc(buf *sim2.CommitBuffer, base ids.RegIndex, size int) {
	buf.Stage(func() {
		var next []extent
		for _, e := range u.free {
			if base < e.Base || base >= e.Base+ids.RegIndex(e.Size) {
				next = append(next, e)
				continue
			}
			if e.Base < base {
				next = append(next, extent{Base: e.Base, Size: int(base - e.Base)})
			}
			tail := int(e.Base) + e.Size - int(base) - size
			if tail > 0 {
				next = append(next, extent{Base: base + ids.RegIndex(size), Size: tail})
			}
		}
		u.free = next
	})
}

// StageFree returns [base, base+size) to the free list, coalescing with
// any adjacent extents.
func (u *Unit) StageFree(buf *sim2.CommitBuffer, base ids.RegIndex, size int) {
	buf.Stage(func() {
		u.free = append(u.free, extent{Base: base, Size: size})
		sort.Slice(u.free, func(i, j int) bool { return u.free[i].Base < u.free[j].Base })

		merged := u.free[:0:0]
		for _, e := range u.free {
			if n := len(merged); n > 0 && merged[n-1].Base+ids.RegIndex(merged[n-1].Size) == e.Base {
				merged[n-1].Size += e.Size
				continue
			}
			merged = append(merged, e)
		}
		u.free = merged
	})
}
