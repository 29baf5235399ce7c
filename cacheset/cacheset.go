// Package cacheset implements the set-associative lookup/replacement
// structure shared by the I-Cache and D-Cache (spec.md §4.3/§4.4
// implementation note: "both caches implement a small shared
// cacheset.Array[T] generic helper").
package cacheset

// Line is the minimum a cache line type must expose for set-index/tag
// bookkeeping and LRU replacement.
type Line interface {
	// Valid reports whether this slot holds real data (vs. never
	// having been filled).
	Valid() bool
	// Tag returns the line's current tag.
	Tag() uint64
	// Referenced reports whether anything still depends on this line
	// (a waiting thread, an in-flight fill); referenced lines are never
	// chosen for LRU eviction.
	Referenced() bool
}

// Array is a set-associative array of `ways`-way sets over lines of
// type T, indexed by (set, way).
type Array[T Line] struct {
	sets  int
	ways  int
	lines []T
	stamp []uint64 // LRU timestamp, parallel to lines
	clock uint64
}

// NewArray builds an array with the given set/way counts; zero is the
// caller's zero value for T, used to fill every slot initially.
func NewArray[T Line](sets, ways int, zero T) *Array[T] {
	a := &Array[T]{sets: sets, ways: ways}
	a.lines = make([]T, sets*ways)
	a.stamp = make([]uint64, sets*ways)
	for i := range a.lines {
		a.lines[i] = zero
	}
	return a
}

// Sets returns the number of sets.
func (a *Array[T]) Sets() int { return a.sets }

// Ways returns the associativity.
func (a *Array[T]) Ways() int { return a.ways }

func (a *Array[T]) slot(set, way int) int { return set*a.ways + way }

// Get returns the line at (set, way).
func (a *Array[T]) Get(set, way int) T { return a.lines[a.slot(set, way)] }

// Touch bumps a slot's LRU timestamp, e.g. on every access whether hit
// or miss-then-fill.
func (a *Array[T]) Touch(set, way int) {
	a.clock++
	a.stamp[a.slot(set, way)] = a.clock
}

// Find searches a set by tag, returning the way and true on a hit
// among valid lines.
func (a *Array[T]) Find(set int, tag uint64) (int, bool) {
	for way := 0; way < a.ways; way++ {
		l := a.Get(set, way)
		if l.Valid() && l.Tag() == tag {
			return way, true
		}
	}
	return 0, false
}

// VictimWay picks the LRU way among unreferenced lines in a set
// (spec.md §4.3 "Replacement picks LRU among unreferenced Full
// lines"). Returns false if every way in the set is referenced.
func (a *Array[T]) VictimWay(set int) (int, bool) {
	best := -1
	var bestStamp uint64 = ^uint64(0)
	for way := 0; way < a.ways; way++ {
		l := a.Get(set, way)
		if l.Referenced() {
			continue
		}
		if !l.Valid() {
			return way, true
		}
		if a.stamp[a.slot(set, way)] < bestStamp {
			bestStamp = a.stamp[a.slot(set, way)]
			best = way
		}
	}
	if best == -1 {
		return 0, false
	}
	return best, true
}

// Set replaces the line at (set, way).
func (a *Array[T]) Set(set, way int, line T) {
	a.lines[a.slot(set, way)] = line
	a.Touch(set, way)
}
