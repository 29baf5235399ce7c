// Package icache implements the per-core I-Cache: set-associative,
// read-only from the pipeline's perspective, with a thread wait list
// for misses and a creation-preload flag (spec.md §4.4).
package icache

import (
	"github.com/sarchlab/mgsim/cacheset"
	"github.com/sarchlab/mgsim/ids"
	"github.com/sarchlab/mgsim/sim2"
)

// Line is one instruction cache line.
type Line struct {
	State           State
	LineTag         uint64
	Words           []uint32
	ControlWord     uint32
	Waiters         []ids.ThreadID
	CreationPending bool
	References      int
}

// State mirrors dcache.State's shape for the I-Cache's simpler
// lifecycle (no write side, so no Invalid-with-dirty-data case).
type State int

const (
	Empty State = iota
	Loading
	Full
)

func (l Line) Valid() bool      { return l.State != Empty }
func (l Line) Tag() uint64      { return l.LineTag }
func (l Line) Referenced() bool { return l.References > 0 }

// Coherence is the I-Cache's dependency on the local directory for
// fetching a missing line.
type Coherence interface {
	RequestFill(addr uint64, forWrite bool) (token uint64)
}

// Activator is notified when a miss resolves, per spec.md §4.4: "wakes
// all threads on the line's waiting list by handing them to the
// Allocator's active queue and, if the creation flag is set, wakes the
// FamilyCreate state machine."
type Activator interface {
	ActivateThread(buf *sim2.CommitBuffer, tid ids.ThreadID)
	WakeFamilyCreate(buf *sim2.CommitBuffer, addr uint64)
}

// Cache is a set-associative I-Cache.
type Cache struct {
	name      string
	array     *cacheset.Array[Line]
	coh       Coherence
	activator Activator
	linesz    int
}

// New builds an I-Cache with the given geometry; linesz is the number
// of instruction words per line.
func New(name string, sets, ways, linesz int, coh Coherence, activator Activator) *Cache {
	return &Cache{name: name, array: cacheset.NewArray[Line](sets, ways, Line{}), coh: coh, activator: activator, linesz: linesz}
}

// SetActivator attaches the allocator after construction; the two
// depend on each other and the cache is built first.
func (c *Cache) SetActivator(a Activator) { c.activator = a }

func (c *Cache) setIndex(addr uint64) int { return int((addr / uint64(c.linesz) / 4) % uint64(c.array.Sets())) }
func (c *Cache) lineTag(addr uint64) uint64 { return addr / uint64(c.linesz) / 4 }

// Fetch implements pipeline.ICache: on hit, returns the word and the
// control bits for this instruction's position in the line (spec.md
// §6 "Instruction-control encoding"); on miss, registers the thread as
// a waiter and returns hit=false.
func (c *Cache) Fetch(thread ids.ThreadID, pc uint64) (word uint32, wantSwitch, killAfter, hit bool) {
	set := c.setIndex(pc)
	tag := c.lineTag(pc)
	way, found := c.array.Find(set, tag)
	if !found || c.array.Get(set, way).State != Full {
		c.allocateMiss(set, tag, thread, false)
		return 0, false, false, false
	}

	line := c.array.Get(set, way)
	idx := (pc / 4) % uint64(c.linesz)
	word = line.Words[idx]
	ctrl := (line.ControlWord >> (2 * uint(idx))) & 0b11
	return word, ctrl&0b01 != 0, ctrl&0b10 != 0, true
}

// LineFor locates the Loading line allocated for addr, for the
// coherence client delivering a fill.
func (c *Cache) LineFor(addr uint64) (set, way int, ok bool) {
	set = c.setIndex(addr)
	way, ok = c.array.Find(set, c.lineTag(addr))
	return set, way, ok
}

// RequestCreationPreload registers a miss whose resolution should also
// wake the FamilyCreate state machine (spec.md §4.4).
func (c *Cache) RequestCreationPreload(pc uint64) {
	set := c.setIndex(pc)
	tag := c.lineTag(pc)
	c.allocateMiss(set, tag, ids.InvalidThread, true)
}

func (c *Cache) allocateMiss(set int, tag uint64, thread ids.ThreadID, creation bool) {
	// A miss on a line that is already loading joins that line.
	way, ok := c.array.Find(set, tag)
	if !ok || c.array.Get(set, way).State != Loading {
		way, ok = c.array.VictimWay(set)
		if !ok {
			return
		}
	}
	line := c.array.Get(set, way)
	if line.State != Loading || line.LineTag != tag {
		line = Line{State: Loading, LineTag: tag}
		c.coh.RequestFill(tag*uint64(c.linesz)*4, false)
	}
	if thread != ids.InvalidThread {
		line.Waiters = append(line.Waiters, thread)
		line.References++
	}
	if creation {
		line.CreationPending = true
	}
	c.array.Set(set, way, line)
}

// CompleteFill implements the wake-up half of spec.md §4.4: once a
// line's words arrive, every waiting thread is handed to the
// Activator, and the FamilyCreate state machine is woken if the
// creation flag was set.
func (c *Cache) CompleteFill(buf *sim2.CommitBuffer, set, way int, words []uint32, control uint32, addr uint64) {
	line := c.array.Get(set, way)
	if line.State != Loading {
		return
	}
	line.State = Full
	line.Words = words
	line.ControlWord = control

	for _, tid := range line.Waiters {
		c.activator.ActivateThread(buf, tid)
	}
	line.References -= len(line.Waiters)
	line.Waiters = nil

	if line.CreationPending {
		c.activator.WakeFamilyCreate(buf, addr)
		line.CreationPending = false
	}
	c.array.Set(set, way, line)
}
