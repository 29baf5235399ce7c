package dcache

import (
	"github.com/sarchlab/mgsim/cacheset"
	"github.com/sarchlab/mgsim/ids"
	"github.com/sarchlab/mgsim/regfile"
	"github.com/sarchlab/mgsim/sim2"
)

// Coherence is the D-Cache's dependency on the local directory (spec.md
// §4.3: "enqueues an off-chip read via the coherence protocol").
type Coherence interface {
	RequestFill(addr uint64, forWrite bool) (token uint64)
	RequestWriteBack(addr uint64, data [LineBytes]byte)
}

// Cache is a set-associative D-Cache and coherence client.
type Cache struct {
	name string

	array *cacheset.Array[Line]
	coh   Coherence

	regs   *regfile.File
	linker regfile.ThreadLinker

	// fillWord is allocated but never read: CompletedReads converts one
	// waiter per call and takes the byte offset from the waiter itself.
	fillWord map[int]uint32
}

// New builds a D-Cache with the given set/way geometry.
func New(name string, sets, ways int, coh Coherence, regs *regfile.File, linker regfile.ThreadLinker) *Cache {
	return &Cache{
		name:     name,
		array:    cacheset.NewArray[Line](sets, ways, Line{}),
		coh:      coh,
		regs:     regs,
		linker:   linker,
		fillWord: make(map[int]uint32),
	}
}

func setIndex(addr uint64, sets int) int { return int((addr / LineBytes) % uint64(sets)) }
func lineTag(addr uint64) uint64         { return addr / LineBytes }

// Read implements spec.md §4.3's read path and pipeline.DCache.
func (c *Cache) Read(thread ids.ThreadID, addr uint64, size int, dest RegAddr, signed bool) (uint64, bool) {
	set := setIndex(addr, c.array.Sets())
	tag := lineTag(addr)

	way, hit := c.array.Find(set, tag)
	if hit {
		line := c.array.Get(set, way)
		if line.State == Full {
			c.array.Touch(set, way)
			return readBytes(line, addr, size, signed), true
		}
	}

	c.allocateMiss(set, tag, dest, uint32(addr%LineBytes), uint8(size), signed)
	return 0, false
}

// Write implements spec.md §4.3's write-merge path and pipeline.DCache.
func (c *Cache) Write(thread ids.ThreadID, addr uint64, size int, value uint64) bool {
	set := setIndex(addr, c.array.Sets())
	tag := lineTag(addr)

	way, hit := c.array.Find(set, tag)
	if !hit || c.array.Get(set, way).State != Full {
		c.allocateMiss(set, tag, RegAddr{}, uint32(addr%LineBytes), uint8(size), false)
		return false
	}

	line := c.array.Get(set, way)
	writeBytes(&line, addr, size, value)
	c.array.Set(set, way, line)
	return true
}

func (c *Cache) allocateMiss(set int, tag uint64, dest RegAddr, offset uint32, size uint8, signed bool) {
	way, ok := c.array.VictimWay(set)
	if !ok {
		return // every way referenced; caller retries next cycle
	}
	line := c.array.Get(set, way)
	if line.State != Loading || line.LineTag != tag {
		line = Line{State: Loading, LineTag: tag}
		c.coh.RequestFill((tag*LineBytes)|uint64(offset), false)
	}
	line.Waiters = append(line.Waiters, FillWaiter{Reg: dest, ByteOffset: offset, Size: size, SignExtend: signed})
	line.References++
	c.array.Set(set, way, line)
}

// Loading reports whether a line's fill is still converting waiters,
// for the coherence client draining a delivered line.
func (c *Cache) Loading(set, way int) bool {
	return c.array.Get(set, way).State == Loading
}

// LineFor locates the line allocated for addr, for the coherence
// client delivering a fill.
func (c *Cache) LineFor(addr uint64) (set, way int, ok bool) {
	set = setIndex(addr, c.array.Sets())
	way, ok = c.array.Find(set, lineTag(addr))
	return set, way, ok
}

// CompletedReads is the fill-driven conversion process of spec.md
// §4.3: walks the line's waiting-register list, converting one
// multi-word register at a time.
func (c *Cache) CompletedReads(buf *sim2.CommitBuffer, set, way int, data [LineBytes]byte) sim2.Result {
	line := c.array.Get(set, way)
	if line.State != Loading {
		return sim2.Success
	}
	if len(line.Waiters) == 0 {
		line.State = Full
		line.Data = data
		for i := range line.ByteValid {
			line.ByteValid[i] = true
		}
		line.References = 0
		c.array.Set(set, way, line)
		return sim2.Success
	}

	w := line.Waiters[0]
	line.Waiters = line.Waiters[1:]
	line.References--
	line.Data = data
	for i := uint32(0); i < uint32(w.Size); i++ {
		line.ByteValid[w.ByteOffset+i] = true
	}
	value := readBytes(line, uint64(w.ByteOffset), int(w.Size), w.SignExtend)

	c.regs.StageCompleteMiss(buf, c.linker, w.Reg.Type, w.Reg.Index, value)

	if len(line.Waiters) == 0 {
		line.State = Full
	}
	c.array.Set(set, way, line)
	return sim2.Success
}

// Snoop applies a write-merge from another cache's eviction/fill
// broadcast (spec.md §4.3: "on a write from another cache, the local
// data and per-byte valid bits are updated").
func (c *Cache) Snoop(addr uint64, data [LineBytes]byte, validBytes [LineBytes]bool) {
	set := setIndex(addr, c.array.Sets())
	tag := lineTag(addr)
	way, hit := c.array.Find(set, tag)
	if !hit {
		return
	}
	line := c.array.Get(set, way)
	for i := range data {
		if validBytes[i] {
			line.Data[i] = data[i]
			line.ByteValid[i] = true
		}
	}
	c.array.Set(set, way, line)
}

// Invalidate implements spec.md §4.3's invalidate rules: Full lines
// without references become Empty, Full lines with references become
// Invalid, Loading lines are marked Invalid so the fill discards them.
func (c *Cache) Invalidate(addr uint64) {
	set := setIndex(addr, c.array.Sets())
	tag := lineTag(addr)
	way, hit := c.array.Find(set, tag)
	if !hit {
		return
	}
	line := c.array.Get(set, way)
	switch {
	case line.State == Full && line.References == 0:
		line = Line{}
	case line.State == Full && line.References > 0:
		line.State = Invalid
	case line.State == Loading:
		line.State = Invalid
	}
	c.array.Set(set, way, line)
}

// DropReference clears the last dependency on an Invalid line, which
// then reverts to Empty (spec.md §4.3 "cleared when the last reference
// drops").
func (c *Cache) DropReference(set, way int) {
	line := c.array.Get(set, way)
	if line.References > 0 {
		line.References--
	}
	if line.State == Invalid && line.References == 0 {
		line = Line{}
	}
	c.array.Set(set, way, line)
}

func readBytes(l Line, addr uint64, size int, signed bool) uint64 {
	off := addr % LineBytes
	var v uint64
	for i := 0; i < size; i++ {
		v |= uint64(l.Data[off+uint64(i)]) << (8 * uint(i))
	}
	if signed && size < 8 {
		shift := uint(64 - 8*size)
		return uint64(int64(v<<shift) >> shift)
	}
	return v
}

func writeBytes(l *Line, addr uint64, size int, value uint64) {
	off := addr % LineBytes
	for i := 0; i < size; i++ {
		l.Data[off+uint64(i)] = byte(value >> (8 * uint(i)))
		l.ByteValid[off+uint64(i)] = true
	}
}
