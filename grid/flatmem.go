package grid

import (
	"github.com/sarchlab/mgsim/coma"
	"github.com/sarchlab/mgsim/coma/rootdir"
	"github.com/sarchlab/mgsim/sim2"
)

// flatMemory is the engine-less backing store: a flat byte image with
// a one-cycle completion queue, standing in for the akita-backed
// mainmem component when the grid is built without an engine.
type flatMemory struct {
	image map[uint64]byte
	root  *rootdir.Root

	fills  []uint64
	writes []uint64
}

func newFlatMemory() *flatMemory {
	return &flatMemory{image: make(map[uint64]byte)}
}

// StartFill implements rootdir.Memory.
func (m *flatMemory) StartFill(addr uint64) bool {
	m.fills = append(m.fills, addr)
	return true
}

// StartWriteBack implements rootdir.Memory.
func (m *flatMemory) StartWriteBack(addr uint64, data [coma.LineBytes]byte) bool {
	for i, b := range data {
		m.image[addr+uint64(i)] = b
	}
	m.writes = append(m.writes, addr)
	return true
}

// DoComplete delivers one finished operation per cycle back into the
// root.
func (m *flatMemory) DoComplete(buf *sim2.CommitBuffer) sim2.Result {
	if len(m.fills) > 0 {
		addr := m.fills[0]
		var data [coma.LineBytes]byte
		for i := range data {
			data[i] = m.image[addr+uint64(i)]
		}
		m.root.OnFillComplete(buf, addr, data)
		buf.Stage(func() { m.fills = m.fills[1:] })
		return sim2.Success
	}
	if len(m.writes) > 0 {
		addr := m.writes[0]
		m.root.OnWriteBackComplete(buf, addr)
		buf.Stage(func() { m.writes = m.writes[1:] })
		return sim2.Success
	}
	return sim2.Success
}

// Write places bytes into the image (program loading).
func (m *flatMemory) Write(addr uint64, data []byte) {
	for i, b := range data {
		m.image[addr+uint64(i)] = b
	}
}

// Read copies bytes out of the image.
func (m *flatMemory) Read(addr uint64, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = m.image[addr+uint64(i)]
	}
	return out
}

// Busy reports in-flight operations, for idle detection.
func (m *flatMemory) Busy() bool { return len(m.fills)+len(m.writes) > 0 }
