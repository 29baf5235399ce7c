package mainmem_test

import (
	"github.com/golang/mock/gomock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/akita/v4/mem/idealmemcontroller"
	"github.com/sarchlab/akita/v4/mem/mem"
	"github.com/sarchlab/akita/v4/sim"
	"github.com/sarchlab/akita/v4/sim/directconnection"

	"github.com/sarchlab/mgsim/coma"
	"github.com/sarchlab/mgsim/coma/mainmem"
	"github.com/sarchlab/mgsim/sim2"
)

type recordingListener struct {
	fills  []uint64
	writes []uint64
	data   map[uint64][coma.LineBytes]byte
}

func (l *recordingListener) OnFillComplete(buf *sim2.CommitBuffer, addr uint64, data [coma.LineBytes]byte) {
	buf.Stage(func() {
		l.fills = append(l.fills, addr)
		l.data[addr] = data
	})
}

func (l *recordingListener) OnWriteBackComplete(buf *sim2.CommitBuffer, addr uint64) {
	buf.Stage(func() { l.writes = append(l.writes, addr) })
}

var _ = Describe("Comp", func() {
	var (
		engine   sim.Engine
		ctrl     *idealmemcontroller.Comp
		comp     *mainmem.Comp
		listener *recordingListener
	)

	BeforeEach(func() {
		engine = sim.NewSerialEngine()
		ctrl = idealmemcontroller.MakeBuilder().
			WithEngine(engine).
			WithNewStorage(1 * mem.MB).
			WithLatency(5).
			Build("Mem")
		comp = mainmem.MakeBuilder().
			WithEngine(engine).
			WithFreq(1 * sim.GHz).
			WithMemory(ctrl.GetPortByName("Top").AsRemote()).
			Build("MainMem")
		listener = &recordingListener{data: make(map[uint64][coma.LineBytes]byte)}
		comp.SetListener(listener)

		conn := directconnection.MakeBuilder().
			WithEngine(engine).
			WithFreq(1 * sim.GHz).
			Build("Conn")
		conn.PlugIn(ctrl.GetPortByName("Top"))
		conn.PlugIn(comp.Port())
	})

	It("delivers completions to the listener with the line address", func() {
		ctrl := gomock.NewController(GinkgoT())
		defer ctrl.Finish()
		mock := NewMockListener(ctrl)
		comp.SetListener(mock)

		mock.EXPECT().OnWriteBackComplete(gomock.Any(), uint64(0x2000))

		var line [coma.LineBytes]byte
		Expect(comp.StartWriteBack(0x2000, line)).To(BeTrue())
		Expect(engine.Run()).To(Succeed())
	})

	It("round-trips a write-back and a fill through the controller", func() {
		var line [coma.LineBytes]byte
		line[0] = 0x5A
		line[coma.LineBytes-1] = 0xA5

		Expect(comp.StartWriteBack(0x1000, line)).To(BeTrue())
		Expect(engine.Run()).To(Succeed())
		Expect(listener.writes).To(Equal([]uint64{0x1000}))

		Expect(comp.StartFill(0x1000)).To(BeTrue())
		Expect(engine.Run()).To(Succeed())
		Expect(listener.fills).To(Equal([]uint64{0x1000}))
		Expect(listener.data[0x1000]).To(Equal(line))
	})
})
