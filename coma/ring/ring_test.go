package ring_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/mgsim/coma"
	"github.com/sarchlab/mgsim/coma/ring"
	"github.com/sarchlab/mgsim/sim2"
)

type collector struct {
	full bool
	got  []*coma.Msg
}

func (c *collector) CanAccept() bool  { return !c.full }
func (c *collector) Send(m *coma.Msg) { c.got = append(c.got, m) }

type wanter struct {
	addr uint64
	got  []*coma.Msg
}

func (w *wanter) Wants(m *coma.Msg) bool { return m.Addr == w.addr }
func (w *wanter) Receive(buf *sim2.CommitBuffer, m *coma.Msg) {
	buf.Stage(func() { w.got = append(w.got, m) })
}

func acquire(addr uint64) *coma.Msg {
	return coma.MsgBuilder{}.
		WithKind(coma.AcquireTokenData).
		WithAddr(addr).
		Build()
}

var _ = Describe("Node", func() {
	var (
		n    *ring.Node
		sink *collector
		buf  sim2.CommitBuffer
	)

	step := func() sim2.Result {
		res := n.DoForward(&buf)
		buf.Commit()
		return res
	}

	BeforeEach(func() {
		n = ring.NewNode("Node0", 4)
		sink = &collector{}
		n.SetNext(sink)
		buf = sim2.CommitBuffer{}
	})

	It("forwards ring messages in FIFO order, one per cycle", func() {
		m1 := acquire(0x100)
		m2 := acquire(0x200)
		n.Send(m1)
		n.Send(m2)

		Expect(step()).To(Equal(sim2.Success))
		Expect(sink.got).To(Equal([]*coma.Msg{m1}))

		Expect(step()).To(Equal(sim2.Success))
		Expect(sink.got).To(Equal([]*coma.Msg{m1, m2}))
	})

	It("lets injected messages wait for an empty ring slot", func() {
		inj := acquire(0x300)
		Expect(n.Inject(inj)).To(BeTrue())
		passing := acquire(0x400)
		n.Send(passing)

		step()
		Expect(sink.got).To(Equal([]*coma.Msg{passing}))

		step()
		Expect(sink.got).To(Equal([]*coma.Msg{passing, inj}))
	})

	It("stalls without losing the message when downstream is full", func() {
		m := acquire(0x500)
		n.Send(m)
		sink.full = true

		Expect(step()).To(Equal(sim2.Failed))
		Expect(n.Pending()).To(Equal(1))

		sink.full = false
		Expect(step()).To(Equal(sim2.Success))
		Expect(sink.got).To(Equal([]*coma.Msg{m}))
	})

	It("hands a message the client wants to the client instead", func() {
		w := &wanter{addr: 0x600}
		n.SetClient(w)
		mine := acquire(0x600)
		other := acquire(0x700)
		n.Send(mine)
		n.Send(other)

		step()
		step()
		Expect(w.got).To(Equal([]*coma.Msg{mine}))
		Expect(sink.got).To(Equal([]*coma.Msg{other}))
	})

	It("stops accepting once its buffer is at capacity", func() {
		small := ring.NewNode("Tiny", 1)
		small.SetNext(sink)
		Expect(small.CanAccept()).To(BeTrue())
		small.Send(acquire(0x1))
		Expect(small.CanAccept()).To(BeFalse())
	})
})
