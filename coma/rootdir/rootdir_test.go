package rootdir_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/mgsim/coma"
	"github.com/sarchlab/mgsim/coma/rootdir"
	"github.com/sarchlab/mgsim/sim2"
)

type memOp struct {
	write bool
	addr  uint64
}

// fakeMemory records the order operations are issued in.
type fakeMemory struct {
	ops []memOp
}

func (m *fakeMemory) StartFill(addr uint64) bool {
	m.ops = append(m.ops, memOp{addr: addr})
	return true
}

func (m *fakeMemory) StartWriteBack(addr uint64, _ [coma.LineBytes]byte) bool {
	m.ops = append(m.ops, memOp{write: true, addr: addr})
	return true
}

type collector struct {
	full bool
	got  []*coma.Msg
}

func (c *collector) CanAccept() bool  { return !c.full }
func (c *collector) Send(m *coma.Msg) { c.got = append(c.got, m) }

const totalTokens = 4

var _ = Describe("Root", func() {
	var (
		r   *rootdir.Root
		mem *fakeMemory
		top *collector
		buf sim2.CommitBuffer
	)

	step := func(fns ...func(*sim2.CommitBuffer) sim2.Result) {
		for _, fn := range fns {
			fn(&buf)
			buf.Commit()
		}
	}

	acquire := func(addr uint64) *coma.Msg {
		return coma.MsgBuilder{}.
			WithKind(coma.AcquireTokenData).
			WithAddr(addr).
			WithSource(coma.NodeID(1)).
			WithTokensRequested(1).
			Build()
	}

	BeforeEach(func() {
		mem = &fakeMemory{}
		top = &collector{}
		r = rootdir.New(rootdir.Config{
			Name:        "Root0",
			TotalTokens: totalTokens,
			Capacity:    4,
			BufferSize:  4,
			Memory:      mem,
		})
		r.SetRing(top)
		buf = sim2.CommitBuffer{}
	})

	It("starts a fill for a first-seen line and defers the request", func() {
		m := acquire(0x1000)
		r.Send(m)

		step(r.DoReceive)

		Expect(mem.ops).To(Equal([]memOp{{addr: 0x1000}}))
		Expect(top.got).To(BeEmpty())
		Expect(r.Pending()).To(Equal(1))
	})

	It("re-enters the deferred head with data and the full token set after the fill", func() {
		m := acquire(0x1000)
		r.Send(m)
		step(r.DoReceive)

		var data [coma.LineBytes]byte
		data[0] = 0xAB
		r.OnFillComplete(&buf, 0x1000, data)
		buf.Commit()

		step(r.DoDeferred)

		Expect(top.got).To(Equal([]*coma.Msg{m}))
		Expect(m.DataValid).To(BeTrue())
		Expect(m.Data[0]).To(Equal(byte(0xAB)))
		Expect(m.Tokens).To(Equal(totalTokens))
		Expect(m.Priority).To(BeTrue())
	})

	It("serializes later acquires behind the in-flight fill, FIFO", func() {
		m1 := acquire(0x1000)
		m2 := acquire(0x1000)
		r.Send(m1)
		r.Send(m2)
		step(r.DoReceive, r.DoReceive)

		Expect(mem.ops).To(HaveLen(1))

		r.OnFillComplete(&buf, 0x1000, [coma.LineBytes]byte{})
		buf.Commit()

		step(r.DoDeferred, r.DoDeferred)
		Expect(top.got).To(Equal([]*coma.Msg{m1, m2}))
	})

	It("issues the memory write once a dirty line has gathered every token", func() {
		wb := coma.MsgBuilder{}.
			WithKind(coma.DisseminateTokenData).
			WithAddr(0x2000).
			WithTokens(totalTokens).
			WithData(make([]byte, coma.LineBytes)).
			WithDirty(true).
			Build()
		r.Send(wb)

		step(r.DoReceive)

		Expect(mem.ops).To(Equal([]memOp{{write: true, addr: 0x2000}}))
	})

	It("serializes a deferred write-back behind a pending fill for a reused slot", func() {
		// A fill for the line is in flight when the dirty write-back
		// arrives with every token; the write must not overtake the
		// fill (FIFO per-address ordering).
		r.Send(acquire(0x3000))
		step(r.DoReceive)

		wb := coma.MsgBuilder{}.
			WithKind(coma.DisseminateTokenData).
			WithAddr(0x3000).
			WithTokens(totalTokens).
			WithData(make([]byte, coma.LineBytes)).
			WithDirty(true).
			Build()
		r.Send(wb)
		step(r.DoReceive, r.DoEvict)

		Expect(mem.ops).To(Equal([]memOp{{addr: 0x3000}}))

		r.OnFillComplete(&buf, 0x3000, [coma.LineBytes]byte{})
		buf.Commit()
		step(r.DoEvict)

		Expect(mem.ops).To(Equal([]memOp{
			{addr: 0x3000},
			{write: true, addr: 0x3000},
		}))
	})

	It("answers a repeat acquire from parked state without touching memory", func() {
		wb := coma.MsgBuilder{}.
			WithKind(coma.DisseminateTokenData).
			WithAddr(0x4000).
			WithTokens(totalTokens).
			WithData(make([]byte, coma.LineBytes)).
			Build()
		r.Send(wb)
		step(r.DoReceive)
		mem.ops = nil

		m := acquire(0x4000)
		r.Send(m)
		step(r.DoReceive)

		Expect(mem.ops).To(BeEmpty())
		Expect(top.got).To(Equal([]*coma.Msg{m}))
		Expect(m.Tokens).To(Equal(totalTokens))
	})

	It("never observes addresses outside its split-mode subset", func() {
		owned := rootdir.AddressFilter{Shift: 6, Mod: 2, Index: 0}
		Expect(owned.Owns(0x000)).To(BeTrue())
		Expect(owned.Owns(0x040)).To(BeFalse())
		Expect(owned.Owns(0x080)).To(BeTrue())
	})
})
