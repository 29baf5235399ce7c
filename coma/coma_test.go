package coma_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/mgsim/coma"
)

var _ = Describe("MsgBuilder", func() {
	It("carries every protocol field onto the message", func() {
		data := make([]byte, coma.LineBytes)
		data[3] = 0x7F
		m := coma.MsgBuilder{}.
			WithKind(coma.AcquireTokenData).
			WithAddr(0x1040).
			WithSource(coma.NodeID(5)).
			WithTokens(2).
			WithTokensRequested(4).
			WithTransient(true).
			WithPriority(true).
			WithData(data).
			WithDirty(true).
			Build()

		Expect(m.Kind).To(Equal(coma.AcquireTokenData))
		Expect(m.Addr).To(Equal(uint64(0x1040)))
		Expect(m.Source).To(Equal(coma.NodeID(5)))
		Expect(m.Tokens).To(Equal(2))
		Expect(m.TokensRequested).To(Equal(4))
		Expect(m.Transient).To(BeTrue())
		Expect(m.Priority).To(BeTrue())
		Expect(m.DataValid).To(BeTrue())
		Expect(m.Data[3]).To(Equal(byte(0x7F)))
		Expect(m.Dirty).To(BeTrue())
		Expect(m.Meta().ID).NotTo(BeEmpty())
	})

	It("leaves DataValid clear when no data is attached", func() {
		m := coma.MsgBuilder{}.WithKind(coma.AcquireToken).Build()
		Expect(m.DataValid).To(BeFalse())
	})

	It("clones with a fresh message identity", func() {
		m := coma.MsgBuilder{}.WithKind(coma.DisseminateTokenData).WithTokens(3).Build()
		c := m.Clone().(*coma.Msg)
		Expect(c.Tokens).To(Equal(3))
		Expect(c.Meta().ID).NotTo(Equal(m.Meta().ID))
	})
})
