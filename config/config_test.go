package config_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/mgsim/coma/localdir"
	"github.com/sarchlab/mgsim/config"
)

var _ = Describe("Parse", func() {
	It("routes keys to sections by key name under an object path", func() {
		cfg, err := config.Parse(map[string]string{
			"CPU0.NumThreads":         "128",
			"CPU0.NumFamilies":        "16",
			"CPU0.DCache.NumSets":     "32",
			"Ring0.Dir.NumTokens":     "8",
			"Ring0.Dir.Associativity": "2",
			"FPU0.LatencyAdd":         "3",
		})
		Expect(err).NotTo(HaveOccurred())

		cc := cfg.Core("CPU0")
		Expect(cc.NumThreads).To(Equal(128))
		Expect(cc.NumFamilies).To(Equal(16))
		// Untouched keys keep their defaults.
		Expect(cc.NumIntRegisters).To(Equal(config.DefaultCoreConfig().NumIntRegisters))

		Expect(cfg.Cache("CPU0.DCache").NumSets).To(Equal(32))

		dir := cfg.Directory("Ring0.Dir")
		Expect(dir.NumTokens).To(Equal(8))
		Expect(dir.Associativity).To(Equal(2))

		Expect(cfg.FPUs["FPU0"].Latencies["Add"]).To(Equal(3))
	})

	It("rejects unknown keys", func() {
		_, err := config.Parse(map[string]string{"CPU0.Bogus": "1"})
		Expect(err).To(HaveOccurred())
	})

	It("rejects non-integer values for integer keys", func() {
		_, err := config.Parse(map[string]string{"CPU0.NumThreads": "many"})
		Expect(err).To(HaveOccurred())
	})

	It("parses the empty-slot-one-eject injection policy and rejects unknown ones", func() {
		cfg, err := config.Parse(map[string]string{
			"D.InjectionPolicy": "empty-slot-one-eject",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Directory("D").InjectionPolicy).To(Equal(localdir.InjectEmptySlotOneEject))

		_, err = config.Parse(map[string]string{"D.InjectionPolicy": "sometimes"})
		Expect(err).To(HaveOccurred())
	})
})
