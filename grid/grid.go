// Package grid assembles the whole Microgrid: cores, their link and
// delegate planes, the per-cluster local directories, the root
// directory, and the backing store, and drives them as one simulation
// (spec.md §6 "External Interfaces").
package grid

import (
	"log/slog"

	"github.com/sarchlab/akita/v4/mem/idealmemcontroller"
	"github.com/sarchlab/akita/v4/mem/mem"
	"github.com/sarchlab/akita/v4/monitoring"
	"github.com/sarchlab/akita/v4/sim"
	"github.com/sarchlab/akita/v4/sim/directconnection"

	"github.com/sarchlab/mgsim/coma/evictbuf"
	"github.com/sarchlab/mgsim/coma/localdir"
	"github.com/sarchlab/mgsim/coma/mainmem"
	"github.com/sarchlab/mgsim/coma/rootdir"
	"github.com/sarchlab/mgsim/config"
	"github.com/sarchlab/mgsim/core"
	"github.com/sarchlab/mgsim/ids"
	"github.com/sarchlab/mgsim/netplane"
	"github.com/sarchlab/mgsim/sim2"
)

// Builder can build Microgrids.
type Builder struct {
	engine  sim.Engine
	freq    sim.Freq
	monitor *monitoring.Monitor

	gridSize    int
	clusterSize int
	cfg         *config.Config
}

// MakeBuilder creates a builder with a one-core default grid.
func MakeBuilder() Builder {
	return Builder{
		freq:        1 * sim.GHz,
		gridSize:    1,
		clusterSize: 0, // one cluster spanning the grid
	}
}

// WithEngine sets the engine backing the akita components; without
// one the grid runs on its own manual clock and a flat backing store.
func (b Builder) WithEngine(engine sim.Engine) Builder {
	b.engine = engine
	return b
}

// WithFreq sets the shared clock frequency.
func (b Builder) WithFreq(freq sim.Freq) Builder {
	b.freq = freq
	return b
}

// WithMonitor registers every component with an akita monitor.
func (b Builder) WithMonitor(monitor *monitoring.Monitor) Builder {
	b.monitor = monitor
	return b
}

// WithGridSize sets the number of cores.
func (b Builder) WithGridSize(n int) Builder {
	b.gridSize = n
	return b
}

// WithClusterSize sets how many cores share one local directory.
func (b Builder) WithClusterSize(n int) Builder {
	b.clusterSize = n
	return b
}

// WithConfig sets the parsed configuration.
func (b Builder) WithConfig(cfg *config.Config) Builder {
	b.cfg = cfg
	return b
}

// Build creates the grid.
func (b Builder) Build(name string) *Simulator {
	if b.cfg == nil {
		b.cfg = &config.Config{
			Cores:       map[string]config.CoreConfig{},
			Caches:      map[string]config.CacheConfig{},
			Directories: map[string]config.DirectoryConfig{},
			FPUs:        map[string]config.FPUConfig{},
		}
	}
	clusterSize := b.clusterSize
	if clusterSize <= 0 || clusterSize > b.gridSize {
		clusterSize = b.gridSize
	}

	s := &Simulator{
		name:       name,
		engine:     b.engine,
		fabric:     sim2.NewScheduler(name + ".Fabric"),
		components: make(map[string]any),
	}

	links := netplane.NewLinkPlane(b.gridSize, 16)
	delegates := netplane.NewDelegatePlane(b.gridSize, 16)
	s.components[name+".LinkPlane"] = links
	s.components[name+".DelegatePlane"] = delegates

	dirCfg := b.cfg.Directory(name + ".Dir")

	s.buildMemory(b, name, dirCfg)
	s.buildCores(b, name, links, delegates, dirCfg)
	s.buildCoherence(b, name, clusterSize, dirCfg)

	return s
}

func (s *Simulator) buildMemory(b Builder, name string, dirCfg config.DirectoryConfig) {
	filter := rootdir.AddressFilter{}
	rootCfg := rootdir.Config{
		Name:        name + ".Root",
		TotalTokens: dirCfg.NumTokens,
		Capacity:    dirCfg.NumSets * dirCfg.Associativity,
		BufferSize:  dirCfg.IncomingBufferSize,
		Filter:      filter,
	}

	if b.engine != nil {
		ctrl := idealmemcontroller.MakeBuilder().
			WithEngine(b.engine).
			WithNewStorage(4 * mem.GB).
			WithLatency(5).
			Build(name + ".DRAM")
		mm := mainmem.MakeBuilder().
			WithEngine(b.engine).
			WithFreq(b.freq).
			WithMemory(ctrl.GetPortByName("Top").AsRemote()).
			Build(name + ".MainMem")
		conn := directconnection.MakeBuilder().
			WithEngine(b.engine).
			WithFreq(b.freq).
			Build(name + ".MemConn")
		conn.PlugIn(ctrl.GetPortByName("Top"))
		conn.PlugIn(mm.Port())
		rootCfg.Memory = mm
		s.mainMem = mm
		s.dram = ctrl
		s.components[name+".MainMem"] = mm
		if b.monitor != nil {
			b.monitor.RegisterComponent(ctrl)
			b.monitor.RegisterComponent(mm)
		}
	} else {
		s.flat = newFlatMemory()
		rootCfg.Memory = s.flat
	}

	s.root = rootdir.New(rootCfg)
	s.components[rootCfg.Name] = s.root
	if s.flat != nil {
		s.flat.root = s.root
	}
	if s.mainMem != nil {
		s.mainMem.SetListener(s.root)
	}
}

func (s *Simulator) buildCores(
	b Builder,
	name string,
	links *netplane.LinkPlane,
	delegates *netplane.DelegatePlane,
	dirCfg config.DirectoryConfig,
) {
	for i := 0; i < b.gridSize; i++ {
		coreName := fmtCoreName(name, i)
		cc := b.cfg.Core(coreName)
		cacheCfg := b.cfg.Cache(coreName + ".DCache")
		c := core.MakeBuilder().
			WithEngine(b.engine).
			WithFreq(b.freq).
			WithID(ids.CoreID(i), b.gridSize).
			WithRegisters(cc.NumIntRegisters, cc.NumFltRegisters).
			WithContexts(cc.NumFamilies, cc.NumThreads, cc.NumThreads/32+1).
			WithCacheGeometry(cacheCfg.NumSets, cacheCfg.Associativity).
			WithTotalTokens(dirCfg.NumTokens).
			WithPlanes(links, delegates).
			Build(coreName)
		s.cores = append(s.cores, c)
		s.components[coreName] = c
		if b.monitor != nil && b.engine != nil {
			b.monitor.RegisterComponent(c)
		}
	}
}

// buildCoherence wires the clusters' lower rings through their local
// directories and closes the global ring through the root.
func (s *Simulator) buildCoherence(b Builder, name string, clusterSize int, dirCfg config.DirectoryConfig) {
	numClusters := (b.gridSize + clusterSize - 1) / clusterSize

	for cl := 0; cl < numClusters; cl++ {
		first := cl * clusterSize
		last := min(first+clusterSize, b.gridSize)

		eb := evictbuf.NewBuffer(
			fmtDirName(name, cl)+".EvictBuf",
			dirCfg.IncomingBufferSize*2+1,
			dirCfg.IncomingBufferSize*2,
		)
		dir := localdir.New(localdir.Config{
			Name:            fmtDirName(name, cl),
			TotalTokens:     dirCfg.NumTokens,
			Capacity:        dirCfg.NumSets * dirCfg.Associativity,
			BufferSize:      dirCfg.IncomingBufferSize,
			InjectionPolicy: dirCfg.InjectionPolicy,
			EvictBuf:        eb,
		})
		s.dirs = append(s.dirs, dir)
		s.components[dir.Name()] = dir
		s.components[dir.Name()+".EvictBuf"] = eb

		// Lower ring: core -> core -> ... -> directory -> first core.
		for i := first; i < last; i++ {
			if i+1 < last {
				s.cores[i].Node().SetNext(s.cores[i+1].Node())
			} else {
				s.cores[i].Node().SetNext(dir.BelowIntake())
			}
			dir.AddMember(s.cores[i].NodeID())
		}
		dir.SetBelow(s.cores[first].Node())

		s.fabric.Register(sim2.ProcessFunc{ProcName: dir.Name() + ".Below", Fn: s.fabricFn(dir.DoBelow)})
		s.fabric.Register(sim2.ProcessFunc{ProcName: dir.Name() + ".Above", Fn: s.fabricFn(dir.DoAbove)})
		s.fabric.Register(sim2.ProcessFunc{ProcName: dir.Name() + ".Inject", Fn: s.fabricFn(dir.DoInject)})
	}

	// Global ring: each directory forwards to the next; the last
	// reaches the root, which re-enters at the first.
	for i, dir := range s.dirs {
		if i+1 < len(s.dirs) {
			dir.SetAbove(s.dirs[i+1].AboveIntake())
		} else {
			dir.SetAbove(s.root)
		}
	}
	s.root.SetRing(s.dirs[0].AboveIntake())

	s.fabric.Register(sim2.ProcessFunc{ProcName: "Root.Receive", Fn: s.fabricFn(s.root.DoReceive)})
	s.fabric.Register(sim2.ProcessFunc{ProcName: "Root.Deferred", Fn: s.fabricFn(s.root.DoDeferred)})
	s.fabric.Register(sim2.ProcessFunc{ProcName: "Root.Evict", Fn: s.fabricFn(s.root.DoEvict)})
	if s.flat != nil {
		s.fabric.Register(sim2.ProcessFunc{ProcName: "FlatMem.Complete", Fn: s.fabricFn(s.flat.DoComplete)})
	}
}

func (s *Simulator) fabricFn(fn func(*sim2.CommitBuffer) sim2.Result) func(sim2.Cycle) sim2.Result {
	return func(sim2.Cycle) sim2.Result { return fn(s.fabric.Buffer()) }
}

func fmtCoreName(grid string, i int) string {
	return grid + ".Core" + itoa(i)
}

func fmtDirName(grid string, i int) string {
	return grid + ".Dir" + itoa(i)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var buf [8]byte
	n := len(buf)
	for i > 0 {
		n--
		buf[n] = byte('0' + i%10)
		i /= 10
	}
	return string(buf[n:])
}

func warnStalls(name string, reasons map[string]sim2.Result) {
	for proc := range reasons {
		slog.Warn("stalled process", "component", name, "process", proc)
	}
}
