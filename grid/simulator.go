package grid

import (
	"github.com/sarchlab/akita/v4/mem/idealmemcontroller"
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/mgsim/coma/localdir"
	"github.com/sarchlab/mgsim/coma/mainmem"
	"github.com/sarchlab/mgsim/coma/rootdir"
	"github.com/sarchlab/mgsim/config"
	"github.com/sarchlab/mgsim/core"
	"github.com/sarchlab/mgsim/sim2"
)

// StepKind classifies what ended a Step (spec.md §6: "returns one of
// {idle, deadlock, breakpoint, program_exit}").
type StepKind int

const (
	// Idle: no component has queued or in-flight work left.
	Idle StepKind = iota
	// Deadlock: structural — every process failed for a full window
	// of cycles while work remained (spec.md §5).
	Deadlock
	// Breakpoint: the step budget ran out before the grid went idle.
	Breakpoint
	// ProgramExit: a collaborator requested exit with a code.
	ProgramExit
)

// String names the step outcome.
func (k StepKind) String() string {
	switch k {
	case Idle:
		return "idle"
	case Deadlock:
		return "deadlock"
	case Breakpoint:
		return "breakpoint"
	case ProgramExit:
		return "program_exit"
	default:
		return "unknown"
	}
}

// StepResult is Step's outcome.
type StepResult struct {
	Kind     StepKind
	ExitCode int
	Cycles   int
}

// Simulator owns a built grid and drives it cycle by cycle.
type Simulator struct {
	name string

	cores  []*core.Core
	dirs   []*localdir.Directory
	root   *rootdir.Root
	fabric *sim2.Scheduler

	engine  sim.Engine
	flat    *flatMemory
	mainMem *mainmem.Comp
	dram    *idealmemcontroller.Comp

	components map[string]any

	exitRequested bool
	exitCode      int
}

// Construct builds a grid from the flat configuration surface and
// returns its cores (spec.md §6 "Construction").
func Construct(configMap map[string]string, gridSize int) ([]*core.Core, *Simulator, error) {
	cfg, err := config.Parse(configMap)
	if err != nil {
		return nil, nil, err
	}
	s := MakeBuilder().
		WithGridSize(gridSize).
		WithConfig(cfg).
		Build("Grid")
	return s.cores, s, nil
}

// Name returns the grid's name.
func (s *Simulator) Name() string { return s.name }

// Cores returns the grid's cores in ring order.
func (s *Simulator) Cores() []*core.Core { return s.cores }

// Root returns the root directory, for invariant checks.
func (s *Simulator) Root() *rootdir.Root { return s.root }

// LoadImage places program bytes into the backing store.
func (s *Simulator) LoadImage(addr uint64, data []byte) {
	if s.flat != nil {
		s.flat.Write(addr, data)
		return
	}
	if err := s.dram.Storage.Write(addr, data); err != nil {
		panic(err)
	}
}

// ReadImage copies bytes back out of the backing store.
func (s *Simulator) ReadImage(addr uint64, n int) []byte {
	if s.flat != nil {
		return s.flat.Read(addr, n)
	}
	data, err := s.dram.Storage.Read(addr, uint64(n))
	if err != nil {
		panic(err)
	}
	return data
}

// RequestExit lets a collaborator (MMIO, driver) end the simulation
// with an exit code at the next cycle boundary.
func (s *Simulator) RequestExit(code int) {
	s.exitRequested = true
	s.exitCode = code
}

// busy reports whether anything in the grid still has work.
func (s *Simulator) busy() bool {
	for _, c := range s.cores {
		if c.Busy() {
			return true
		}
	}
	for _, d := range s.dirs {
		if d.Pending() > 0 {
			return true
		}
	}
	if s.root.Pending() > 0 {
		return true
	}
	if s.flat != nil && s.flat.Busy() {
		return true
	}
	return false
}

// deadlockWindow is how many consecutive zero-progress cycles with
// work outstanding count as a structural deadlock.
const deadlockWindow = 8

// Step advances the grid by at most n cycles (spec.md §6 "Stepping").
func (s *Simulator) Step(n int) StepResult {
	stalled := 0
	for cycle := 0; cycle < n; cycle++ {
		if s.exitRequested {
			return StepResult{Kind: ProgramExit, ExitCode: s.exitCode, Cycles: cycle}
		}

		progress := false
		for _, c := range s.cores {
			if c.Tick() {
				progress = true
			}
		}
		if s.fabric.RunCycle() {
			progress = true
		}
		if s.engine != nil {
			// Drain the akita event queue so memory traffic issued
			// this cycle completes before the next one fires.
			if err := s.engine.Run(); err != nil {
				panic(err)
			}
		}

		if !s.busy() {
			return StepResult{Kind: Idle, Cycles: cycle + 1}
		}
		if progress {
			stalled = 0
			continue
		}
		stalled++
		if stalled >= deadlockWindow {
			s.dumpStalls()
			return StepResult{Kind: Deadlock, Cycles: cycle + 1}
		}
	}
	return StepResult{Kind: Breakpoint, Cycles: n}
}

// dumpStalls reports every stalled process, the §7 deadlock dump.
func (s *Simulator) dumpStalls() {
	for _, c := range s.cores {
		warnStalls(c.Name(), c.StallReasons())
	}
	warnStalls(s.fabric.Name(), s.fabric.StallReasons())
}
