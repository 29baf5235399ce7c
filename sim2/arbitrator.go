package sim2

// An Arbitrator resolves contention over one multiply-written storage
// element (spec.md §5: "Each multiply-written storage element has an
// arbitrator ... with a fixed priority list of processes"). Processes
// that want the storage this cycle call Want during phase 1; whichever
// registered process appears earliest in the fixed priority list wins,
// and every other contender must treat the cycle as a loss (return
// Failed without staging the write). The Register File's WritePort is
// the one Arbitrator built in this module; none of its writers
// (pipeline Writeback, memory fill, network delivery) calls Want on it.
type Arbitrator struct {
	priority []string
	rank     map[string]int
	wants    map[Cycle][]string
}

// NewArbitrator creates an arbitrator with a fixed priority order,
// highest priority first.
func NewArbitrator(priority []string) *Arbitrator {
	rank := make(map[string]int, len(priority))
	for i, name := range priority {
		rank[name] = i
	}
	return &Arbitrator{
		priority: priority,
		rank:     rank,
		wants:    make(map[Cycle][]string),
	}
}

// Want registers that the named process would like to write this
// cycle. It is idempotent per (cycle, name).
func (a *Arbitrator) Want(cycle Cycle, name string) {
	if _, ok := a.rank[name]; !ok {
		panic("sim2: arbitrator has no priority entry for " + name)
	}
	for _, n := range a.wants[cycle] {
		if n == name {
			return
		}
	}
	a.wants[cycle] = append(a.wants[cycle], name)
}

// Winner returns the highest-priority contender that called Want this
// cycle, if any.
func (a *Arbitrator) Winner(cycle Cycle) (string, bool) {
	contenders := a.wants[cycle]
	if len(contenders) == 0 {
		return "", false
	}

	best := contenders[0]
	for _, n := range contenders[1:] {
		if a.rank[n] < a.rank[best] {
			best = n
		}
	}
	return best, true
}

// Granted reports whether name won arbitration this cycle.
func (a *Arbitrator) Granted(cycle Cycle, name string) bool {
	winner, ok := a.Winner(cycle)
	return ok && winner == name
}

// Forget discards bookkeeping for a cycle once it has been fully
// committed, so long-running simulations do not leak memory.
func (a *Arbitrator) Forget(cycle Cycle) {
	delete(a.wants, cycle)
}
