// Package sim2 implements the per-cycle, two-phase-commit process model
// that every C1/C2 component runs on. It sits on top of
// github.com/sarchlab/akita/v4/sim: one akita tick drives one simulated
// cycle, and within that cycle every registered Process observes only
// end-of-previous-cycle state before a single Commit phase replays all
// staged writes.
package sim2

// Result is returned by a Process at the end of one cycle.
type Result int

const (
	// Success means the process completed its work for this cycle and
	// staged whatever commits it needed.
	Success Result = iota
	// Failed means the process could not make progress this cycle
	// (arbitration loss, full queue, blocked dependency). None of its
	// staged commits are applied.
	Failed
	// Delayed means the process is waiting on a specific event (a fill,
	// a wake-up) to continue a multi-cycle operation. The Scheduler
	// still fires it every cycle; it keeps returning Delayed until the
	// event has arrived. Its staged commits are applied.
	Delayed
)

// String renders the result the way component logs report a stall
// reason.
func (r Result) String() string {
	switch r {
	case Success:
		return "Success"
	case Failed:
		return "Failed"
	case Delayed:
		return "Delayed"
	default:
		return "Unknown"
	}
}
