package sim2

import "github.com/pkg/errors"

// FaultKind is the error taxonomy of spec.md §7.
type FaultKind int

const (
	// IllegalInstruction is raised by Decode on an invalid operand
	// class or a register-window overflow.
	IllegalInstruction FaultKind = iota
	// InvalidArgument is raised on malformed FIDs, misaligned MMIO
	// accesses, or overlapping directory address reservations.
	InvalidArgument
	// Security is raised on execution from non-executable memory or
	// an out-of-grant DCA access.
	Security
	// Simulation is a generic assertion-violation of an invariant.
	Simulation
	// Deadlock is raised structurally when every process in the
	// system returns Failed for a full cycle.
	Deadlock
)

// String names the fault kind for the user-visible exit report.
func (k FaultKind) String() string {
	switch k {
	case IllegalInstruction:
		return "IllegalInstruction"
	case InvalidArgument:
		return "InvalidArgument"
	case Security:
		return "Security"
	case Simulation:
		return "Simulation"
	case Deadlock:
		return "Deadlock"
	default:
		return "Unknown"
	}
}

// Fault describes one of the fatal conditions of spec.md §7. Faults
// are not delivered to the outer driver: the core's register resolver
// returns them to the pipeline's Decode stage, which turns any error
// into sim2.Failed, so the faulting stage is rolled back and retried
// every cycle and Simulator.Step does not report the fault.
type Fault struct {
	Kind      FaultKind
	Component string
	Cycle     Cycle
	Detail    string
	cause     error
}

// Error implements the error interface so a Fault can be returned
// and wrapped like any other Go error at the component/driver
// boundary.
func (f *Fault) Error() string {
	return f.Kind.String() + " in " + f.Component + " at cycle " +
		itoa(uint64(f.Cycle)) + ": " + f.Detail
}

// Unwrap exposes the underlying cause, if any, to errors.Is/As.
func (f *Fault) Unwrap() error { return f.cause }

// NewFault builds a fault and immediately wraps it with a stack trace
// via github.com/pkg/errors, so the outer driver's report includes
// the Go call stack that raised it alongside the simulated cycle and
// component that faulted.
func NewFault(kind FaultKind, component string, cycle Cycle, detail string) error {
	f := &Fault{Kind: kind, Component: component, Cycle: cycle, Detail: detail}
	return errors.WithStack(f)
}

// AsFault unwraps err looking for a *Fault. Nothing in this module
// calls it.
func AsFault(err error) (*Fault, bool) {
	var f *Fault
	ok := errors.As(err, &f)
	return f, ok
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
