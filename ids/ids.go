// Package ids defines the dense, stable index types used to reference
// Threads, Families, and registers. Per the "Cyclic family/thread
// graphs" design note, entities never hold pointers to each other;
// they hold one of these indices, which stays valid even if the
// pointed-to table entry is later reallocated for something else
// (reuse is guarded by generation counters where that matters).
package ids

// ThreadID indexes a row of a core's Thread Table. The zero value is
// a valid table index; use InvalidThread for "no thread".
type ThreadID uint32

// InvalidThread marks the absence of a thread, e.g. an empty wait
// list or a family with no successor thread in a block.
const InvalidThread ThreadID = ^ThreadID(0)

// FamilyID indexes a row of a core's Family Table.
type FamilyID uint32

// InvalidFamily marks the absence of a family, e.g. "no link FID on
// the next core".
const InvalidFamily FamilyID = ^FamilyID(0)

// CoreID indexes a core within a grid (place).
type CoreID uint32

// RegType is the semantic type of a register.
type RegType int

const (
	// Integer registers.
	Integer RegType = iota
	// Float registers.
	Float
	// NumRegTypes is the number of register types/classes modeled.
	NumRegTypes
)

// String names the register type for log fields and dumps.
func (t RegType) String() string {
	switch t {
	case Integer:
		return "Integer"
	case Float:
		return "Float"
	default:
		return "Unknown"
	}
}

// RegIndex is a dense, core-wide register index within one RegType's
// bank (the Register File is banked per RegType).
type RegIndex uint32

// RegClass partitions a family's 32-register logical window, as
// decoded by the ISA table (spec.md §4.2 Decode, §6 register-count
// encoding).
type RegClass int

const (
	// ClassGlobal registers are shared read-only across all threads
	// of a family (initialized once, by the parent).
	ClassGlobal RegClass = iota
	// ClassShared registers carry values between adjacent threads in
	// program order (producer writes, next consumer reads).
	ClassShared
	// ClassLocal registers are private per thread.
	ClassLocal
	// ClassDependent registers are the "last shared" view a thread
	// reads from its predecessor.
	ClassDependent
	// ClassZero is read-as-zero, write-discarded.
	ClassZero
)
