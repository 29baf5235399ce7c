package isa

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ExecInput is what the pipeline's Execute stage hands an opcode's
// handler: the decoded operands, the instruction's PC, and the
// already-read source values (spec.md §4.2: Execute "dispatches by
// opcode").
type ExecInput struct {
	Operands Operands
	PC       uint64
	Rs1Val   uint64
	Rs2Val   uint64
}

// RemoteMessage is the payload an Execute handler attaches to the
// output latch for a family-control pseudo-op, picked up by the
// Allocator (spec.md §4.2).
type RemoteMessage struct {
	Kind    RemoteMessageKind
	Payload uint64
}

// ExecOutput is what an opcode's handler produces.
type ExecOutput struct {
	WriteRd  bool
	Value    uint64
	Branch   bool
	TargetPC uint64
	EffAddr  uint64
	Remote   *RemoteMessage
}

// ExecuteFunc implements one opcode's Execute-stage behavior.
type ExecuteFunc func(in ExecInput) (ExecOutput, error)

// Entry is one dispatch-table row.
type Entry struct {
	Mnemonic string
	Execute  ExecuteFunc
}

// Table is a pluggable, name->behavior opcode dispatch table (spec.md
// Design Note "ISA plug-in"; generalizes the teacher's
// name-to-behavior map to a fixed Opcode key so the pipeline can
// dispatch without a string lookup on every cycle).
type Table struct {
	name    string
	entries map[Opcode]Entry
}

// NewTable builds an empty, named table.
func NewTable(name string) *Table {
	return &Table{name: name, entries: make(map[Opcode]Entry)}
}

// Name returns the ISA name this table implements.
func (t *Table) Name() string { return t.name }

// Register adds or replaces an opcode's entry. The mnemonic is
// canonicalized (title case) so aliases registered in different cases
// by different plug-ins still dump consistently in traces.
func (t *Table) Register(op Opcode, mnemonic string, execute ExecuteFunc) {
	t.entries[op] = Entry{Mnemonic: canonicalMnemonic(mnemonic), Execute: execute}
}

// Lookup returns the entry for an opcode, if one is registered.
func (t *Table) Lookup(op Opcode) (Entry, bool) {
	e, ok := t.entries[op]
	return e, ok
}

var titleCaser = cases.Title(language.English)

func canonicalMnemonic(s string) string { return titleCaser.String(s) }
