package sim2

import "github.com/sarchlab/akita/v4/sim"

// Message is the common shape of every value moved through a C1/C2
// queue: an akita sim.Msg (so it can travel over akita connections and
// ports unmodified) plus the move-only ownership discipline of
// spec.md §3 ("a message in flight is owned by exactly one ring node
// or queue at a time; transferring a message between components is a
// move").
type Message interface {
	sim.Msg
}

// Meta is embeddable by message types that need Meta() boilerplate
// without declaring their own MsgMeta field; the netplane and coma
// message structs embed sim.MsgMeta directly instead when they also
// implement Clone.
type Meta sim.MsgMeta

// Meta implements sim.Msg.
func (m *Meta) Meta() *sim.MsgMeta { return (*sim.MsgMeta)(m) }
