package allocator

import "github.com/sarchlab/mgsim/ids"

// bundleState is DoBundle's state enum (spec.md §4.1 DoBundle):
// reads a three-word (place, pc, index) descriptor from the D-Cache,
// then queues an exclusive single-core allocate for the descriptor's pc
// on this core's own exclusive queue. The place and index words are
// loaded but not used: the allocate is not sent to another place.
type bundleState int

const (
	bsInitial bundleState = iota
	bsLoadingDescriptor
	bsDescriptorLoaded
	bsIssuing
	bsDone
)

// bundleCtx is the latch carried between cycles by one in-flight
// bundle creation.
type bundleCtx struct {
	state bundleState

	descAddr  uint64
	requester ids.ThreadID

	place uint64
	pc    uint64
	index uint64

	wordsLoaded int
}
