package localdir

// line is one local-directory entry (spec.md §3 "Directory line").
// All counts obey 0 <= tokens + ntokenline + ntokenrem <= T.
type line struct {
	tag   uint64
	valid bool

	// tokens held at the directory itself.
	tokens int
	// priority marks this directory as the priority-token holder.
	priority bool
	// reserved is true while an off-ring request is outstanding for
	// this line.
	reserved bool

	// ntokenline counts tokens held by the caches below.
	ntokenline int
	// ntokenrem counts tokens in transit between below and above.
	ntokenrem int
	// nrequestin counts foreign requests currently below.
	nrequestin int
	// nrequestout counts our requests currently above.
	nrequestout int
}

// normalize folds negative book-keeping the way the directory does
// after every step (spec.md §4.5): a negative ntokenrem means tokens
// we thought were in transit are actually below, and vice versa.
func (l *line) normalize() {
	if l.ntokenrem < 0 {
		l.ntokenline += l.ntokenrem
		l.ntokenrem = 0
	}
	if l.ntokenline < 0 {
		l.ntokenrem += l.ntokenline
		l.ntokenline = 0
	}
}

// evictable reports whether the line may be dropped from the
// directory: no tokens below and no request of ours above.
func (l *line) evictable() bool {
	return l.ntokenline == 0 && l.nrequestout == 0 && !l.reserved
}
