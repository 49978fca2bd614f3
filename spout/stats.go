package spout

import "sync/atomic"

// Stats is a point-in-time view of the spout, published after every call on
// the owning goroutine.
type Stats struct {
	Active      bool
	Initialized bool

	AssignedPartitions int
	UncommittedOffsets int64
	InFlight           int
	PendingCommit      int
	ScheduledRetries   int
	Buffered           int

	RecordsPolled    uint64
	TuplesEmitted    uint64
	TuplesAcked      uint64
	TuplesFailed     uint64
	RetriesExhausted uint64
	OffsetsCommitted uint64
	CommitErrors     uint64
	PollErrors       uint64
}

type statsBox struct {
	v atomic.Pointer[Stats]
}

func (b *statsBox) load() Stats {
	if s := b.v.Load(); s != nil {
		return *s
	}
	return Stats{}
}

func (b *statsBox) store(s Stats) {
	b.v.Store(&s)
}
