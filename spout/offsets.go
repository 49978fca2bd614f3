package spout

import (
	"fmt"
	"strings"

	"github.com/google/btree"
	"github.com/hugolhafner/go-spout/kafka"
	"github.com/hugolhafner/go-spout/logger"
	"github.com/hugolhafner/go-spout/message"
)

const ackedDegree = 16

// offsetEntry is the acknowledgment window of one partition. committed is the
// last processed offset; every acked ID is strictly above it.
type offsetEntry struct {
	tp                 kafka.TopicPartition
	initialFetchOffset int64
	committed          int64
	// highestSeen is the largest offset handed to the emit path; the gap to
	// committed is this partition's share of the uncommitted counter.
	highestSeen int64

	acked  *btree.BTreeG[message.ID]
	logger logger.Logger
}

func newOffsetEntry(tp kafka.TopicPartition, initialFetchOffset int64, l logger.Logger) *offsetEntry {
	return &offsetEntry{
		tp:                 tp,
		initialFetchOffset: initialFetchOffset,
		committed:          initialFetchOffset - 1,
		highestSeen:        initialFetchOffset - 1,
		acked:              btree.NewG(ackedDegree, message.ID.Less),
		logger:             l,
	}
}

// add records an acknowledgment. IDs at or below the committed offset are
// late duplicates and are dropped.
func (e *offsetEntry) add(id message.ID) bool {
	if id.Offset <= e.committed {
		e.logger.Warn(
			"Ack for offset at or below committed offset, ignoring",
			"partition", e.tp.String(),
			"offset", id.Offset,
			"committed", e.committed,
		)
		return false
	}
	e.acked.ReplaceOrInsert(id)
	return true
}

func (e *offsetEntry) contains(offset int64) bool {
	return e.acked.Has(message.ID{Offset: offset})
}

// observe accounts offset as fetched and returns how much the uncommitted
// counter grows.
func (e *offsetEntry) observe(offset int64) int64 {
	if offset <= e.highestSeen {
		return 0
	}
	delta := offset - e.highestSeen
	e.highestSeen = offset
	return delta
}

func (e *offsetEntry) outstanding() int64 {
	return max(e.highestSeen-e.committed, 0)
}

// findNextCommitOffset returns the largest offset such that every offset in
// (committed, offset] has been acknowledged. ok is false when the next
// expected offset has not been acked yet.
func (e *offsetEntry) findNextCommitOffset() (kafka.OffsetAndMetadata, bool) {
	next := e.committed
	var metadata string
	found := false

	e.acked.Ascend(
		func(id message.ID) bool {
			switch {
			case id.Offset == next+1:
				next = id.Offset
				metadata = id.Metadata
				found = true
				return true
			case id.Offset > next+1:
				e.logger.Debug(
					"Gap in acked offsets, waiting for more acks",
					"partition", e.tp.String(),
					"expected", next+1,
					"found", id.Offset,
				)
				return false
			default:
				e.logger.Warn(
					"Unexpected offset in acked set",
					"partition", e.tp.String(),
					"offset", id.Offset,
					"committed", e.committed,
				)
				return true
			}
		},
	)

	if !found {
		return kafka.OffsetAndMetadata{}, false
	}
	return kafka.OffsetAndMetadata{Offset: next, Metadata: metadata}, true
}

// commit advances the committed offset and prunes the acked set. It returns
// how many offsets the commit moved past.
func (e *offsetEntry) commit(offset int64) int64 {
	if offset <= e.committed {
		return 0
	}

	for {
		low, ok := e.acked.Min()
		if !ok || low.Offset > offset {
			break
		}
		e.acked.DeleteMin()
	}

	before := e.outstanding()
	delta := offset - e.committed
	e.committed = offset
	if offset > e.highestSeen {
		e.highestSeen = offset
	}

	e.logger.Debug(
		"Committed offsets",
		"partition", e.tp.String(),
		"from", offset-delta+1,
		"to", offset,
		"count", delta,
	)
	return before - e.outstanding()
}

func (e *offsetEntry) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "offsetEntry{tp=%s, initial=%d, committed=%d, acked=[", e.tp, e.initialFetchOffset, e.committed)
	first := true
	e.acked.Ascend(
		func(id message.ID) bool {
			if !first {
				b.WriteString(",")
			}
			first = false
			fmt.Fprintf(&b, "%d", id.Offset)
			return true
		},
	)
	b.WriteString("]}")
	return b.String()
}

// offsetTracker owns one offsetEntry per tracked partition.
type offsetTracker struct {
	entries map[kafka.TopicPartition]*offsetEntry
	logger  logger.Logger
}

func newOffsetTracker(l logger.Logger) *offsetTracker {
	return &offsetTracker{
		entries: make(map[kafka.TopicPartition]*offsetEntry),
		logger:  l,
	}
}

// seed creates an entry for tp unless one exists. A partition that comes back
// after a rebalance resumes where it stopped.
func (t *offsetTracker) seed(tp kafka.TopicPartition, initialFetchOffset int64) bool {
	if _, ok := t.entries[tp]; ok {
		return false
	}
	t.entries[tp] = newOffsetEntry(tp, initialFetchOffset, t.logger)
	return true
}

func (t *offsetTracker) get(tp kafka.TopicPartition) (*offsetEntry, bool) {
	e, ok := t.entries[tp]
	return e, ok
}

// retainOnly drops entries of partitions outside assigned and returns their
// outstanding offsets.
func (t *offsetTracker) retainOnly(assigned map[kafka.TopicPartition]struct{}) int64 {
	var released int64
	for tp, e := range t.entries {
		if _, ok := assigned[tp]; ok {
			continue
		}
		released += e.outstanding()
		delete(t.entries, tp)
	}
	return released
}

// nextCommitOffsets collects commit candidates in engine semantics.
func (t *offsetTracker) nextCommitOffsets() map[kafka.TopicPartition]kafka.OffsetAndMetadata {
	out := make(map[kafka.TopicPartition]kafka.OffsetAndMetadata)
	for tp, e := range t.entries {
		if om, ok := e.findNextCommitOffset(); ok {
			out[tp] = om
		}
	}
	return out
}

func (t *offsetTracker) pendingAcks() int {
	n := 0
	for _, e := range t.entries {
		n += e.acked.Len()
	}
	return n
}
