package retry

import (
	"github.com/hugolhafner/go-spout/kafka"
	"github.com/hugolhafner/go-spout/message"
)

// Service decides whether and when a failed message is emitted again.
// Implementations are not safe for concurrent use; the spout calls them
// from its owning goroutine only.
type Service interface {
	// Schedule records id for a later retry. It returns false when the retry
	// budget is exhausted, in which case nothing is scheduled.
	Schedule(id message.ID) bool
	IsScheduled(id message.ID) bool
	// IsReady reports whether id is scheduled and its retry time has passed.
	IsReady(id message.ID) bool
	// Lookup returns the scheduled identity for key, carrying its failure count.
	Lookup(key message.Key) (message.ID, bool)
	Remove(id message.ID) bool
	// RetainAll drops schedules of partitions not in assigned and reports
	// whether anything was dropped.
	RetainAll(assigned []kafka.TopicPartition) bool
	// RetriablePartitions lists partitions holding at least one ready retry.
	RetriablePartitions() []kafka.TopicPartition
	ReadyCount() int
	ScheduledCount() int
}
