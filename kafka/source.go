package kafka

import (
	"context"
	"time"
)

// Source is the partition-level view of a log consumer that the spout drives.
//
// Implementations deliver RebalanceListener callbacks on the goroutine that is
// blocked in Poll, before Poll returns, or inside Dispatch. Every other method
// is called from that same goroutine. Seeks made by OnPartitionsAssigned decide
// where fetching of the assigned partitions starts.
type Source interface {
	Subscribe(sub Subscription, listener RebalanceListener) error

	// Dispatch delivers pending rebalance callbacks without fetching and never
	// blocks on the log.
	Dispatch(ctx context.Context)

	// Poll blocks for at most timeout. When ctx is cancelled while blocked the
	// returned error wraps ErrInterrupted.
	Poll(ctx context.Context, timeout time.Duration) ([]ConsumerRecord, error)

	SeekToBeginning(ctx context.Context, tps ...TopicPartition) error
	SeekToEnd(ctx context.Context, tps ...TopicPartition) error
	Seek(tp TopicPartition, offset int64)

	// Position returns the offset of the next record Poll will return for tp.
	Position(ctx context.Context, tp TopicPartition) (int64, error)

	// Committed returns the group's committed offset for tp. The bool is false
	// when the group never committed tp.
	Committed(ctx context.Context, tp TopicPartition) (OffsetAndMetadata, bool, error)

	Commit(ctx context.Context, offsets map[TopicPartition]OffsetAndMetadata) error

	Close()
}

type RebalanceListener interface {
	OnPartitionsRevoked(ctx context.Context, partitions []TopicPartition)
	OnPartitionsAssigned(ctx context.Context, partitions []TopicPartition)
}

// SourceConfig is the subset of spout configuration a SourceFactory needs.
type SourceConfig struct {
	BootstrapServers []string
	GroupID          string
	AutoCommit       bool
	MaxPollRecords   int
}

type SourceFactory func(cfg SourceConfig) (Source, error)
