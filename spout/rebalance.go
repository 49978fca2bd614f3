package spout

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/hugolhafner/go-spout/kafka"
)

var _ kafka.RebalanceListener = (*rebalanceListener)(nil)

// rebalanceListener runs inside Source.Poll on the owning goroutine.
type rebalanceListener struct {
	s *Spout
}

func (l *rebalanceListener) OnPartitionsRevoked(ctx context.Context, partitions []kafka.TopicPartition) {
	l.s.onRevoked(ctx, partitions)
}

func (l *rebalanceListener) OnPartitionsAssigned(ctx context.Context, partitions []kafka.TopicPartition) {
	l.s.onAssigned(ctx, partitions)
}

func (s *Spout) onRevoked(ctx context.Context, partitions []kafka.TopicPartition) {
	s.logger.Info("Partitions revoked", "partitions", partitionList(partitions))

	if !s.cfg.AutoCommitMode && s.initialized {
		if err := s.commitAcked(ctx); err != nil {
			s.logger.Warn("Commit before revocation failed", "error", err)
		}
	}
	s.initialized = false

	removed := 0
	for _, tp := range partitions {
		if _, ok := s.assigned[tp]; ok {
			delete(s.assigned, tp)
			removed++
		}
		delete(s.unpositioned, tp)
	}
	s.telemetry.PartitionsAssigned.Add(ctx, int64(-removed))

	// offset entries stay until the next assignment so a partition handed
	// straight back resumes in place
	if dropped := s.emitted.dropPartitions(partitions); dropped > 0 {
		s.logger.Info("Dropped in-flight tuples of revoked partitions", "count", dropped)
	}
	if dropped := s.cursor.dropPartitions(partitions); dropped > 0 {
		s.logger.Debug("Dropped buffered records of revoked partitions", "count", dropped)
	}
}

func (s *Spout) onAssigned(ctx context.Context, partitions []kafka.TopicPartition) {
	s.logger.Info("Partitions assigned", "partitions", partitionList(partitions))

	added := 0
	for _, tp := range partitions {
		if _, ok := s.assigned[tp]; !ok {
			s.assigned[tp] = struct{}{}
			added++
		}
	}
	s.telemetry.PartitionsAssigned.Add(ctx, int64(added))

	released := s.tracker.retainOnly(s.assigned)
	s.addUncommitted(ctx, -released)
	s.retry.RetainAll(slices.Collect(maps.Keys(s.assigned)))
	s.emitted.retainOnly(s.assigned)

	for _, tp := range partitions {
		if err := s.position(ctx, tp); err != nil {
			s.logger.Warn("Failed to position partition, will retry", "partition", tp.String(), "error", err)
			s.unpositioned[tp] = struct{}{}
		}
	}

	s.initialized = true
	s.logger.Info("Initialization complete", "assigned", len(s.assigned), "unpositioned", len(s.unpositioned))
}

// positionPending retries partitions whose fetch position could not be
// resolved during assignment.
func (s *Spout) positionPending(ctx context.Context) {
	for tp := range s.unpositioned {
		if err := s.position(ctx, tp); err != nil {
			s.logger.Debug("Partition still unpositioned", "partition", tp.String(), "error", err)
			continue
		}
		delete(s.unpositioned, tp)
		s.logger.Info("Partition positioned", "partition", tp.String())
	}
}

// position seeks tp per the first poll strategy and seeds its offset entry.
// A partition that is already tracked resumes after its committed offset.
func (s *Spout) position(ctx context.Context, tp kafka.TopicPartition) error {
	if entry, ok := s.tracker.get(tp); ok {
		s.source.Seek(tp, entry.committed+1)
		s.logger.Debug("Resuming partition", "partition", tp.String(), "fetch_offset", entry.committed+1)
		return nil
	}

	fetchOffset, err := s.resolveFetchOffset(ctx, tp)
	if err != nil {
		return err
	}

	s.tracker.seed(tp, fetchOffset)
	s.logger.Debug("Tracking partition", "partition", tp.String(), "fetch_offset", fetchOffset)
	return nil
}

func (s *Spout) resolveFetchOffset(ctx context.Context, tp kafka.TopicPartition) (int64, error) {
	committed, ok, err := s.source.Committed(ctx, tp)
	if err != nil {
		return 0, fmt.Errorf("committed offset of %s: %w", tp, err)
	}

	strategy := s.cfg.FirstPollOffsetStrategy
	switch {
	case ok && strategy == UncommittedEarliest, ok && strategy == UncommittedLatest:
		s.source.Seek(tp, committed.Offset)
		return committed.Offset, nil
	case strategy == Earliest, strategy == UncommittedEarliest:
		err = s.source.SeekToBeginning(ctx, tp)
	default:
		err = s.source.SeekToEnd(ctx, tp)
	}
	if err != nil {
		return 0, fmt.Errorf("seek %s: %w", tp, err)
	}

	pos, err := s.source.Position(ctx, tp)
	if err != nil {
		return 0, fmt.Errorf("position of %s: %w", tp, err)
	}
	return pos, nil
}

func partitionList(tps []kafka.TopicPartition) []string {
	out := make([]string, len(tps))
	for i, tp := range tps {
		out[i] = tp.String()
	}
	return out
}
