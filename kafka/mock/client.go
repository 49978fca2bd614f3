package mockkafka

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/hugolhafner/go-spout/kafka"
)

var _ kafka.Source = (*Source)(nil)

// CommitCall is one successful Commit invocation.
type CommitCall struct {
	Offsets map[kafka.TopicPartition]kafka.OffsetAndMetadata
}

// SeekCall records a positional change requested by the spout.
type SeekCall struct {
	Partition kafka.TopicPartition
	Offset    int64
}

type rebalance struct {
	revoked  []kafka.TopicPartition
	assigned []kafka.TopicPartition
}

// Source is an in-memory kafka.Source. Rebalances are queued and delivered to
// the listener on the next Poll, before Poll returns records, mirroring how a
// real group consumer runs its callbacks.
type Source struct {
	mu sync.Mutex

	logs      map[kafka.TopicPartition][]kafka.ConsumerRecord
	positions map[kafka.TopicPartition]int64
	committed map[kafka.TopicPartition]kafka.OffsetAndMetadata

	commits []CommitCall
	seeks   []SeekCall

	subscription kafka.Subscription
	listener     kafka.RebalanceListener
	assigned     []kafka.TopicPartition
	pending      []rebalance
	autoAssigned bool

	autoAssign     bool
	maxPollRecords int
	blockPoll      bool

	pollErr   func() error
	commitErr func() error

	polls      int
	dispatches int
	closed     bool
}

func NewSource(opts ...Option) *Source {
	s := &Source{
		logs:           make(map[kafka.TopicPartition][]kafka.ConsumerRecord),
		positions:      make(map[kafka.TopicPartition]int64),
		committed:      make(map[kafka.TopicPartition]kafka.OffsetAndMetadata),
		autoAssign:     true,
		maxPollRecords: 10,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Factory returns a kafka.SourceFactory that always hands out s.
func (s *Source) Factory() kafka.SourceFactory {
	return func(kafka.SourceConfig) (kafka.Source, error) {
		return s, nil
	}
}

func (s *Source) Subscribe(sub kafka.Subscription, listener kafka.RebalanceListener) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return kafka.ErrClosed
	}
	if s.subscription != nil {
		return kafka.ErrAlreadySubscribed
	}

	s.subscription = sub
	s.listener = listener
	return nil
}

// Dispatch delivers queued rebalances without returning records.
func (s *Source) Dispatch(ctx context.Context) {
	s.mu.Lock()
	subscribed := s.subscription != nil
	s.dispatches++
	s.mu.Unlock()

	if subscribed {
		s.deliver(ctx)
	}
}

// Poll delivers queued rebalances, then returns up to maxPollRecords records
// round robin across assigned partitions starting at each position.
func (s *Source) Poll(ctx context.Context, timeout time.Duration) ([]kafka.ConsumerRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", kafka.ErrInterrupted, err)
	}

	s.mu.Lock()
	if s.subscription == nil {
		s.mu.Unlock()
		return nil, kafka.ErrNotSubscribed
	}
	s.polls++
	if s.autoAssign && !s.autoAssigned {
		s.autoAssigned = true
		if tps := s.matchingLocked(); len(tps) > 0 {
			s.pending = append(s.pending, rebalance{assigned: tps})
		}
	}
	s.mu.Unlock()

	s.deliver(ctx)

	s.mu.Lock()
	pollErr := s.pollErr
	block := s.blockPoll
	s.mu.Unlock()

	if pollErr != nil {
		if err := pollErr(); err != nil {
			return nil, err
		}
	}

	if block {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", kafka.ErrInterrupted, ctx.Err())
		case <-time.After(timeout):
			return nil, nil
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var records []kafka.ConsumerRecord
	for len(records) < s.maxPollRecords {
		progress := false

		for _, tp := range s.assigned {
			rec, ok := s.nextLocked(tp)
			if !ok {
				continue
			}

			records = append(records, rec)
			s.positions[tp] = rec.Offset + 1
			progress = true

			if len(records) >= s.maxPollRecords {
				break
			}
		}

		if !progress {
			break
		}
	}

	return records, nil
}

func (s *Source) deliver(ctx context.Context) {
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.mu.Unlock()
			return
		}
		ev := s.pending[0]
		s.pending = s.pending[1:]
		listener := s.listener

		if len(ev.revoked) > 0 {
			revoked := kafka.PartitionSet(ev.revoked)
			s.assigned = slices.DeleteFunc(
				s.assigned, func(tp kafka.TopicPartition) bool {
					_, ok := revoked[tp]
					return ok
				},
			)
			for _, tp := range ev.revoked {
				delete(s.positions, tp)
			}
		}
		for _, tp := range ev.assigned {
			if !slices.Contains(s.assigned, tp) {
				s.assigned = append(s.assigned, tp)
			}
			if _, ok := s.positions[tp]; !ok {
				s.positions[tp] = s.defaultPositionLocked(tp)
			}
		}
		s.mu.Unlock()

		// listener calls back into Seek and Committed
		if listener == nil {
			continue
		}
		if len(ev.revoked) > 0 {
			listener.OnPartitionsRevoked(ctx, ev.revoked)
		}
		if len(ev.assigned) > 0 {
			listener.OnPartitionsAssigned(ctx, ev.assigned)
		}
	}
}

func (s *Source) defaultPositionLocked(tp kafka.TopicPartition) int64 {
	if om, ok := s.committed[tp]; ok {
		return om.Offset
	}
	return s.startLocked(tp)
}

func (s *Source) startLocked(tp kafka.TopicPartition) int64 {
	log := s.logs[tp]
	if len(log) == 0 {
		return 0
	}
	return log[0].Offset
}

func (s *Source) endLocked(tp kafka.TopicPartition) int64 {
	log := s.logs[tp]
	if len(log) == 0 {
		return 0
	}
	return log[len(log)-1].Offset + 1
}

func (s *Source) nextLocked(tp kafka.TopicPartition) (kafka.ConsumerRecord, bool) {
	log := s.logs[tp]
	pos := s.positions[tp]
	i := sort.Search(
		len(log), func(i int) bool {
			return log[i].Offset >= pos
		},
	)
	if i >= len(log) {
		return kafka.ConsumerRecord{}, false
	}
	return log[i], true
}

func (s *Source) matchingLocked() []kafka.TopicPartition {
	var tps []kafka.TopicPartition
	for tp := range s.logs {
		if s.subscription.Matches(tp.Topic) {
			tps = append(tps, tp)
		}
	}
	sortPartitions(tps)
	return tps
}

func (s *Source) SeekToBeginning(_ context.Context, tps ...kafka.TopicPartition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tp := range tps {
		s.seekLocked(tp, s.startLocked(tp))
	}
	return nil
}

func (s *Source) SeekToEnd(_ context.Context, tps ...kafka.TopicPartition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tp := range tps {
		s.seekLocked(tp, s.endLocked(tp))
	}
	return nil
}

func (s *Source) Seek(tp kafka.TopicPartition, offset int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seekLocked(tp, offset)
}

func (s *Source) seekLocked(tp kafka.TopicPartition, offset int64) {
	s.positions[tp] = offset
	s.seeks = append(s.seeks, SeekCall{Partition: tp, Offset: offset})
}

func (s *Source) Position(_ context.Context, tp kafka.TopicPartition) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.positions[tp]
	if !ok {
		return 0, fmt.Errorf("position %s: partition not assigned", tp)
	}
	return pos, nil
}

func (s *Source) Committed(_ context.Context, tp kafka.TopicPartition) (kafka.OffsetAndMetadata, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	om, ok := s.committed[tp]
	return om, ok, nil
}

func (s *Source) Commit(ctx context.Context, offsets map[kafka.TopicPartition]kafka.OffsetAndMetadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.commitErr != nil {
		if err := s.commitErr(); err != nil {
			return err
		}
	}

	call := CommitCall{Offsets: make(map[kafka.TopicPartition]kafka.OffsetAndMetadata, len(offsets))}
	for tp, om := range offsets {
		s.committed[tp] = om
		call.Offsets[tp] = om
	}
	s.commits = append(s.commits, call)
	return nil
}

func (s *Source) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
}

// AddRecords appends records to a partition log. Offsets left at zero are
// numbered after the current log end.
func (s *Source) AddRecords(topic string, partition int32, records ...kafka.ConsumerRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tp := kafka.TopicPartition{Topic: topic, Partition: partition}
	next := s.endLocked(tp)

	for i := range records {
		records[i].Topic = topic
		records[i].Partition = partition
		if records[i].Offset == 0 {
			records[i].Offset = next
		}
		next = records[i].Offset + 1
	}

	s.logs[tp] = append(s.logs[tp], records...)
}

// SetCommitted sets the group's committed offset (next offset to consume)
// without recording a commit call.
func (s *Source) SetCommitted(tp kafka.TopicPartition, offset int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.committed[tp] = kafka.OffsetAndMetadata{Offset: offset}
}

// SetPollError configures an error returned by every Poll. Pass nil to clear.
func (s *Source) SetPollError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		s.pollErr = nil
	} else {
		s.pollErr = func() error { return err }
	}
}

func (s *Source) SetPollErrorFunc(fn func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pollErr = fn
}

// SetCommitError configures an error returned by every Commit. Pass nil to clear.
func (s *Source) SetCommitError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		s.commitErr = nil
	} else {
		s.commitErr = func() error { return err }
	}
}

// SetBlockPoll makes Poll wait for its timeout or ctx instead of returning records.
func (s *Source) SetBlockPoll(block bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blockPoll = block
}

// TriggerAssign queues an assignment delivered on the next Poll.
func (s *Source) TriggerAssign(partitions ...kafka.TopicPartition) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.autoAssigned = true
	s.pending = append(s.pending, rebalance{assigned: partitions})
}

// TriggerRevoke queues a revocation delivered on the next Poll.
func (s *Source) TriggerRevoke(partitions ...kafka.TopicPartition) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = append(s.pending, rebalance{revoked: partitions})
}

// TriggerRebalance queues a revocation followed by an assignment, the eager
// protocol's full reassignment.
func (s *Source) TriggerRebalance(revoked, assigned []kafka.TopicPartition) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.autoAssigned = true
	s.pending = append(s.pending, rebalance{revoked: revoked, assigned: assigned})
}

func (s *Source) CommittedOffset(tp kafka.TopicPartition) (kafka.OffsetAndMetadata, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	om, ok := s.committed[tp]
	return om, ok
}

func (s *Source) Commits() []CommitCall {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.commits)
}

func (s *Source) Seeks() []SeekCall {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.seeks)
}

func (s *Source) AssignedPartitions() []kafka.TopicPartition {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.assigned)
}

func (s *Source) PollCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.polls
}

func (s *Source) DispatchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.dispatches
}

func (s *Source) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closed
}

func sortPartitions(tps []kafka.TopicPartition) {
	sort.Slice(
		tps, func(i, j int) bool {
			if tps[i].Topic != tps[j].Topic {
				return tps[i].Topic < tps[j].Topic
			}
			return tps[i].Partition < tps[j].Partition
		},
	)
}
