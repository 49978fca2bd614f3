package retry

import (
	"time"

	"github.com/hugolhafner/go-spout/internal/clock"
	"github.com/hugolhafner/go-spout/kafka"
	"github.com/hugolhafner/go-spout/logger"
	"github.com/hugolhafner/go-spout/message"
)

const unlimited = -1

var _ Service = (*Scheduler)(nil)

type scheduled struct {
	id  message.ID
	due time.Time
}

// Scheduler is the delay based retry Service behind NewBounded and NewUnlimited.
type Scheduler struct {
	maxRetries int
	delay      Delay
	clock      clock.Clock
	logger     logger.Logger

	entries map[message.Key]scheduled
}

// NewBounded retries a message while it has failed at most maxRetries times.
// With maxRetries 2 the third failure is refused.
func NewBounded(maxRetries int, delay Delay, opts ...Option) *Scheduler {
	return newScheduler(max(maxRetries, 0), delay, opts)
}

// NewUnlimited retries every failure.
func NewUnlimited(delay Delay, opts ...Option) *Scheduler {
	return newScheduler(unlimited, delay, opts)
}

func newScheduler(maxRetries int, delay Delay, opts []Option) *Scheduler {
	cfg := newConfig(opts)
	if delay == nil {
		delay = Fixed(0)
	}

	return &Scheduler{
		maxRetries: maxRetries,
		delay:      delay,
		clock:      cfg.clock,
		logger:     cfg.logger.With("component", "retry"),
		entries:    make(map[message.Key]scheduled),
	}
}

func (s *Scheduler) Schedule(id message.ID) bool {
	if s.maxRetries != unlimited && id.NumFails > s.maxRetries {
		s.logger.Debug(
			"Retry budget exhausted",
			"partition", id.TopicPartition.String(),
			"offset", id.Offset,
			"fails", id.NumFails,
			"max_retries", s.maxRetries,
		)
		return false
	}

	due := s.clock.Now().Add(s.delay.Next(uint(max(id.NumFails, 0))))
	s.entries[id.Key()] = scheduled{id: id, due: due}

	s.logger.Debug(
		"Scheduled retry",
		"partition", id.TopicPartition.String(),
		"offset", id.Offset,
		"fails", id.NumFails,
		"due", due,
	)
	return true
}

func (s *Scheduler) IsScheduled(id message.ID) bool {
	_, ok := s.entries[id.Key()]
	return ok
}

func (s *Scheduler) IsReady(id message.ID) bool {
	e, ok := s.entries[id.Key()]
	if !ok {
		return false
	}
	return !s.clock.Now().Before(e.due)
}

func (s *Scheduler) Lookup(key message.Key) (message.ID, bool) {
	e, ok := s.entries[key]
	return e.id, ok
}

func (s *Scheduler) Remove(id message.ID) bool {
	key := id.Key()
	if _, ok := s.entries[key]; !ok {
		return false
	}
	delete(s.entries, key)
	return true
}

func (s *Scheduler) RetainAll(assigned []kafka.TopicPartition) bool {
	keep := kafka.PartitionSet(assigned)
	removed := false
	for key := range s.entries {
		if _, ok := keep[key.TopicPartition]; !ok {
			delete(s.entries, key)
			removed = true
		}
	}
	return removed
}

func (s *Scheduler) RetriablePartitions() []kafka.TopicPartition {
	now := s.clock.Now()
	seen := make(map[kafka.TopicPartition]struct{})
	var tps []kafka.TopicPartition
	for key, e := range s.entries {
		if now.Before(e.due) {
			continue
		}
		if _, ok := seen[key.TopicPartition]; ok {
			continue
		}
		seen[key.TopicPartition] = struct{}{}
		tps = append(tps, key.TopicPartition)
	}
	return tps
}

func (s *Scheduler) ReadyCount() int {
	now := s.clock.Now()
	n := 0
	for _, e := range s.entries {
		if !now.Before(e.due) {
			n++
		}
	}
	return n
}

func (s *Scheduler) ScheduledCount() int {
	return len(s.entries)
}
