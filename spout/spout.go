package spout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hugolhafner/dskit/backoff"
	"github.com/hugolhafner/go-spout/committer"
	"github.com/hugolhafner/go-spout/internal/clock"
	"github.com/hugolhafner/go-spout/kafka"
	"github.com/hugolhafner/go-spout/logger"
	spoutotel "github.com/hugolhafner/go-spout/otel"
	"github.com/hugolhafner/go-spout/retry"
	"github.com/hugolhafner/go-spout/translator"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
)

// Spout turns a partitioned log into individually acknowledged tuples with
// at-least-once delivery.
//
// A Spout has a single owner: Open, Activate, Deactivate, Close, NextTuple,
// Ack, Fail and the rebalance callbacks the source delivers from inside Poll
// must all run on one goroutine. Only Stats may be called concurrently.
type Spout struct {
	cfg          Config
	factory      kafka.SourceFactory
	subscription kafka.Subscription

	logger           logger.Logger
	retry            retry.Service
	translator       translator.Translator
	telemetry        *spoutotel.Telemetry
	clock            clock.Clock
	pollErrorBackoff backoff.Backoff
	committerOpt     committer.Committer

	collector   Collector
	source      kafka.Source
	commitTimer committer.Committer

	opened      bool
	active      bool
	initialized bool

	assigned     map[kafka.TopicPartition]struct{}
	unpositioned map[kafka.TopicPartition]struct{}
	tracker      *offsetTracker
	emitted      *emittedSet
	cursor       cursor
	uncommitted  int64

	pollErrAttempts uint
	pollRetryAt     time.Time

	totals Stats
	stats  statsBox
}

// New validates cfg and builds an unopened spout. factory is called on every
// Activate.
func New(factory kafka.SourceFactory, cfg Config, opts ...Option) (*Spout, error) {
	if factory == nil {
		return nil, fmt.Errorf("%w: nil source factory", ErrInvalidConfig)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sub, err := cfg.Subscription()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	o := options{
		logger:           logger.NewNoopLogger(),
		translator:       translator.Default{},
		telemetry:        spoutotel.Noop(),
		clock:            clock.Real{},
		pollErrorBackoff: backoff.NewFixed(cfg.PollErrorBackoff),
	}
	for _, opt := range opts {
		opt(&o)
	}

	l := o.logger.With("component", "spout", "group", cfg.ConsumerGroupID)
	if o.retry == nil {
		o.retry = cfg.Retry.Service(o.clock, l)
	}

	s := &Spout{
		cfg:              cfg,
		factory:          factory,
		subscription:     sub,
		logger:           l,
		retry:            o.retry,
		translator:       o.translator,
		telemetry:        o.telemetry,
		clock:            o.clock,
		pollErrorBackoff: o.pollErrorBackoff,
		committerOpt:     o.committer,
	}
	s.reset()
	return s, nil
}

func (s *Spout) reset() {
	s.assigned = make(map[kafka.TopicPartition]struct{})
	s.unpositioned = make(map[kafka.TopicPartition]struct{})
	s.tracker = newOffsetTracker(s.logger)
	s.emitted = newEmittedSet()
	s.cursor.reset(nil)
	s.uncommitted = 0
	s.initialized = false
}

// Open prepares the spout to emit into collector. It resets all bookkeeping.
func (s *Spout) Open(collector Collector) error {
	if collector == nil {
		return fmt.Errorf("%w: nil collector", ErrInvalidConfig)
	}

	s.collector = collector
	s.reset()

	if !s.cfg.AutoCommitMode {
		s.commitTimer = s.committerOpt
		if s.commitTimer == nil {
			s.commitTimer = committer.NewPeriodicCommitter(
				committer.WithPeriod(s.cfg.OffsetsCommitPeriod),
				committer.WithMaxAcks(s.cfg.OffsetsCommitMaxAcks),
				committer.WithClock(s.clock),
			)
		}
	}

	s.opened = true
	s.logger.Info(
		"Spout opened",
		"topics", s.subscription.Describe(),
		"strategy", string(s.cfg.FirstPollOffsetStrategy),
		"max_uncommitted_offsets", s.cfg.MaxUncommittedOffsets,
		"auto_commit", s.cfg.AutoCommitMode,
	)
	s.publishStats()
	return nil
}

// Activate creates the source, subscribes and issues a zero timeout poll to
// start group membership. Partitions are assigned on a later poll.
func (s *Spout) Activate(ctx context.Context) error {
	if !s.opened {
		return ErrNotOpen
	}
	if s.active {
		return nil
	}

	src, err := s.factory(s.cfg.sourceConfig())
	if err != nil {
		return fmt.Errorf("create source: %w", err)
	}

	if err := src.Subscribe(s.subscription, &rebalanceListener{s: s}); err != nil {
		src.Close()
		return fmt.Errorf("subscribe: %w", err)
	}

	s.source = src
	s.active = true
	s.logger.Info("Subscribed", "subscription", s.subscription.Describe())

	defer s.publishStats()

	records, err := src.Poll(ctx, 0)
	if err != nil {
		if errors.Is(err, kafka.ErrInterrupted) {
			return fmt.Errorf("spout: initial poll: %w", err)
		}
		s.logger.Warn("Initial poll failed", "error", err)
		return nil
	}
	s.buffer(records)
	return nil
}

// Deactivate commits what is committable and closes the source. Acks that
// arrive while inactive are still recorded.
func (s *Spout) Deactivate(ctx context.Context) error {
	return s.shutdown(ctx, "Spout deactivated")
}

// Close is Deactivate for the last time. It is safe to call repeatedly.
func (s *Spout) Close(ctx context.Context) error {
	err := s.shutdown(ctx, "Spout closed")
	s.opened = false
	return err
}

func (s *Spout) shutdown(ctx context.Context, msg string) error {
	if !s.active {
		return nil
	}

	// a parked revocation commits while the generation is still current
	s.source.Dispatch(ctx)

	var err error
	if !s.cfg.AutoCommitMode {
		err = s.commitAcked(ctx)
	}

	s.source.Close()
	s.source = nil
	s.active = false
	s.initialized = false
	s.cursor.reset(nil)

	s.logger.Info(msg, "uncommitted", s.uncommitted, "in_flight", s.emitted.len())
	s.publishStats()
	return err
}

// NextTuple advances one cycle: deliver pending rebalances, commit if due,
// poll if the buffer is empty and the uncommitted budget allows it, then emit
// at most one tuple.
//
// Bookkeeping anomalies and transport errors are logged and absorbed. The
// only error besides ErrNotActive is a cancellation during poll, which wraps
// kafka.ErrInterrupted.
func (s *Spout) NextTuple(ctx context.Context) error {
	if !s.active {
		return ErrNotActive
	}
	defer s.publishStats()

	// the group waits on these even while polling is held back
	s.source.Dispatch(ctx)

	if !s.initialized {
		s.logger.Debug("Spout not initialized, polling for partition assignment")
		return s.pollAndBuffer(ctx)
	}

	s.positionPending(ctx)

	if s.commitDue() {
		_ = s.commitAcked(ctx)
	}

	if s.shouldPoll() {
		if err := s.pollAndBuffer(ctx); err != nil {
			return err
		}
	}

	if s.initialized && s.cursor.pending() {
		s.emitNext(ctx)
	}
	return nil
}

func (s *Spout) commitDue() bool {
	return !s.cfg.AutoCommitMode && s.commitTimer.Due()
}

func (s *Spout) shouldPoll() bool {
	if s.cursor.pending() {
		s.logger.Debug("Not polling, tuples waiting to be emitted", "buffered", s.cursor.remaining())
		return false
	}
	if s.uncommitted >= s.cfg.MaxUncommittedOffsets {
		s.logger.Debug(
			"Not polling, uncommitted offsets reached the limit",
			"uncommitted", s.uncommitted,
			"max", s.cfg.MaxUncommittedOffsets,
		)
		return false
	}
	return true
}

func (s *Spout) pollAndBuffer(ctx context.Context) error {
	now := s.clock.Now()
	if now.Before(s.pollRetryAt) {
		return nil
	}

	if s.initialized {
		s.seekRetriablePartitions()
	}

	records, err := s.poll(ctx)
	if err != nil {
		if errors.Is(err, kafka.ErrInterrupted) {
			return fmt.Errorf("spout: %w", err)
		}

		wait := s.pollErrorBackoff.Next(s.pollErrAttempts)
		s.pollErrAttempts++
		s.pollRetryAt = now.Add(wait)
		s.totals.PollErrors++
		s.logger.Warn("Poll failed", "error", err, "attempt", s.pollErrAttempts, "backoff", wait)
		return nil
	}

	s.pollErrAttempts = 0
	s.pollRetryAt = time.Time{}
	s.buffer(records)
	return nil
}

func (s *Spout) buffer(records []kafka.ConsumerRecord) {
	if len(records) == 0 {
		return
	}
	if !s.initialized {
		// positions are reset by the next assignment
		s.logger.Debug("Discarding records polled while not initialized", "count", len(records))
		return
	}
	s.cursor.reset(records)
}

func (s *Spout) poll(ctx context.Context) ([]kafka.ConsumerRecord, error) {
	tel := s.telemetry
	start := time.Now()

	ctx, span := tel.Tracer.Start(
		ctx, "poll",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingOperationTypeReceive,
			semconv.MessagingConsumerGroupName(s.cfg.ConsumerGroupID),
		),
	)
	defer span.End()

	records, err := s.source.Poll(ctx, s.cfg.PollTimeout)

	status := spoutotel.StatusSuccess
	switch {
	case errors.Is(err, kafka.ErrInterrupted):
		status = spoutotel.StatusInterrupted
	case err != nil:
		status = spoutotel.StatusError
		span.RecordError(err)
	}
	tel.PollDuration.Record(
		ctx, time.Since(start).Seconds(),
		metric.WithAttributes(spoutotel.AttrPollStatus.String(status)),
	)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(semconv.MessagingBatchMessageCount(len(records)))
	tel.RecordsPolled.Add(ctx, int64(len(records)))
	s.totals.RecordsPolled += uint64(len(records))

	s.logger.Debug("Polled records", "count", len(records), "uncommitted", s.uncommitted)
	return records, nil
}

// seekRetriablePartitions rewinds partitions holding retries to the first
// offset not yet committable so failed records are fetched again.
func (s *Spout) seekRetriablePartitions() {
	for _, tp := range s.retry.RetriablePartitions() {
		entry, ok := s.tracker.get(tp)
		if !ok {
			continue
		}

		next := entry.committed + 1
		if om, ok := entry.findNextCommitOffset(); ok {
			next = om.Offset + 1
		}
		s.source.Seek(tp, next)
	}
}

// commitAcked pushes the contiguous acked prefix of every partition.
func (s *Spout) commitAcked(ctx context.Context) error {
	if s.cfg.AutoCommitMode || s.source == nil {
		return nil
	}

	candidates := s.tracker.nextCommitOffsets()
	if len(candidates) == 0 {
		s.logger.Debug("No offsets to commit")
		return nil
	}

	// the source expects the next offset to consume
	offsets := make(map[kafka.TopicPartition]kafka.OffsetAndMetadata, len(candidates))
	for tp, om := range candidates {
		offsets[tp] = kafka.OffsetAndMetadata{Offset: om.Offset + 1, Metadata: om.Metadata}
	}

	tel := s.telemetry
	start := time.Now()
	ctx, span := tel.Tracer.Start(
		ctx, "commit",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingConsumerGroupName(s.cfg.ConsumerGroupID),
		),
	)
	defer span.End()

	err := s.source.Commit(ctx, offsets)

	status := spoutotel.StatusSuccess
	if err != nil {
		status = spoutotel.StatusError
		span.RecordError(err)
	}
	tel.CommitDuration.Record(
		ctx, time.Since(start).Seconds(),
		metric.WithAttributes(spoutotel.AttrCommitStatus.String(status)),
	)

	if err != nil {
		s.totals.CommitErrors++
		s.logger.Error("Failed to commit offsets", "error", err, "partitions", len(offsets))
		return fmt.Errorf("commit offsets: %w", err)
	}

	var moved int64
	for tp, om := range candidates {
		entry, ok := s.tracker.get(tp)
		if !ok {
			continue
		}
		moved += entry.commit(om.Offset)
	}
	s.addUncommitted(ctx, -moved)
	tel.OffsetsCommitted.Add(ctx, moved)
	s.totals.OffsetsCommitted += uint64(moved)

	s.logger.Debug("Offsets committed", "partitions", len(offsets), "offsets", moved, "uncommitted", s.uncommitted)
	return nil
}

func (s *Spout) addUncommitted(ctx context.Context, delta int64) {
	if delta == 0 {
		return
	}
	next := s.uncommitted + delta
	if next < 0 {
		s.logger.Warn("Uncommitted offset counter went negative, clamping", "value", next)
		delta = -s.uncommitted
		next = 0
	}
	s.uncommitted = next
	s.telemetry.UncommittedOffsets.Add(ctx, delta)
}

func (s *Spout) publishStats() {
	st := s.totals
	st.Active = s.active
	st.Initialized = s.initialized
	st.AssignedPartitions = len(s.assigned)
	st.UncommittedOffsets = s.uncommitted
	st.InFlight = s.emitted.len()
	st.PendingCommit = s.tracker.pendingAcks()
	st.ScheduledRetries = s.retry.ScheduledCount()
	st.Buffered = s.cursor.remaining()
	s.stats.store(st)
}

// Stats returns the snapshot published at the end of the last call. It is
// safe for concurrent use.
func (s *Spout) Stats() Stats {
	return s.stats.load()
}
