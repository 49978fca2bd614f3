package spout

import (
	"context"
	"strconv"

	"github.com/hugolhafner/go-spout/kafka"
	"github.com/hugolhafner/go-spout/message"
	spoutotel "github.com/hugolhafner/go-spout/otel"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
)

// emitNext walks the buffer until one tuple reaches the collector or the
// buffer is drained.
func (s *Spout) emitNext(ctx context.Context) {
	for {
		rec, ok := s.cursor.next()
		if !ok {
			return
		}
		if s.emitRecord(ctx, rec) {
			return
		}
	}
}

// emitRecord reports whether rec was handed to the collector.
func (s *Spout) emitRecord(ctx context.Context, rec kafka.ConsumerRecord) bool {
	tp := rec.TopicPartition()
	if _, ok := s.assigned[tp]; !ok {
		s.logger.Debug("Dropping record of unassigned partition", "partition", tp.String(), "offset", rec.Offset)
		return false
	}
	if _, ok := s.unpositioned[tp]; ok {
		s.logger.Debug("Dropping record of unpositioned partition", "partition", tp.String(), "offset", rec.Offset)
		return false
	}

	id := message.FromRecord(rec)
	id.Metadata = s.cfg.CommitMetadata
	key := id.Key()

	var entry *offsetEntry
	if !s.cfg.AutoCommitMode {
		e, ok := s.tracker.get(tp)
		if !ok {
			s.logger.Debug("Dropping record of untracked partition", "partition", tp.String(), "offset", rec.Offset)
			return false
		}
		if rec.Offset <= e.committed || e.contains(rec.Offset) {
			s.logger.Debug("Skipping already processed record", "id", id.String())
			return false
		}
		entry = e
	}

	if s.emitted.contains(key) {
		s.logger.Debug("Skipping record already in flight", "id", id.String())
		return false
	}

	scheduled, isRetry := s.retry.Lookup(key)
	if isRetry {
		if !s.retry.IsReady(scheduled) {
			s.logger.Debug("Skipping record waiting for retry", "id", id.String())
			return false
		}
		id.NumFails = scheduled.NumFails
	}

	if entry != nil {
		s.addUncommitted(ctx, entry.observe(rec.Offset))
	}

	tuple, err := s.translator.Translate(rec)
	if err != nil {
		if isRetry {
			s.retry.Remove(scheduled)
		}
		s.logger.Warn("Failed to translate record", "id", id.String(), "error", err)
		s.handleFailure(ctx, id, spoutotel.FailReasonTranslate)
		return false
	}

	if len(tuple.Values) == 0 {
		if isRetry {
			s.retry.Remove(scheduled)
		}
		s.logger.Debug("Translator produced no values, acking", "id", id.String())
		s.recordAck(id)
		return false
	}

	// added before Emit so an Ack issued from inside Emit finds it
	s.emitted.add(id)

	spanCtx := s.telemetry.ExtractRecord(ctx, rec)
	spanCtx, span := s.telemetry.Tracer.Start(
		spanCtx, rec.Topic+" emit",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingDestinationName(rec.Topic),
			semconv.MessagingDestinationPartitionID(strconv.Itoa(int(tp.Partition))),
			semconv.MessagingKafkaOffsetKey.Int64(rec.Offset),
			spoutotel.AttrStream.String(tuple.Stream),
		),
	)
	s.collector.Emit(tuple.Stream, tuple.Values, id)
	span.End()

	if isRetry {
		s.retry.Remove(scheduled)
	}

	s.totals.TuplesEmitted++
	s.telemetry.TuplesEmitted.Add(spanCtx, 1, metric.WithAttributes(spoutotel.AttrStream.String(tuple.Stream)))

	s.logger.Debug("Emitted tuple", "id", id.String(), "stream", tuple.Stream)
	return true
}

// Ack marks the tuple as fully processed. Acks for identities that are not
// in flight, such as tuples of revoked partitions, are ignored.
func (s *Spout) Ack(id message.ID) {
	defer s.publishStats()

	stored, ok := s.emitted.remove(id.Key())
	if !ok {
		s.logger.Debug("Ack for tuple not in flight, ignoring", "id", id.String())
		return
	}

	s.totals.TuplesAcked++
	s.telemetry.TuplesAcked.Add(context.Background(), 1)
	s.recordAck(stored)
}

// Fail schedules the tuple for re-emission, or acknowledges it once its
// retry budget is spent.
func (s *Spout) Fail(id message.ID) {
	defer s.publishStats()

	stored, ok := s.emitted.remove(id.Key())
	if !ok {
		s.logger.Debug("Fail for tuple not in flight, ignoring", "id", id.String())
		return
	}

	s.handleFailure(context.Background(), stored, spoutotel.FailReasonHost)
}

func (s *Spout) handleFailure(ctx context.Context, id message.ID, reason string) {
	failed := id.Failed()
	s.totals.TuplesFailed++
	s.telemetry.TuplesFailed.Add(ctx, 1, metric.WithAttributes(spoutotel.AttrFailReason.String(reason)))

	if s.cfg.AutoCommitMode {
		s.logger.Warn("Dropping failed tuple, retries are not tracked with auto commit", "id", failed.String())
		return
	}

	if s.retry.Schedule(failed) {
		s.telemetry.RetriesScheduled.Add(ctx, 1)
		s.logger.Debug("Scheduled tuple for retry", "id", failed.String(), "reason", reason)
		return
	}

	s.logger.Debug("Retry budget exhausted, acking", "id", failed.String(), "reason", reason)
	s.totals.RetriesExhausted++
	s.telemetry.RetriesExhausted.Add(ctx, 1)
	s.recordAck(failed)
}

// recordAck makes id committable.
func (s *Spout) recordAck(id message.ID) {
	if s.cfg.AutoCommitMode {
		return
	}

	entry, ok := s.tracker.get(id.TopicPartition)
	if !ok {
		s.logger.Debug("Ack for untracked partition, ignoring", "id", id.String())
		return
	}
	if entry.add(id) {
		s.commitTimer.RecordAcked(1)
	}
}
