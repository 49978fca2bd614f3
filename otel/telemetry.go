package otel

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	traceNoop "go.opentelemetry.io/otel/trace/noop"
)

const scopeName = "github.com/hugolhafner/go-spout"

// Telemetry holds all OpenTelemetry instruments for the spout
// When no providers are configured, all instruments are noops with zero overhead
type Telemetry struct {
	Tracer     trace.Tracer
	Propagator propagation.TextMapPropagator

	// Fetch metrics
	RecordsPolled metric.Int64Counter
	PollDuration  metric.Float64Histogram

	// Tuple lifecycle
	TuplesEmitted metric.Int64Counter
	TuplesAcked   metric.Int64Counter
	TuplesFailed  metric.Int64Counter

	RetriesScheduled metric.Int64Counter
	RetriesExhausted metric.Int64Counter

	// Commit metrics
	OffsetsCommitted metric.Int64Counter
	CommitDuration   metric.Float64Histogram

	// Spout state
	UncommittedOffsets metric.Int64UpDownCounter
	PartitionsAssigned metric.Int64UpDownCounter
}

// NewTelemetry creates a Telemetry instance from the given providers.
// all providers are optional and defaulted to noops if nil
func NewTelemetry(tp trace.TracerProvider, mp metric.MeterProvider, prop propagation.TextMapPropagator) (
	*Telemetry, error,
) {
	if tp == nil {
		tp = traceNoop.NewTracerProvider()
	}
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	if prop == nil {
		prop = propagation.TraceContext{}
	}

	meter := mp.Meter(scopeName)
	t := &Telemetry{
		Tracer:     tp.Tracer(scopeName),
		Propagator: prop,
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&t.RecordsPolled, "spout.records.polled", "Records returned by Poll()"},
		{&t.TuplesEmitted, "spout.tuples.emitted", "Tuples handed to the collector"},
		{&t.TuplesAcked, "spout.tuples.acked", "Tuples acknowledged by the host"},
		{&t.TuplesFailed, "spout.tuples.failed", "Tuples failed by the host"},
		{&t.RetriesScheduled, "spout.retries.scheduled", "Failures scheduled for re-emission"},
		{&t.RetriesExhausted, "spout.retries.exhausted", "Failures acknowledged after the retry budget ran out"},
		{&t.OffsetsCommitted, "spout.offsets.committed", "Offsets moved past by commits"},
	}
	for _, c := range counters {
		inst, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, err
		}
		*c.dst = inst
	}

	pollDuration, err := meter.Float64Histogram(
		"spout.poll.duration",
		metric.WithDescription("Time per Poll() call"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	t.PollDuration = pollDuration

	commitDuration, err := meter.Float64Histogram(
		"spout.commit.duration",
		metric.WithDescription("Time per Commit() call"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	t.CommitDuration = commitDuration

	uncommitted, err := meter.Int64UpDownCounter(
		"spout.uncommitted.offsets",
		metric.WithDescription("Offsets fetched but not yet committed"),
	)
	if err != nil {
		return nil, err
	}
	t.UncommittedOffsets = uncommitted

	assigned, err := meter.Int64UpDownCounter(
		"spout.partitions.assigned",
		metric.WithDescription("Partitions currently assigned"),
	)
	if err != nil {
		return nil, err
	}
	t.PartitionsAssigned = assigned

	return t, nil
}

// Noop returns a Telemetry instance with all noop instruments
func Noop() *Telemetry {
	t, _ := NewTelemetry(nil, nil, nil)
	return t
}
