//go:build unit

package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestNewTelemetry_WithProviders(t *testing.T) {
	t.Parallel()
	tp := sdktrace.NewTracerProvider()
	mp := sdkmetric.NewMeterProvider()
	defer tp.Shutdown(context.Background())
	defer mp.Shutdown(context.Background())

	tel, err := NewTelemetry(tp, mp, nil)
	require.NoError(t, err)
	require.NotNil(t, tel.Tracer)
	require.NotNil(t, tel.Propagator)
	require.NotNil(t, tel.RecordsPolled)
	require.NotNil(t, tel.PollDuration)
	require.NotNil(t, tel.TuplesEmitted)
	require.NotNil(t, tel.TuplesAcked)
	require.NotNil(t, tel.TuplesFailed)
	require.NotNil(t, tel.RetriesScheduled)
	require.NotNil(t, tel.RetriesExhausted)
	require.NotNil(t, tel.OffsetsCommitted)
	require.NotNil(t, tel.CommitDuration)
	require.NotNil(t, tel.UncommittedOffsets)
	require.NotNil(t, tel.PartitionsAssigned)
}

func TestNewTelemetry_RecordsToReader(t *testing.T) {
	t.Parallel()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	tel, err := NewTelemetry(nil, mp, nil)
	require.NoError(t, err)

	ctx := context.Background()
	tel.TuplesEmitted.Add(ctx, 3)
	tel.UncommittedOffsets.Add(ctx, 5)
	tel.UncommittedOffsets.Add(ctx, -2)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if s, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range s.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}

	require.Equal(t, int64(3), sums["spout.tuples.emitted"])
	require.Equal(t, int64(3), sums["spout.uncommitted.offsets"])
}

func TestNewTelemetry_NilProviders(t *testing.T) {
	t.Parallel()
	tel, err := NewTelemetry(nil, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, tel.Tracer)
	require.NotNil(t, tel.Propagator)
}

func TestNoop(t *testing.T) {
	t.Parallel()
	tel := Noop()
	require.NotNil(t, tel)
	require.NotNil(t, tel.Tracer)
}
