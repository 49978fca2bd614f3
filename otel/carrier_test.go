//go:build unit

package otel

import (
	"context"
	"testing"

	"github.com/hugolhafner/go-spout/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestHeaderCarrier_GetLastValueWins(t *testing.T) {
	c := HeaderCarrier{
		{Key: "traceparent", Value: []byte("first")},
		{Key: "other", Value: []byte("value")},
		{Key: "traceparent", Value: []byte("second")},
	}

	assert.Equal(t, "second", c.Get("traceparent"))
	assert.Equal(t, "value", c.Get("other"))
	assert.Equal(t, "", c.Get("missing"))
}

func TestHeaderCarrier_KeysDistinct(t *testing.T) {
	c := HeaderCarrier{
		{Key: "traceparent", Value: []byte("a")},
		{Key: "tracestate", Value: []byte("b")},
		{Key: "traceparent", Value: []byte("c")},
	}

	assert.Equal(t, []string{"traceparent", "tracestate"}, c.Keys())
}

func TestHeaderCarrier_SetAppends(t *testing.T) {
	c := HeaderCarrier{}
	c.Set("traceparent", "x")

	require.Len(t, c, 1)
	assert.Equal(t, "x", c.Get("traceparent"))
}

func TestTelemetry_ExtractRecord(t *testing.T) {
	tel := Noop()
	rec := kafka.ConsumerRecord{
		Headers: []kafka.Header{
			{Key: "traceparent", Value: []byte("00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")},
		},
	}

	ctx := tel.ExtractRecord(context.Background(), rec)
	sc := trace.SpanContextFromContext(ctx)

	require.True(t, sc.IsValid())
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", sc.TraceID().String())
	assert.True(t, sc.IsRemote())
}

func TestTelemetry_ExtractRecordWithoutHeaders(t *testing.T) {
	ctx := Noop().ExtractRecord(context.Background(), kafka.ConsumerRecord{})
	assert.False(t, trace.SpanContextFromContext(ctx).IsValid())
}
