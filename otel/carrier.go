package otel

import (
	"context"

	"github.com/hugolhafner/go-spout/kafka"
	"go.opentelemetry.io/otel/propagation"
)

var _ propagation.TextMapCarrier = (*HeaderCarrier)(nil)

// HeaderCarrier adapts record headers to a propagation carrier. Get returns
// the last value of a key since producers append when re-injecting.
type HeaderCarrier []kafka.Header

func (c *HeaderCarrier) Get(key string) string {
	headers := *c
	for i := len(headers) - 1; i >= 0; i-- {
		if headers[i].Key == key {
			return string(headers[i].Value)
		}
	}
	return ""
}

func (c *HeaderCarrier) Set(key, value string) {
	*c = append(*c, kafka.Header{Key: key, Value: []byte(value)})
}

// Keys lists distinct header keys in first-seen order.
func (c *HeaderCarrier) Keys() []string {
	seen := make(map[string]struct{}, len(*c))
	keys := make([]string, 0, len(*c))
	for _, h := range *c {
		if _, ok := seen[h.Key]; ok {
			continue
		}
		seen[h.Key] = struct{}{}
		keys = append(keys, h.Key)
	}
	return keys
}

// ExtractRecord returns ctx enriched with the trace context a producer
// propagated in rec's headers.
func (t *Telemetry) ExtractRecord(ctx context.Context, rec kafka.ConsumerRecord) context.Context {
	carrier := HeaderCarrier(rec.Headers)
	return t.Propagator.Extract(ctx, &carrier)
}
