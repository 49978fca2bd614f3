package translator

import (
	"fmt"

	"github.com/hugolhafner/go-spout/kafka"
	"github.com/hugolhafner/go-spout/serde"
)

type serdeTranslator[K, V any] struct {
	stream     string
	key        serde.Deserialiser[K]
	value      serde.Deserialiser[V]
	skipNulls  bool
	withHeader []string
}

type SerdeOption func(*serdeConfig)

type serdeConfig struct {
	stream    string
	skipNulls bool
	headers   []string
}

// WithStream emits on stream instead of DefaultStream.
func WithStream(stream string) SerdeOption {
	return func(c *serdeConfig) {
		c.stream = stream
	}
}

// SkipTombstones acknowledges records with a nil value without emitting them.
func SkipTombstones() SerdeOption {
	return func(c *serdeConfig) {
		c.skipNulls = true
	}
}

// WithHeaders appends the first value of each named header as an extra field.
func WithHeaders(keys ...string) SerdeOption {
	return func(c *serdeConfig) {
		c.headers = append(c.headers, keys...)
	}
}

// Serde decodes key and value with the given deserialisers and emits
// topic, partition, offset, key and value.
func Serde[K, V any](key serde.Deserialiser[K], value serde.Deserialiser[V], opts ...SerdeOption) Translator {
	cfg := serdeConfig{stream: DefaultStream}
	for _, opt := range opts {
		opt(&cfg)
	}

	return serdeTranslator[K, V]{
		stream:     cfg.stream,
		key:        key,
		value:      value,
		skipNulls:  cfg.skipNulls,
		withHeader: cfg.headers,
	}
}

func (t serdeTranslator[K, V]) Translate(rec kafka.ConsumerRecord) (Tuple, error) {
	if t.skipNulls && rec.Value == nil {
		return Tuple{}, nil
	}

	k, err := t.key.Deserialise(rec.Topic, rec.Key)
	if err != nil {
		return Tuple{}, fmt.Errorf("deserialise key: %w", err)
	}

	v, err := t.value.Deserialise(rec.Topic, rec.Value)
	if err != nil {
		return Tuple{}, fmt.Errorf("deserialise value: %w", err)
	}

	values := make([]any, 0, 5+len(t.withHeader))
	values = append(values, rec.Topic, rec.Partition, rec.Offset, k, v)
	for _, h := range t.withHeader {
		hv, _ := kafka.HeaderValue(rec.Headers, h)
		values = append(values, hv)
	}

	return Tuple{Stream: t.stream, Values: values}, nil
}

func (t serdeTranslator[K, V]) DeclareOutputFields(d Declarer) {
	fields := append([]string{"topic", "partition", "offset", "key", "value"}, t.withHeader...)
	d.Declare(t.stream, fields...)
}
