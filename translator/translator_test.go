//go:build unit

package translator_test

import (
	"testing"

	"github.com/hugolhafner/go-spout/kafka"
	"github.com/hugolhafner/go-spout/serde"
	"github.com/hugolhafner/go-spout/translator"
	"github.com/stretchr/testify/require"
)

func record(topic string, value []byte) kafka.ConsumerRecord {
	return kafka.ConsumerRecord{
		Topic:     topic,
		Partition: 2,
		Offset:    40,
		Key:       []byte("k"),
		Value:     value,
		Headers:   []kafka.Header{{Key: "trace", Value: []byte("t-1")}},
	}
}

func TestDefault(t *testing.T) {
	tuple, err := translator.Default{}.Translate(record("orders", []byte("v")))
	require.NoError(t, err)
	require.Equal(t, translator.DefaultStream, tuple.Stream)
	require.Equal(t, []any{"orders", int32(2), int64(40), []byte("k"), []byte("v")}, tuple.Values)

	fields := translator.Fields{}
	translator.Default{}.DeclareOutputFields(fields)
	require.Equal(t, []string{"topic", "partition", "offset", "key", "value"}, fields[translator.DefaultStream])
}

type order struct {
	ID string `json:"id"`
}

func TestSerde_DecodesKeyAndValue(t *testing.T) {
	tr := translator.Serde(
		serde.String(), serde.JSON[order](),
		translator.WithStream("orders"),
		translator.WithHeaders("trace", "missing"),
	)

	tuple, err := tr.Translate(record("orders", []byte(`{"id":"o-1"}`)))
	require.NoError(t, err)
	require.Equal(t, "orders", tuple.Stream)
	require.Equal(t, []any{"orders", int32(2), int64(40), "k", order{ID: "o-1"}, []byte("t-1"), []byte(nil)}, tuple.Values)

	fields := translator.Fields{}
	tr.DeclareOutputFields(fields)
	require.Equal(t, []string{"topic", "partition", "offset", "key", "value", "trace", "missing"}, fields["orders"])
}

func TestSerde_ValueErrorIsReturned(t *testing.T) {
	tr := translator.Serde(serde.Bytes(), serde.JSON[order]())

	_, err := tr.Translate(record("orders", []byte(`{`)))
	require.ErrorContains(t, err, "deserialise value")
}

func TestSerde_SkipTombstones(t *testing.T) {
	tr := translator.Serde(serde.Bytes(), serde.JSON[order](), translator.SkipTombstones())

	tuple, err := tr.Translate(record("orders", nil))
	require.NoError(t, err)
	require.Empty(t, tuple.Values)
}

func TestByTopic(t *testing.T) {
	tr := &translator.ByTopic{
		Routes: map[string]translator.Translator{
			"orders": translator.Serde(serde.String(), serde.String(), translator.WithStream("orders")),
		},
		Fallback: translator.Default{},
	}

	tuple, err := tr.Translate(record("orders", []byte("v")))
	require.NoError(t, err)
	require.Equal(t, "orders", tuple.Stream)

	tuple, err = tr.Translate(record("payments", []byte("v")))
	require.NoError(t, err)
	require.Equal(t, translator.DefaultStream, tuple.Stream)

	fields := translator.Fields{}
	tr.DeclareOutputFields(fields)
	require.Len(t, fields, 2)
}

func TestByTopic_NoRoute(t *testing.T) {
	tr := &translator.ByTopic{}
	_, err := tr.Translate(record("orders", nil))
	require.Error(t, err)
}
