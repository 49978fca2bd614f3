//go:build unit

package message_test

import (
	"testing"

	"github.com/hugolhafner/go-spout/kafka"
	"github.com/hugolhafner/go-spout/message"
	"github.com/stretchr/testify/require"
)

func TestID_KeyIgnoresFailuresAndMetadata(t *testing.T) {
	tp := kafka.TopicPartition{Topic: "orders", Partition: 1}
	a := message.New(tp, 10)
	b := a.Failed()
	b.Metadata = "meta"

	require.Equal(t, a.Key(), b.Key())
	require.Equal(t, 1, b.NumFails)
	require.Equal(t, 0, a.NumFails)
}

func TestID_FromRecord(t *testing.T) {
	id := message.FromRecord(kafka.ConsumerRecord{Topic: "orders", Partition: 2, Offset: 5})
	require.Equal(t, kafka.TopicPartition{Topic: "orders", Partition: 2}, id.TopicPartition)
	require.Equal(t, int64(5), id.Offset)
}

func TestID_LessByOffset(t *testing.T) {
	tp := kafka.TopicPartition{Topic: "orders"}
	require.True(t, message.New(tp, 3).Less(message.New(tp, 4)))
	require.False(t, message.New(tp, 4).Less(message.New(tp, 4)))
}

func TestID_String(t *testing.T) {
	id := message.New(kafka.TopicPartition{Topic: "orders", Partition: 0}, 7)
	require.Equal(t, "orders-0@7 (fails=0)", id.String())
}
