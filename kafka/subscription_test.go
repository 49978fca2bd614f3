//go:build unit

package kafka

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNamedTopics(t *testing.T) {
	sub := Topics("a", "b")

	require.Equal(t, "a,b,", sub.Describe())
	require.True(t, sub.Matches("a"))
	require.False(t, sub.Matches("c"))

	topics, regex := sub.consumeTopics()
	require.Equal(t, []string{"a", "b"}, topics)
	require.False(t, regex)
}

func TestWildcard(t *testing.T) {
	sub, err := Pattern(`^orders\.`)
	require.NoError(t, err)

	require.Equal(t, `^orders\.`, sub.Describe())
	require.True(t, sub.Matches("orders.eu"))
	require.False(t, sub.Matches("payments"))

	topics, regex := sub.consumeTopics()
	require.Equal(t, []string{`^orders\.`}, topics)
	require.True(t, regex)
}

func TestPattern_Invalid(t *testing.T) {
	_, err := Pattern("(")
	require.Error(t, err)
}

func TestTopicPartition_String(t *testing.T) {
	require.Equal(t, "orders-3", TopicPartition{Topic: "orders", Partition: 3}.String())
}
