//go:build unit

package retry_test

import (
	"testing"
	"time"

	"github.com/hugolhafner/go-spout/internal/clock"
	"github.com/hugolhafner/go-spout/kafka"
	"github.com/hugolhafner/go-spout/message"
	"github.com/hugolhafner/go-spout/retry"
	"github.com/stretchr/testify/require"
)

var (
	tp0 = kafka.TopicPartition{Topic: "orders", Partition: 0}
	tp1 = kafka.TopicPartition{Topic: "orders", Partition: 1}
)

func failedTimes(id message.ID, n int) message.ID {
	for range n {
		id = id.Failed()
	}
	return id
}

func TestBounded_ThirdFailureRefusedWithBudgetOfTwo(t *testing.T) {
	svc := retry.NewBounded(2, retry.Fixed(0))
	id := message.New(tp0, 10)

	require.True(t, svc.Schedule(failedTimes(id, 1)))
	require.True(t, svc.Schedule(failedTimes(id, 2)))
	require.Equal(t, 1, svc.ScheduledCount())

	svc.Remove(id)
	require.False(t, svc.Schedule(failedTimes(id, 3)))
	require.False(t, svc.IsScheduled(id))
}

func TestBounded_ZeroBudgetRefusesFirstFailure(t *testing.T) {
	svc := retry.NewBounded(0, retry.Fixed(0))
	require.False(t, svc.Schedule(message.New(tp0, 1).Failed()))
}

func TestScheduler_ReadyAfterDelay(t *testing.T) {
	clk := clock.NewFake(time.Unix(1000, 0))
	svc := retry.NewBounded(5, retry.Fixed(time.Second), retry.WithClock(clk))
	id := message.New(tp0, 3).Failed()

	require.True(t, svc.Schedule(id))
	require.True(t, svc.IsScheduled(id))
	require.False(t, svc.IsReady(id))
	require.Equal(t, 0, svc.ReadyCount())

	clk.Advance(time.Second)
	require.True(t, svc.IsReady(id))
	require.Equal(t, 1, svc.ReadyCount())
}

func TestScheduler_LookupKeepsFailureCount(t *testing.T) {
	svc := retry.NewUnlimited(retry.Fixed(0))
	id := failedTimes(message.New(tp0, 3), 4)
	require.True(t, svc.Schedule(id))

	got, ok := svc.Lookup(message.New(tp0, 3).Key())
	require.True(t, ok)
	require.Equal(t, 4, got.NumFails)

	_, ok = svc.Lookup(message.New(tp0, 4).Key())
	require.False(t, ok)
}

func TestScheduler_RemoveUsesOffsetIdentity(t *testing.T) {
	svc := retry.NewUnlimited(retry.Fixed(0))
	require.True(t, svc.Schedule(message.New(tp0, 3).Failed()))

	require.True(t, svc.Remove(message.New(tp0, 3)))
	require.False(t, svc.Remove(message.New(tp0, 3)))
	require.Equal(t, 0, svc.ScheduledCount())
}

func TestScheduler_RetainAllAndPartitions(t *testing.T) {
	clk := clock.NewFake(time.Unix(1000, 0))
	svc := retry.NewUnlimited(retry.Fixed(time.Hour), retry.WithClock(clk))
	svc.Schedule(message.New(tp0, 1).Failed())
	svc.Schedule(message.New(tp0, 2).Failed())
	svc.Schedule(message.New(tp1, 1).Failed())

	require.Empty(t, svc.RetriablePartitions())

	clk.Advance(time.Hour)
	require.ElementsMatch(t, []kafka.TopicPartition{tp0, tp1}, svc.RetriablePartitions())

	require.True(t, svc.RetainAll([]kafka.TopicPartition{tp0}))
	require.False(t, svc.RetainAll([]kafka.TopicPartition{tp0}))
	require.Equal(t, []kafka.TopicPartition{tp0}, svc.RetriablePartitions())
	require.Equal(t, 2, svc.ScheduledCount())
}

func TestUnlimited_AlwaysSchedules(t *testing.T) {
	svc := retry.NewUnlimited(retry.Fixed(0))
	require.True(t, svc.Schedule(failedTimes(message.New(tp0, 1), 1000)))
}

func TestDisabled(t *testing.T) {
	svc := retry.Disabled()
	id := message.New(tp0, 1).Failed()

	require.False(t, svc.Schedule(id))
	require.False(t, svc.IsScheduled(id))
	require.Empty(t, svc.RetriablePartitions())
	require.Equal(t, 0, svc.ScheduledCount())
}
