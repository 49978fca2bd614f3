//go:build e2e

package e2e

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hugolhafner/go-spout/kafka"
	"github.com/hugolhafner/go-spout/message"
	"github.com/hugolhafner/go-spout/spout"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// host drives one spout on its own goroutine, deciding each tuple's outcome
// with decide. A nil decide leaves every tuple in flight.
type host struct {
	s      *spout.Spout
	cancel context.CancelFunc
	done   chan error

	mu   sync.Mutex
	seen map[message.Key]int
}

func (h *host) count(key message.Key) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seen[key]
}

func (h *host) distinct() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.seen)
}

func (h *host) emissions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, c := range h.seen {
		n += c
	}
	return n
}

func (h *host) stop(t *testing.T) {
	t.Helper()
	h.cancel()

	select {
	case err := <-h.done:
		require.NoError(t, err)
	case <-time.After(shutdownWait):
		t.Fatal("timeout waiting for spout shutdown")
	}
}

func startSpout(
	t *testing.T,
	broker, topic, groupID string,
	decide func(id message.ID) bool,
	tweaks ...func(*spout.Config),
) *host {
	t.Helper()

	cfg := spout.DefaultConfig()
	cfg.BootstrapServers = []string{broker}
	cfg.Topics = []string{topic}
	cfg.ConsumerGroupID = groupID
	cfg.OffsetsCommitPeriod = 500 * time.Millisecond
	cfg.Retry = spout.RetryConfig{Policy: spout.RetryBounded, MaxRetries: 3, DelayKind: spout.DelayFixed, InitialDelay: 100 * time.Millisecond}
	for _, tweak := range tweaks {
		tweak(&cfg)
	}

	s, err := spout.New(kafka.NewKgoSourceFactory(), cfg)
	require.NoError(t, err)

	h := &host{
		s:    s,
		done: make(chan error, 1),
		seen: make(map[message.Key]int),
	}

	var pending []message.ID
	require.NoError(
		t, s.Open(
			spout.CollectorFunc(
				func(_ string, _ []any, id message.ID) {
					h.mu.Lock()
					h.seen[id.Key()]++
					h.mu.Unlock()
					pending = append(pending, id)
				},
			),
		),
	)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel

	go func() {
		err := s.Activate(ctx)
		for err == nil {
			err = s.NextTuple(ctx)
			if decide == nil {
				pending = pending[:0]
				continue
			}
			for _, id := range pending {
				if decide(id) {
					s.Ack(id)
				} else {
					s.Fail(id)
				}
			}
			pending = pending[:0]
		}

		closeCtx, closeCancel := context.WithTimeout(context.Background(), shutdownWait)
		defer closeCancel()
		closeErr := s.Close(closeCtx)

		if errors.Is(err, kafka.ErrInterrupted) || errors.Is(err, context.Canceled) {
			err = nil
		}
		h.done <- errors.Join(err, closeErr)
	}()

	return h
}

func ackAll(message.ID) bool { return true }

func produceValues(t *testing.T, broker, topic string, partition int32, from, to int) {
	t.Helper()

	records := make([]kgo.Record, 0, to-from)
	for i := from; i < to; i++ {
		records = append(
			records, kgo.Record{
				Key:       []byte(fmt.Sprintf("key-%d", i)),
				Value:     []byte(fmt.Sprintf("value-%d", i)),
				Partition: partition,
			},
		)
	}
	produceOrderedRecords(t, broker, topic, records)
}

func withStrategy(strategy spout.FirstPollOffsetStrategy) func(*spout.Config) {
	return func(cfg *spout.Config) {
		cfg.FirstPollOffsetStrategy = strategy
	}
}

func commitGroupOffset(t *testing.T, broker, groupID, topic string, partition int32, offset int64) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := kgo.NewClient(kgo.SeedBrokers(broker))
	require.NoError(t, err)
	defer client.Close()

	var offsets kadm.Offsets
	offsets.AddOffset(topic, partition, offset, -1)
	require.NoError(t, kadm.NewClient(client).CommitAllOffsets(ctx, groupID, offsets))
}

func committedTotal(t *testing.T, broker, groupID, topic string) int64 {
	offsets := getCommittedOffsets(t, broker, groupID)
	var total int64
	for _, off := range offsets[topic] {
		total += off
	}
	return total
}

func TestE2E_SpoutCommitsAckedOffsetsAndResumes(t *testing.T) {
	broker := ensureContainer(t)
	topic := testTopicName(t, "commits")
	groupID := testGroupID(t, "commits")
	createTopics(t, broker, 1, topic)

	produceValues(t, broker, topic, 0, 0, 10)

	first := startSpout(t, broker, topic, groupID, ackAll)
	eventually(
		t, func() bool {
			return committedTotal(t, broker, groupID, topic) == 10
		}, eventualWait, "acked offsets not committed",
	)
	first.stop(t)
	require.Equal(t, 10, first.distinct())

	produceValues(t, broker, topic, 0, 10, 15)

	second := startSpout(t, broker, topic, groupID, ackAll)
	time.Sleep(startupWait)
	eventually(
		t, func() bool {
			return committedTotal(t, broker, groupID, topic) == 15
		}, eventualWait, "resumed spout did not commit new offsets",
	)
	second.stop(t)

	require.Equal(t, 5, second.emissions(), "restart must resume after the committed offset")
	tp := kafka.TopicPartition{Topic: topic, Partition: 0}
	require.Zero(t, second.count(message.New(tp, 9).Key()))
	require.Equal(t, 1, second.count(message.New(tp, 14).Key()))
}

func TestE2E_SpoutReplaysFailedTuples(t *testing.T) {
	broker := ensureContainer(t)
	topic := testTopicName(t, "replay")
	groupID := testGroupID(t, "replay")
	createTopics(t, broker, 1, topic)

	produceValues(t, broker, topic, 0, 0, 5)

	// fail every tuple once
	h := startSpout(t, broker, topic, groupID, func(id message.ID) bool { return id.NumFails > 0 })
	eventually(
		t, func() bool {
			return committedTotal(t, broker, groupID, topic) == 5
		}, eventualWait, "replayed tuples not committed",
	)
	h.stop(t)

	tp := kafka.TopicPartition{Topic: topic, Partition: 0}
	for off := int64(0); off < 5; off++ {
		require.Equal(t, 2, h.count(message.New(tp, off).Key()), "offset %d", off)
	}
}

func TestE2E_SpoutsShareGroupPartitions(t *testing.T) {
	broker := ensureContainer(t)
	topic := testTopicName(t, "group")
	groupID := testGroupID(t, "group")
	createTopics(t, broker, 2, topic)

	a := startSpout(t, broker, topic, groupID, ackAll)
	b := startSpout(t, broker, topic, groupID, ackAll)
	waitForGroupMembers(t, broker, groupID, 2, eventualWait)

	produceValues(t, broker, topic, 0, 0, 10)
	produceValues(t, broker, topic, 1, 10, 20)

	eventually(
		t, func() bool {
			return committedTotal(t, broker, groupID, topic) == 20
		}, eventualWait, "group did not commit every partition",
	)
	a.stop(t)
	b.stop(t)

	require.GreaterOrEqual(t, a.distinct()+b.distinct(), 20)
}

func TestE2E_EarliestStrategyIgnoresExistingCommit(t *testing.T) {
	broker := ensureContainer(t)
	topic := testTopicName(t, "earliest")
	groupID := testGroupID(t, "earliest")
	createTopics(t, broker, 1, topic)

	produceValues(t, broker, topic, 0, 0, 10)
	commitGroupOffset(t, broker, groupID, topic, 0, 5)

	h := startSpout(t, broker, topic, groupID, ackAll, withStrategy(spout.Earliest))
	eventually(
		t, func() bool {
			return h.distinct() == 10 && committedTotal(t, broker, groupID, topic) == 10
		}, eventualWait, "earliest spout did not replay from the log start",
	)
	h.stop(t)

	tp := kafka.TopicPartition{Topic: topic, Partition: 0}
	require.Equal(t, 1, h.count(message.New(tp, 0).Key()))
	require.Equal(t, 10, h.emissions())
}

func TestE2E_LatestStrategySkipsBacklog(t *testing.T) {
	broker := ensureContainer(t)
	topic := testTopicName(t, "latest")
	groupID := testGroupID(t, "latest")
	createTopics(t, broker, 1, topic)

	produceValues(t, broker, topic, 0, 0, 10)
	commitGroupOffset(t, broker, groupID, topic, 0, 2)

	h := startSpout(t, broker, topic, groupID, ackAll, withStrategy(spout.Latest))
	waitForGroupMembers(t, broker, groupID, 1, eventualWait)
	time.Sleep(startupWait)

	produceValues(t, broker, topic, 0, 10, 13)
	eventually(
		t, func() bool {
			return committedTotal(t, broker, groupID, topic) == 13
		}, eventualWait, "latest spout did not commit new records",
	)
	h.stop(t)

	tp := kafka.TopicPartition{Topic: topic, Partition: 0}
	require.Equal(t, 3, h.emissions())
	require.Zero(t, h.count(message.New(tp, 2).Key()))
	require.Equal(t, 1, h.count(message.New(tp, 10).Key()))
}

func TestE2E_RebalanceCompletesWhileSpoutIsAtUncommittedLimit(t *testing.T) {
	broker := ensureContainer(t)
	topic := testTopicName(t, "limit")
	groupID := testGroupID(t, "limit")
	createTopics(t, broker, 2, topic)

	produceValues(t, broker, topic, 0, 0, 5)
	produceValues(t, broker, topic, 1, 5, 10)

	stuck := startSpout(
		t, broker, topic, groupID, nil, func(cfg *spout.Config) {
			cfg.MaxUncommittedOffsets = 2
		},
	)
	eventually(
		t, func() bool {
			return stuck.distinct() >= 2
		}, eventualWait, "first spout did not emit",
	)

	joiner := startSpout(t, broker, topic, groupID, ackAll)
	eventually(
		t, func() bool {
			return joiner.distinct() >= 5
		}, consumeWait, "second member never received a partition",
	)

	stuck.stop(t)
	joiner.stop(t)
}
