package mockkafka

import (
	"testing"

	"github.com/hugolhafner/go-spout/kafka"
	"github.com/stretchr/testify/require"
)

// AssertCommittedOffset verifies the group's committed offset (next offset to
// consume) for the topic-partition.
func (s *Source) AssertCommittedOffset(tb testing.TB, tp kafka.TopicPartition, expectedOffset int64) {
	tb.Helper()

	actual, ok := s.CommittedOffset(tp)
	require.True(tb, ok, "expected offset %d to be committed for %s, but none found", expectedOffset, tp)
	require.Equal(
		tb, expectedOffset, actual.Offset,
		"expected offset %d to be committed for %s, got %d", expectedOffset, tp, actual.Offset,
	)
}

// AssertNotCommitted verifies no offset was ever committed for the topic-partition.
func (s *Source) AssertNotCommitted(tb testing.TB, tp kafka.TopicPartition) {
	tb.Helper()

	actual, ok := s.CommittedOffset(tp)
	require.False(tb, ok, "expected no commit for %s, got offset %d", tp, actual.Offset)
}

// AssertCommitCount verifies the number of successful Commit calls.
func (s *Source) AssertCommitCount(tb testing.TB, expected int) {
	tb.Helper()

	actual := len(s.Commits())
	require.Equal(tb, expected, actual, "expected %d commits, got %d", expected, actual)
}

// AssertCommittedMetadata verifies the metadata of the last commit for tp.
func (s *Source) AssertCommittedMetadata(tb testing.TB, tp kafka.TopicPartition, metadata string) {
	tb.Helper()

	actual, ok := s.CommittedOffset(tp)
	require.True(tb, ok, "no commit found for %s", tp)
	require.Equal(tb, metadata, actual.Metadata)
}

// AssertSeekedTo verifies that some seek moved tp to offset.
func (s *Source) AssertSeekedTo(tb testing.TB, tp kafka.TopicPartition, offset int64) {
	tb.Helper()

	for _, call := range s.Seeks() {
		if call.Partition == tp && call.Offset == offset {
			return
		}
	}

	tb.Errorf("expected a seek of %s to offset %d, seeks were %v", tp, offset, s.Seeks())
}

// AssertAssigned verifies that the given partitions are currently assigned.
func (s *Source) AssertAssigned(tb testing.TB, partitions ...kafka.TopicPartition) {
	tb.Helper()

	assigned := kafka.PartitionSet(s.AssignedPartitions())
	for _, p := range partitions {
		if _, ok := assigned[p]; !ok {
			tb.Errorf("expected partition %s to be assigned, but it is not", p)
		}
	}
}

// AssertClosed verifies that Close() was called.
func (s *Source) AssertClosed(tb testing.TB) {
	tb.Helper()

	require.True(tb, s.IsClosed(), "expected source to be closed")
}

// AssertNotClosed verifies that Close() was not called.
func (s *Source) AssertNotClosed(tb testing.TB) {
	tb.Helper()

	require.False(tb, s.IsClosed(), "expected source to not be closed, but it is")
}
