//go:build unit

package spout_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hugolhafner/go-spout/internal/clock"
	"github.com/hugolhafner/go-spout/logger"
	"github.com/hugolhafner/go-spout/message"
	"github.com/hugolhafner/go-spout/retry"
	"github.com/hugolhafner/go-spout/spout"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "spout.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_FileWithDefaults(t *testing.T) {
	path := writeConfig(
		t, `
schema_version: v1
topics: [orders, payments]
consumer_group_id: billing
offsets_commit_period: 5s
max_uncommitted_offsets: 250
retry:
  policy: bounded
  max_retries: 3
  delay_kind: fixed
  initial_delay: 100ms
`,
	)

	cfg, err := spout.LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, []string{"orders", "payments"}, cfg.Topics)
	require.Equal(t, "billing", cfg.ConsumerGroupID)
	require.Equal(t, 5*time.Second, cfg.OffsetsCommitPeriod)
	require.Equal(t, int64(250), cfg.MaxUncommittedOffsets)
	require.Equal(t, spout.RetryBounded, cfg.Retry.Policy)
	require.Equal(t, 3, cfg.Retry.MaxRetries)
	require.Equal(t, 100*time.Millisecond, cfg.Retry.InitialDelay)

	require.Equal(t, []string{"localhost:9092"}, cfg.BootstrapServers)
	require.Equal(t, spout.UncommittedEarliest, cfg.FirstPollOffsetStrategy)
	require.Equal(t, 200*time.Millisecond, cfg.PollTimeout)
	require.NotEmpty(t, cfg.CommitMetadata)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := writeConfig(
		t, `
topics: [orders]
consumer_group_id: from-file
`,
	)
	t.Setenv("SPOUT__CONSUMER_GROUP_ID", "from-env")
	t.Setenv("SPOUT__FIRST_POLL_OFFSET_STRATEGY", "latest")
	t.Setenv("SPOUT__RETRY__POLICY", "disabled")

	cfg, err := spout.LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.ConsumerGroupID)
	require.Equal(t, spout.Latest, cfg.FirstPollOffsetStrategy)
	require.Equal(t, spout.RetryDisabled, cfg.Retry.Policy)
}

func TestLoadConfig_MissingFileUsesEnv(t *testing.T) {
	t.Setenv("SPOUT__TOPIC_PATTERN", "orders-.*")
	t.Setenv("SPOUT__CONSUMER_GROUP_ID", "env-only")

	cfg, err := spout.LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, "orders-.*", cfg.TopicPattern)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "unsupported schema", body: "schema_version: v2\ntopics: [a]\nconsumer_group_id: g\n"},
		{name: "missing group", body: "topics: [a]\n"},
		{name: "no topics", body: "consumer_group_id: g\n"},
		{name: "topics and pattern", body: "topics: [a]\ntopic_pattern: a.*\nconsumer_group_id: g\n"},
		{name: "bad pattern", body: "topic_pattern: '('\nconsumer_group_id: g\n"},
		{name: "unknown strategy", body: "topics: [a]\nconsumer_group_id: g\nfirst_poll_offset_strategy: newest\n"},
		{name: "negative budget", body: "topics: [a]\nconsumer_group_id: g\nmax_uncommitted_offsets: -1\n"},
		{name: "unknown retry policy", body: "topics: [a]\nconsumer_group_id: g\nretry:\n  policy: sometimes\n"},
	}

	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				_, err := spout.LoadConfig(writeConfig(t, tt.body))
				require.ErrorIs(t, err, spout.ErrInvalidConfig)
			},
		)
	}
}

func TestRetryConfig_Service(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	id := message.New(tp0, 1)

	bounded := spout.RetryConfig{Policy: spout.RetryBounded, MaxRetries: 1, DelayKind: spout.DelayFixed}.
		Service(clk, logger.NewNoopLogger())
	require.True(t, bounded.Schedule(id.Failed()))
	require.False(t, bounded.Schedule(id.Failed().Failed()))

	disabled := spout.RetryConfig{Policy: spout.RetryDisabled}.Service(clk, logger.NewNoopLogger())
	require.False(t, disabled.Schedule(id.Failed()))

	var _ retry.Service = spout.RetryConfig{}.Service(clk, logger.NewNoopLogger())
}
