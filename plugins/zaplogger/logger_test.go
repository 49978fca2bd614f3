//go:build unit

package zaplogger

import (
	"errors"
	"testing"
	"time"

	"github.com/hugolhafner/go-spout/kafka"
	"github.com/hugolhafner/go-spout/logger"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger_FieldsAndLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := New(zap.New(core)).With("component", "spout")

	l.Warn("ack below committed offset", "partition", "orders-0", "offset", int64(7))
	l.Debug("dangling key")

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, zapcore.WarnLevel, entries[0].Level)
	require.Equal(t, "spout", entries[0].ContextMap()["component"])
	require.Equal(t, int64(7), entries[0].ContextMap()["offset"])
	require.Equal(t, zapcore.DebugLevel, entries[1].Level)
}

func TestZapLogger_TypedFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := New(zap.New(core))

	l.Error(
		"commit failed",
		"partition", kafka.TopicPartition{Topic: "orders", Partition: 3},
		"error", errors.New("boom"),
		"backoff", 2*time.Second,
		"topics", []string{"orders", "payments"},
	)

	require.Len(t, logs.All(), 1)
	ctx := logs.All()[0].ContextMap()
	require.Equal(t, "orders-3", ctx["partition"])
	require.Equal(t, "boom", ctx["error"])
	require.Equal(t, 2*time.Second, ctx["backoff"])
	require.Equal(t, []any{"orders", "payments"}, ctx["topics"])
}

func TestZapLogger_DisabledLevelIsDropped(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	l := New(zap.New(core))

	l.Debug("polled records", "count", 3)
	l.Info("partitions assigned")

	require.Empty(t, logs.All())
	require.Equal(t, logger.WarnLevel, l.Level())
}

func TestZapLogger_OddKVIgnoresTrailingKey(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := New(zap.New(core))

	l.Info("odd", "a", 1, "dangling")

	require.Len(t, logs.All(), 1)
	require.Len(t, logs.All()[0].Context, 1)
}

func TestLevelMapping(t *testing.T) {
	require.Equal(t, logger.ErrorLevel, mapFromZapLevel(zap.FatalLevel))
	require.Equal(t, zap.WarnLevel, mapToZapLevel(logger.WarnLevel))
}
