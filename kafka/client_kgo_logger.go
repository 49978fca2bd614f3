package kafka

import (
	"github.com/hugolhafner/go-spout/logger"
	"github.com/twmb/franz-go/pkg/kgo"
)

var _ kgo.Logger = (*kgoLogBridge)(nil)

// kgoLogBridge writes franz-go client logs into the spout logger, tagged with
// the consumer group and using the spout's key names.
type kgoLogBridge struct {
	l logger.Logger
}

func newKgoLogBridge(l logger.Logger, group string) *kgoLogBridge {
	return &kgoLogBridge{l: l.With("client", "kgo", "group", group)}
}

func (b *kgoLogBridge) Level() kgo.LogLevel {
	switch b.l.Level() {
	case logger.DebugLevel:
		return kgo.LogLevelDebug
	case logger.InfoLevel:
		return kgo.LogLevelInfo
	case logger.WarnLevel:
		return kgo.LogLevelWarn
	case logger.ErrorLevel:
		return kgo.LogLevelError
	default:
		return kgo.LogLevelWarn
	}
}

func (b *kgoLogBridge) Log(level kgo.LogLevel, msg string, keyvals ...any) {
	kv := normalizeKeys(keyvals)

	switch level {
	case kgo.LogLevelNone:
		return
	case kgo.LogLevelDebug:
		b.l.Debug(msg, kv...)
	case kgo.LogLevelInfo:
		b.l.Info(msg, kv...)
	case kgo.LogLevelError:
		b.l.Error(msg, kv...)
	default:
		b.l.Warn(msg, kv...)
	}
}

// normalizeKeys renames franz-go's "err" to "error" and drops its "group"
// pair, which the bridge already carries.
func normalizeKeys(keyvals []any) []any {
	out := make([]any, 0, len(keyvals))
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, val := keyvals[i], keyvals[i+1]
		switch key {
		case "group":
			continue
		case "err":
			key = "error"
		}
		out = append(out, key, val)
	}
	return out
}
