package retry

import (
	"github.com/hugolhafner/go-spout/kafka"
	"github.com/hugolhafner/go-spout/message"
)

var _ Service = disabled{}

type disabled struct{}

// Disabled never schedules a retry, so every failure is acknowledged.
func Disabled() Service {
	return disabled{}
}

func (disabled) Schedule(message.ID) bool { return false }
func (disabled) IsScheduled(message.ID) bool { return false }
func (disabled) IsReady(message.ID) bool { return false }
func (disabled) Lookup(message.Key) (message.ID, bool) { return message.ID{}, false }
func (disabled) Remove(message.ID) bool { return false }
func (disabled) RetainAll([]kafka.TopicPartition) bool { return false }
func (disabled) RetriablePartitions() []kafka.TopicPartition { return nil }
func (disabled) ReadyCount() int { return 0 }
func (disabled) ScheduledCount() int { return 0 }
