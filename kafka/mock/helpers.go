package mockkafka

import (
	"strconv"
	"time"

	"github.com/hugolhafner/go-spout/kafka"
)

// RecordBuilder provides a fluent interface for building ConsumerRecords.
type RecordBuilder struct {
	record kafka.ConsumerRecord
}

// Record creates a new RecordBuilder with the given key and value.
func Record(key, value string) *RecordBuilder {
	return RecordBytes([]byte(key), []byte(value))
}

func RecordBytes(key, value []byte) *RecordBuilder {
	return &RecordBuilder{
		record: kafka.ConsumerRecord{
			Key:       key,
			Value:     value,
			Timestamp: time.Now(),
		},
	}
}

func (b *RecordBuilder) WithOffset(offset int64) *RecordBuilder {
	b.record.Offset = offset
	return b
}

func (b *RecordBuilder) WithTimestamp(ts time.Time) *RecordBuilder {
	b.record.Timestamp = ts
	return b
}

// WithHeader appends a header. Duplicate keys are kept.
func (b *RecordBuilder) WithHeader(key string, value []byte) *RecordBuilder {
	b.record.Headers = append(b.record.Headers, kafka.Header{Key: key, Value: value})
	return b
}

func (b *RecordBuilder) WithLeaderEpoch(epoch int32) *RecordBuilder {
	b.record.LeaderEpoch = epoch
	return b
}

func (b *RecordBuilder) Build() kafka.ConsumerRecord {
	return b.record
}

// SimpleRecord creates a ConsumerRecord with just key and value as strings.
func SimpleRecord(key, value string) kafka.ConsumerRecord {
	return Record(key, value).Build()
}

// RecordsAt builds one record per offset, valued "v<offset>".
func RecordsAt(offsets ...int64) []kafka.ConsumerRecord {
	records := make([]kafka.ConsumerRecord, 0, len(offsets))
	for _, o := range offsets {
		records = append(records, Record("", "v"+strconv.FormatInt(o, 10)).WithOffset(o).Build())
	}
	return records
}

// RecordRange builds records for offsets [from, to).
func RecordRange(from, to int64) []kafka.ConsumerRecord {
	offsets := make([]int64, 0, max(to-from, 0))
	for o := from; o < to; o++ {
		offsets = append(offsets, o)
	}
	return RecordsAt(offsets...)
}

