package message

import (
	"fmt"

	"github.com/hugolhafner/go-spout/kafka"
)

// Key identifies a record. Two IDs denote the same record when their keys
// are equal, regardless of failure count or metadata.
type Key struct {
	kafka.TopicPartition
	Offset int64
}

// ID is the identity handed to the host with every emitted tuple and passed
// back on Ack and Fail.
type ID struct {
	kafka.TopicPartition
	Offset   int64
	NumFails int
	Metadata string
}

func New(tp kafka.TopicPartition, offset int64) ID {
	return ID{TopicPartition: tp, Offset: offset}
}

func FromRecord(r kafka.ConsumerRecord) ID {
	return New(r.TopicPartition(), r.Offset)
}

func (id ID) Key() Key {
	return Key{TopicPartition: id.TopicPartition, Offset: id.Offset}
}

// Less orders IDs by offset. Partitions are not compared.
func (id ID) Less(other ID) bool {
	return id.Offset < other.Offset
}

// Failed returns a copy with the failure count incremented.
func (id ID) Failed() ID {
	id.NumFails++
	return id
}

func (id ID) String() string {
	return fmt.Sprintf("%s@%d (fails=%d)", id.TopicPartition, id.Offset, id.NumFails)
}
