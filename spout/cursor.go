package spout

import (
	"github.com/hugolhafner/go-spout/kafka"
)

// cursor is the buffer of fetched records not yet considered for emission.
// It is replaced wholesale by each poll.
type cursor struct {
	records []kafka.ConsumerRecord
	pos     int
}

func (c *cursor) reset(records []kafka.ConsumerRecord) {
	c.records = records
	c.pos = 0
}

func (c *cursor) pending() bool {
	return c.pos < len(c.records)
}

func (c *cursor) remaining() int {
	return len(c.records) - c.pos
}

func (c *cursor) next() (kafka.ConsumerRecord, bool) {
	if !c.pending() {
		return kafka.ConsumerRecord{}, false
	}
	rec := c.records[c.pos]
	c.pos++
	if !c.pending() {
		c.records = nil
		c.pos = 0
	}
	return rec, true
}


// dropPartitions removes the buffered records of tps.
func (c *cursor) dropPartitions(tps []kafka.TopicPartition) int {
	if !c.pending() {
		return 0
	}
	drop := kafka.PartitionSet(tps)
	kept := make([]kafka.ConsumerRecord, 0, c.remaining())
	for _, rec := range c.records[c.pos:] {
		if _, ok := drop[rec.TopicPartition()]; !ok {
			kept = append(kept, rec)
		}
	}
	dropped := c.remaining() - len(kept)
	if len(kept) == 0 {
		kept = nil
	}
	c.reset(kept)
	return dropped
}
