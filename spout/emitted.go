package spout

import (
	"github.com/hugolhafner/go-spout/kafka"
	"github.com/hugolhafner/go-spout/message"
)

// emittedSet holds the identities currently in flight, keyed by offset per
// partition.
type emittedSet struct {
	byPartition map[kafka.TopicPartition]map[int64]message.ID
	size        int
}

func newEmittedSet() *emittedSet {
	return &emittedSet{byPartition: make(map[kafka.TopicPartition]map[int64]message.ID)}
}

func (s *emittedSet) add(id message.ID) {
	offsets, ok := s.byPartition[id.TopicPartition]
	if !ok {
		offsets = make(map[int64]message.ID)
		s.byPartition[id.TopicPartition] = offsets
	}
	if _, dup := offsets[id.Offset]; !dup {
		s.size++
	}
	offsets[id.Offset] = id
}

func (s *emittedSet) contains(key message.Key) bool {
	_, ok := s.byPartition[key.TopicPartition][key.Offset]
	return ok
}

// remove returns the identity as it was emitted.
func (s *emittedSet) remove(key message.Key) (message.ID, bool) {
	offsets := s.byPartition[key.TopicPartition]
	id, ok := offsets[key.Offset]
	if !ok {
		return message.ID{}, false
	}
	delete(offsets, key.Offset)
	if len(offsets) == 0 {
		delete(s.byPartition, key.TopicPartition)
	}
	s.size--
	return id, true
}

// dropPartitions forgets every in-flight identity of the given partitions.
func (s *emittedSet) dropPartitions(tps []kafka.TopicPartition) int {
	dropped := 0
	for _, tp := range tps {
		dropped += len(s.byPartition[tp])
		delete(s.byPartition, tp)
	}
	s.size -= dropped
	return dropped
}

// retainOnly forgets identities of partitions outside assigned.
func (s *emittedSet) retainOnly(assigned map[kafka.TopicPartition]struct{}) int {
	var gone []kafka.TopicPartition
	for tp := range s.byPartition {
		if _, ok := assigned[tp]; !ok {
			gone = append(gone, tp)
		}
	}
	return s.dropPartitions(gone)
}

func (s *emittedSet) len() int {
	return s.size
}
