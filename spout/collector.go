package spout

import (
	"github.com/hugolhafner/go-spout/message"
)

// Collector receives emitted tuples. The host reports the outcome of each
// tuple through Spout.Ack or Spout.Fail with the same id. Emit must not block.
type Collector interface {
	Emit(stream string, values []any, id message.ID)
}

// CollectorFunc adapts a function to Collector.
type CollectorFunc func(stream string, values []any, id message.ID)

func (f CollectorFunc) Emit(stream string, values []any, id message.ID) {
	f(stream, values, id)
}
