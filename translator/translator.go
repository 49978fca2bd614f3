package translator

import (
	"github.com/hugolhafner/go-spout/kafka"
)

const DefaultStream = "default"

// Tuple is the unit handed to the host collector.
type Tuple struct {
	Stream string
	Values []any
}

// Declarer receives the output streams and their field names.
type Declarer interface {
	Declare(stream string, fields ...string)
}

// Translator converts a record into a tuple. Returning a tuple without values
// means the record is acknowledged without being emitted.
type Translator interface {
	Translate(rec kafka.ConsumerRecord) (Tuple, error)
	DeclareOutputFields(d Declarer)
}

var _ Translator = Default{}

// Default emits topic, partition, offset, key and value as raw fields on
// the default stream.
type Default struct{}

func (Default) Translate(rec kafka.ConsumerRecord) (Tuple, error) {
	return Tuple{
		Stream: DefaultStream,
		Values: []any{rec.Topic, rec.Partition, rec.Offset, rec.Key, rec.Value},
	}, nil
}

func (Default) DeclareOutputFields(d Declarer) {
	d.Declare(DefaultStream, "topic", "partition", "offset", "key", "value")
}
