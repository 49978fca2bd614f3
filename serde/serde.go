package serde

import "fmt"

// Deserialiser decodes a record key or value read from topic.
type Deserialiser[T any] interface {
	Deserialise(topic string, data []byte) (T, error)
}

// UntypedDeserialiser erases T so deserialisers of different types can be
// stored together, e.g. one per topic.
type UntypedDeserialiser interface {
	Deserialise(topic string, data []byte) (any, error)
}

type untyped[T any] struct {
	typed Deserialiser[T]
}

func Untyped[T any](d Deserialiser[T]) UntypedDeserialiser {
	return untyped[T]{typed: d}
}

func (a untyped[T]) Deserialise(topic string, data []byte) (any, error) {
	v, err := a.typed.Deserialise(topic, data)
	if err != nil {
		return nil, fmt.Errorf("serde: deserialise %T from %s: %w", *new(T), topic, err)
	}
	return v, nil
}
