package serde

import (
	"google.golang.org/protobuf/proto"
)

type protobufSerde[T proto.Message] struct{}

// Protobuf decodes the wire format into a freshly allocated T.
func Protobuf[T proto.Message]() Deserialiser[T] {
	return protobufSerde[T]{}
}

func (s protobufSerde[T]) Deserialise(_ string, data []byte) (T, error) {
	var zero T
	msg := zero.ProtoReflect().New().Interface()
	if err := proto.Unmarshal(data, msg); err != nil {
		return zero, err
	}
	return msg.(T), nil
}
