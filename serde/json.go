package serde

import "encoding/json"

type jsonSerde[T any] struct{}

// JSON returns a Deserialiser that decodes JSON into T.
func JSON[T any]() Deserialiser[T] {
	return jsonSerde[T]{}
}

func (s jsonSerde[T]) Deserialise(_ string, data []byte) (T, error) {
	var result T
	err := json.Unmarshal(data, &result)
	return result, err
}
