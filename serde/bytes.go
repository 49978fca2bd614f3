package serde

var _ Deserialiser[[]byte] = bytesSerde{}

type bytesSerde struct{}

func Bytes() Deserialiser[[]byte] {
	return bytesSerde{}
}

func (s bytesSerde) Deserialise(_ string, data []byte) ([]byte, error) {
	return data, nil
}
