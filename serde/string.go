package serde

var _ Deserialiser[string] = stringSerde{}

type stringSerde struct{}

func String() Deserialiser[string] {
	return stringSerde{}
}

func (s stringSerde) Deserialise(_ string, data []byte) (string, error) {
	return string(data), nil
}
