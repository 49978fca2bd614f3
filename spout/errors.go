package spout

import "errors"

var (
	ErrNotOpen       = errors.New("spout: not opened")
	ErrNotActive     = errors.New("spout: not active")
	ErrInvalidConfig = errors.New("spout: invalid config")
)
