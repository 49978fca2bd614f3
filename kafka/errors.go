package kafka

import "errors"

var (
	// ErrInterrupted marks a blocking fetch that ended because its context was
	// cancelled. Hosts treat it as a cooperative cancellation request.
	ErrInterrupted = errors.New("kafka: consumer was interrupted")

	ErrNotSubscribed     = errors.New("kafka: source is not subscribed")
	ErrAlreadySubscribed = errors.New("kafka: source already subscribed")
	ErrClosed            = errors.New("kafka: source is closed")
)
