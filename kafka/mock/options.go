package mockkafka

// Option is a functional option for configuring a mock Source.
type Option func(*Source)

// WithMaxPollRecords sets the maximum number of records returned per Poll call.
// Default is 10.
func WithMaxPollRecords(n int) Option {
	return func(s *Source) {
		if n > 0 {
			s.maxPollRecords = n
		}
	}
}

// WithoutAutoAssign disables assigning every matching partition on the first
// Poll. Assignments then only come from TriggerAssign.
func WithoutAutoAssign() Option {
	return func(s *Source) {
		s.autoAssign = false
	}
}

// WithPollError configures an error to be returned by all Poll calls.
func WithPollError(err error) Option {
	return func(s *Source) {
		s.pollErr = func() error { return err }
	}
}

// WithCommitError configures an error to be returned by all Commit calls.
func WithCommitError(err error) Option {
	return func(s *Source) {
		s.commitErr = func() error { return err }
	}
}

// WithBlockingPoll makes every Poll block until its timeout or cancellation.
func WithBlockingPoll() Option {
	return func(s *Source) {
		s.blockPoll = true
	}
}
