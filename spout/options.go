package spout

import (
	"github.com/hugolhafner/dskit/backoff"
	"github.com/hugolhafner/go-spout/committer"
	"github.com/hugolhafner/go-spout/internal/clock"
	"github.com/hugolhafner/go-spout/logger"
	"github.com/hugolhafner/go-spout/otel"
	"github.com/hugolhafner/go-spout/retry"
	"github.com/hugolhafner/go-spout/translator"
)

type options struct {
	logger           logger.Logger
	retry            retry.Service
	translator       translator.Translator
	telemetry        *otel.Telemetry
	clock            clock.Clock
	pollErrorBackoff backoff.Backoff
	committer        committer.Committer
}

type Option func(*options)

func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRetryService overrides the retry policy built from Config.Retry.
func WithRetryService(s retry.Service) Option {
	return func(o *options) {
		o.retry = s
	}
}

func WithTranslator(t translator.Translator) Option {
	return func(o *options) {
		if t != nil {
			o.translator = t
		}
	}
}

func WithTelemetry(t *otel.Telemetry) Option {
	return func(o *options) {
		if t != nil {
			o.telemetry = t
		}
	}
}

// WithClock replaces the wall clock used by the commit timer, the retry
// policy and the poll error backoff.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithPollErrorBackoff overrides Config.PollErrorBackoff.
func WithPollErrorBackoff(b backoff.Backoff) Option {
	return func(o *options) {
		o.pollErrorBackoff = b
	}
}

// WithCommitter overrides the periodic commit timer built from Config.
func WithCommitter(c committer.Committer) Option {
	return func(o *options) {
		o.committer = c
	}
}
