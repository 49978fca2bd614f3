package retry

import (
	"github.com/hugolhafner/go-spout/internal/clock"
	"github.com/hugolhafner/go-spout/logger"
)

type config struct {
	clock  clock.Clock
	logger logger.Logger
}

type Option func(*config)

// WithClock replaces the wall clock used to compute retry eligibility.
func WithClock(c clock.Clock) Option {
	return func(cfg *config) {
		cfg.clock = c
	}
}

func WithLogger(l logger.Logger) Option {
	return func(cfg *config) {
		cfg.logger = l
	}
}

func newConfig(opts []Option) config {
	cfg := config{
		clock:  clock.Real{},
		logger: logger.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
