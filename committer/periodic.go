package committer

import (
	"time"

	"github.com/hugolhafner/go-spout/internal/clock"
)

var _ Committer = (*PeriodicCommitter)(nil)

type PeriodicCommitterConfig struct {
	// Period is the minimum time between two commits.
	Period time.Duration
	// Delay postpones the first period after construction.
	Delay time.Duration
	// MaxAcks makes a commit due early once that many acks accumulated.
	// Zero disables the count trigger.
	MaxAcks int

	Clock clock.Clock
}

type PeriodicCommitterOption func(*PeriodicCommitterConfig)

func WithPeriod(d time.Duration) PeriodicCommitterOption {
	return func(cfg *PeriodicCommitterConfig) {
		cfg.Period = d
	}
}

func WithDelay(d time.Duration) PeriodicCommitterOption {
	return func(cfg *PeriodicCommitterConfig) {
		cfg.Delay = d
	}
}

func WithMaxAcks(n int) PeriodicCommitterOption {
	return func(cfg *PeriodicCommitterConfig) {
		cfg.MaxAcks = n
	}
}

func WithClock(c clock.Clock) PeriodicCommitterOption {
	return func(cfg *PeriodicCommitterConfig) {
		cfg.Clock = c
	}
}

// PeriodicCommitter is a single goroutine timer polled once per spout cycle.
// It expires once Period has passed since the last expiry, the first period
// starting after Delay.
type PeriodicCommitter struct {
	c     PeriodicCommitterConfig
	start time.Time
	acks  int
}

func NewPeriodicCommitter(opts ...PeriodicCommitterOption) *PeriodicCommitter {
	cfg := PeriodicCommitterConfig{
		Period: 30 * time.Second,
		Delay:  500 * time.Millisecond,
		Clock:  clock.Real{},
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	return &PeriodicCommitter{
		c:     cfg,
		start: cfg.Clock.Now().Add(cfg.Delay),
	}
}

func (p *PeriodicCommitter) RecordAcked(count int) {
	p.acks += count
}

func (p *PeriodicCommitter) Due() bool {
	now := p.c.Clock.Now()
	expired := now.Sub(p.start) >= p.c.Period
	if p.c.MaxAcks > 0 && p.acks >= p.c.MaxAcks {
		expired = true
	}

	if expired {
		p.start = now
		p.acks = 0
	}
	return expired
}

func (p *PeriodicCommitter) Period() time.Duration {
	return p.c.Period
}
