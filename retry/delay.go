package retry

import (
	"math"
	"time"

	"github.com/hugolhafner/dskit/backoff"
)

// Delay computes how long a message waits before the given retry attempt.
// A dskit backoff.Backoff satisfies it.
type Delay interface {
	Next(attempt uint) time.Duration
}

var (
	_ Delay = backoff.NewFixed(0)
	_ Delay = Exponential{}
)

// Fixed waits d before every retry.
func Fixed(d time.Duration) Delay {
	return backoff.NewFixed(d)
}

// Exponential waits Initial + Period * 2^(attempt-1), capped at Max when Max
// is positive.
type Exponential struct {
	Initial time.Duration
	Period  time.Duration
	Max     time.Duration
}

func (e Exponential) Next(attempt uint) time.Duration {
	d := e.Initial
	if attempt > 0 && e.Period > 0 {
		shift := attempt - 1
		if shift > 62 || e.Period > time.Duration(math.MaxInt64>>shift) {
			d = time.Duration(math.MaxInt64)
		} else if step := e.Period << shift; d > time.Duration(math.MaxInt64)-step {
			d = time.Duration(math.MaxInt64)
		} else {
			d += step
		}
	}

	if e.Max > 0 && d > e.Max {
		return e.Max
	}
	return d
}
