//go:build unit

package retry_test

import (
	"math"
	"testing"
	"time"

	"github.com/hugolhafner/go-spout/retry"
	"github.com/stretchr/testify/require"
)

func TestExponential_Next(t *testing.T) {
	e := retry.Exponential{Initial: 100 * time.Millisecond, Period: time.Second, Max: 10 * time.Second}

	tests := []struct {
		attempt uint
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 1100 * time.Millisecond},
		{2, 2100 * time.Millisecond},
		{3, 4100 * time.Millisecond},
		{4, 8100 * time.Millisecond},
		{5, 10 * time.Second},
		{200, 10 * time.Second},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, e.Next(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestExponential_UncappedSaturates(t *testing.T) {
	e := retry.Exponential{Period: time.Second}
	require.Equal(t, time.Duration(math.MaxInt64), e.Next(100))
}

func TestFixed(t *testing.T) {
	d := retry.Fixed(250 * time.Millisecond)
	require.Equal(t, 250*time.Millisecond, d.Next(1))
	require.Equal(t, 250*time.Millisecond, d.Next(9))
}
