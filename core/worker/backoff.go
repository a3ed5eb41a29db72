package worker

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff computes retry delays: Base^tries seconds capped at MaxDelay,
// plus a random share of Delta.
type Backoff struct {
	Base     float64
	MaxDelay time.Duration
	Delta    time.Duration
	// Jitter returns a value in [0, 1). Defaults to rand.Float64.
	Jitter func() float64
}

// DefaultBackoff returns the retry curve used by the pool.
func DefaultBackoff() Backoff {
	return Backoff{Base: 1.5, MaxDelay: 30 * time.Second, Delta: 10 * time.Second}
}

// Delay returns the wait before attempt tries+1. The result never exceeds
// MaxDelay+Delta.
func (b Backoff) Delay(tries int) time.Duration {
	base := time.Duration(math.Pow(b.Base, float64(tries)) * float64(time.Second))
	if base > b.MaxDelay || base < 0 {
		base = b.MaxDelay
	}

	jitter := rand.Float64
	if b.Jitter != nil {
		jitter = b.Jitter
	}
	j := jitter()
	if j < 0 || j >= 1 {
		j = 0
	}
	return base + time.Duration(j*float64(b.Delta))
}
