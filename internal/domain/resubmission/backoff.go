package resubmission

import (
	"math/rand"
	"sync"
	"time"
)

// Backoff computes the wait before attempt n: base × 2^(n-1), capped at Max,
// with ±Jitter applied so many claims retrying at once do not hit the
// clearinghouse in lockstep.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64 // fraction of the delay, e.g. 0.2 for ±20%

	mu  sync.Mutex
	rng *rand.Rand
}

func NewBackoff(base, max time.Duration, jitter float64) *Backoff {
	return &Backoff{
		Base:   base,
		Max:    max,
		Jitter: jitter,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Delay returns the wait before attempt n (1-based). n below 1 is treated
// as 1.
func (b *Backoff) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := b.Base
	for i := 1; i < n; i++ {
		d *= 2
		if d >= b.Max {
			d = b.Max
			break
		}
	}
	if d > b.Max {
		d = b.Max
	}
	if b.Jitter <= 0 {
		return d
	}

	b.mu.Lock()
	f := b.rng.Float64()
	b.mu.Unlock()

	// spread uniformly across [1-Jitter, 1+Jitter]
	factor := 1 - b.Jitter + 2*b.Jitter*f
	return time.Duration(float64(d) * factor)
}
