package poller

import (
	"math/rand"
	"sync"
	"time"
)

// Timing holds every delay knob of the loop.
type Timing struct {
	MinDelay               time.Duration
	MaxDelay               time.Duration
	ErrorMinDelay          time.Duration
	ErrorMaxDelay          time.Duration
	MaxConsecutiveFailures int
	Cooldown               time.Duration
}

func DefaultTiming() Timing {
	return Timing{
		MinDelay:               55 * time.Second,
		MaxDelay:               65 * time.Second,
		ErrorMinDelay:          27500 * time.Millisecond,
		ErrorMaxDelay:          32500 * time.Millisecond,
		MaxConsecutiveFailures: 3,
		Cooldown:               300 * time.Second,
	}
}

// Normalize fills zero values from DefaultTiming. Unset error delays default
// to half of the normal range; inverted ranges are collapsed to their lower
// bound.
func (t Timing) Normalize() Timing {
	d := DefaultTiming()
	if t.MinDelay <= 0 {
		t.MinDelay = d.MinDelay
	}
	if t.MaxDelay <= 0 {
		t.MaxDelay = d.MaxDelay
	}
	if t.MaxDelay < t.MinDelay {
		t.MaxDelay = t.MinDelay
	}
	if t.ErrorMinDelay <= 0 {
		t.ErrorMinDelay = t.MinDelay / 2
	}
	if t.ErrorMaxDelay <= 0 {
		t.ErrorMaxDelay = t.MaxDelay / 2
	}
	if t.ErrorMaxDelay < t.ErrorMinDelay {
		t.ErrorMaxDelay = t.ErrorMinDelay
	}
	if t.MaxConsecutiveFailures <= 0 {
		t.MaxConsecutiveFailures = d.MaxConsecutiveFailures
	}
	if t.Cooldown <= 0 {
		t.Cooldown = d.Cooldown
	}
	return t
}

// Decision is what the loop does after a cycle.
type Decision struct {
	Delay    time.Duration
	Escalate bool
	// Failures is the new consecutive failure count.
	Failures int
}

// Backoff maps a cycle outcome to the next delay. It holds no loop state.
type Backoff struct {
	timing Timing

	mu sync.Mutex
	// int63n returns a value in [0, n).
	int63n func(n int64) int64
}

func NewBackoff(t Timing) *Backoff {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Backoff{timing: t.Normalize(), int63n: rng.Int63n}
}

// WithRand replaces the random source.
func (b *Backoff) WithRand(int63n func(n int64) int64) *Backoff {
	b.mu.Lock()
	b.int63n = int63n
	b.mu.Unlock()
	return b
}

func (b *Backoff) Timing() Timing {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.timing
}

func (b *Backoff) Apply(t Timing) {
	b.mu.Lock()
	b.timing = t.Normalize()
	b.mu.Unlock()
}

// Next decides the delay after a cycle. failures is the consecutive failure
// count before this outcome.
//
// Success resets the count and waits U(MinDelay, MaxDelay). A failure below
// the threshold waits U(ErrorMinDelay, ErrorMaxDelay). Reaching the threshold
// escalates, waits Cooldown and resets the count to zero.
func (b *Backoff) Next(ok bool, failures int) Decision {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := b.timing

	if ok {
		return Decision{Delay: b.uniform(t.MinDelay, t.MaxDelay)}
	}
	n := failures + 1
	if n >= t.MaxConsecutiveFailures {
		return Decision{Delay: t.Cooldown, Escalate: true, Failures: 0}
	}
	return Decision{Delay: b.uniform(t.ErrorMinDelay, t.ErrorMaxDelay), Failures: n}
}

func (b *Backoff) uniform(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(b.int63n(int64(hi-lo)+1))
}
