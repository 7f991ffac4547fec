// Package retry provides exponential backoff with jitter for client calls
// that may race with another writer or hit a transient network error.
package retry

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// Policy configures the retry behavior. Zero fields take the defaults of
// DefaultPolicy.
type Policy struct {
	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration
	// MaxDelay caps the delay between retries.
	MaxDelay time.Duration
	// Multiplier grows the delay after each retry.
	Multiplier float64
	// MaxAttempts counts the first call too. 0 means no limit.
	MaxAttempts int
	// JitterFraction randomizes each delay by up to ±fraction.
	JitterFraction float64
}

// DefaultPolicy returns a Policy with sensible defaults.
func DefaultPolicy() Policy {
	return Policy{
		InitialDelay:   100 * time.Millisecond,
		MaxDelay:       10 * time.Second,
		Multiplier:     2.0,
		MaxAttempts:    5,
		JitterFraction: 0.2,
	}
}

func (p Policy) normalized() Policy {
	d := DefaultPolicy()
	if p.InitialDelay <= 0 {
		p.InitialDelay = d.InitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	if p.Multiplier <= 0 {
		p.Multiplier = d.Multiplier
	}
	p.JitterFraction = min(max(p.JitterFraction, 0), 1)
	return p
}

// Backoff computes successive retry delays for one operation.
type Backoff struct {
	policy  Policy
	attempt int

	rngMutex sync.Mutex
	rng      *rand.Rand
}

func NewBackoff(p Policy) *Backoff {
	return &Backoff{
		policy: p.normalized(),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the delay before the next attempt, or 0 once MaxAttempts is
// used up. A positive hint (e.g. from Retry-After) acts as a floor.
func (b *Backoff) Next(hint time.Duration) time.Duration {
	b.attempt++
	if b.policy.MaxAttempts > 0 && b.attempt >= b.policy.MaxAttempts {
		return 0
	}

	delay := float64(b.policy.InitialDelay) * math.Pow(b.policy.Multiplier, float64(b.attempt-1))
	delay = math.Min(delay, float64(b.policy.MaxDelay))

	if b.policy.JitterFraction > 0 {
		b.rngMutex.Lock()
		jitter := (b.rng.Float64()*2 - 1) * b.policy.JitterFraction
		b.rngMutex.Unlock()
		delay *= 1 + jitter
	}

	return max(time.Duration(delay), hint)
}

// Attempt returns how many delays have been handed out.
func (b *Backoff) Attempt() int {
	return b.attempt
}

func (b *Backoff) Reset() {
	b.attempt = 0
}

// Outcome tells Do what to do after a failed attempt.
type Outcome struct {
	// Retry is false for terminal errors.
	Retry bool
	// After is a minimum wait suggested by the server.
	After time.Duration
}

// Permanent marks an error as not worth retrying.
var Permanent = Outcome{}

// Transient marks an error as retryable with the policy's own delay.
var Transient = Outcome{Retry: true}

// Func is one attempt. The outcome is ignored when err is nil.
type Func[T any] func(ctx context.Context) (T, Outcome, error)

// Do calls fn until it succeeds, returns a permanent error, runs out of
// attempts or ctx is done. It returns the last error seen.
func Do[T any](ctx context.Context, p Policy, fn Func[T]) (T, error) {
	var zero T
	backoff := NewBackoff(p)

	for {
		result, outcome, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if !outcome.Retry {
			return zero, err
		}

		delay := backoff.Next(outcome.After)
		if delay == 0 {
			return zero, err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
}
