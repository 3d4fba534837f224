// Package retry provides the bounded exponential-backoff primitive shared by
// every persistence operation.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
)

// ErrExhausted is returned when every attempt failed.
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy bounds a retry loop.
type Policy struct {
	Attempts        int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// DefaultPolicy matches the credential write-verify loop: ten attempts
// starting at 20ms.
var DefaultPolicy = Policy{
	Attempts:        10,
	InitialInterval: 20 * time.Millisecond,
	MaxInterval:     500 * time.Millisecond,
	Multiplier:      2,
}

// Result describes how a retry loop ended.
type Result struct {
	Attempts int
	LastErr  error
}

// OK reports whether the operation eventually succeeded.
func (r Result) OK() bool {
	return r.LastErr == nil
}

// Err returns nil on success, or an error wrapping ErrExhausted and the last
// failure. Context cancellation is returned as is.
func (r Result) Err() error {
	if r.LastErr == nil {
		return nil
	}
	if errors.Is(r.LastErr, context.Canceled) || errors.Is(r.LastErr, context.DeadlineExceeded) {
		return r.LastErr
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrExhausted, r.Attempts, r.LastErr)
}

// Do runs op until it returns nil, the attempt bound is reached or ctx is done.
func Do(ctx context.Context, p Policy, op func(attempt int) error) Result {
	if p.Attempts <= 0 {
		p.Attempts = 1
	}

	b := newBackOff(p)

	var res Result
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		res.Attempts = attempt
		res.LastErr = op(attempt)
		if res.LastErr == nil {
			return res
		}
		if attempt == p.Attempts {
			break
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			break
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			res.LastErr = ctx.Err()
			return res
		case <-timer.C:
		}
	}
	return res
}

func newBackOff(p Policy) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	if p.Multiplier > 0 {
		b.Multiplier = p.Multiplier
	}
	b.RandomizationFactor = 0.2
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Schedule is an unbounded backoff used by reconnect loops.
type Schedule struct {
	b *backoff.ExponentialBackOff
}

// NewSchedule returns a schedule growing from initial to max.
func NewSchedule(initial, max time.Duration) *Schedule {
	return &Schedule{b: newBackOff(Policy{InitialInterval: initial, MaxInterval: max, Multiplier: 2})}
}

// Next returns the next wait.
func (s *Schedule) Next() time.Duration {
	d := s.b.NextBackOff()
	if d == backoff.Stop {
		return s.b.MaxInterval
	}
	return d
}

// Reset restarts the schedule after a successful connection.
func (s *Schedule) Reset() {
	s.b.Reset()
}
