package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		Attempts:        attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Multiplier:      1.5,
	}
}

func TestDo(t *testing.T) {
	errFlaky := errors.New("flaky")

	tests := []struct {
		name         string
		attempts     int
		succeedOn    int
		wantAttempts int
		wantOK       bool
	}{
		{name: "firstAttempt", attempts: 10, succeedOn: 1, wantAttempts: 1, wantOK: true},
		{name: "thirdAttempt", attempts: 10, succeedOn: 3, wantAttempts: 3, wantOK: true},
		{name: "lastAttempt", attempts: 10, succeedOn: 10, wantAttempts: 10, wantOK: true},
		{name: "neverSucceeds", attempts: 10, succeedOn: 0, wantAttempts: 10, wantOK: false},
		{name: "zeroAttemptsRunsOnce", attempts: 0, succeedOn: 0, wantAttempts: 1, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			res := Do(context.Background(), fastPolicy(tt.attempts), func(attempt int) error {
				calls++
				if attempt != calls {
					t.Errorf("attempt = %d, want %d", attempt, calls)
				}
				if tt.succeedOn > 0 && attempt >= tt.succeedOn {
					return nil
				}
				return errFlaky
			})

			if res.Attempts != tt.wantAttempts {
				t.Errorf("Attempts = %d, want %d", res.Attempts, tt.wantAttempts)
			}
			if calls != tt.wantAttempts {
				t.Errorf("calls = %d, want %d", calls, tt.wantAttempts)
			}
			if res.OK() != tt.wantOK {
				t.Errorf("OK() = %v, want %v", res.OK(), tt.wantOK)
			}
			if !tt.wantOK {
				if !errors.Is(res.Err(), ErrExhausted) {
					t.Errorf("Err() = %v, want ErrExhausted", res.Err())
				}
			}
		})
	}
}

func TestDoStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{Attempts: 10, InitialInterval: time.Hour, MaxInterval: time.Hour}

	calls := 0
	res := Do(ctx, p, func(int) error {
		calls++
		cancel()
		return errors.New("boom")
	})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if !errors.Is(res.Err(), context.Canceled) {
		t.Errorf("Err() = %v, want context.Canceled", res.Err())
	}
}

func TestScheduleGrowsAndResets(t *testing.T) {
	s := NewSchedule(10*time.Millisecond, 40*time.Millisecond)

	first := s.Next()
	if first <= 0 || first > 15*time.Millisecond {
		t.Errorf("first wait = %v, want around 10ms", first)
	}

	var last time.Duration
	for i := 0; i < 10; i++ {
		last = s.Next()
	}
	if last > 48*time.Millisecond {
		t.Errorf("wait after growth = %v, want capped near 40ms", last)
	}

	s.Reset()
	if again := s.Next(); again > 15*time.Millisecond {
		t.Errorf("wait after reset = %v, want around 10ms", again)
	}
}
