package backoff

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTransient = errors.New("transient")

type hintError struct{ wait time.Duration }

func (e *hintError) Error() string                  { return "slow down" }
func (e *hintError) RetryAfterHint() time.Duration { return e.wait }

func fastPolicy(attempts int, retryable func(error) bool) Policy {
	return Policy{
		Attempts:  attempts,
		BaseDelay: time.Millisecond,
		MaxDelay:  5 * time.Millisecond,
		MaxJitter: time.Millisecond,
		Retryable: retryable,
	}
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(5, nil), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDo_Exhaustion(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(4, nil), func(ctx context.Context) error {
		calls++
		return errTransient
	})
	if !errors.Is(err, errTransient) {
		t.Fatalf("Do() error = %v, want %v", err, errTransient)
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4", calls)
	}
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	permanent := errors.New("bad request")
	calls := 0
	err := Do(context.Background(), fastPolicy(5, func(err error) bool {
		return errors.Is(err, errTransient)
	}), func(ctx context.Context) error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("Do() error = %v, want %v", err, permanent)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	_ = Do(context.Background(), Policy{}, func(ctx context.Context) error {
		calls++
		return errTransient
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, fastPolicy(5, nil), func(ctx context.Context) error {
		calls++
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Do() error = %v, want context.Canceled", err)
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
}

func TestDo_CancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{Attempts: 5, BaseDelay: time.Hour}

	calls := 0
	err := Do(ctx, p, func(ctx context.Context) error {
		calls++
		cancel()
		return errTransient
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Do() error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDoWithData(t *testing.T) {
	calls := 0
	got, err := DoWithData(context.Background(), fastPolicy(3, nil), func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errTransient
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("DoWithData() error = %v", err)
	}
	if got != "ok" {
		t.Errorf("DoWithData() = %q, want %q", got, "ok")
	}
}

func TestDelay(t *testing.T) {
	p := Policy{BaseDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond}

	tests := []struct {
		name string
		n    uint
		err  error
		min  time.Duration
		max  time.Duration
	}{
		{"first retry", 0, errTransient, 10 * time.Millisecond, 10 * time.Millisecond},
		{"second retry doubles", 1, errTransient, 20 * time.Millisecond, 20 * time.Millisecond},
		{"huge attempt number", 200, errTransient, 50 * time.Millisecond, 50 * time.Millisecond},
		{"capped", 6, errTransient, 50 * time.Millisecond, 50 * time.Millisecond},
		{"server hint wins", 0, &hintError{wait: 30 * time.Millisecond}, 30 * time.Millisecond, 30 * time.Millisecond},
		{"hint is capped", 0, &hintError{wait: time.Hour}, 50 * time.Millisecond, 50 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.delay(tt.n, tt.err, nil)
			if got < tt.min || got > tt.max {
				t.Errorf("delay(%d) = %v, want in [%v, %v]", tt.n, got, tt.min, tt.max)
			}
		})
	}
}

func TestDelay_Jitter(t *testing.T) {
	p := Policy{BaseDelay: 10 * time.Millisecond, MaxJitter: 5 * time.Millisecond}
	for i := 0; i < 50; i++ {
		got := p.delay(0, errTransient, nil)
		if got < 10*time.Millisecond || got >= 15*time.Millisecond {
			t.Fatalf("delay() = %v, want in [10ms, 15ms)", got)
		}
	}
}
