package backoff_test

import (
	"testing"
	"time"

	"github.com/seenn-io/seenn-go/backoff"
)

func TestExponential_Schedule(t *testing.T) {
	t.Parallel()

	e := backoff.NewExponential(time.Second)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second}, // 32s capped
		{7, 30 * time.Second},
		{10, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := e.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponential_Monotonic(t *testing.T) {
	t.Parallel()

	e := backoff.NewExponential(250 * time.Millisecond)

	prev := time.Duration(0)
	for attempt := 1; attempt <= 20; attempt++ {
		d := e.Delay(attempt)
		if d < prev {
			t.Fatalf("Delay(%d) = %v < Delay(%d) = %v, schedule not monotonic", attempt, d, attempt-1, prev)
		}
		if d > backoff.MaxReconnectDelay {
			t.Fatalf("Delay(%d) = %v exceeds cap", attempt, d)
		}
		prev = d
	}
}

func TestExponential_OverflowSafe(t *testing.T) {
	t.Parallel()

	e := backoff.NewExponential(time.Second)
	if got := e.Delay(500); got != backoff.MaxReconnectDelay {
		t.Errorf("Delay(500) = %v, want cap %v", got, backoff.MaxReconnectDelay)
	}
	if got := e.Delay(0); got != time.Second {
		t.Errorf("Delay(0) = %v, want clamped to attempt 1", got)
	}
}

func TestConstant_Capped(t *testing.T) {
	t.Parallel()

	c := backoff.NewConstant(2 * time.Minute)
	if got := c.Delay(1); got != backoff.MaxReconnectDelay {
		t.Errorf("Delay(1) = %v, want cap %v", got, backoff.MaxReconnectDelay)
	}

	c = backoff.NewConstant(5 * time.Second)
	for attempt := 1; attempt <= 5; attempt++ {
		if got := c.Delay(attempt); got != 5*time.Second {
			t.Errorf("Delay(%d) = %v, want 5s", attempt, got)
		}
	}
}

func TestExponentialWithJitter_WithinCeiling(t *testing.T) {
	t.Parallel()

	j := backoff.NewExponentialWithJitter(time.Second)
	for attempt := 1; attempt <= 10; attempt++ {
		ceiling := backoff.NewExponential(time.Second).Delay(attempt)
		for range 50 {
			d := j.Delay(attempt)
			if d < 0 || d > ceiling {
				t.Fatalf("Delay(%d) = %v outside [0, %v]", attempt, d, ceiling)
			}
		}
	}
}
