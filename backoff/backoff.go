// Package backoff provides the delay strategies used when the streaming
// transport schedules a reconnect. Strategies are stateless and safe for
// concurrent use; the adapter owns the attempt counter.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// MaxReconnectDelay caps every strategy's output. Reconnect delays never
// exceed 30 seconds regardless of attempt count.
const MaxReconnectDelay = 30 * time.Second

// Strategy computes the delay before reconnect attempt n (1-indexed).
// Attempt 1 is the first retry after the connection dropped.
type Strategy interface {
	Delay(attempt int) time.Duration
}

// Constant always waits the same interval between attempts.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval, capped at MaxReconnectDelay.
func (c *Constant) Delay(_ int) time.Duration {
	return min(c.Interval, MaxReconnectDelay)
}

// Exponential doubles the delay each attempt:
// Delay = min(Base * 2^(attempt-1), Max).
type Exponential struct {
	Base time.Duration
	Max  time.Duration
}

// NewExponential creates an exponential strategy capped at
// MaxReconnectDelay.
func NewExponential(base time.Duration) *Exponential {
	return &Exponential{Base: base, Max: MaxReconnectDelay}
}

// Delay returns Base * 2^(attempt-1), capped at Max.
func (e *Exponential) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(float64(e.Base) * math.Pow(2, float64(attempt-1)))
	if d > e.Max || d <= 0 {
		return e.Max
	}
	return d
}

// ExponentialWithJitter applies full jitter to an exponential base:
// Delay = random value in [0, min(Base * 2^(attempt-1), Max)]. Spreads out
// reconnect storms when many clients drop at once.
type ExponentialWithJitter struct {
	Base time.Duration
	Max  time.Duration
}

// NewExponentialWithJitter creates a full-jitter exponential strategy
// capped at MaxReconnectDelay.
func NewExponentialWithJitter(base time.Duration) *ExponentialWithJitter {
	return &ExponentialWithJitter{Base: base, Max: MaxReconnectDelay}
}

// Delay returns a random duration in [0, min(Base * 2^(attempt-1), Max)].
func (e *ExponentialWithJitter) Delay(attempt int) time.Duration {
	ceiling := (&Exponential{Base: e.Base, Max: e.Max}).Delay(attempt)
	return time.Duration(rand.Float64() * float64(ceiling)) //nolint:gosec // jitter intentionally uses non-crypto rand
}

// Default returns the strategy the streaming adapter uses unless
// overridden: plain exponential from the configured base interval. The
// reconnect schedule must stay deterministic so a resumed stream comes
// back at a predictable time; jitter is opt-in.
func Default(base time.Duration) Strategy {
	return NewExponential(base)
}
