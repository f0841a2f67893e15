package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// RetryPolicy configures exponential backoff.
type RetryPolicy struct {
	Attempts     int           `mapstructure:"attempts" validate:"gte=1,lte=10"`
	InitialDelay time.Duration `mapstructure:"initial_delay" validate:"gte=0"`
	Multiplier   float64       `mapstructure:"multiplier" validate:"gte=1"`
	MaxDelay     time.Duration `mapstructure:"max_delay" validate:"gte=0"`
	// Jitter adds up to this fraction of the delay at random.
	Jitter float64 `mapstructure:"jitter" validate:"gte=0,lte=1"`
}

// DefaultRetryPolicy tries three times starting at two seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:     3,
		InitialDelay: 2 * time.Second,
		Multiplier:   2,
		MaxDelay:     30 * time.Second,
		Jitter:       0.25,
	}
}

// Backoff returns the delay before retry number n (1-based). Blocked
// failures back off one multiplier step harder than transient ones.
func (p RetryPolicy) Backoff(n int, class Class) time.Duration {
	if n < 1 {
		n = 1
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	if class == ClassBlocked {
		mult++
	}

	delay := float64(p.InitialDelay) * math.Pow(mult, float64(n-1))
	if p.MaxDelay > 0 {
		delay = math.Min(delay, float64(p.MaxDelay))
	}
	if p.Jitter > 0 {
		delay += rand.Float64() * p.Jitter * delay
	}
	return time.Duration(delay)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
