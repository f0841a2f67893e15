package resilience

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmylchreest/campwatch/internal/logger"
	"github.com/jmylchreest/campwatch/internal/metrics"
	"github.com/jmylchreest/campwatch/internal/model"
)

// Validate rejects a record that is absent, lacks a company name or is less
// complete than floor percent.
func Validate(rec *model.CompetitorRecord, floor float64) error {
	switch {
	case rec == nil:
		return fmt.Errorf("%w: no record", ErrInvalidResult)
	case strings.TrimSpace(rec.CompanyName) == "":
		return fmt.Errorf("%w: missing company name", ErrInvalidResult)
	case rec.DataCompletenessPct < floor:
		return fmt.Errorf("%w: completeness %.1f%% below %.1f%%", ErrInvalidResult, rec.DataCompletenessPct, floor)
	}
	return nil
}

// Call is one adapter invocation. attempt starts at 1.
type Call func(ctx context.Context, attempt int) (*model.CompetitorRecord, error)

// Controller composes retry, validation and per-adapter breakers.
type Controller struct {
	policy   RetryPolicy
	breakers *Breakers
	metrics  *metrics.Metrics
	sleep    func(context.Context, time.Duration) error
}

// Option configures a Controller.
type Option func(*Controller)

// WithMetrics records attempts, retries and breaker trips.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// NewController creates a controller. A nil breakers set gets defaults.
func NewController(policy RetryPolicy, breakers *Breakers, opts ...Option) *Controller {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	if breakers == nil {
		breakers = NewBreakers(DefaultBreakerConfig())
	}
	c := &Controller{policy: policy, breakers: breakers, sleep: sleep}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Breakers returns the breaker set.
func (c *Controller) Breakers() *Breakers {
	return c.breakers
}

// Execute runs call under the adapter's breaker until it yields a valid
// record, fails with a non-retryable class, exhausts its attempts or the
// breaker opens. The last record seen is returned with RetryCount set; it
// is nil only when the breaker rejected the first attempt.
func (c *Controller) Execute(ctx context.Context, adapter string, floor float64, call Call) (*model.CompetitorRecord, error) {
	breaker := c.breakers.Get(adapter)
	log := logger.FromContext(logger.ForAdapter(ctx, adapter))

	var (
		last    *model.CompetitorRecord
		lastErr error
		retries int
	)
	finish := func(rec *model.CompetitorRecord, err error) (*model.CompetitorRecord, error) {
		if rec != nil {
			rec.RetryCount = retries
		}
		return rec, err
	}

	for attempt := 1; attempt <= c.policy.Attempts; attempt++ {
		if err := breaker.Allow(); err != nil {
			c.metrics.IncAttempt(adapter, ClassBlocked.String())
			log.Warn("circuit breaker open, skipping adapter", "attempt", attempt)
			if last != nil {
				last.AddNote("circuit breaker open")
				return finish(last, errors.Join(lastErr, err))
			}
			return nil, err
		}

		rec, err := call(ctx, attempt)
		if err == nil {
			if verr := Validate(rec, floor); verr != nil {
				err = verr
			}
		}
		class := Classify(err)
		c.metrics.IncAttempt(adapter, class.String())

		switch class {
		case ClassOK, ClassDataInsufficient:
			breaker.RecordSuccess()
			if rec == nil {
				return finish(last, err)
			}
			return finish(rec, err)
		}

		if breaker.RecordFailure() {
			c.metrics.IncBreakerOpen(adapter)
			log.Warn("circuit breaker opened", "failures", breaker.Failures())
		}
		if rec != nil {
			last = rec
		}
		lastErr = err

		if !class.Retryable() || attempt == c.policy.Attempts || ctx.Err() != nil {
			log.Debug("giving up", "attempt", attempt, "class", class.String(), "error", err)
			return finish(last, err)
		}
		if breaker.State() == StateOpen {
			log.Debug("breaker open, not retrying", "attempt", attempt)
			return finish(last, err)
		}

		delay := c.policy.Backoff(attempt, class)
		log.Info("retrying adapter",
			"attempt", attempt,
			"class", class.String(),
			"delay", delay.Round(time.Millisecond),
			"error", err)
		c.metrics.IncRetry(adapter)
		retries++
		if serr := c.sleep(ctx, delay); serr != nil {
			return finish(last, errors.Join(err, serr))
		}
	}
	return finish(last, lastErr)
}
