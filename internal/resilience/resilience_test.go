package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/campwatch/internal/metrics"
	"github.com/jmylchreest/campwatch/internal/model"
	"github.com/jmylchreest/campwatch/pkg/fetcher"
)

func noSleep(context.Context, time.Duration) error { return nil }

func newTestController(policy RetryPolicy, cfg BreakerConfig, opts ...Option) *Controller {
	c := NewController(policy, NewBreakers(cfg), opts...)
	c.sleep = noSleep
	return c
}

func goodRecord() *model.CompetitorRecord {
	return &model.CompetitorRecord{
		CompanyName:         "Roadsurfer",
		Success:             true,
		NumResults:          2,
		PricesFound:         []float64{95, 120},
		DataCompletenessPct: 62.5,
	}
}

func failedRecord(note string) *model.CompetitorRecord {
	return &model.CompetitorRecord{CompanyName: "Roadsurfer", Notes: note, DataCompletenessPct: 37.5}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"nil", nil, ClassOK},
		{"timeout", fmt.Errorf("%w: navigation", fetcher.ErrTimeout), ClassTransient},
		{"network", fetcher.ErrNetwork, ClassTransient},
		{"empty", fetcher.ErrEmptyResponse, ClassTransient},
		{"5xx", &fetcher.HTTPStatusError{StatusCode: 503}, ClassTransient},
		{"408", &fetcher.HTTPStatusError{StatusCode: 408}, ClassTransient},
		{"challenge", fetcher.ErrChallengePresented, ClassBlocked},
		{"403", &fetcher.HTTPStatusError{StatusCode: 403}, ClassBlocked},
		{"429", &fetcher.HTTPStatusError{StatusCode: 429}, ClassBlocked},
		{"404", &fetcher.HTTPStatusError{StatusCode: 404}, ClassPermanent},
		{"410", &fetcher.HTTPStatusError{StatusCode: 410}, ClassPermanent},
		{"dns", fetcher.ErrDNS, ClassPermanent},
		{"malformed", fetcher.ErrMalformedURL, ClassPermanent},
		{"marked permanent", Permanent(errors.New("bad selector")), ClassPermanent},
		{"cancelled", context.Canceled, ClassPermanent},
		{"data insufficient", fmt.Errorf("%w: no prices", ErrDataInsufficient), ClassDataInsufficient},
		{"invalid result", ErrInvalidResult, ClassTransient},
		{"unknown", errors.New("boom"), ClassTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestBackoff(t *testing.T) {
	p := RetryPolicy{Attempts: 5, InitialDelay: time.Second, Multiplier: 2, MaxDelay: 5 * time.Second}

	assert.Equal(t, time.Second, p.Backoff(1, ClassTransient))
	assert.Equal(t, 2*time.Second, p.Backoff(2, ClassTransient))
	assert.Equal(t, 4*time.Second, p.Backoff(3, ClassTransient))
	assert.Equal(t, 5*time.Second, p.Backoff(4, ClassTransient), "capped at max delay")
	assert.Equal(t, 3*time.Second, p.Backoff(2, ClassBlocked), "blocked backs off harder")

	p.Jitter = 0.25
	for i := 0; i < 20; i++ {
		d := p.Backoff(1, ClassTransient)
		assert.GreaterOrEqual(t, d, time.Second)
		assert.LessOrEqual(t, d, 1250*time.Millisecond)
	}
}

func TestValidate(t *testing.T) {
	assert.ErrorIs(t, Validate(nil, 20), ErrInvalidResult)
	assert.ErrorIs(t, Validate(&model.CompetitorRecord{DataCompletenessPct: 100}, 20), ErrInvalidResult)
	assert.ErrorIs(t, Validate(&model.CompetitorRecord{CompanyName: "X", DataCompletenessPct: 12.5}, 20), ErrInvalidResult)
	assert.NoError(t, Validate(&model.CompetitorRecord{CompanyName: "X", DataCompletenessPct: 25}, 20))
}

func TestBreakerLifecycle(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b := NewBreaker("jucy", BreakerConfig{FailureThreshold: 2, RecoveryTimeout: time.Minute})
	b.now = func() time.Time { return now }

	require.NoError(t, b.Allow())
	assert.False(t, b.RecordFailure())
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.RecordFailure())
	assert.Equal(t, StateOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)

	now = now.Add(time.Minute)
	assert.Equal(t, StateHalfOpen, b.State())
	require.NoError(t, b.Allow(), "one probe allowed")
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen, "second probe rejected")

	assert.True(t, b.RecordFailure(), "failed probe re-opens")
	assert.Equal(t, StateOpen, b.State())

	now = now.Add(time.Minute)
	require.NoError(t, b.Allow())
	b.RecordSuccess()
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 0, b.Failures())
}

func TestBreakersAreKeyedByAdapter(t *testing.T) {
	bs := NewBreakers(BreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Hour})
	bs.Get("apollo").RecordFailure()

	assert.Same(t, bs.Get("apollo"), bs.Get("apollo"))
	assert.Equal(t, StateOpen, bs.Get("apollo").State())
	assert.Equal(t, StateClosed, bs.Get("jucy").State())
}

func TestExecuteRetriesChallengeThenSucceeds(t *testing.T) {
	m := metrics.New()
	c := newTestController(RetryPolicy{Attempts: 3, InitialDelay: time.Second, Multiplier: 2}, DefaultBreakerConfig(), WithMetrics(m))

	calls := 0
	rec, err := c.Execute(context.Background(), "roadsurfer", 20, func(_ context.Context, attempt int) (*model.CompetitorRecord, error) {
		calls++
		assert.Equal(t, calls, attempt)
		if attempt == 1 {
			return failedRecord("challenge page did not clear"), fetcher.ErrChallengePresented
		}
		return goodRecord(), nil
	})

	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.Success)
	assert.Equal(t, 1, rec.RetryCount)
	assert.Equal(t, 2, calls)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RetriesTotal.WithLabelValues("roadsurfer")))
	assert.Equal(t, StateClosed, c.Breakers().Get("roadsurfer").State())
}

func TestExecuteOpensBreakerAfterConsecutiveTimeouts(t *testing.T) {
	c := newTestController(RetryPolicy{Attempts: 1}, BreakerConfig{FailureThreshold: 5, RecoveryTimeout: time.Hour})

	calls := 0
	call := func(context.Context, int) (*model.CompetitorRecord, error) {
		calls++
		return failedRecord("timeout"), fmt.Errorf("%w: navigation", fetcher.ErrTimeout)
	}

	for i := 0; i < 5; i++ {
		rec, err := c.Execute(context.Background(), "mcrent", 20, call)
		require.ErrorIs(t, err, fetcher.ErrTimeout)
		require.NotNil(t, rec)
	}
	require.Equal(t, 5, calls)

	rec, err := c.Execute(context.Background(), "mcrent", 20, call)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Nil(t, rec)
	assert.Equal(t, 5, calls, "adapter must not be invoked while open")
}

func TestExecuteStopsRetryingWhenBreakerOpens(t *testing.T) {
	c := newTestController(RetryPolicy{Attempts: 5}, BreakerConfig{FailureThreshold: 2, RecoveryTimeout: time.Hour})

	calls := 0
	rec, err := c.Execute(context.Background(), "jucy", 20, func(context.Context, int) (*model.CompetitorRecord, error) {
		calls++
		return failedRecord("network"), fetcher.ErrNetwork
	})

	assert.ErrorIs(t, err, fetcher.ErrNetwork)
	assert.Equal(t, 2, calls)
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.RetryCount)
}

func TestExecuteDoesNotRetryPermanentOrInsufficient(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"not found", &fetcher.HTTPStatusError{URL: "https://x.test", StatusCode: 404}},
		{"data insufficient", fmt.Errorf("%w: no prices in band", ErrDataInsufficient)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestController(RetryPolicy{Attempts: 3}, DefaultBreakerConfig())
			calls := 0
			rec, err := c.Execute(context.Background(), "apollo", 20, func(context.Context, int) (*model.CompetitorRecord, error) {
				calls++
				return failedRecord("no prices"), tt.err
			})
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, 1, calls)
			require.NotNil(t, rec)
			assert.Equal(t, 0, rec.RetryCount)
		})
	}
}

func TestExecuteRetriesInvalidResult(t *testing.T) {
	c := newTestController(RetryPolicy{Attempts: 2}, DefaultBreakerConfig())

	calls := 0
	rec, err := c.Execute(context.Background(), "jucy", 50, func(context.Context, int) (*model.CompetitorRecord, error) {
		calls++
		return &model.CompetitorRecord{CompanyName: "Jucy", DataCompletenessPct: 25}, nil
	})

	assert.ErrorIs(t, err, ErrInvalidResult)
	assert.Equal(t, 2, calls)
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.RetryCount)
}

func TestExecuteHonoursCancellationDuringBackoff(t *testing.T) {
	c := NewController(RetryPolicy{Attempts: 3, InitialDelay: time.Hour, Multiplier: 2}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	rec, err := c.Execute(ctx, "cruise-america", 20, func(context.Context, int) (*model.CompetitorRecord, error) {
		cancel()
		return failedRecord("timeout"), fetcher.ErrTimeout
	})

	assert.ErrorIs(t, err, fetcher.ErrTimeout)
	require.NotNil(t, rec)
	assert.Equal(t, 0, rec.RetryCount)
}
