package resilience

import (
	"sync"
	"time"

	"github.com/jmylchreest/campwatch/internal/logger"
)

// State is a circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures a circuit breaker.
type BreakerConfig struct {
	// FailureThreshold consecutive failures trip the breaker.
	FailureThreshold int `mapstructure:"failure_threshold" validate:"gte=1"`
	// RecoveryTimeout is how long the breaker stays open before a probe.
	RecoveryTimeout time.Duration `mapstructure:"recovery_timeout" validate:"gte=0"`
}

// DefaultBreakerConfig trips after five failures and probes after two minutes.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  2 * time.Minute,
	}
}

// Breaker guards one adapter.
type Breaker struct {
	name   string
	config BreakerConfig
	now    func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker creates a closed breaker.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 1
	}
	return &Breaker{name: name, config: cfg, now: time.Now}
}

// State returns the current state, moving Open to Half-Open once the
// recovery timeout has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()
	return b.state
}

// Failures returns the consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Allow returns ErrCircuitOpen when a call must not proceed. In Half-Open
// a single probe is let through.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.advance()
	switch b.state {
	case StateOpen:
		return ErrCircuitOpen
	case StateHalfOpen:
		if b.probing {
			return ErrCircuitOpen
		}
		b.probing = true
	}
	return nil
}

// RecordSuccess closes the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.probing = false
	if b.state != StateClosed {
		b.transitionTo(StateClosed)
	}
}

// RecordFailure counts a failure and reports whether it opened the breaker.
func (b *Breaker) RecordFailure() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.probing = false
	switch b.state {
	case StateHalfOpen:
		b.transitionTo(StateOpen)
		return true
	case StateClosed:
		if b.failures >= b.config.FailureThreshold {
			b.transitionTo(StateOpen)
			return true
		}
	}
	return false
}

func (b *Breaker) advance() {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.config.RecoveryTimeout {
		b.transitionTo(StateHalfOpen)
	}
}

func (b *Breaker) transitionTo(state State) {
	if state == StateOpen {
		b.openedAt = b.now()
	}
	logger.Debug("circuit breaker transition",
		"adapter", b.name,
		"from", b.state.String(),
		"to", state.String(),
		"failures", b.failures)
	b.state = state
}

// Breakers holds one breaker per adapter for the life of the process.
type Breakers struct {
	config BreakerConfig
	now    func() time.Time

	mu sync.Mutex
	m  map[string]*Breaker
}

// NewBreakers creates an empty breaker set.
func NewBreakers(cfg BreakerConfig) *Breakers {
	return &Breakers{config: cfg, now: time.Now, m: make(map[string]*Breaker)}
}

// Get returns the breaker for name, creating it closed on first use.
func (bs *Breakers) Get(name string) *Breaker {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	b, ok := bs.m[name]
	if !ok {
		b = NewBreaker(name, bs.config)
		b.now = bs.now
		bs.m[name] = b
	}
	return b
}
