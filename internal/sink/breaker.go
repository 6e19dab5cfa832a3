package sink

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while the breaker is refusing deliveries.
var ErrCircuitOpen = errors.New("circuit breaker open")

// BreakerState is the state of a Breaker.
type BreakerState int

const (
	// BreakerClosed lets every delivery through.
	BreakerClosed BreakerState = iota

	// BreakerOpen refuses deliveries until the cool-down has passed.
	BreakerOpen

	// BreakerHalfOpen lets a limited number of probe deliveries through.
	BreakerHalfOpen
)

// String returns a human-readable name for the state.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Default breaker settings.
const (
	DefaultBreakerMaxFailures   = 5
	DefaultBreakerCooldown      = 30 * time.Second
	DefaultBreakerHalfOpenLimit = 2
)

// BreakerConfig configures a Breaker. Zero fields take the defaults.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failed deliveries that open
	// the breaker.
	MaxFailures int

	// Cooldown is how long the breaker stays open before probing.
	Cooldown time.Duration

	// HalfOpenLimit is both the number of concurrent probes allowed and the
	// number of consecutive successful probes that close the breaker.
	HalfOpenLimit int
}

// Breaker stops a sink from hammering an ingest endpoint that keeps failing.
//
//   - closed → open after MaxFailures consecutive failures
//   - open → half-open once Cooldown has passed since the last failure
//   - half-open → closed after HalfOpenLimit consecutive successes
//   - half-open → open on any failure
type Breaker struct {
	mu        sync.Mutex
	cfg       BreakerConfig
	state     BreakerState
	failures  int
	successes int
	probes    int
	openedAt  time.Time

	onChange func(from, to BreakerState)
	now      func() time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultBreakerMaxFailures
	}

	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultBreakerCooldown
	}

	if cfg.HalfOpenLimit <= 0 {
		cfg.HalfOpenLimit = DefaultBreakerHalfOpenLimit
	}

	return &Breaker{cfg: cfg, now: time.Now}
}

// OnStateChange registers fn to run after every transition. fn is called
// synchronously without the breaker's lock held.
func (b *Breaker) OnStateChange(fn func(from, to BreakerState)) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.onChange = fn
}

// Allow returns ErrCircuitOpen when a delivery must not be attempted. A nil
// return must be followed by exactly one Success, Failure or Cancel.
func (b *Breaker) Allow() error {
	b.mu.Lock()

	var from BreakerState

	switch b.state {
	case BreakerClosed:
		b.mu.Unlock()
		return nil

	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			b.mu.Unlock()
			return ErrCircuitOpen
		}

		from = b.transition(BreakerHalfOpen)
		b.probes = 1

	case BreakerHalfOpen:
		if b.probes >= b.cfg.HalfOpenLimit {
			b.mu.Unlock()
			return ErrCircuitOpen
		}

		b.probes++
		b.mu.Unlock()

		return nil
	}

	fn := b.onChange
	b.mu.Unlock()

	if fn != nil {
		fn(from, BreakerHalfOpen)
	}

	return nil
}

// Success records a delivered event.
func (b *Breaker) Success() {
	b.mu.Lock()

	switch b.state {
	case BreakerClosed:
		b.failures = 0
		b.mu.Unlock()

		return

	case BreakerHalfOpen:
		b.probes--
		b.successes++

		if b.successes >= b.cfg.HalfOpenLimit {
			b.notify(b.transition(BreakerClosed), BreakerClosed)
			return
		}
	}

	b.mu.Unlock()
}

// Failure records a delivery that could not reach the endpoint.
func (b *Breaker) Failure() {
	b.mu.Lock()

	switch b.state {
	case BreakerClosed:
		b.failures++

		if b.failures >= b.cfg.MaxFailures {
			b.openedAt = b.now()
			b.notify(b.transition(BreakerOpen), BreakerOpen)

			return
		}

	case BreakerHalfOpen:
		b.probes--
		b.openedAt = b.now()
		b.notify(b.transition(BreakerOpen), BreakerOpen)

		return
	}

	b.mu.Unlock()
}

// Cancel returns an admitted slot without a verdict, for deliveries the
// caller abandoned before the endpoint could answer.
func (b *Breaker) Cancel() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerHalfOpen && b.probes > 0 {
		b.probes--
	}
}

// State returns the current state without advancing it.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.state
}

// transition moves to state, resets the counters and returns the previous
// state. Called with mu held.
func (b *Breaker) transition(state BreakerState) BreakerState {
	from := b.state
	b.state = state
	b.failures = 0
	b.successes = 0

	if state != BreakerHalfOpen {
		b.probes = 0
	}

	return from
}

// notify releases mu and reports the transition.
func (b *Breaker) notify(from, to BreakerState) {
	fn := b.onChange
	b.mu.Unlock()

	if fn != nil && from != to {
		fn(from, to)
	}
}
