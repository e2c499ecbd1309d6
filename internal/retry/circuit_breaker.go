package retry

import (
	"fmt"
	"sync"
	"time"

	ncerr "cardrelay/internal/errors"
)

// State is the position of a [CircuitBreaker].
type State int

const (
	// StateClosed lets every call through.
	StateClosed State = iota
	// StateOpen rejects calls until the reset timeout has passed.
	StateOpen
	// StateHalfOpen lets probes through to find out whether the
	// endpoint has recovered.
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

// CircuitBreakerConfig configures a [CircuitBreaker].  Zero fields take
// the defaults of [DefaultCircuitBreakerConfig].
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive failures that open the
	// circuit.
	MaxFailures int
	// ResetTimeout is how long an open circuit rejects calls.
	ResetTimeout time.Duration
	// HalfOpenMax is the number of consecutive probe successes that
	// close the circuit again.
	HalfOpenMax int
	// OnStateChange is called on every transition, under the breaker's
	// lock.
	OnStateChange func(from, to State)
}

// DefaultCircuitBreakerConfig returns the defaults: open after 5
// failures, probe after 30s, close after 2 good probes.
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		MaxFailures:  5,
		ResetTimeout: 30 * time.Second,
		HalfOpenMax:  2,
	}
}

// CircuitBreaker stops hammering a reader that keeps refusing us.
// After MaxFailures consecutive failures it rejects calls outright
// until ResetTimeout has passed, then lets probes through and closes
// again after HalfOpenMax successes.  Any probe failure reopens it.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig
	now func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time
}

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(cfg *CircuitBreakerConfig) *CircuitBreaker {
	def := DefaultCircuitBreakerConfig()
	c := *def
	if cfg != nil {
		c = *cfg
		if c.MaxFailures <= 0 {
			c.MaxFailures = def.MaxFailures
		}
		if c.ResetTimeout <= 0 {
			c.ResetTimeout = def.ResetTimeout
		}
		if c.HalfOpenMax <= 0 {
			c.HalfOpenMax = def.HalfOpenMax
		}
	}
	return &CircuitBreaker{cfg: c, now: time.Now}
}

// Execute runs fn unless the circuit is open, in which case it returns
// an error matching ErrCircuitOpen without calling fn.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn()
	cb.record(err)
	return err
}

// CurrentState returns the breaker's state.  An open circuit whose
// timeout has passed still reports open until the next call probes.
func (cb *CircuitBreaker) CurrentState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the current consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// RetryAfter returns how long an open circuit keeps rejecting calls,
// or zero when calls would be let through.
func (cb *CircuitBreaker) RetryAfter() time.Duration {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.remaining()
}

// Reset forces the circuit closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.successes = 0
	cb.moveTo(StateClosed)
}

func (cb *CircuitBreaker) remaining() time.Duration {
	if cb.state != StateOpen {
		return 0
	}
	left := cb.cfg.ResetTimeout - cb.now().Sub(cb.openedAt)
	if left < 0 {
		return 0
	}
	return left
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateOpen {
		return nil
	}
	if left := cb.remaining(); left > 0 {
		return fmt.Errorf("%w: %d consecutive failures, retry in %v",
			ncerr.ErrCircuitOpen, cb.failures, left.Round(time.Millisecond))
	}
	cb.successes = 0
	cb.moveTo(StateHalfOpen)
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failures++
		cb.successes = 0
		if cb.state == StateHalfOpen || cb.failures >= cb.cfg.MaxFailures {
			cb.openedAt = cb.now()
			cb.moveTo(StateOpen)
		}
		return
	}

	switch cb.state {
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.cfg.HalfOpenMax {
			cb.failures = 0
			cb.successes = 0
			cb.moveTo(StateClosed)
		}
	case StateClosed:
		cb.failures = 0
	}
}

func (cb *CircuitBreaker) moveTo(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(from, to)
	}
}
