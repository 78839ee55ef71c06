package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

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

// CircuitBreaker short-circuits calls to a dependency after repeated failures.
// After RecoveryTimeout it lets HalfOpenRequests probes through; a probe
// failure reopens the circuit.
type CircuitBreaker struct {
	name             string
	failureThreshold int
	recoveryTimeout  time.Duration
	halfOpenRequests int
	isFailure        func(error) bool
	now              func() time.Time
	onStateChange    func(name string, from, to State)

	mu           sync.Mutex
	state        State
	failures     int
	successes    int
	inFlight     int
	openedAt     time.Time
	lastFailTime time.Time
}

type CircuitBreakerConfig struct {
	Name             string
	FailureThreshold int
	RecoveryTimeout  time.Duration
	HalfOpenRequests int
	// IsFailure decides which errors count against the circuit. Nil counts all.
	IsFailure     func(error) bool
	OnStateChange func(name string, from, to State)
	Now           func() time.Time
}

func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 30 * time.Second
	}
	if cfg.HalfOpenRequests <= 0 {
		cfg.HalfOpenRequests = 1
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool { return err != nil }
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &CircuitBreaker{
		name:             cfg.Name,
		failureThreshold: cfg.FailureThreshold,
		recoveryTimeout:  cfg.RecoveryTimeout,
		halfOpenRequests: cfg.HalfOpenRequests,
		isFailure:        cfg.IsFailure,
		now:              cfg.Now,
		onStateChange:    cfg.OnStateChange,
		state:            StateClosed,
	}
}

func (cb *CircuitBreaker) Execute(fn func() error) error {
	return cb.ExecuteContext(context.Background(), func(context.Context) error { return fn() })
}

func (cb *CircuitBreaker) ExecuteContext(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.acquire(); err != nil {
		return err
	}

	err := fn(ctx)
	cb.release(err)
	return err
}

func (cb *CircuitBreaker) acquire() error {
	cb.mu.Lock()
	var transition func()
	defer func() {
		cb.mu.Unlock()
		if transition != nil {
			transition()
		}
	}()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.recoveryTimeout {
			return ErrCircuitOpen
		}
		transition = cb.transitionLocked(StateHalfOpen)
	case StateHalfOpen:
		if cb.inFlight >= cb.halfOpenRequests {
			return ErrCircuitOpen
		}
	}

	cb.inFlight++
	return nil
}

func (cb *CircuitBreaker) release(err error) {
	cb.mu.Lock()
	var transition func()
	defer func() {
		cb.mu.Unlock()
		if transition != nil {
			transition()
		}
	}()

	cb.inFlight--

	if cb.isFailure(err) {
		cb.lastFailTime = cb.now()
		switch cb.state {
		case StateClosed:
			cb.failures++
			if cb.failures >= cb.failureThreshold {
				transition = cb.transitionLocked(StateOpen)
			}
		case StateHalfOpen:
			transition = cb.transitionLocked(StateOpen)
		}
		return
	}

	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.halfOpenRequests {
			transition = cb.transitionLocked(StateClosed)
		}
	}
}

// transitionLocked must be called with mu held. The returned callback runs
// the state change hook and must be invoked after mu is released.
func (cb *CircuitBreaker) transitionLocked(newState State) func() {
	oldState := cb.state
	cb.state = newState
	cb.failures = 0
	cb.successes = 0
	if newState == StateOpen {
		cb.openedAt = cb.now()
	}

	hook := cb.onStateChange
	if hook == nil || oldState == newState {
		return nil
	}
	name := cb.name
	return func() { hook(name, oldState, newState) }
}

func (cb *CircuitBreaker) Name() string {
	return cb.name
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failures = 0
	cb.successes = 0
	cb.inFlight = 0
}

func (cb *CircuitBreaker) Stats() (state State, failures int, lastFail time.Time) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state, cb.failures, cb.lastFailTime
}
