// Package resilience provides circuit breaker and provider failover primitives.
//
// [CircuitBreaker] is a three-state breaker (closed → open → half-open) that
// stops a session from waiting on a speech or language backend that keeps
// failing. [FallbackGroup] composes several instances of any provider type,
// each behind its own breaker, so a failing primary is bypassed in favour of
// healthy fallbacks. The STT, TTS and LLM wrappers in this package apply
// that to the concrete provider interfaces.
//
// Context cancellation is never counted as a provider failure: an interview
// that ends mid-request must not trip the breaker for the next one.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] when the breaker is in
// the open state and the reset timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the current operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed is the normal operating state; all calls are forwarded.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// elapses.
	StateOpen

	// StateHalfOpen lets a limited number of trial calls through. If they
	// succeed the breaker closes, otherwise it re-opens.
	StateHalfOpen
)

// String returns the human-readable name of the state.
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

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name is a human-readable label used in log messages.
	Name string

	// MaxFailures is the number of consecutive failures in the closed state
	// before the breaker opens. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before transitioning to
	// half-open. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of successful trials needed to close again,
	// and the maximum number of trials in flight. Default: 3.
	HalfOpenMax int

	// OnStateChange, if set, is called after every transition. It runs with
	// the breaker's lock held and must not call back into the breaker.
	OnStateChange func(name string, from, to State)
}

// CircuitBreaker implements the three-state circuit breaker pattern.
type CircuitBreaker struct {
	name          string
	maxFailures   int
	resetTimeout  time.Duration
	halfOpenMax   int
	onStateChange func(name string, from, to State)

	mu              sync.Mutex
	state           State
	consecutiveFail int
	lastFailure     time.Time
	halfOpenCalls   int
	halfOpenOK      int
}

// NewCircuitBreaker creates a [CircuitBreaker] with the supplied configuration.
// Zero-value config fields are replaced with defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	return &CircuitBreaker{
		name:          cfg.Name,
		maxFailures:   cfg.MaxFailures,
		resetTimeout:  cfg.ResetTimeout,
		halfOpenMax:   cfg.HalfOpenMax,
		onStateChange: cfg.OnStateChange,
		state:         StateClosed,
	}
}

// Name returns the label the breaker was configured with.
func (cb *CircuitBreaker) Name() string { return cb.name }

// Execute runs fn if the breaker allows it. In the open state it returns
// [ErrCircuitOpen] without calling fn. Errors that wrap [context.Canceled] or
// [context.DeadlineExceeded] are returned but not recorded.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	trial, err := cb.admit()
	if err != nil {
		return err
	}

	err = fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch {
	case err == nil:
		cb.recordSuccess(trial)
	case isCancellation(err):
		if trial {
			cb.halfOpenCalls--
		}
	default:
		cb.recordFailure(trial)
	}
	return err
}

// admit decides whether a call may proceed and reports whether it is a
// half-open trial.
func (cb *CircuitBreaker) admit() (trial bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if time.Since(cb.lastFailure) < cb.resetTimeout {
			return false, ErrCircuitOpen
		}
		cb.halfOpenCalls = 0
		cb.halfOpenOK = 0
		cb.setState(StateHalfOpen)
	}
	if cb.state == StateHalfOpen {
		if cb.halfOpenCalls >= cb.halfOpenMax {
			return false, ErrCircuitOpen
		}
		cb.halfOpenCalls++
		return true, nil
	}
	return false, nil
}

// recordFailure must be called with cb.mu held.
func (cb *CircuitBreaker) recordFailure(trial bool) {
	cb.lastFailure = time.Now()

	if trial {
		cb.consecutiveFail = cb.maxFailures
		cb.setState(StateOpen)
		return
	}
	cb.consecutiveFail++
	if cb.consecutiveFail >= cb.maxFailures && cb.state == StateClosed {
		cb.setState(StateOpen)
	}
}

// recordSuccess must be called with cb.mu held.
func (cb *CircuitBreaker) recordSuccess(trial bool) {
	if !trial {
		cb.consecutiveFail = 0
		return
	}
	cb.halfOpenOK++
	if cb.halfOpenOK >= cb.halfOpenMax && cb.state == StateHalfOpen {
		cb.consecutiveFail = 0
		cb.halfOpenCalls = 0
		cb.halfOpenOK = 0
		cb.setState(StateClosed)
	}
}

// setState must be called with cb.mu held.
func (cb *CircuitBreaker) setState(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to

	level := slog.LevelInfo
	if to == StateOpen {
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, "circuit breaker state change",
		"name", cb.name,
		"from", from.String(),
		"to", to.String(),
		"consecutive_failures", cb.consecutiveFail,
	)
	if cb.onStateChange != nil {
		cb.onStateChange(cb.name, from, to)
	}
}

// State returns the current [State] of the breaker. An open breaker whose
// reset timeout has elapsed reports [StateHalfOpen]; the actual transition
// happens on the next [CircuitBreaker.Execute] call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && time.Since(cb.lastFailure) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker back to [StateClosed] and clears all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFail = 0
	cb.halfOpenCalls = 0
	cb.halfOpenOK = 0
	cb.setState(StateClosed)
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
