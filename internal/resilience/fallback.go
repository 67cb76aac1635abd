package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every entry in a [FallbackGroup] fails or has an
// open circuit breaker.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig configures a [FallbackGroup].
type FallbackConfig struct {
	// CircuitBreaker is the template for the per-entry breakers. Name is
	// overwritten with the entry name.
	CircuitBreaker CircuitBreakerConfig

	// OnFailover, if set, is called each time an entry fails (or is skipped
	// because its breaker is open) and the next entry is about to be tried.
	OnFailover func(from string, err error)
}

// fallbackEntry pairs a provider value with its dedicated circuit breaker.
type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup wraps a primary and zero or more fallback instances of the same
// provider type. When the primary fails (or its circuit breaker is open), the
// next healthy fallback is tried in registration order.
//
// Entries must be registered before the group is used concurrently.
type FallbackGroup[T any] struct {
	entries []fallbackEntry[T]
	cfg     FallbackConfig
}

// NewFallbackGroup creates a [FallbackGroup] with primary as the first entry.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends a fallback provider. Fallbacks are tried in the order they
// are added, after the primary.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	fg.entries = append(fg.entries, fallbackEntry[T]{
		name:    name,
		value:   fallback,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// Names returns the entry names in the order they are tried.
func (fg *FallbackGroup[T]) Names() []string {
	names := make([]string, len(fg.entries))
	for i, e := range fg.entries {
		names[i] = e.name
	}
	return names
}

// Primary returns the first entry.
func (fg *FallbackGroup[T]) Primary() T {
	return fg.entries[0].value
}

// Execute tries fn against each entry in order until one succeeds.
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(fg, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult tries fn against each entry in the group until one
// succeeds. Circuit-open entries are skipped. A cancellation error stops the
// walk immediately and is returned as is; otherwise [ErrAllFailed] is
// returned joined with the last provider error.
func ExecuteWithResult[T any, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		lastErr error
		zero    R
	)
	for i := range fg.entries {
		entry := &fg.entries[i]
		var result R
		err := entry.breaker.Execute(func() error {
			var innerErr error
			result, innerErr = fn(entry.value)
			return innerErr
		})
		if err == nil {
			return result, nil
		}
		if isCancellation(err) {
			return zero, err
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping provider (circuit open)", "provider", entry.name)
		} else {
			slog.Warn("provider failed, trying next", "provider", entry.name, "err", err)
		}
		if fg.cfg.OnFailover != nil && i < len(fg.entries)-1 {
			fg.cfg.OnFailover(entry.name, err)
		}
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
