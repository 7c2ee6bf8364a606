// Package ingest fetches candidate articles from all configured source
// buckets, normalizes and deduplicates them, and upserts them into the
// store as pending pipeline rows.
package ingest

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned by a provider when the upstream signals an
// explicit rate limit. The registry disables the source for the rest of
// the current run; the state resets when the next run starts.
var ErrRateLimited = errors.New("provider rate limited")

// ErrNoProvidersAvailable is returned when every registered provider is
// disabled or circuit-open.
var ErrNoProvidersAvailable = errors.New("no providers available")

// Provider is one pluggable article source. All returned fields are
// treated as optional and untrusted; the caller normalizes them.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, query string, limit int) ([]RawArticle, error)
}

// RawArticle is the uniform record a provider returns before
// normalization.
type RawArticle struct {
	URL         string
	Title       string
	Description string
	Source      string
	Author      string
	PublishedAt time.Time
	Content     string
}

// Registry tracks providers with two layers of protection: a per-run
// disable set for explicit rate-limit signals, and a circuit breaker
// that survives across runs for repeated transient failures.
type Registry struct {
	mu       sync.RWMutex
	order    []string
	byName   map[string]Provider
	disabled map[string]bool

	breakers map[string]*circuitBreaker
}

func NewRegistry() *Registry {
	return &Registry{
		byName:   make(map[string]Provider),
		disabled: make(map[string]bool),
		breakers: make(map[string]*circuitBreaker),
	}
}

func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	r.byName[name] = p
	r.order = append(r.order, name)
	r.breakers[name] = newCircuitBreaker()
}

// Available returns providers that are neither run-disabled nor
// circuit-open, in registration order.
func (r *Registry) Available() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	available := make([]Provider, 0, len(r.order))

	for _, name := range r.order {
		if r.disabled[name] {
			continue
		}

		if !r.breakers[name].canAttempt() {
			continue
		}

		available = append(available, r.byName[name])
	}

	return available
}

// DisableForRun removes a source from the remainder of the current run.
func (r *Registry) DisableForRun(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.disabled[name] = true
}

// ResetRun clears the per-run disable set at the start of a run.
func (r *Registry) ResetRun() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.disabled = make(map[string]bool)
}

// RecordResult feeds the circuit breaker for a source.
func (r *Registry) RecordResult(name string, err error) {
	r.mu.RLock()
	cb := r.breakers[name]
	r.mu.RUnlock()

	if cb == nil {
		return
	}

	if err != nil {
		cb.recordFailure()
		return
	}

	cb.recordSuccess()
}

const (
	circuitBreakerThreshold  = 3
	circuitBreakerResetAfter = 5 * time.Minute
	halfOpenSuccessesToClose = 2
)

type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

type circuitBreaker struct {
	mu           sync.Mutex
	failures     int
	lastFailure  time.Time
	state        circuitState
	successCount int
}

func newCircuitBreaker() *circuitBreaker {
	return &circuitBreaker{state: circuitClosed}
}

func (cb *circuitBreaker) canAttempt() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case circuitClosed:
		return true
	case circuitOpen:
		if time.Since(cb.lastFailure) > circuitBreakerResetAfter {
			cb.state = circuitHalfOpen
			cb.successCount = 0

			return true
		}

		return false
	case circuitHalfOpen:
		return true
	default:
		return false
	}
}

func (cb *circuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0

	if cb.state == circuitHalfOpen {
		cb.successCount++
		if cb.successCount >= halfOpenSuccessesToClose {
			cb.state = circuitClosed
		}
	}
}

func (cb *circuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailure = time.Now()

	if cb.failures >= circuitBreakerThreshold {
		cb.state = circuitOpen
	}
}
