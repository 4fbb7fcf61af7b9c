package utils

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// CircuitBreaker stops calling a failing dependency for a cool-down period
// after too many consecutive failures. One trial call is let through when the
// cool-down ends; its outcome closes or reopens the circuit.
type CircuitBreaker struct {
	name             string
	failureThreshold uint32
	cooldown         time.Duration
	now              func() time.Time

	mutex               sync.Mutex
	state               State
	consecutiveFailures uint32
	openedAt            time.Time
	trialInFlight       bool
}

type BreakerOption func(*CircuitBreaker)

func WithFailureThreshold(n uint32) BreakerOption {
	return func(cb *CircuitBreaker) {
		if n > 0 {
			cb.failureThreshold = n
		}
	}
}

func WithCooldown(d time.Duration) BreakerOption {
	return func(cb *CircuitBreaker) {
		if d > 0 {
			cb.cooldown = d
		}
	}
}

func NewCircuitBreaker(name string, opts ...BreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:             name,
		failureThreshold: 5,
		cooldown:         30 * time.Second,
		now:              time.Now,
		state:            StateClosed,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

func (cb *CircuitBreaker) State() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.currentState()
}

// Execute runs fn unless the circuit is open.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	trial, err := cb.beforeRequest()
	if err != nil {
		return err
	}

	defer func() {
		if e := recover(); e != nil {
			cb.afterRequest(trial, false)
			panic(e)
		}
	}()

	err = fn(ctx)
	cb.afterRequest(trial, err == nil)
	return err
}

func (cb *CircuitBreaker) beforeRequest() (bool, error) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.currentState() {
	case StateOpen:
		return false, fmt.Errorf("%s: %w", cb.name, ErrCircuitOpen)
	case StateHalfOpen:
		if cb.trialInFlight {
			return false, fmt.Errorf("%s: %w", cb.name, ErrCircuitOpen)
		}
		cb.trialInFlight = true
		return true, nil
	}
	return false, nil
}

func (cb *CircuitBreaker) afterRequest(trial, success bool) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if trial {
		cb.trialInFlight = false
	}

	if success {
		if cb.state != StateClosed {
			slog.Info("Circuit breaker closed", "name", cb.name)
		}
		cb.state = StateClosed
		cb.consecutiveFailures = 0
		return
	}

	cb.consecutiveFailures++
	if trial || cb.consecutiveFailures >= cb.failureThreshold {
		if cb.state != StateOpen {
			slog.Warn("Circuit breaker opened", "name", cb.name, "consecutive_failures", cb.consecutiveFailures)
		}
		cb.state = StateOpen
		cb.openedAt = cb.now()
	}
}

// currentState moves an open circuit to half-open once the cool-down is over.
// Callers hold the mutex.
func (cb *CircuitBreaker) currentState() State {
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.cooldown {
		cb.state = StateHalfOpen
	}
	return cb.state
}
