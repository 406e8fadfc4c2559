package observability

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// CircuitBreakerState is the state of one CircuitBreaker. Values mirror the
// CircuitBreakerStatus gauge's documented encoding (0=closed,1=open,2=half-open).
type CircuitBreakerState int

const (
	// StateClosed allows calls through.
	StateClosed CircuitBreakerState = iota
	// StateOpen blocks calls until the recovery timeout elapses.
	StateOpen
	// StateHalfOpen allows a bounded number of probe calls.
	StateHalfOpen
)

// halfOpenProbes caps the number of trial requests let through per
// half-open window, matching spec.md's "a few" probe budget.
const halfOpenProbes = 3

// CircuitBreaker guards a single external target (e.g. the AutoBank sink, or
// a CAPTCHA provider) from being hammered while it's failing. Owned by the
// component that constructs it — never a process-wide singleton, per
// spec.md §9 Design Notes. Built on sony/gobreaker, the pack's own
// circuit-breaker library (_examples/other_examples/manifests/jordigilh-kubernaut
// and grafana-tempo both pin it directly).
type CircuitBreaker struct {
	name     string
	settings gobreaker.Settings

	mu sync.RWMutex
	cb *gobreaker.CircuitBreaker
}

// NewCircuitBreaker creates a CircuitBreaker for one named target. It trips
// after maxFailures consecutive failures and stays open for timeout before
// allowing halfOpenProbes trial requests through.
func NewCircuitBreaker(name string, maxFailures int, timeout time.Duration) *CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: halfOpenProbes,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(maxFailures)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			CircuitBreakerStatus.WithLabelValues(name).Set(float64(mapState(to)))
		},
	}
	return &CircuitBreaker{
		name:     name,
		settings: settings,
		cb:       gobreaker.NewCircuitBreaker(settings),
	}
}

// Call executes fn if the breaker allows it, updating state from the result.
func (cb *CircuitBreaker) Call(fn func() error) error {
	cb.mu.RLock()
	breaker := cb.cb
	cb.mu.RUnlock()

	_, err := breaker.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	CircuitBreakerStatus.WithLabelValues(cb.name).Set(float64(mapState(breaker.State())))
	return err
}

func mapState(s gobreaker.State) CircuitBreakerState {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// GetState returns the current state.
func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return mapState(cb.cb.State())
}

// GetFailures returns the current consecutive-failure count.
func (cb *CircuitBreaker) GetFailures() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return int(cb.cb.Counts().ConsecutiveFailures)
}

// Reset forces the breaker back to closed, discarding its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.cb = gobreaker.NewCircuitBreaker(cb.settings)
	CircuitBreakerStatus.WithLabelValues(cb.name).Set(float64(StateClosed))
}

// IsOpen reports whether the breaker is currently open.
func (cb *CircuitBreaker) IsOpen() bool { return cb.GetState() == StateOpen }
