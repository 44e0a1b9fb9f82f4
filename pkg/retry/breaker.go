package retry

import (
	"sync"
	"time"
)

// breakerState is the per-agent-name circuit breaker state — spec §4.7.
// Process-global: one instance shared across runs in the same process, as
// spec.md's design notes call out explicitly ("process-wide state with an
// explicit init/teardown pair").
type breakerState struct {
	mu            sync.Mutex
	failureCount  int
	lastFailureAt time.Time
}

// BreakerRegistry holds one breakerState per agent name. Constructed
// explicitly (never a package-level global) so tests get a fresh instance —
// spec's design note on avoiding implicit singletons.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*breakerState
	Threshold int
	Timeout   time.Duration
}

// NewBreakerRegistry creates a registry with the given threshold/timeout —
// BREAKER_THRESHOLD and BREAKER_TIMEOUT_S from spec §6.
func NewBreakerRegistry(threshold int, timeout time.Duration) *BreakerRegistry {
	return &BreakerRegistry{
		breakers:  make(map[string]*breakerState),
		Threshold: threshold,
		Timeout:   timeout,
	}
}

func (r *BreakerRegistry) stateFor(agent string) *breakerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[agent]
	if !ok {
		b = &breakerState{}
		r.breakers[agent] = b
	}
	return b
}

// Open reports whether agent's breaker is currently open (short-circuiting
// invocations). A breaker that reached threshold failures but whose
// timeout window has elapsed is treated as half-open — this call does not
// call the agent's body, the caller's next successful Record(agent,true)
// is what actually closes it again.
func (r *BreakerRegistry) Open(agent string) bool {
	b := r.stateFor(agent)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failureCount < r.Threshold {
		return false
	}
	return time.Since(b.lastFailureAt) < r.Timeout
}

// Record updates agent's breaker after an invocation attempt. success
// resets the counter to zero; failure increments it and stamps the
// failure time.
func (r *BreakerRegistry) Record(agent string, success bool) {
	b := r.stateFor(agent)
	b.mu.Lock()
	defer b.mu.Unlock()
	if success {
		b.failureCount = 0
		return
	}
	b.failureCount++
	b.lastFailureAt = time.Now()
}

// FailureCount returns agent's current consecutive failure count, for
// tests and observability.
func (r *BreakerRegistry) FailureCount(agent string) int {
	b := r.stateFor(agent)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}
