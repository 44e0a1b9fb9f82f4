// Package agent defines the uniform contract every agent plugged into the
// orchestration kernel must honor (C3), and a name-keyed registry the
// kernel dispatches through. The kernel never hard-codes a list of agents.
package agent

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/quaycorner/swarmkernel/pkg/state"
)

// Agent is a pure function from a run-state snapshot to a state patch —
// spec §4.3. Implementations MUST NOT mutate snapshot, MUST populate
// results[name] in the returned patch with at least {status, timestamp},
// and MUST be idempotent per call. The kernel treats the agent body as
// opaque; it never inspects anything beyond the returned patch or error.
type Agent interface {
	// Invoke runs one attempt of the agent against snapshot. name is the
	// canonical registry name under which this instance was registered —
	// passed in rather than assumed, so one implementation can back
	// several registry entries.
	//
	// An error return means the attempt failed (spec's agent_failure /
	// invalid_state_update); the retry wrapper (pkg/retry) owns turning
	// that into errors entries and fallback records. Agents never write
	// to state.Errors directly.
	Invoke(ctx context.Context, name string, snapshot *state.RunState) (state.Patch, error)
}

// Registry is a thread-safe, name-keyed collection of Agent
// implementations populated at startup — spec's "dispatch by string
// agent name, modeled as a registry" design note.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Agent
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]Agent)}
}

// Register adds or replaces the agent bound to name.
func (r *Registry) Register(name string, a Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[name] = a
}

// Get returns the agent registered under name.
func (r *Registry) Get(name string) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[name]
	if !ok {
		return nil, fmt.Errorf("agent %q not registered", name)
	}
	return a, nil
}

// Names returns every registered agent name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.agents))
	for n := range r.agents {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.agents[name]
	return ok
}
