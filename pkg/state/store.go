package state

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrInvalidStateUpdate is raised when a Patch cannot be merged — spec §4.1.
// A rejected patch leaves the store unmutated.
var ErrInvalidStateUpdate = errors.New("invalid state update")

// Patch is the only mutator of a RunState's bulk fields, beyond the
// dedicated atomic append/set operations below. Its field set IS the
// schema: there is no way to express a key outside it, which is how this
// port satisfies spec §4.1's "any key not listed in the schema is
// rejected" — the Go type system is the schema.
//
// Merge semantics (applied by Store.Patch):
//   - CurrentAgent, TaskDescription, CurrentGroup, CurrentStep, IsComplete:
//     scalar overwrite, only when the patch sets them (pointers/non-zero
//     signal presence — see the Set* flags).
//   - ExecutionPlan, Dependencies, ParallelGroups: scalar overwrite
//     (wholesale replacement is how the supervisor/grouper hand these off).
//   - Results, Context: key-merged, last write wins per key.
//   - Messages, Progress, Errors: accumulating — concatenated, never replaced.
type Patch struct {
	Messages       []Message
	CurrentAgent   *string
	SetCurrentAgent bool // true if CurrentAgent should be applied even if nil (clears it)
	TaskDescription *string
	ExecutionPlan  []string
	SetExecutionPlan bool
	Dependencies   map[string][]string
	SetDependencies bool
	ParallelGroups [][]string
	SetParallelGroups bool
	CurrentGroup   *int
	CurrentStep    *int
	Results        map[string]Result
	Context        map[string]interface{}
	Progress       []ProgressEntry
	Errors         []ErrorEntry
	IsComplete     *bool
}

// Store wraps a RunState behind a single run-scoped mutex. All mutating
// operations are atomic; Get/Snapshot return deep copies so readers never
// observe a mutation made after their call returns — spec §4.1/§5.
type Store struct {
	mu    sync.Mutex
	state *RunState
}

// NewStore wraps an existing RunState (e.g. loaded from a checkpoint).
func NewStore(s *RunState) *Store {
	return &Store{state: s}
}

// Get returns a deep copy of the current state.
func (st *Store) Get() *RunState {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.state.clone()
}

// Snapshot is an alias of Get used by the checkpointer — spec §4.1.
func (st *Store) Snapshot() *RunState {
	return st.Get()
}

// AppendMessage atomically appends one message.
func (st *Store) AppendMessage(m Message) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	st.state.Messages = append(st.state.Messages, m)
}

// AppendProgress atomically appends one progress entry.
func (st *Store) AppendProgress(p ProgressEntry) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now()
	}
	st.state.Progress = append(st.state.Progress, p)
}

// AppendError atomically appends one error entry.
func (st *Store) AppendError(e ErrorEntry) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	st.state.Errors = append(st.state.Errors, e)
}

// SetResult atomically replaces agent's result slot. Unless fallback is
// true, it also records a "completed" progress entry — spec §4.1.
func (st *Store) SetResult(agentName string, r Result, fallback bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	if st.state.Results == nil {
		st.state.Results = make(map[string]Result)
	}
	st.state.Results[agentName] = r
	if !fallback {
		st.state.Progress = append(st.state.Progress, ProgressEntry{
			Agent:     agentName,
			Action:    ActionCompleted,
			Timestamp: time.Now(),
		})
	}
}

// Patch merges partial into the state under the schema-defined semantics
// described on the Patch type, and returns the merged state. A nil error
// guarantees the merge applied; a non-nil error (always wrapping
// ErrInvalidStateUpdate) guarantees nothing was mutated.
func (st *Store) Patch(partial Patch) (*RunState, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if partial.CurrentGroup != nil && *partial.CurrentGroup < st.state.CurrentGroup {
		return nil, fmt.Errorf("%w: current_group must not decrease (have %d, got %d)",
			ErrInvalidStateUpdate, st.state.CurrentGroup, *partial.CurrentGroup)
	}

	if len(partial.Messages) > 0 {
		st.state.Messages = append(st.state.Messages, partial.Messages...)
	}
	if len(partial.Progress) > 0 {
		st.state.Progress = append(st.state.Progress, partial.Progress...)
	}
	if len(partial.Errors) > 0 {
		st.state.Errors = append(st.state.Errors, partial.Errors...)
	}

	if partial.SetCurrentAgent {
		if partial.CurrentAgent != nil {
			st.state.CurrentAgent = *partial.CurrentAgent
		} else {
			st.state.CurrentAgent = ""
		}
	}
	if partial.TaskDescription != nil {
		st.state.TaskDescription = *partial.TaskDescription
	}
	if partial.SetExecutionPlan {
		st.state.ExecutionPlan = partial.ExecutionPlan
	}
	if partial.SetDependencies {
		st.state.Dependencies = partial.Dependencies
	}
	if partial.SetParallelGroups {
		st.state.ParallelGroups = partial.ParallelGroups
	}
	if partial.CurrentGroup != nil {
		st.state.CurrentGroup = *partial.CurrentGroup
	}
	if partial.CurrentStep != nil {
		st.state.CurrentStep = *partial.CurrentStep
	}
	if partial.IsComplete != nil {
		st.state.IsComplete = *partial.IsComplete
	}

	if len(partial.Results) > 0 {
		if st.state.Results == nil {
			st.state.Results = make(map[string]Result)
		}
		for k, v := range partial.Results {
			st.state.Results[k] = v
		}
	}
	if len(partial.Context) > 0 {
		if st.state.Context == nil {
			st.state.Context = make(map[string]interface{})
		}
		for k, v := range partial.Context {
			st.state.Context[k] = v
		}
	}

	return st.state.clone(), nil
}
