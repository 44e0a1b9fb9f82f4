// Package state implements the orchestration kernel's typed shared run
// state (C1): a mutation-disciplined container accessed only through
// thread-safe, deep-copy-on-read accessors.
package state

import "time"

// MessageRole identifies the sender of a conversation message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
	RoleTool      MessageRole = "tool"
)

// Message is one append-only conversation record.
type Message struct {
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
	Agent     string      `json:"agent,omitempty"`
}

// ProgressAction is the discriminant of a ProgressEntry.
type ProgressAction string

const (
	ActionStarted   ProgressAction = "started"
	ActionCompleted ProgressAction = "completed"
	ActionFailed    ProgressAction = "failed"
	ActionFallback  ProgressAction = "fallback"
)

// ProgressEntry is one append-only progress record.
type ProgressEntry struct {
	Agent     string                 `json:"agent"`
	Action    ProgressAction         `json:"action"`
	Timestamp time.Time              `json:"timestamp"`
	Meta      map[string]interface{} `json:"meta,omitempty"`
}

// ErrorKind is the closed taxonomy of error kinds from spec §7. Modeled as
// a string enum (rather than distinct Go error types) so it round-trips
// through the checkpointer as part of an ErrorEntry.
type ErrorKind string

const (
	ErrorKindInvalidInput        ErrorKind = "invalid_input"
	ErrorKindInvalidStateUpdate  ErrorKind = "invalid_state_update"
	ErrorKindAgentTimeout        ErrorKind = "agent_timeout"
	ErrorKindAgentFailure        ErrorKind = "agent_failure"
	ErrorKindCyclicPlan          ErrorKind = "cyclic_plan"
	ErrorKindPlannerDegraded     ErrorKind = "planner_degraded"
	ErrorKindStreamDropped       ErrorKind = "stream_dropped"
	ErrorKindBreakerOpen         ErrorKind = "breaker_open"
	ErrorKindFatalKernel         ErrorKind = "fatal_kernel"
)

// ErrorEntry is one append-only error record.
type ErrorEntry struct {
	Agent        string    `json:"agent,omitempty"`
	ErrorMessage string    `json:"error_message"`
	Attempt      int       `json:"attempt,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	Kind         ErrorKind `json:"kind"`
}

// ResultStatus is an agent result's terminal discriminant.
type ResultStatus string

const (
	ResultSuccess  ResultStatus = "success"
	ResultError    ResultStatus = "error"
	ResultFallback ResultStatus = "fallback"
)

// Result is an agent-defined record written once per run to
// RunState.Results[agentName]. A retry overwrites it; a fresh
// re-invocation after a rework signal overwrites it again.
type Result struct {
	Status    ResultStatus           `json:"status"`
	Message   string                 `json:"message,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// RunState is the single logical entity accumulated across one run.
// Field shapes follow spec.md §3 exactly; see Store for the only
// sanctioned way to read or mutate one.
type RunState struct {
	Messages         []Message              `json:"messages"`
	CurrentAgent     string                 `json:"current_agent,omitempty"`
	TaskDescription  string                 `json:"task_description"`
	ExecutionPlan    []string               `json:"execution_plan"`
	Dependencies     map[string][]string    `json:"dependencies"`
	ParallelGroups   [][]string             `json:"parallel_groups"`
	CurrentGroup     int                    `json:"current_group"`
	CurrentStep      int                    `json:"current_step"`
	Results          map[string]Result      `json:"results"`
	Context          map[string]interface{} `json:"context"`
	Progress         []ProgressEntry        `json:"progress"`
	Errors           []ErrorEntry           `json:"errors"`
	IsComplete       bool                   `json:"is_complete"`
	ThreadID         string                 `json:"thread_id"`
}

// New creates an empty RunState for a fresh run keyed by threadID.
func New(threadID, taskDescription string) *RunState {
	return &RunState{
		TaskDescription: taskDescription,
		Dependencies:    make(map[string][]string),
		Results:         make(map[string]Result),
		Context:         make(map[string]interface{}),
		ThreadID:        threadID,
	}
}

// Clone returns a deep copy of s. Exported for checkpointer variants
// (e.g. MemoryStore) that hold a *RunState directly and must not hand
// out or retain a pointer an unrelated Store could later mutate in
// place; Store itself should prefer Get/Snapshot, which already clone
// under the store's mutex.
func (s *RunState) Clone() *RunState {
	return s.clone()
}

// clone returns a deep copy of s. Unexported: callers must go through
// Store.Snapshot/Store.Get so every read is taken under the store's mutex.
func (s *RunState) clone() *RunState {
	out := &RunState{
		CurrentAgent:    s.CurrentAgent,
		TaskDescription: s.TaskDescription,
		CurrentGroup:    s.CurrentGroup,
		CurrentStep:     s.CurrentStep,
		IsComplete:      s.IsComplete,
		ThreadID:        s.ThreadID,
	}

	out.Messages = make([]Message, len(s.Messages))
	copy(out.Messages, s.Messages)

	out.Progress = make([]ProgressEntry, len(s.Progress))
	copy(out.Progress, s.Progress)

	out.Errors = make([]ErrorEntry, len(s.Errors))
	copy(out.Errors, s.Errors)

	out.ExecutionPlan = make([]string, len(s.ExecutionPlan))
	copy(out.ExecutionPlan, s.ExecutionPlan)

	out.ParallelGroups = make([][]string, len(s.ParallelGroups))
	for i, g := range s.ParallelGroups {
		grp := make([]string, len(g))
		copy(grp, g)
		out.ParallelGroups[i] = grp
	}

	out.Dependencies = make(map[string][]string, len(s.Dependencies))
	for k, v := range s.Dependencies {
		cp := make([]string, len(v))
		copy(cp, v)
		out.Dependencies[k] = cp
	}

	out.Results = make(map[string]Result, len(s.Results))
	for k, v := range s.Results {
		rv := v
		if v.Data != nil {
			rv.Data = make(map[string]interface{}, len(v.Data))
			for dk, dv := range v.Data {
				rv.Data[dk] = dv
			}
		}
		out.Results[k] = rv
	}

	out.Context = make(map[string]interface{}, len(s.Context))
	for k, v := range s.Context {
		out.Context[k] = v
	}

	return out
}
