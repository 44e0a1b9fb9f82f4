// Package stream implements the streaming coordinator (C9): it serializes
// concurrently emitted agent events into a single ordered stream toward a
// subscriber, preserving canonical intra-group agent order, and applies
// backpressure dropping under a per-agent high-water mark.
package stream

// EventType is the outbound event taxonomy from spec §4.9/§6.
type EventType string

const (
	EventExecutionPlan EventType = "execution_plan"
	EventProgress      EventType = "progress"
	EventAgentUpdate   EventType = "agent_update"
	EventComplete      EventType = "complete"
	EventError         EventType = "error"
)

// AgentStatus is agent_update's status discriminant.
type AgentStatus string

const (
	StatusProcessing AgentStatus = "processing"
	StatusCompleted  AgentStatus = "completed"
)

// Event is one outbound message. Only the fields relevant to Type are
// populated; the rest are left zero, matching the example payloads in
// spec §6.
type Event struct {
	Type EventType `json:"type"`

	// execution_plan
	Agents     []string `json:"agents,omitempty"`
	TotalSteps int      `json:"total_steps,omitempty"`
	Reason     string   `json:"reason,omitempty"`

	// progress
	Node          string   `json:"node,omitempty"`
	CurrentStep   int      `json:"current_step,omitempty"`
	ExecutionPlan []string `json:"execution_plan,omitempty"`

	// agent_update
	Agent           string                 `json:"agent,omitempty"`
	Message         string                 `json:"message,omitempty"`
	Data            map[string]interface{} `json:"data,omitempty"`
	ProgressPercent int                    `json:"progress,omitempty"`
	Status          AgentStatus            `json:"status,omitempty"`

	// complete
	ThreadID string                 `json:"thread_id,omitempty"`
	Results  map[string]interface{} `json:"results,omitempty"`

	// error
	Kind string `json:"kind,omitempty"`

	// dropped is never set by Queue, which removes an event it drops under
	// backpressure (or never enqueues it); DrainGroup skips any event that
	// carries it rather than serializing it.
	dropped bool

	// critical events (error, complete) are never dropped under
	// backpressure — spec §5.
	critical bool
}

// InboundInvoke is the subscriber's only inbound message shape — spec §6.
type InboundInvoke struct {
	Type     string `json:"type"`
	Input    string `json:"input"`
	ThreadID string `json:"thread_id,omitempty"`
}
