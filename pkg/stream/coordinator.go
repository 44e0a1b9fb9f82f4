package stream

import (
	"context"
	"sync"

	"github.com/quaycorner/swarmkernel/pkg/state"
)

// DefaultHWM is the per-agent queue high-water mark from spec §6
// (STREAM_HWM).
const DefaultHWM = 1024

// Sink is where a drained stream of events is sent — typically a
// websocket connection, but kept abstract so tests can substitute a
// simple collector.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// agentQueue is one agent's FIFO event buffer.
type agentQueue struct {
	mu      sync.Mutex
	events  []Event
	dropped int
}

// Coordinator holds one queue per agent registered in the current group
// and drains them in canonical order once the group settles — spec §4.9.
// Constructed explicitly per run (no package-level singleton) per spec
// §9's "process-wide state with an explicit init/teardown pair" note.
type Coordinator struct {
	mu     sync.Mutex
	queues map[string]*agentQueue
	hwm    int

	// ErrorSink receives a stream_dropped ErrorEntry whenever backpressure
	// drops an event, so the caller can persist it via the state store —
	// spec §5/§7. Optional.
	ErrorSink func(state.ErrorEntry)
}

// New builds a Coordinator with the given high-water mark. hwm <= 0
// defaults to DefaultHWM.
func New(hwm int) *Coordinator {
	if hwm <= 0 {
		hwm = DefaultHWM
	}
	return &Coordinator{queues: make(map[string]*agentQueue), hwm: hwm}
}

// Register creates a fresh queue for agentName, replacing any prior one
// (e.g. across groups).
func (c *Coordinator) Register(agentName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queues[agentName] = &agentQueue{}
}

// Queue appends event to agentName's queue. If the queue is at its
// high-water mark, the oldest non-critical (progress/agent_update) event,
// counting the incoming one, is dropped and a stream_dropped error is
// reported via ErrorSink; error and complete events are never dropped.
func (c *Coordinator) Queue(agentName string, e Event) {
	c.mu.Lock()
	q, ok := c.queues[agentName]
	if !ok {
		q = &agentQueue{}
		c.queues[agentName] = q
	}
	c.mu.Unlock()

	e.critical = e.Type == EventError || e.Type == EventComplete

	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) >= c.hwm {
		idx := firstDroppable(q.events)
		if idx >= 0 || !e.critical {
			if idx >= 0 {
				q.events = append(q.events[:idx], q.events[idx+1:]...)
			}
			q.dropped++
			if c.ErrorSink != nil {
				c.ErrorSink(state.ErrorEntry{
					Agent:        agentName,
					ErrorMessage: "stream backpressure: dropped oldest non-critical event",
					Kind:         state.ErrorKindStreamDropped,
				})
			}
			if idx < 0 {
				// Every queued event is critical, so the incoming event is
				// the oldest non-critical one and is the one dropped.
				return
			}
		}
	}
	q.events = append(q.events, e)
}

func firstDroppable(events []Event) int {
	for i, e := range events {
		if !e.critical {
			return i
		}
	}
	return -1
}

// DrainGroup emits every queued event for each agent in canonicalOrder,
// agent by agent, FIFO within an agent, then clears the drained queues.
// It is awaited by the run controller after every agent in the group settles —
// spec §4.9.
func (c *Coordinator) DrainGroup(ctx context.Context, sink Sink, canonicalOrder []string) error {
	for _, agentName := range canonicalOrder {
		c.mu.Lock()
		q, ok := c.queues[agentName]
		c.mu.Unlock()
		if !ok {
			continue
		}

		q.mu.Lock()
		events := q.events
		q.events = nil
		q.mu.Unlock()

		for _, e := range events {
			if e.dropped {
				continue
			}
			if err := sink.Send(ctx, e); err != nil {
				return err
			}
		}
	}
	return nil
}
