package stream

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quaycorner/swarmkernel/pkg/state"
)

type collectingSink struct {
	mu     sync.Mutex
	events []Event
}

func (c *collectingSink) Send(ctx context.Context, e Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func TestDrainGroup_PreservesCanonicalOrderAcrossAgents(t *testing.T) {
	c := New(10)
	c.Register("search")
	c.Register("analytics")

	c.Queue("analytics", Event{Type: EventAgentUpdate, Agent: "analytics", Message: "m1"})
	c.Queue("search", Event{Type: EventAgentUpdate, Agent: "search", Message: "m2"})
	c.Queue("search", Event{Type: EventAgentUpdate, Agent: "search", Message: "m3"})
	c.Queue("analytics", Event{Type: EventAgentUpdate, Agent: "analytics", Message: "m4"})

	sink := &collectingSink{}
	require.NoError(t, c.DrainGroup(context.Background(), sink, []string{"search", "analytics"}))

	require.Len(t, sink.events, 4)
	assert.Equal(t, "m2", sink.events[0].Message)
	assert.Equal(t, "m3", sink.events[1].Message)
	assert.Equal(t, "m1", sink.events[2].Message)
	assert.Equal(t, "m4", sink.events[3].Message)
}

func TestQueue_BackpressureDropsOldestNonCritical(t *testing.T) {
	var sinkCalls int
	c := New(2)
	c.ErrorSink = func(e state.ErrorEntry) {
		sinkCalls++
		assert.Equal(t, state.ErrorKindStreamDropped, e.Kind)
	}
	c.Register("search")

	c.Queue("search", Event{Type: EventAgentUpdate, Message: "1"})
	c.Queue("search", Event{Type: EventAgentUpdate, Message: "2"})
	c.Queue("search", Event{Type: EventAgentUpdate, Message: "3"})

	sink := &collectingSink{}
	require.NoError(t, c.DrainGroup(context.Background(), sink, []string{"search"}))
	require.Len(t, sink.events, 2)
	assert.Equal(t, "2", sink.events[0].Message)
	assert.Equal(t, "3", sink.events[1].Message)
	assert.Equal(t, 1, sinkCalls)
}

func TestQueue_NeverDropsErrorOrCompleteEvents(t *testing.T) {
	c := New(2)
	c.Register("search")

	c.Queue("search", Event{Type: EventError, Message: "err1"})
	c.Queue("search", Event{Type: EventError, Message: "err2"})
	c.Queue("search", Event{Type: EventAgentUpdate, Message: "update"})

	sink := &collectingSink{}
	require.NoError(t, c.DrainGroup(context.Background(), sink, []string{"search"}))

	for _, e := range sink.events {
		assert.NotEqual(t, "update", e.Message)
	}
}

func TestDrainGroup_ClearsQueueAfterDraining(t *testing.T) {
	c := New(10)
	c.Register("search")
	c.Queue("search", Event{Type: EventAgentUpdate, Message: "m1"})

	sink := &collectingSink{}
	require.NoError(t, c.DrainGroup(context.Background(), sink, []string{"search"}))
	require.NoError(t, c.DrainGroup(context.Background(), sink, []string{"search"}))

	assert.Len(t, sink.events, 1)
}
