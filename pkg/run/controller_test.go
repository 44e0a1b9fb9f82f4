package run

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quaycorner/swarmkernel/pkg/agent"
	"github.com/quaycorner/swarmkernel/pkg/checkpoint"
	"github.com/quaycorner/swarmkernel/pkg/retry"
	"github.com/quaycorner/swarmkernel/pkg/state"
	"github.com/quaycorner/swarmkernel/pkg/stream"
)

func successAgent() agent.Func {
	return agent.Func(func(ctx context.Context, name string, snap *state.RunState) (state.Patch, error) {
		return state.Patch{Results: map[string]state.Result{name: {Status: state.ResultSuccess}}}, nil
	})
}

func newTestController(reg *agent.Registry) (*Controller, checkpoint.Store) {
	ckpt := checkpoint.NewMemoryStore()
	breakers := retry.NewBreakerRegistry(5, time.Minute)
	retryCfg := retry.Config{MaxRetries: 2, Policy: retry.PolicyExponential, Base: time.Millisecond, MaxDelay: 5 * time.Millisecond, AgentTimeout: 50 * time.Millisecond}
	ctrl := New(reg, ckpt, breakers, retryCfg, Config{MaxConcurrent: 3, RunDeadline: 5 * time.Second})
	return ctrl, ckpt
}

type collectingSink struct {
	events []stream.Event
}

func (c *collectingSink) Send(ctx context.Context, e stream.Event) error {
	c.events = append(c.events, e)
	return nil
}

func TestRun_SingleAgentPlanCompletesAndCheckpoints(t *testing.T) {
	reg := agent.NewRegistry()
	reg.Register("analytics", successAgent())
	ctrl, ckpt := newTestController(reg)

	sink := &collectingSink{}
	final, err := ctrl.Run(context.Background(), Invoke{Input: "analyze last quarter sales"}, sink)
	require.NoError(t, err)
	assert.True(t, final.IsComplete)
	assert.Equal(t, state.ResultSuccess, final.Results["analytics"].Status)

	var sawPlan, sawComplete bool
	for _, e := range sink.events {
		if e.Type == stream.EventExecutionPlan {
			sawPlan = true
			assert.Equal(t, []string{"analytics"}, e.Agents)
		}
		if e.Type == stream.EventComplete {
			sawComplete = true
		}
	}
	assert.True(t, sawPlan)
	assert.True(t, sawComplete)

	_, _, err = ckpt.Get(context.Background(), final.ThreadID, "")
	require.NoError(t, err)
}

func TestRun_DependencyChainExecutesSequentialGroups(t *testing.T) {
	reg := agent.NewRegistry()
	reg.Register("search", successAgent())
	reg.Register("document", successAgent())
	reg.Register("compliance", successAgent())
	ctrl, _ := newTestController(reg)

	final, err := ctrl.Run(context.Background(), Invoke{Input: "search info, write doc, check compliance"}, nil)
	require.NoError(t, err)
	assert.True(t, final.IsComplete)
	for _, a := range []string{"search", "document", "compliance"} {
		assert.Equal(t, state.ResultSuccess, final.Results[a].Status, a)
	}
}

func TestRun_UnregisteredAgentStillCompletesViaFallback(t *testing.T) {
	reg := agent.NewRegistry()
	ctrl, _ := newTestController(reg)

	final, err := ctrl.Run(context.Background(), Invoke{Input: "find competitors"}, nil)
	require.NoError(t, err)
	assert.True(t, final.IsComplete)
	assert.Equal(t, state.ResultFallback, final.Results["search"].Status)
}

func TestRun_ResumesFromExistingThread(t *testing.T) {
	reg := agent.NewRegistry()
	reg.Register("analytics", successAgent())
	ctrl, ckpt := newTestController(reg)

	first, err := ctrl.Run(context.Background(), Invoke{Input: "analyze last quarter sales"}, nil)
	require.NoError(t, err)

	snap, _, err := ckpt.Get(context.Background(), first.ThreadID, "")
	require.NoError(t, err)
	assert.True(t, snap.IsComplete)

	second, err := ctrl.Run(context.Background(), Invoke{Input: "analyze last quarter sales", ThreadID: first.ThreadID}, nil)
	require.NoError(t, err)
	assert.Equal(t, first.ThreadID, second.ThreadID)
	assert.True(t, second.IsComplete)
	assert.Len(t, second.Messages, len(first.Messages)+1)
}
