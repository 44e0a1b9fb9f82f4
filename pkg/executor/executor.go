// Package executor implements the bounded parallel executor (C6): it runs
// one parallel group at a time, capping concurrency with a semaphore,
// invoking every agent through the retry/breaker wrapper, and serializing
// state merges through the store.
package executor

import (
	"context"
	"runtime"
	"sync"

	"github.com/quaycorner/swarmkernel/pkg/agent"
	"github.com/quaycorner/swarmkernel/pkg/retry"
	"github.com/quaycorner/swarmkernel/pkg/state"
)

// MemDeltaWarnMB is the default memory-growth threshold (MB) from spec
// §4.6 past which the executor tags a per-agent warning flag.
const MemDeltaWarnMB = 100

// Invoker is the subset of *retry.Wrapper the executor depends on,
// narrowed to ease testing with a fake.
type Invoker interface {
	Invoke(ctx context.Context, name string, ag agent.Agent, snapshot *state.RunState) (state.Patch, error)
}

// Emitter receives per-agent lifecycle notifications as the group runs,
// so the streaming coordinator (C9) can queue agent_update events without
// the executor importing it directly.
type Emitter interface {
	AgentStarted(agentName string)
	AgentSettled(agentName string, patch state.Patch)
}

// Executor runs one parallel group at a time against a store.
type Executor struct {
	Store          *state.Store
	Registry       *agent.Registry
	Wrapper        Invoker
	MaxConcurrent  int
	MemDeltaWarnMB int64
	Emitter        Emitter
}

// New builds an Executor. maxConcurrent <= 0 defaults to 3 — spec §6.
func New(store *state.Store, registry *agent.Registry, wrapper Invoker, maxConcurrent int) *Executor {
	if maxConcurrent <= 0 {
		maxConcurrent = 3
	}
	return &Executor{
		Store:          store,
		Registry:       registry,
		Wrapper:        wrapper,
		MaxConcurrent:  maxConcurrent,
		MemDeltaWarnMB: int64(MemDeltaWarnMB),
	}
}

// RunGroup invokes every agent in group concurrently (bounded by
// MaxConcurrent), waits for all to settle, merges their patches into the
// store, and advances current_group by one — spec §4.6. It never cancels
// siblings on one agent's failure: the retry wrapper guarantees every
// call returns a mergeable patch, success or fallback.
func (e *Executor) RunGroup(ctx context.Context, group []string) (*state.RunState, error) {
	merged, err := e.InvokeAgents(ctx, group)
	if err != nil {
		return nil, err
	}

	next := merged.CurrentGroup + 1
	return e.Store.Patch(state.Patch{CurrentGroup: &next})
}

// InvokeAgents runs every agent in names concurrently and merges their
// patches into the store, without touching current_group. Used directly
// by the run controller (C10) for targeted re-invocations the router's
// declarative rules request outside the normal group sequence — spec
// §4.8's rule-3 routing, which addresses single agents rather than whole
// groups.
func (e *Executor) InvokeAgents(ctx context.Context, group []string) (*state.RunState, error) {
	sem := make(chan struct{}, e.MaxConcurrent)
	var wg sync.WaitGroup
	patches := make([]state.Patch, len(group))

	for i, name := range group {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if e.Emitter != nil {
				e.Emitter.AgentStarted(name)
			}

			ag, err := e.Registry.Get(name)
			if err != nil {
				patches[i] = invalidAgentPatch(name, err)
				if e.Emitter != nil {
					e.Emitter.AgentSettled(name, patches[i])
				}
				return
			}

			before := allocatedMB()
			snapshot := e.Store.Get()
			patch, _ := e.Wrapper.Invoke(ctx, name, ag, snapshot)
			after := allocatedMB()

			if delta := after - before; delta > e.MemDeltaWarnMB {
				if patch.Context == nil {
					patch.Context = make(map[string]interface{})
				}
				patch.Context[name+"_mem_delta_mb"] = delta
			}

			patches[i] = patch
			if e.Emitter != nil {
				e.Emitter.AgentSettled(name, patch)
			}
		}(i, name)
	}

	wg.Wait()

	var merged *state.RunState
	for _, p := range patches {
		m, err := e.Store.Patch(p)
		if err != nil {
			return nil, err
		}
		merged = m
	}
	return merged, nil
}

func invalidAgentPatch(name string, cause error) state.Patch {
	return state.Patch{
		Results: map[string]state.Result{
			name: {Status: state.ResultFallback, Message: cause.Error()},
		},
		Context: map[string]interface{}{
			name + "_fallback_used": true,
		},
		Errors: []state.ErrorEntry{
			{Agent: name, ErrorMessage: cause.Error(), Kind: state.ErrorKindFatalKernel},
		},
		Progress: []state.ProgressEntry{
			{Agent: name, Action: state.ActionFallback},
		},
	}
}

func allocatedMB() int64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return int64(m.Alloc / (1024 * 1024))
}
