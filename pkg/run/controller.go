// Package run implements the run controller / façade (C10): it accepts
// an inbound invoke, loads or creates a thread's state, drives the
// supervisor → grouper → executor/router loop to a terminal state,
// streams progress, and persists checkpoints at every node boundary.
package run

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quaycorner/swarmkernel/pkg/agent"
	"github.com/quaycorner/swarmkernel/pkg/checkpoint"
	"github.com/quaycorner/swarmkernel/pkg/executor"
	"github.com/quaycorner/swarmkernel/pkg/grouper"
	"github.com/quaycorner/swarmkernel/pkg/planner"
	"github.com/quaycorner/swarmkernel/pkg/retry"
	"github.com/quaycorner/swarmkernel/pkg/router"
	"github.com/quaycorner/swarmkernel/pkg/state"
	"github.com/quaycorner/swarmkernel/pkg/stream"
)

// Config bundles the knobs Controller needs beyond the retry wrapper's
// own Config — the run deadline and intra-group concurrency cap.
type Config struct {
	MaxConcurrent int
	RunDeadline   time.Duration
}

// Controller ties every kernel component together for one process. The
// circuit breaker registry is shared process-wide across runs, matching
// spec §4.7's "per agent name, process-global" scope; everything else is
// constructed fresh per run.
type Controller struct {
	Registry   *agent.Registry
	Checkpoint checkpoint.Store
	Breakers   *retry.BreakerRegistry
	RetryCfg   retry.Config
	Cfg        Config
}

// New builds a Controller. breakers is shared across every call to Run on
// this Controller, by design.
func New(registry *agent.Registry, ckpt checkpoint.Store, breakers *retry.BreakerRegistry, retryCfg retry.Config, cfg Config) *Controller {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}
	if cfg.RunDeadline <= 0 {
		cfg.RunDeadline = 10 * time.Minute
	}
	return &Controller{Registry: registry, Checkpoint: ckpt, Breakers: breakers, RetryCfg: retryCfg, Cfg: cfg}
}

// Invoke is the inbound request shape from spec §6.
type Invoke struct {
	Input    string
	ThreadID string
}

// streamEmitter adapts a stream.Coordinator into the executor.Emitter
// interface, translating agent lifecycle calls into
// agent_update events queued for ordered draining.
type streamEmitter struct {
	coord *stream.Coordinator
}

func (s *streamEmitter) AgentStarted(name string) {
	s.coord.Queue(name, stream.Event{
		Type:   stream.EventAgentUpdate,
		Agent:  name,
		Status: stream.StatusProcessing,
	})
}

func (s *streamEmitter) AgentSettled(name string, patch state.Patch) {
	s.coord.Queue(name, stream.Event{
		Type:    stream.EventAgentUpdate,
		Agent:   name,
		Status:  stream.StatusCompleted,
		Message: resultMessage(patch, name),
	})
}

func resultMessage(patch state.Patch, name string) string {
	if r, ok := patch.Results[name]; ok {
		return r.Message
	}
	return ""
}

// Run drives one request to a terminal state, streaming events to sink
// as it goes, and returns the terminal snapshot. sink may be nil for
// the synchronous (non-streaming) invocation path.
func (c *Controller) Run(ctx context.Context, in Invoke, sink stream.Sink) (*state.RunState, error) {
	threadID := in.ThreadID
	var seed *state.RunState

	if threadID != "" {
		if prior, _, err := c.Checkpoint.Get(ctx, threadID, ""); err == nil {
			seed = prior
		}
	}
	if threadID == "" {
		threadID = uuid.NewString()
	}
	if seed == nil {
		seed = state.New(threadID, in.Input)
	}

	store := state.NewStore(seed)
	store.AppendMessage(state.Message{Role: state.RoleUser, Content: in.Input})

	ctx, cancel := context.WithTimeout(ctx, c.Cfg.RunDeadline)
	defer cancel()

	coord := stream.New(stream.DefaultHWM)
	coord.ErrorSink = func(e state.ErrorEntry) { store.AppendError(e) }

	wrapper := retry.NewWrapper(c.RetryCfg, c.Breakers)
	exec := executor.New(store, c.Registry, wrapper, c.Cfg.MaxConcurrent)
	exec.Emitter = &streamEmitter{coord: coord}

	if len(store.Get().ExecutionPlan) == 0 {
		if err := c.runSupervisor(store, nil); err != nil {
			return c.terminateWithError(ctx, store, sink, "", err)
		}
		c.checkpointAt(ctx, threadID, store, "supervisor")
		c.emitExecutionPlan(ctx, sink, store.Get())
	}

	for i := 0; i < 10000; i++ {
		snapshot := store.Get()
		next := router.Next(snapshot)

		switch next {
		case router.Terminal:
			return c.complete(ctx, threadID, store, sink)

		case router.Executor:
			group := snapshot.ParallelGroups[snapshot.CurrentGroup]
			for _, name := range group {
				coord.Register(name)
			}
			c.emitProgress(ctx, sink, snapshot)

			if _, err := exec.RunGroup(ctx, group); err != nil {
				return c.terminateWithError(ctx, store, sink, "", err)
			}
			if err := coord.DrainGroup(ctx, sinkOrNoop(sink), group); err != nil {
				return c.terminateWithError(ctx, store, sink, "", err)
			}
			c.checkpointAt(ctx, threadID, store, strings.Join(group, ","))

		case router.Supervisor:
			if err := c.runSupervisor(store, snapshot.Results); err != nil {
				return c.terminateWithError(ctx, store, sink, "", err)
			}
			c.checkpointAt(ctx, threadID, store, "supervisor")
			c.emitExecutionPlan(ctx, sink, store.Get())

		default:
			// A declarative rule targeted a specific agent. Invoke it
			// directly without disturbing current_group/parallel_groups —
			// spec §9's resolution of "source allows next_agent directly".
			// current_agent is set so the critical-failure guard (router
			// rule 1) can track repeated failures of this targeted agent.
			coord.Register(next)
			if _, err := exec.InvokeAgents(ctx, []string{next}); err != nil {
				return c.terminateWithError(ctx, store, sink, "", err)
			}
			if err := coord.DrainGroup(ctx, sinkOrNoop(sink), []string{next}); err != nil {
				return c.terminateWithError(ctx, store, sink, "", err)
			}
			nameCopy := next
			if _, err := store.Patch(state.Patch{SetCurrentAgent: true, CurrentAgent: &nameCopy}); err != nil {
				return c.terminateWithError(ctx, store, sink, "", err)
			}
			c.checkpointAt(ctx, threadID, store, next)
		}

		if ctx.Err() != nil {
			return c.terminateWithError(ctx, store, sink, "", ctx.Err())
		}
	}

	return c.terminateWithError(ctx, store, sink, "", errors.New("fatal_kernel: run exceeded maximum node transitions"))
}

func (c *Controller) runSupervisor(store *state.Store, existingResults map[string]state.Result) error {
	snapshot := store.Get()
	result := planner.Run(snapshot.TaskDescription, existingResults)

	if err := grouper.Validate(result.Plan, result.Deps); err != nil {
		return fmt.Errorf("fatal_kernel: invalid dependency declaration: %w", err)
	}
	groups, err := grouper.Levelize(result.Plan, result.Deps)
	if err != nil {
		return err
	}

	_, err = store.Patch(planner.Patch(result, groups))
	return err
}

func (c *Controller) complete(ctx context.Context, threadID string, store *state.Store, sink stream.Sink) (*state.RunState, error) {
	complete := true
	final, err := store.Patch(state.Patch{IsComplete: &complete})
	if err != nil {
		return nil, err
	}
	c.checkpointAt(ctx, threadID, store, "complete")

	if sink != nil {
		results := make(map[string]interface{}, len(final.Results))
		for k, v := range final.Results {
			results[k] = v
		}
		_ = sink.Send(ctx, stream.Event{Type: stream.EventComplete, ThreadID: threadID, Results: results})
	}
	return final, nil
}

func (c *Controller) terminateWithError(ctx context.Context, store *state.Store, sink stream.Sink, agentName string, cause error) (*state.RunState, error) {
	store.AppendError(state.ErrorEntry{Agent: agentName, ErrorMessage: cause.Error(), Kind: classifyFatal(cause)})
	complete := false
	final, _ := store.Patch(state.Patch{IsComplete: &complete})
	if sink != nil {
		_ = sink.Send(ctx, stream.Event{Type: stream.EventError, Agent: agentName, Message: cause.Error(), Kind: string(classifyFatal(cause))})
	}
	return final, cause
}

func classifyFatal(err error) state.ErrorKind {
	if errors.Is(err, grouper.ErrCyclicPlan) {
		return state.ErrorKindCyclicPlan
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return state.ErrorKindFatalKernel
	}
	return state.ErrorKindFatalKernel
}

func (c *Controller) checkpointAt(ctx context.Context, threadID string, store *state.Store, node string) {
	snap := store.Snapshot()
	_ = c.Checkpoint.Put(ctx, threadID, "", snap, checkpoint.Meta{Node: node, CreatedAt: time.Now()})
}

func (c *Controller) emitExecutionPlan(ctx context.Context, sink stream.Sink, snapshot *state.RunState) {
	if sink == nil {
		return
	}
	_ = sink.Send(ctx, stream.Event{
		Type:       stream.EventExecutionPlan,
		Agents:     snapshot.ExecutionPlan,
		TotalSteps: len(snapshot.ExecutionPlan),
	})
}

func (c *Controller) emitProgress(ctx context.Context, sink stream.Sink, snapshot *state.RunState) {
	if sink == nil {
		return
	}
	node := ""
	if snapshot.CurrentGroup < len(snapshot.ParallelGroups) {
		node = strings.Join(snapshot.ParallelGroups[snapshot.CurrentGroup], ",")
	}
	_ = sink.Send(ctx, stream.Event{
		Type:          stream.EventProgress,
		Node:          node,
		CurrentStep:   snapshot.CurrentGroup,
		TotalSteps:    len(snapshot.ParallelGroups),
		ExecutionPlan: snapshot.ExecutionPlan,
	})
}

// noopSink swallows events; used when the caller passed no sink but the
// coordinator still needs somewhere to drain to (synchronous callers).
type noopSink struct{}

func (noopSink) Send(ctx context.Context, e stream.Event) error { return nil }

func sinkOrNoop(sink stream.Sink) stream.Sink {
	if sink == nil {
		return noopSink{}
	}
	return sink
}
