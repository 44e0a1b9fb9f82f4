package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quaycorner/swarmkernel/pkg/agent"
	"github.com/quaycorner/swarmkernel/pkg/state"
)

// errInvalidStateUpdate marks an agent contract violation (an Invoke call
// that returned no error but left its own results[name] entry unset).
// Distinguished from a plain agent_failure so the caller sees the kind the
// spec's taxonomy assigns it.
type errInvalidStateUpdate struct {
	agent string
}

func (e *errInvalidStateUpdate) Error() string {
	return fmt.Sprintf("invalid_state_update: agent %q did not populate results[%q]", e.agent, e.agent)
}

// Config bundles the retry/breaker/timeout knobs from spec §6.
type Config struct {
	MaxRetries   int
	Policy       Policy
	Base         time.Duration
	MaxDelay     time.Duration
	AgentTimeout time.Duration
}

// DefaultConfig returns the spec-documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   3,
		Policy:       PolicyExponential,
		Base:         1 * time.Second,
		MaxDelay:     30 * time.Second,
		AgentTimeout: 60 * time.Second,
	}
}

// Wrapper invokes an agent through the ordering in spec §4.7: breaker
// check, attempt with per-agent timeout, retry with backoff on failure,
// fallback synthesis on breaker-open or retry exhaustion.
type Wrapper struct {
	Cfg      Config
	Breakers *BreakerRegistry
}

// NewWrapper builds a Wrapper over cfg and breakers.
func NewWrapper(cfg Config, breakers *BreakerRegistry) *Wrapper {
	return &Wrapper{Cfg: cfg, Breakers: breakers}
}

// Invoke runs name's agent against snapshot and returns a Patch that is
// always safe to merge into the store: on success it carries the agent's
// own patch plus its results[name] entry; on breaker-open or exhaustion
// it carries a synthesized fallback result, the context flags spec §4.7
// requires, and a fallback progress entry. The returned error is non-nil
// only for conditions the caller (C6) must treat specially — currently
// never, since every agent-scoped outcome is recovered locally here,
// matching spec §7's propagation policy.
func (w *Wrapper) Invoke(ctx context.Context, name string, ag agent.Agent, snapshot *state.RunState) (state.Patch, error) {
	if w.Breakers.Open(name) {
		return w.fallbackPatch(name, "circuit breaker open", 0), nil
	}

	var accumulatedErrors []state.ErrorEntry
	maxAttempts := w.Cfg.MaxRetries
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for k := 0; k < maxAttempts; k++ {
		attemptCtx := ctx
		var cancel context.CancelFunc
		if w.Cfg.AgentTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, w.Cfg.AgentTimeout)
		}
		patch, err := invokeOnce(attemptCtx, name, ag, snapshot)
		if cancel != nil {
			cancel()
		}

		if err == nil {
			w.Breakers.Record(name, true)
			return patch, nil
		}

		var invalidUpdate *errInvalidStateUpdate
		kind := state.ErrorKindAgentFailure
		switch {
		case errors.As(err, &invalidUpdate):
			kind = state.ErrorKindInvalidStateUpdate
		case errors.Is(attemptCtx.Err(), context.DeadlineExceeded):
			kind = state.ErrorKindAgentTimeout
		}
		accumulatedErrors = append(accumulatedErrors, state.ErrorEntry{
			Agent:        name,
			ErrorMessage: err.Error(),
			Attempt:      k + 1,
			Kind:         kind,
		})

		if k == maxAttempts-1 {
			break
		}

		delay := Delay(w.Cfg.Policy, k, w.Cfg.Base, w.Cfg.MaxDelay)
		if delay > 0 {
			if waitErr := sleepOrCancel(ctx, delay); waitErr != nil {
				accumulatedErrors = append(accumulatedErrors, state.ErrorEntry{
					Agent:        name,
					ErrorMessage: waitErr.Error(),
					Attempt:      k + 2,
					Kind:         state.ErrorKindAgentTimeout,
				})
				break
			}
		}
	}

	w.Breakers.Record(name, false)
	out := w.fallbackPatch(name, fmt.Sprintf("exhausted %d attempts", maxAttempts), len(accumulatedErrors))
	out.Errors = append(accumulatedErrors, out.Errors...)
	return out, nil
}

// invokeOnce runs one attempt, converting a panic-free agent contract
// violation (empty results[name]) into invalid_state_update.
func invokeOnce(ctx context.Context, name string, ag agent.Agent, snapshot *state.RunState) (state.Patch, error) {
	patch, err := ag.Invoke(ctx, name, snapshot)
	if err != nil {
		return state.Patch{}, err
	}
	if _, ok := patch.Results[name]; !ok {
		return state.Patch{}, &errInvalidStateUpdate{agent: name}
	}
	return patch, nil
}

// sleepOrCancel waits for delay, returning early with ctx.Err() if ctx is
// cancelled first.
func sleepOrCancel(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Wrapper) fallbackPatch(name, message string, attemptCount int) state.Patch {
	return state.Patch{
		Results: map[string]state.Result{
			name: {Status: state.ResultFallback, Message: message},
		},
		Context: map[string]interface{}{
			name + "_fallback_used": true,
			name + "_needs_retry":   true,
		},
		Progress: []state.ProgressEntry{
			{Agent: name, Action: state.ActionFallback},
		},
	}
}
