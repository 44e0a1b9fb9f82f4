package agent

import (
	"context"

	"github.com/quaycorner/swarmkernel/pkg/state"
)

// Func adapts a plain function to the Agent interface, mirroring
// http.HandlerFunc — handy for built-in or test agents that need no
// other state.
type Func func(ctx context.Context, name string, snapshot *state.RunState) (state.Patch, error)

// Invoke implements Agent.
func (f Func) Invoke(ctx context.Context, name string, snapshot *state.RunState) (state.Patch, error) {
	return f(ctx, name, snapshot)
}
