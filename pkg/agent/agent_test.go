package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quaycorner/swarmkernel/pkg/state"
)

func echoAgent(status state.ResultStatus) Agent {
	return Func(func(ctx context.Context, name string, snapshot *state.RunState) (state.Patch, error) {
		return state.Patch{
			Results: map[string]state.Result{
				name: {Status: status, Timestamp: time.Now()},
			},
		}, nil
	})
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register("search", echoAgent(state.ResultSuccess))

	a, err := r.Get("search")
	require.NoError(t, err)

	patch, err := a.Invoke(context.Background(), "search", state.New("t-1", "find stuff"))
	require.NoError(t, err)
	assert.Equal(t, state.ResultSuccess, patch.Results["search"].Status)
}

func TestRegistry_GetUnknownAgent(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("missing")
	require.Error(t, err)
	assert.False(t, r.Has("missing"))
}

func TestRegistry_NamesSorted(t *testing.T) {
	r := NewRegistry()
	r.Register("zeta", echoAgent(state.ResultSuccess))
	r.Register("alpha", echoAgent(state.ResultSuccess))

	assert.Equal(t, []string{"alpha", "zeta"}, r.Names())
}
