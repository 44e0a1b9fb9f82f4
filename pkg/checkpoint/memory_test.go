package checkpoint

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quaycorner/swarmkernel/pkg/state"
)

func TestMemoryStore_PutThenGetReadAfterWrite(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	s := state.New("t1", "task")
	s.IsComplete = true

	require.NoError(t, m.Put(ctx, "t1", "", s, Meta{Node: "supervisor", CreatedAt: time.Now()}))

	got, meta, err := m.Get(ctx, "t1", "")
	require.NoError(t, err)
	assert.Equal(t, "t1", got.ThreadID)
	assert.True(t, got.IsComplete)
	assert.Equal(t, "supervisor", meta.Node)
}

func TestMemoryStore_GetMissingThreadReturnsNotFound(t *testing.T) {
	m := NewMemoryStore()
	_, _, err := m.Get(context.Background(), "ghost", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_GetReturnsLatestWhenCheckpointIDOmitted(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	first := state.New("t1", "v1")
	second := state.New("t1", "v2")
	require.NoError(t, m.Put(ctx, "t1", "cp1", first, Meta{CreatedAt: time.Now()}))
	require.NoError(t, m.Put(ctx, "t1", "cp2", second, Meta{CreatedAt: time.Now().Add(time.Second)}))

	got, meta, err := m.Get(ctx, "t1", "")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.TaskDescription)
	assert.Equal(t, "cp2", meta.CheckpointID)
}

func TestMemoryStore_GetSpecificCheckpointID(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	first := state.New("t1", "v1")
	second := state.New("t1", "v2")
	require.NoError(t, m.Put(ctx, "t1", "cp1", first, Meta{}))
	require.NoError(t, m.Put(ctx, "t1", "cp2", second, Meta{}))

	got, _, err := m.Get(ctx, "t1", "cp1")
	require.NoError(t, err)
	assert.Equal(t, "v1", got.TaskDescription)
}

func TestMemoryStore_ListNewestFirst(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, m.Put(ctx, "t1", "cp1", state.New("t1", "v1"), Meta{CreatedAt: time.Now()}))
	require.NoError(t, m.Put(ctx, "t1", "cp2", state.New("t1", "v2"), Meta{CreatedAt: time.Now().Add(time.Second)}))

	list, err := m.List(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "cp2", list[0].CheckpointID)
}

func TestMemoryStore_DeleteRemovesSession(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, m.Put(ctx, "t1", "cp1", state.New("t1", "v1"), Meta{}))
	require.NoError(t, m.Delete(ctx, "t1"))

	_, _, err := m.Get(ctx, "t1", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_GetResultIsIndependentOfLaterMutation(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	s := state.New("t1", "task")
	require.NoError(t, m.Put(ctx, "t1", "", s, Meta{CreatedAt: time.Now()}))

	got, _, err := m.Get(ctx, "t1", "")
	require.NoError(t, err)
	got.TaskDescription = "mutated after get"
	got.IsComplete = true

	again, _, err := m.Get(ctx, "t1", "")
	require.NoError(t, err)
	assert.Equal(t, "task", again.TaskDescription)
	assert.False(t, again.IsComplete)
}

func TestMemoryStore_MutatingPutArgAfterwardsDoesNotAffectStoredCheckpoint(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	s := state.New("t1", "task")
	require.NoError(t, m.Put(ctx, "t1", "", s, Meta{CreatedAt: time.Now()}))

	s.TaskDescription = "mutated after put"
	s.IsComplete = true

	got, _, err := m.Get(ctx, "t1", "")
	require.NoError(t, err)
	assert.Equal(t, "task", got.TaskDescription)
	assert.False(t, got.IsComplete)
}

func TestMemoryStore_ConcurrentPutsAreSerialized(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	done := make(chan struct{})
	for i := 0; i < 20; i++ {
		go func(i int) {
			_ = m.Put(ctx, "t1", "", state.New("t1", "v"), Meta{CreatedAt: time.Now()})
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < 20; i++ {
		<-done
	}
	list, err := m.List(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, list, 20)
}
