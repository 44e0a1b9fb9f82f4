//go:build integration

package checkpoint

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/quaycorner/swarmkernel/pkg/state"
)

// TestPostgresStore_RoundTrip spins up a real Postgres container, exercising
// the migration path and the checkpoint round-trip property from spec §8.
// Run with `go test -tags=integration ./pkg/checkpoint/...`; skipped by
// default since it needs a working Docker daemon, matching tarsy's own
// integration test convention.
func TestPostgresStore_RoundTrip(t *testing.T) {
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("swarmkernel"),
		postgres.WithUsername("swarmkernel"),
		postgres.WithPassword("swarmkernel"),
	)
	require.NoError(t, err)
	defer container.Terminate(ctx)

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := NewPostgresStore(ctx, dsn)
	require.NoError(t, err)
	defer store.Close(ctx)

	s := state.New("t1", "round trip task")
	s.IsComplete = true
	meta := Meta{Node: "supervisor", CreatedAt: time.Now()}

	require.NoError(t, store.Put(ctx, "t1", "cp1", s, meta))

	got, gotMeta, err := store.Get(ctx, "t1", "")
	require.NoError(t, err)
	require.Equal(t, s.ThreadID, got.ThreadID)
	require.Equal(t, s.TaskDescription, got.TaskDescription)
	require.Equal(t, s.IsComplete, got.IsComplete)
	require.Equal(t, "cp1", gotMeta.CheckpointID)

	list, err := store.List(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, store.Delete(ctx, "t1"))
	_, _, err = store.Get(ctx, "t1", "")
	require.ErrorIs(t, err, ErrNotFound)
}
