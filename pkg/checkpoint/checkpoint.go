// Package checkpoint implements the session-scoped persistence contract
// (C2): durable snapshots of run state keyed by (thread_id, checkpoint_id),
// with a memory variant for tests/dev and a postgres-backed durable
// variant for production.
package checkpoint

import (
	"context"
	"errors"
	"time"

	"github.com/quaycorner/swarmkernel/pkg/state"
)

// ErrNotFound is returned by Get when no snapshot exists for the given
// thread (and, if given, checkpoint) identifier.
var ErrNotFound = errors.New("checkpoint: not found")

// Meta is the metadata recorded alongside a snapshot.
type Meta struct {
	CheckpointID string
	CreatedAt    time.Time
	Node         string // the node boundary this checkpoint was taken at
}

// Store is the checkpointer contract from spec §4.2. Implementations
// MUST provide read-after-write within a session and serialize
// concurrent Put calls for the same thread_id.
type Store interface {
	// Put durably writes snapshot under (threadID, checkpointID). At-least-once.
	Put(ctx context.Context, threadID, checkpointID string, snapshot *state.RunState, meta Meta) error
	// Get returns the snapshot for checkpointID, or the latest if checkpointID is "".
	Get(ctx context.Context, threadID, checkpointID string) (*state.RunState, Meta, error)
	// List returns (checkpointID, meta) pairs for threadID, newest first.
	List(ctx context.Context, threadID string) ([]Meta, error)
	// Delete removes every snapshot for threadID.
	Delete(ctx context.Context, threadID string) error
	// Close releases any resources held by the store.
	Close(ctx context.Context) error
}
