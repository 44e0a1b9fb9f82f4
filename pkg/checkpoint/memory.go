package checkpoint

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/quaycorner/swarmkernel/pkg/state"
)

type memoryEntry struct {
	meta     Meta
	snapshot *state.RunState
}

// MemoryStore is the volatile, single-process checkpointer variant — spec
// §4.2's `memory` variant, for tests and local development. Entries never
// survive process restart.
type MemoryStore struct {
	mu       sync.Mutex
	byThread map[string][]memoryEntry
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byThread: make(map[string][]memoryEntry)}
}

// Put appends a new checkpoint entry for threadID. Writes for the same
// thread are serialized by the store's mutex.
func (m *MemoryStore) Put(ctx context.Context, threadID, checkpointID string, snapshot *state.RunState, meta Meta) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if checkpointID == "" {
		checkpointID = uuid.NewString()
	}
	meta.CheckpointID = checkpointID
	m.byThread[threadID] = append(m.byThread[threadID], memoryEntry{meta: meta, snapshot: snapshot.Clone()})
	return nil
}

// Get returns the snapshot for checkpointID, or the newest entry if
// checkpointID is empty.
func (m *MemoryStore) Get(ctx context.Context, threadID, checkpointID string) (*state.RunState, Meta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := m.byThread[threadID]
	if len(entries) == 0 {
		return nil, Meta{}, ErrNotFound
	}
	if checkpointID == "" {
		e := entries[len(entries)-1]
		return e.snapshot.Clone(), e.meta, nil
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].meta.CheckpointID == checkpointID {
			return entries[i].snapshot.Clone(), entries[i].meta, nil
		}
	}
	return nil, Meta{}, ErrNotFound
}

// List returns every checkpoint's metadata for threadID, newest first.
func (m *MemoryStore) List(ctx context.Context, threadID string) ([]Meta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := m.byThread[threadID]
	out := make([]Meta, len(entries))
	for i, e := range entries {
		out[i] = e.meta
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Delete removes every checkpoint for threadID.
func (m *MemoryStore) Delete(ctx context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byThread, threadID)
	return nil
}

// Close is a no-op; MemoryStore holds no external resources.
func (m *MemoryStore) Close(ctx context.Context) error { return nil }
