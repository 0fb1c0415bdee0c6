package checkpoint

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps snapshots in process memory, keyed by run id. Suitable
// for tests and single-process runs without resumability across restarts.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string][]*Snapshot
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string][]*Snapshot)}
}

// Put appends the snapshot to its run's sequence.
func (s *MemoryStore) Put(ctx context.Context, snapshot *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[snapshot.RunID] = append(s.runs[snapshot.RunID], snapshot)
	return nil
}

// GetLatest returns the snapshot with the highest sequence number.
func (s *MemoryStore) GetLatest(ctx context.Context, runID string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snaps := s.runs[runID]
	if len(snaps) == 0 {
		return nil, ErrNotFound
	}
	latest := snaps[0]
	for _, snap := range snaps[1:] {
		if snap.Sequence > latest.Sequence {
			latest = snap
		}
	}
	return latest, nil
}

// List returns up to limit snapshot metas, newest first.
func (s *MemoryStore) List(ctx context.Context, runID string, limit int) ([]Meta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snaps := s.runs[runID]

	metas := make([]Meta, 0, len(snaps))
	for _, snap := range snaps {
		metas = append(metas, Meta{
			ID:        snap.ID,
			RunID:     snap.RunID,
			Sequence:  snap.Sequence,
			CreatedAt: snap.CreatedAt,
		})
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].Sequence > metas[j].Sequence })
	if limit > 0 && len(metas) > limit {
		metas = metas[:limit]
	}
	return metas, nil
}
