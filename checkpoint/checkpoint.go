// Package checkpoint persists immutable snapshots of workflow state, one per
// completed step, keyed by run id and sequence number, and recovers a usable
// state from the latest snapshot when a run is resumed. Stores are
// backend-agnostic: in-memory, Redis, or SQL.
package checkpoint

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a run has no snapshots in the store.
var ErrNotFound = errors.New("checkpoint not found")

// Snapshot is one immutable checkpoint of a run. A run has a totally ordered
// sequence of snapshots; snapshots are never mutated after Put.
type Snapshot struct {
	ID        string         `json:"id"`
	RunID     string         `json:"run_id"`
	Sequence  int            `json:"sequence"`
	State     map[string]any `json:"state"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Meta is the listing view of a snapshot, without the state payload.
type Meta struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	Sequence  int       `json:"sequence"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the snapshot persistence contract. Implementations must support
// safe concurrent writes keyed by run id.
type Store interface {
	Put(ctx context.Context, snapshot *Snapshot) error
	GetLatest(ctx context.Context, runID string) (*Snapshot, error)
	List(ctx context.Context, runID string, limit int) ([]Meta, error)
}

// Manager stamps snapshots with ids and timestamps and writes them through to
// a Store. It satisfies the executor's checkpoint sink contract.
type Manager struct {
	store  Store
	logger *zap.Logger
}

// NewManager creates a manager over a store.
func NewManager(store Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:  store,
		logger: logger.With(zap.String("component", "checkpoint_manager")),
	}
}

// Save writes one snapshot of merged state.
func (m *Manager) Save(ctx context.Context, runID string, sequence int, state map[string]any, metadata map[string]any) error {
	snap := &Snapshot{
		ID:        uuid.NewString(),
		RunID:     runID,
		Sequence:  sequence,
		State:     state,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}
	m.logger.Debug("saving checkpoint",
		zap.String("run_id", runID),
		zap.Int("sequence", sequence),
	)
	return m.store.Put(ctx, snap)
}

// Latest returns the run's most recent snapshot.
func (m *Manager) Latest(ctx context.Context, runID string) (*Snapshot, error) {
	return m.store.GetLatest(ctx, runID)
}

// List returns up to limit snapshot metas, newest first.
func (m *Manager) List(ctx context.Context, runID string, limit int) ([]Meta, error) {
	return m.store.List(ctx, runID, limit)
}
