package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// snapshotRecord is the relational shape of a Snapshot: state and metadata
// travel as JSON blobs, sequencing lives in indexed columns.
type snapshotRecord struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	SnapshotID string    `gorm:"size:64;uniqueIndex"`
	RunID      string    `gorm:"size:191;index:idx_run_sequence,unique"`
	Sequence   int       `gorm:"index:idx_run_sequence,unique"`
	State      []byte    `gorm:"type:blob"`
	Metadata   []byte    `gorm:"type:blob"`
	CreatedAt  time.Time `gorm:"index"`
}

func (snapshotRecord) TableName() string { return "checkpoints" }

// SQLStore persists snapshots through gorm, one row per snapshot with a
// unique (run_id, sequence) pair.
type SQLStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewSQLStore migrates the checkpoints table and returns the store.
func NewSQLStore(db *gorm.DB, logger *zap.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&snapshotRecord{}); err != nil {
		return nil, fmt.Errorf("migrate checkpoints table: %w", err)
	}
	return &SQLStore{
		db:     db,
		logger: logger.With(zap.String("store", "sql_checkpoint")),
	}, nil
}

// Put inserts one snapshot row.
func (s *SQLStore) Put(ctx context.Context, snapshot *Snapshot) error {
	state, err := json.Marshal(snapshot.State)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	meta, err := json.Marshal(snapshot.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	rec := snapshotRecord{
		SnapshotID: snapshot.ID,
		RunID:      snapshot.RunID,
		Sequence:   snapshot.Sequence,
		State:      state,
		Metadata:   meta,
		CreatedAt:  snapshot.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	s.logger.Debug("checkpoint saved to sql",
		zap.String("run_id", snapshot.RunID),
		zap.Int("sequence", snapshot.Sequence),
	)
	return nil
}

// GetLatest loads the row with the highest sequence for the run.
func (s *SQLStore) GetLatest(ctx context.Context, runID string) (*Snapshot, error) {
	var rec snapshotRecord
	err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("sequence DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query latest snapshot: %w", err)
	}
	return recordToSnapshot(&rec)
}

// List returns up to limit snapshot metas, newest first.
func (s *SQLStore) List(ctx context.Context, runID string, limit int) ([]Meta, error) {
	q := s.db.WithContext(ctx).
		Model(&snapshotRecord{}).
		Where("run_id = ?", runID).
		Order("sequence DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var recs []snapshotRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}

	metas := make([]Meta, 0, len(recs))
	for _, rec := range recs {
		metas = append(metas, Meta{
			ID:        rec.SnapshotID,
			RunID:     rec.RunID,
			Sequence:  rec.Sequence,
			CreatedAt: rec.CreatedAt,
		})
	}
	return metas, nil
}

func recordToSnapshot(rec *snapshotRecord) (*Snapshot, error) {
	snap := &Snapshot{
		ID:        rec.SnapshotID,
		RunID:     rec.RunID,
		Sequence:  rec.Sequence,
		CreatedAt: rec.CreatedAt,
	}
	if len(rec.State) > 0 {
		if err := json.Unmarshal(rec.State, &snap.State); err != nil {
			return nil, fmt.Errorf("unmarshal state: %w", err)
		}
	}
	if len(rec.Metadata) > 0 {
		if err := json.Unmarshal(rec.Metadata, &snap.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return snap, nil
}
