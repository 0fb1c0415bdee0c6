package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore persists snapshots in Redis: one JSON value per snapshot plus a
// per-run sorted set indexed by sequence number, so the latest snapshot is a
// single ZREVRANGE away.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisStore creates a Redis-backed store. A zero ttl keeps snapshots
// until pruned externally.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration, logger *zap.Logger) *RedisStore {
	if prefix == "" {
		prefix = "tradeflow"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger.With(zap.String("store", "redis_checkpoint")),
	}
}

// Put writes the snapshot and indexes it under its run.
func (s *RedisStore) Put(ctx context.Context, snapshot *Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	key := s.snapshotKey(snapshot.RunID, snapshot.Sequence)
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	runKey := s.runKey(snapshot.RunID)
	if err := s.client.ZAdd(ctx, runKey, redis.Z{
		Score:  float64(snapshot.Sequence),
		Member: key,
	}).Err(); err != nil {
		return fmt.Errorf("index snapshot: %w", err)
	}
	if s.ttl > 0 {
		s.client.Expire(ctx, runKey, s.ttl)
	}

	s.logger.Debug("checkpoint saved to redis",
		zap.String("run_id", snapshot.RunID),
		zap.Int("sequence", snapshot.Sequence),
	)
	return nil
}

// GetLatest loads the snapshot with the highest sequence number.
func (s *RedisStore) GetLatest(ctx context.Context, runID string) (*Snapshot, error) {
	keys, err := s.client.ZRevRange(ctx, s.runKey(runID), 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("read run index: %w", err)
	}
	if len(keys) == 0 {
		return nil, ErrNotFound
	}
	return s.load(ctx, keys[0])
}

// List returns up to limit snapshot metas, newest first.
func (s *RedisStore) List(ctx context.Context, runID string, limit int) ([]Meta, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	keys, err := s.client.ZRevRange(ctx, s.runKey(runID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("read run index: %w", err)
	}

	metas := make([]Meta, 0, len(keys))
	for _, key := range keys {
		snap, err := s.load(ctx, key)
		if err != nil {
			s.logger.Warn("skipping unreadable snapshot", zap.String("key", key), zap.Error(err))
			continue
		}
		metas = append(metas, Meta{
			ID:        snap.ID,
			RunID:     snap.RunID,
			Sequence:  snap.Sequence,
			CreatedAt: snap.CreatedAt,
		})
	}
	return metas, nil
}

func (s *RedisStore) load(ctx context.Context, key string) (*Snapshot, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

func (s *RedisStore) snapshotKey(runID string, sequence int) string {
	return fmt.Sprintf("%s:checkpoint:%s:%d", s.prefix, runID, sequence)
}

func (s *RedisStore) runKey(runID string) string {
	return fmt.Sprintf("%s:run:%s", s.prefix, runID)
}
