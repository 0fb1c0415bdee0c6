package checkpoint

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestSnapshot(runID string, sequence int) *Snapshot {
	return &Snapshot{
		ID:       uuid.NewString(),
		RunID:    runID,
		Sequence: sequence,
		State: map[string]any{
			"ticker":        "NVDA",
			"market_report": fmt.Sprintf("report %d", sequence),
		},
		Metadata:  map[string]any{"step": fmt.Sprintf("step-%d", sequence)},
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

// runStoreContract exercises the Store behaviors every backend must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("latest of unknown run is not found", func(t *testing.T) {
		store := newStore(t)
		_, err := store.GetLatest(context.Background(), "no-such-run")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("latest returns highest sequence", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		for seq := 1; seq <= 3; seq++ {
			require.NoError(t, store.Put(ctx, newTestSnapshot("run-a", seq)))
		}

		snap, err := store.GetLatest(ctx, "run-a")
		require.NoError(t, err)
		assert.Equal(t, 3, snap.Sequence)
		assert.Equal(t, "run-a", snap.RunID)
		assert.Equal(t, "NVDA", snap.State["ticker"])
		assert.Equal(t, "report 3", snap.State["market_report"])
	})

	t.Run("list is newest first and honors limit", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		for seq := 1; seq <= 4; seq++ {
			require.NoError(t, store.Put(ctx, newTestSnapshot("run-b", seq)))
		}

		metas, err := store.List(ctx, "run-b", 2)
		require.NoError(t, err)
		require.Len(t, metas, 2)
		assert.Equal(t, 4, metas[0].Sequence)
		assert.Equal(t, 3, metas[1].Sequence)

		all, err := store.List(ctx, "run-b", 0)
		require.NoError(t, err)
		assert.Len(t, all, 4)
	})

	t.Run("runs are independent", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.Put(ctx, newTestSnapshot("run-c", 1)))
		require.NoError(t, store.Put(ctx, newTestSnapshot("run-d", 9)))

		snap, err := store.GetLatest(ctx, "run-c")
		require.NoError(t, err)
		assert.Equal(t, 1, snap.Sequence)
	})
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	runStoreContract(t, func(t *testing.T) Store {
		return NewMemoryStore()
	})
}

func TestRedisStore(t *testing.T) {
	t.Parallel()
	runStoreContract(t, func(t *testing.T) Store {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		return NewRedisStore(client, "test", 0, zap.NewNop())
	})
}

func TestSQLStore(t *testing.T) {
	t.Parallel()
	runStoreContract(t, func(t *testing.T) Store {
		db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
		require.NoError(t, err)
		store, err := NewSQLStore(db, zap.NewNop())
		require.NoError(t, err)
		return store
	})
}

func TestManager_StampsSnapshots(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	mgr := NewManager(store, zap.NewNop())
	ctx := context.Background()

	state := map[string]any{"ticker": "NVDA"}
	require.NoError(t, mgr.Save(ctx, "run-m", 1, state, map[string]any{"step": "market"}))
	require.NoError(t, mgr.Save(ctx, "run-m", 2, state, nil))

	snap, err := mgr.Latest(ctx, "run-m")
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Sequence)
	assert.NotEmpty(t, snap.ID)
	assert.False(t, snap.CreatedAt.IsZero())

	metas, err := mgr.List(ctx, "run-m", 10)
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.NotEqual(t, metas[0].ID, metas[1].ID)
}
