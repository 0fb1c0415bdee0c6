package checkpoint

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

var testMergeSpec = MergeSpec{
	IdentityFields: []string{"ticker", "trade_date"},
	SubStateFields: []string{"investment_debate_state", "risk_debate_state"},
	DecisionFields: []string{"investment_plan", "trader_investment_plan", "final_trade_decision"},
}

// seededStore returns a memory store holding one snapshot for run-r.
func seededStore(t *testing.T, state map[string]any) Store {
	t.Helper()
	store := NewMemoryStore()
	require.NoError(t, store.Put(context.Background(), &Snapshot{
		ID:       "snap-1",
		RunID:    "run-r",
		Sequence: 7,
		State:    state,
	}))
	return store
}

func TestRecover_IdentityFieldsAlwaysFromFallback(t *testing.T) {
	t.Parallel()

	store := seededStore(t, map[string]any{
		"ticker":     "AAPL",
		"trade_date": "2020-01-01",
	})
	engine := NewRecoveryEngine(store, testMergeSpec, nil, zap.NewNop())

	merged := engine.Recover(context.Background(), "run-r", map[string]any{
		"ticker":     "NVDA",
		"trade_date": "2026-08-24",
	})

	assert.Equal(t, "NVDA", merged["ticker"])
	assert.Equal(t, "2026-08-24", merged["trade_date"])
}

func TestRecover_ScalarFallbackWinsUnlessEmpty(t *testing.T) {
	t.Parallel()

	store := seededStore(t, map[string]any{
		"market_report": "snapshot market view",
		"news_report":   "snapshot news view",
	})
	engine := NewRecoveryEngine(store, testMergeSpec, nil, zap.NewNop())

	merged := engine.Recover(context.Background(), "run-r", map[string]any{
		"market_report": "fallback market view",
		"news_report":   "",
	})

	// Non-empty fallback keeps its value; empty fallback takes the snapshot's.
	assert.Equal(t, "fallback market view", merged["market_report"])
	assert.Equal(t, "snapshot news view", merged["news_report"])
}

func TestRecover_DecisionFieldsOnlyFillEmptyFallback(t *testing.T) {
	t.Parallel()

	store := seededStore(t, map[string]any{
		"final_trade_decision": "BUY",
		"investment_plan":      "snapshot plan",
	})
	engine := NewRecoveryEngine(store, testMergeSpec, nil, zap.NewNop())

	merged := engine.Recover(context.Background(), "run-r", map[string]any{
		"final_trade_decision": "HOLD",
	})

	assert.Equal(t, "HOLD", merged["final_trade_decision"])
	assert.Equal(t, "snapshot plan", merged["investment_plan"])
}

func TestRecover_SubStateTakenWholesaleWhenFallbackHasNoHistory(t *testing.T) {
	t.Parallel()

	snapSub := map[string]any{
		"history":     []any{"turn 1", "turn 2"},
		"round_count": 2,
	}
	store := seededStore(t, map[string]any{"investment_debate_state": snapSub})
	engine := NewRecoveryEngine(store, testMergeSpec, nil, zap.NewNop())

	t.Run("fallback sub-state absent", func(t *testing.T) {
		merged := engine.Recover(context.Background(), "run-r", map[string]any{})
		assert.Equal(t, snapSub, merged["investment_debate_state"])
	})

	t.Run("fallback sub-state has empty history", func(t *testing.T) {
		merged := engine.Recover(context.Background(), "run-r", map[string]any{
			"investment_debate_state": map[string]any{"history": []any{}, "round_count": 0},
		})
		assert.Equal(t, snapSub, merged["investment_debate_state"])
	})
}

func TestRecover_SubStateSnapshotWinsFieldByField(t *testing.T) {
	t.Parallel()

	store := seededStore(t, map[string]any{
		"investment_debate_state": map[string]any{
			"round_count":     4,
			"current_speaker": "bear",
		},
	})
	engine := NewRecoveryEngine(store, testMergeSpec, nil, zap.NewNop())

	merged := engine.Recover(context.Background(), "run-r", map[string]any{
		"investment_debate_state": map[string]any{
			"history":         []any{"fallback turn"},
			"round_count":     1,
			"current_speaker": "bull",
		},
	})

	sub, ok := merged["investment_debate_state"].(map[string]any)
	require.True(t, ok)

	// Snapshot wins whenever present (inverse of the scalar rule); fields
	// absent from the snapshot keep the fallback's value.
	assert.Equal(t, 4, sub["round_count"])
	assert.Equal(t, "bear", sub["current_speaker"])
	assert.Equal(t, []any{"fallback turn"}, sub["history"])
}

func TestRecover_FailuresReturnFallbackUnchanged(t *testing.T) {
	t.Parallel()

	fallback := map[string]any{"ticker": "NVDA", "trade_date": "2026-08-24"}

	t.Run("nil store", func(t *testing.T) {
		engine := NewRecoveryEngine(nil, testMergeSpec, nil, zap.NewNop())
		merged := engine.Recover(context.Background(), "run-r", fallback)
		assert.Equal(t, fallback, merged)
	})

	t.Run("missing snapshot", func(t *testing.T) {
		engine := NewRecoveryEngine(NewMemoryStore(), testMergeSpec, nil, zap.NewNop())
		merged := engine.Recover(context.Background(), "run-r", fallback)
		assert.Equal(t, fallback, merged)
	})

	t.Run("store failure", func(t *testing.T) {
		engine := NewRecoveryEngine(&failingStore{}, testMergeSpec, nil, zap.NewNop())
		merged := engine.Recover(context.Background(), "run-r", fallback)
		assert.Equal(t, fallback, merged)
	})

	t.Run("snapshot without state", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.Put(context.Background(), &Snapshot{RunID: "run-r", Sequence: 1}))
		engine := NewRecoveryEngine(store, testMergeSpec, nil, zap.NewNop())
		merged := engine.Recover(context.Background(), "run-r", fallback)
		assert.Equal(t, fallback, merged)
	})
}

type failingStore struct{}

func (f *failingStore) Put(ctx context.Context, snapshot *Snapshot) error { return nil }
func (f *failingStore) GetLatest(ctx context.Context, runID string) (*Snapshot, error) {
	return nil, errors.New("store unreachable")
}
func (f *failingStore) List(ctx context.Context, runID string, limit int) ([]Meta, error) {
	return nil, errors.New("store unreachable")
}

func TestRecover_Idempotent(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		field := rapid.StringMatching(`[a-z_]{1,12}_report`)
		snapState := map[string]any{"ticker": "AAPL"}
		for _, k := range rapid.SliceOfNDistinct(field, 0, 5, rapid.ID[string]).Draw(t, "snapFields") {
			snapState[k] = "snapshot " + k
		}
		fallback := map[string]any{"ticker": "NVDA", "trade_date": "2026-08-24"}
		for _, k := range rapid.SliceOfNDistinct(field, 0, 5, rapid.ID[string]).Draw(t, "fbFields") {
			fallback[k] = "fallback " + k
		}

		store := NewMemoryStore()
		require.NoError(t, store.Put(context.Background(), &Snapshot{
			RunID:    "run-p",
			Sequence: 1,
			State:    snapState,
		}))
		engine := NewRecoveryEngine(store, testMergeSpec, nil, zap.NewNop())

		first := engine.Recover(context.Background(), "run-p", fallback)
		second := engine.Recover(context.Background(), "run-p", fallback)

		// Recovering twice from the same snapshot and fallback is idempotent,
		// and identity fields always equal the fallback's.
		assert.Equal(t, first, second)
		assert.Equal(t, "NVDA", first["ticker"])
		assert.Equal(t, "2026-08-24", first["trade_date"])
	})
}
