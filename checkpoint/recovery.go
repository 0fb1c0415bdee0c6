package checkpoint

import (
	"context"
	"reflect"

	"go.uber.org/zap"

	"github.com/tradeflow/tradeflow/internal/metrics"
)

// MergeSpec names which state fields get which recovery precedence. Fields
// not named anywhere fall under the scalar rule.
type MergeSpec struct {
	// IdentityFields always come from the fallback, never the snapshot.
	IdentityFields []string
	// SubStateFields hold debate sub-states (maps with a "history" entry).
	// If the fallback has no history for the sub-state the snapshot's value
	// is taken wholesale; otherwise fields merge with the snapshot winning
	// whenever present. Note this is the inverse precedence of the scalar
	// rule; the asymmetry is inherited behavior and kept as-is.
	SubStateFields []string
	// DecisionFields take the snapshot's value only when the fallback has
	// none.
	DecisionFields []string
}

// RecoveryEngine rebuilds a usable state from the latest snapshot and a
// fallback initial state. Every failure path — absent store, missing run,
// unreadable snapshot — returns the fallback unchanged; recovery problems
// are logged, never raised.
type RecoveryEngine struct {
	store     Store
	spec      MergeSpec
	collector *metrics.Collector
	logger    *zap.Logger
}

// NewRecoveryEngine creates an engine over a store (which may be nil).
func NewRecoveryEngine(store Store, spec MergeSpec, collector *metrics.Collector, logger *zap.Logger) *RecoveryEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecoveryEngine{
		store:     store,
		spec:      spec,
		collector: collector,
		logger:    logger.With(zap.String("component", "recovery")),
	}
}

// Recover merges the run's latest snapshot into the fallback initial state
// under the merge precedence rules. Calling it twice with the same snapshot
// and fallback yields identical results.
func (e *RecoveryEngine) Recover(ctx context.Context, runID string, fallback map[string]any) map[string]any {
	log := e.logger.With(zap.String("run_id", runID))

	if e.store == nil {
		log.Warn("no checkpoint store configured, starting from initial state")
		e.collector.RecordRecovery("fallback")
		return fallback
	}

	snap, err := e.store.GetLatest(ctx, runID)
	if err != nil {
		log.Info("no usable checkpoint, starting from initial state", zap.Error(err))
		e.collector.RecordRecovery("fallback")
		return fallback
	}
	if snap == nil || snap.State == nil {
		log.Warn("checkpoint snapshot has no state, starting from initial state")
		e.collector.RecordRecovery("fallback")
		return fallback
	}

	merged := e.merge(snap.State, fallback)
	log.Info("recovered state from checkpoint",
		zap.Int("sequence", snap.Sequence),
		zap.Int("fields", len(merged)),
	)
	e.collector.RecordRecovery("resumed")
	return merged
}

func (e *RecoveryEngine) merge(snapshot, fallback map[string]any) map[string]any {
	out := make(map[string]any, len(fallback)+len(snapshot))
	for k, v := range fallback {
		out[k] = v
	}

	identity := toSet(e.spec.IdentityFields)
	subState := toSet(e.spec.SubStateFields)
	decision := toSet(e.spec.DecisionFields)

	for key, snapVal := range snapshot {
		switch {
		case identity[key]:
			// Fallback always wins; nothing to do.
		case subState[key]:
			out[key] = mergeSubState(snapVal, fallback[key])
		case decision[key]:
			if isEmpty(fallback[key]) {
				out[key] = snapVal
			}
		default:
			// Scalar rule: fallback wins unless empty.
			if isEmpty(fallback[key]) {
				out[key] = snapVal
			}
		}
	}
	return out
}

// mergeSubState applies the inverted precedence for debate sub-states.
func mergeSubState(snapVal, fbVal any) any {
	snapSub, snapOK := snapVal.(map[string]any)
	if !snapOK {
		return fbVal
	}
	fbSub, fbOK := fbVal.(map[string]any)
	if !fbOK || isEmpty(fbSub["history"]) {
		// Fallback has no history for this sub-state: take the snapshot
		// wholesale.
		return snapSub
	}
	merged := make(map[string]any, len(fbSub)+len(snapSub))
	for k, v := range fbSub {
		merged[k] = v
	}
	for k, v := range snapSub {
		merged[k] = v
	}
	return merged
}

func toSet(fields []string) map[string]bool {
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}

// isEmpty treats nil, empty strings, and empty containers as "no value".
func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	switch val := v.(type) {
	case string:
		return val == ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	}
	return false
}
