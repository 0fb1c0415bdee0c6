package metrics

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

func TestNewCollector(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.stepsTotal)
	assert.NotNil(t, collector.stepDuration)
	assert.NotNil(t, collector.runsTotal)
	assert.NotNil(t, collector.checkpointsTotal)
	assert.NotNil(t, collector.debateTurns)
	assert.NotNil(t, collector.recoveriesTotal)
}

func TestCollector_RecordStep(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	collector.RecordStep("market_analyst", "completed", 100*time.Millisecond)

	count := testutil.CollectAndCount(collector.stepsTotal)
	assert.Greater(t, count, 0)

	collector.RecordStep("market_analyst", "failed", 50*time.Millisecond)

	newCount := testutil.CollectAndCount(collector.stepsTotal)
	assert.GreaterOrEqual(t, newCount, count)
}

func TestCollector_RecordRun(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	collector.RecordRun("completed", 2*time.Second)
	collector.RecordRun("failed", 500*time.Millisecond)

	count := testutil.CollectAndCount(collector.runsTotal)
	assert.Greater(t, count, 0)

	durCount := testutil.CollectAndCount(collector.runDuration)
	assert.Greater(t, durCount, 0)
}

func TestCollector_RecordCheckpoint(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	collector.RecordCheckpoint(true)
	collector.RecordCheckpoint(false)

	count := testutil.CollectAndCount(collector.checkpointsTotal)
	assert.Equal(t, 2, count)
}

func TestCollector_RecordDebate(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	collector.RecordDebateTurn("investment", "bull")
	collector.RecordDebateTurn("investment", "bear")
	collector.RecordDebateStop("investment", "semantic_converged")

	turnCount := testutil.CollectAndCount(collector.debateTurns)
	assert.Equal(t, 2, turnCount)

	stopCount := testutil.CollectAndCount(collector.debateStops)
	assert.Equal(t, 1, stopCount)
}

func TestCollector_RecordRecovery(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	collector.RecordRecovery("resumed")
	collector.RecordRecovery("fallback")

	count := testutil.CollectAndCount(collector.recoveriesTotal)
	assert.Equal(t, 2, count)
}

func TestCollector_NilReceiverIsSafe(t *testing.T) {
	var collector *Collector

	assert.NotPanics(t, func() {
		collector.RecordStep("step", "completed", time.Second)
		collector.RecordBranchFailure("analysts")
		collector.RecordRun("completed", time.Second)
		collector.RecordCheckpoint(true)
		collector.RecordDebateTurn("risk", "aggressive")
		collector.RecordDebateStop("risk", "max_rounds")
		collector.RecordRecovery("fallback")
		collector.RecordRetry("network")
	})
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			collector.RecordStep("news_analyst", "completed", 100*time.Millisecond)
			collector.RecordCheckpoint(true)
			collector.RecordDebateTurn("investment", "bull")
			done <- true
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	stepCount := testutil.CollectAndCount(collector.stepsTotal)
	assert.Greater(t, stepCount, 0)

	cpCount := testutil.CollectAndCount(collector.checkpointsTotal)
	assert.Greater(t, cpCount, 0)
}
