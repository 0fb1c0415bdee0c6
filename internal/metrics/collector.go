// Package metrics provides internal Prometheus metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector records workflow execution metrics. All record methods are safe
// on a nil receiver so instrumented code never has to guard against metrics
// being disabled.
type Collector struct {
	stepsTotal       *prometheus.CounterVec
	stepDuration     *prometheus.HistogramVec
	branchFailures   *prometheus.CounterVec
	runsTotal        *prometheus.CounterVec
	runDuration      *prometheus.HistogramVec
	checkpointsTotal *prometheus.CounterVec
	debateTurns      *prometheus.CounterVec
	debateStops      *prometheus.CounterVec
	recoveriesTotal  *prometheus.CounterVec
	retriesTotal     *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector registers the workflow metric families under the given
// namespace on the default registry.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.stepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Total number of executed workflow steps",
		},
		[]string{"step", "status"},
	)

	c.stepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Workflow step duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"step"},
	)

	c.branchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "branch_failures_total",
			Help:      "Total number of failed fan-out branches",
		},
		[]string{"node"},
	)

	c.runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of workflow runs",
		},
		[]string{"status"},
	)

	c.runDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Workflow run duration in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"status"},
	)

	c.checkpointsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoints_total",
			Help:      "Total number of checkpoint writes",
		},
		[]string{"status"},
	)

	c.debateTurns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "debate_turns_total",
			Help:      "Total number of debate turns produced",
		},
		[]string{"debate", "speaker"},
	)

	c.debateStops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "debate_stops_total",
			Help:      "Total number of debate terminations by stop reason",
		},
		[]string{"debate", "reason"},
	)

	c.recoveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recoveries_total",
			Help:      "Total number of state recovery attempts",
		},
		[]string{"outcome"},
	)

	c.retriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Total number of retried step attempts by fault kind",
		},
		[]string{"kind"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// RecordStep records one step execution.
func (c *Collector) RecordStep(step, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.stepsTotal.WithLabelValues(step, status).Inc()
	c.stepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// RecordBranchFailure records a failed fan-out branch.
func (c *Collector) RecordBranchFailure(node string) {
	if c == nil {
		return
	}
	c.branchFailures.WithLabelValues(node).Inc()
}

// RecordRun records a completed or failed run.
func (c *Collector) RecordRun(status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.runsTotal.WithLabelValues(status).Inc()
	c.runDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordCheckpoint records a checkpoint write outcome.
func (c *Collector) RecordCheckpoint(ok bool) {
	if c == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "failed"
	}
	c.checkpointsTotal.WithLabelValues(status).Inc()
}

// RecordDebateTurn records one produced debate turn.
func (c *Collector) RecordDebateTurn(debate, speaker string) {
	if c == nil {
		return
	}
	c.debateTurns.WithLabelValues(debate, speaker).Inc()
}

// RecordDebateStop records why a debate terminated.
func (c *Collector) RecordDebateStop(debate, reason string) {
	if c == nil {
		return
	}
	c.debateStops.WithLabelValues(debate, reason).Inc()
}

// RecordRecovery records a state recovery attempt outcome
// ("resumed" or "fallback").
func (c *Collector) RecordRecovery(outcome string) {
	if c == nil {
		return
	}
	c.recoveriesTotal.WithLabelValues(outcome).Inc()
}

// RecordRetry records one retried attempt by classified fault kind.
func (c *Collector) RecordRetry(kind string) {
	if c == nil {
		return
	}
	c.retriesTotal.WithLabelValues(kind).Inc()
}
