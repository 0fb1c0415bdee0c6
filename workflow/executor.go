package workflow

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tradeflow/tradeflow/internal/metrics"
	"github.com/tradeflow/tradeflow/retry"
)

// FieldRunFault is the state field carrying the captured fault when a run
// ends in a failed terminal state.
const FieldRunFault = "run_fault"

// Checkpointer persists a snapshot of merged state after a completed step.
// A nil Checkpointer disables checkpointing; a failing one is logged and
// ignored, never fatal.
type Checkpointer interface {
	Save(ctx context.Context, runID string, sequence int, state map[string]any, metadata map[string]any) error
}

// Executor drives a Graph: sequential steps with retry, concurrent fan-out
// groups with lenient joins, atomic merges in completion order, a checkpoint
// after every completed step, then the routing decision. One controlling
// goroutine per run; an Executor is safe to share across runs.
type Executor struct {
	registry      *Registry
	checkpointer  Checkpointer
	policy        *retry.Policy
	collector     *metrics.Collector
	logger        *zap.Logger
	branchTimeout time.Duration
	failureUpdate PartialUpdate
	histories     *historyStore
}

// Option configures an Executor.
type Option func(*Executor)

// WithCheckpointer sets the checkpoint sink.
func WithCheckpointer(cp Checkpointer) Option {
	return func(e *Executor) { e.checkpointer = cp }
}

// WithRetryPolicy sets the retry policy applied to sequential steps and
// joins. Without one, every step gets a single attempt.
func WithRetryPolicy(p *retry.Policy) Option {
	return func(e *Executor) { e.policy = p }
}

// WithMetrics sets the Prometheus collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Executor) { e.collector = c }
}

// WithBranchTimeout sets the per-branch deadline inside fan-out groups.
// An expired deadline counts as a branch failure for the lenient join.
func WithBranchTimeout(d time.Duration) Option {
	return func(e *Executor) { e.branchTimeout = d }
}

// WithFailureUpdate sets the partial update merged into state when a run
// ends in a failed terminal state, so the run still carries an explicit
// decision value instead of a silently empty result.
func WithFailureUpdate(u PartialUpdate) Option {
	return func(e *Executor) { e.failureUpdate = u }
}

// NewExecutor creates an executor over a populated step registry.
func NewExecutor(registry *Registry, logger *zap.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{
		registry:  registry,
		logger:    logger.With(zap.String("component", "executor")),
		histories: newHistoryStore(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// History returns the execution trace recorded for a run.
func (e *Executor) History(runID string) (*RunHistory, bool) {
	return e.histories.get(runID)
}

// Execute runs the graph from its entry node until a sink, a fatal fault, or
// cancellation. The returned State is the final merged state; on a failed
// terminal it additionally carries the configured failure update and the
// fault under FieldRunFault.
func (e *Executor) Execute(ctx context.Context, graph *Graph, initial State, runID string) (State, error) {
	if err := graph.Validate(e.registry); err != nil {
		return initial, err
	}

	hist := newRunHistory(runID)
	e.histories.save(hist)
	runStart := time.Now()

	log := e.logger.With(zap.String("run_id", runID))
	log.Info("starting run", zap.String("entry", graph.Entry()))

	state := initial.Clone()
	seq := 0
	current := graph.Entry()

	for {
		// Cancellation is cooperative at step boundaries.
		if err := ctx.Err(); err != nil {
			return e.failRun(ctx, hist, log, state, runID, seq, runStart, err)
		}

		node, _ := graph.Node(current)

		switch node.Kind {
		case NodeKindStep:
			update, err := e.runSequential(ctx, node.Name, node.Step, state.Project(node.Inputs...), hist)
			if err != nil {
				return e.failRun(ctx, hist, log, state, runID, seq, runStart, err)
			}
			state = state.Merge(update)
			seq++
			e.saveCheckpoint(ctx, log, runID, seq, state, node.Name, node.Step)

		case NodeKindFanOut:
			var err error
			state, seq, err = e.runFanOut(ctx, log, node, state, runID, seq, hist)
			if err != nil {
				return e.failRun(ctx, hist, log, state, runID, seq, runStart, err)
			}
		}

		next, err := e.route(node, state, graph)
		if err != nil {
			return e.failRun(ctx, hist, log, state, runID, seq, runStart, err)
		}
		if next == "" {
			hist.complete(nil)
			e.collector.RecordRun(string(RunStatusCompleted), time.Since(runStart))
			log.Info("run completed",
				zap.Int("steps", seq),
				zap.Duration("duration", time.Since(runStart)),
			)
			return state, nil
		}
		current = next
	}
}

// runSequential executes one step through the retry policy; the step's
// outcome is fully resolved, success or exhausted fault, before returning.
func (e *Executor) runSequential(ctx context.Context, nodeName, stepName string, input Projection, hist *RunHistory) (PartialUpdate, error) {
	step, _ := e.registry.Get(stepName)
	start := time.Now()

	var update PartialUpdate
	var err error
	if e.policy != nil {
		update, err = retry.Do(ctx, e.policy, func(ctx context.Context) (PartialUpdate, error) {
			return step.Execute(ctx, input)
		})
	} else {
		update, err = step.Execute(ctx, input)
	}

	dur := time.Since(start)
	ev := StepEvent{Node: nodeName, Step: stepName, StartTime: start, Duration: dur, Status: RunStatusCompleted}
	if err != nil {
		ev.Status = RunStatusFailed
		ev.Error = err.Error()
		hist.record(ev)
		e.collector.RecordStep(stepName, "failed", dur)
		return nil, &StepFault{Step: stepName, Err: err}
	}
	hist.record(ev)
	e.collector.RecordStep(stepName, "completed", dur)
	return update, nil
}

// branchResult carries one fan-out branch's outcome back to the run's
// controlling goroutine.
type branchResult struct {
	branch string
	step   string
	update PartialUpdate
	err    error
	start  time.Time
	dur    time.Duration
}

// runFanOut launches every branch of the group concurrently, each isolated
// to its declared input projection, merges branch updates atomically in
// completion order (branches write disjoint fields, so order does not
// matter), converts branch faults to failure markers, then runs the join
// step on the synthetic branch-keyed input. Only a join fault can fail the
// run; branch failures are logged and tolerated.
func (e *Executor) runFanOut(ctx context.Context, log *zap.Logger, node *Node, state State, runID string, seq int, hist *RunHistory) (State, int, error) {
	group := node.Group
	log.Debug("launching fan-out group",
		zap.String("node", node.Name),
		zap.Int("branches", len(group.Branches)),
	)

	// Projections are taken before launch so no branch can observe merges
	// applied while the group is in flight.
	inputs := make(map[string]Projection, len(group.Branches))
	for _, b := range group.Branches {
		inputs[b.Name] = state.Project(b.Inputs...)
	}

	g, gctx := errgroup.WithContext(ctx)
	results := make(chan branchResult, len(group.Branches))

	for _, b := range group.Branches {
		b := b
		step, _ := e.registry.Get(b.Step)
		g.Go(func() error {
			bctx := gctx
			if e.branchTimeout > 0 {
				var cancel context.CancelFunc
				bctx, cancel = context.WithTimeout(gctx, e.branchTimeout)
				defer cancel()
			}
			start := time.Now()
			update, err := step.Execute(bctx, inputs[b.Name])
			results <- branchResult{
				branch: b.Name,
				step:   b.Step,
				update: update,
				err:    err,
				start:  start,
				dur:    time.Since(start),
			}
			// Branch faults never abort the group; the join is lenient.
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(results)
	}()

	joinInput := make(Projection, len(group.Branches))
	for res := range results {
		ev := StepEvent{Node: node.Name, Step: res.step, Branch: res.branch, StartTime: res.start, Duration: res.dur}
		if res.err != nil {
			ev.Status = RunStatusFailed
			ev.Error = res.err.Error()
			hist.record(ev)
			e.collector.RecordStep(res.step, "failed", res.dur)
			e.collector.RecordBranchFailure(node.Name)
			log.Warn("fan-out branch failed",
				zap.String("node", node.Name),
				zap.String("branch", res.branch),
				zap.Error(res.err),
			)
			joinInput[res.branch] = &BranchFailure{Branch: res.branch, Reason: res.err.Error()}
			continue
		}
		ev.Status = RunStatusCompleted
		hist.record(ev)
		e.collector.RecordStep(res.step, "completed", res.dur)
		joinInput[res.branch] = res.update

		// Merge is applied by this controlling goroutine only, one branch
		// at a time, in observed completion order.
		state = state.Merge(res.update)
		seq++
		e.saveCheckpoint(ctx, log, runID, seq, state, node.Name, res.step)
	}

	update, err := e.runSequentialInput(ctx, node.Name, group.Join, joinInput, hist)
	if err != nil {
		return state, seq, err
	}
	state = state.Merge(update)
	seq++
	e.saveCheckpoint(ctx, log, runID, seq, state, node.Name, group.Join)
	return state, seq, nil
}

// runSequentialInput is runSequential with a caller-built input, used for
// joins whose synthetic input is not a projection of state fields.
func (e *Executor) runSequentialInput(ctx context.Context, nodeName, stepName string, input Projection, hist *RunHistory) (PartialUpdate, error) {
	return e.runSequential(ctx, nodeName, stepName, input, hist)
}

// route evaluates the node's outgoing edge on merged state. A routing
// function error or an unknown target is fatal: it means the graph is
// malformed, not that the run hit a recoverable condition.
func (e *Executor) route(node *Node, state State, graph *Graph) (string, error) {
	if node.Route != nil {
		target, err := node.Route(state)
		if err != nil {
			return "", &RoutingFault{Node: node.Name, Err: err}
		}
		if _, ok := graph.Node(target); !ok {
			return "", &RoutingFault{Node: node.Name, Target: target}
		}
		return target, nil
	}
	return node.Next, nil
}

// saveCheckpoint writes a snapshot of merged state. Failures degrade
// resumability only; they are logged and the run continues.
func (e *Executor) saveCheckpoint(ctx context.Context, log *zap.Logger, runID string, seq int, state State, nodeName, stepName string) {
	if e.checkpointer == nil {
		return
	}
	meta := map[string]any{"node": nodeName, "step": stepName}
	if err := e.checkpointer.Save(ctx, runID, seq, state, meta); err != nil {
		e.collector.RecordCheckpoint(false)
		fault := &CheckpointFault{RunID: runID, Err: err}
		log.Warn("checkpoint write failed", zap.Int("sequence", seq), zap.Error(fault))
		return
	}
	e.collector.RecordCheckpoint(true)
}

// failRun finalizes a failed terminal state: the configured failure update
// is merged so the run still carries an explicit decision value, and the
// fault is captured in the state alongside the returned error.
func (e *Executor) failRun(ctx context.Context, hist *RunHistory, log *zap.Logger, state State, runID string, seq int, runStart time.Time, err error) (State, error) {
	if e.failureUpdate != nil {
		state = state.Merge(e.failureUpdate)
	}
	state = state.Merge(PartialUpdate{FieldRunFault: err.Error()})
	hist.complete(err)
	e.collector.RecordRun(string(RunStatusFailed), time.Since(runStart))
	log.Error("run failed",
		zap.Int("steps_completed", seq),
		zap.Error(err),
	)
	return state, err
}
