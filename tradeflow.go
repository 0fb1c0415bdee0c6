// Package tradeflow assembles the trading decision pipeline on top of the
// workflow executor: a concurrent analyst fan-out, the Bull/Bear investment
// debate, plan synthesis, the three-party risk debate, and the final
// judgment, with a checkpoint after every step and crash recovery from the
// latest snapshot.
package tradeflow

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tradeflow/tradeflow/checkpoint"
	"github.com/tradeflow/tradeflow/config"
	"github.com/tradeflow/tradeflow/debate"
	"github.com/tradeflow/tradeflow/internal/metrics"
	"github.com/tradeflow/tradeflow/retry"
	"github.com/tradeflow/tradeflow/workflow"
)

// Graph node and step names.
const (
	nodeAnalysts        = "analysts"
	nodeDebate          = "investment_debate"
	nodeResearchManager = "research_manager"
	nodeTrader          = "trader"
	nodeRiskDebate      = "risk_debate"
	nodeRiskJudge       = "risk_judge"

	stepAnalystJoin = "analyst_aggregator"
)

// Steps are the domain collaborators the pipeline sequences. Every field is
// required except as noted; the engine owns sequencing, never content.
type Steps struct {
	// Analysts maps branch name (e.g. "market", "news") to the analyst step
	// run in the opening fan-out. At least one is required.
	Analysts map[string]workflow.StepExecutor

	Bull workflow.StepExecutor
	Bear workflow.StepExecutor
	// ResearchManager synthesizes the finished debate into an investment
	// plan.
	ResearchManager workflow.StepExecutor
	// Trader optionally refines the plan into a concrete position before the
	// risk debate. Nil skips the node.
	Trader workflow.StepExecutor

	Aggressive   workflow.StepExecutor
	Conservative workflow.StepExecutor
	Neutral      workflow.StepExecutor
	// RiskJudge turns the risk debate into the final trade decision.
	RiskJudge workflow.StepExecutor
}

func (s Steps) validate() error {
	if len(s.Analysts) == 0 {
		return fmt.Errorf("at least one analyst step is required")
	}
	named := map[string]workflow.StepExecutor{
		"bull":             s.Bull,
		"bear":             s.Bear,
		"research manager": s.ResearchManager,
		"aggressive":       s.Aggressive,
		"conservative":     s.Conservative,
		"neutral":          s.Neutral,
		"risk judge":       s.RiskJudge,
	}
	for name, step := range named {
		if step == nil {
			return fmt.Errorf("%s step is required", name)
		}
	}
	return nil
}

// Result is the outcome of one run.
type Result struct {
	RunID    string
	Decision string
	State    workflow.State
}

// Engine is the assembled pipeline. Safe to share across concurrent runs.
type Engine struct {
	cfg       *config.Config
	logger    *zap.Logger
	collector *metrics.Collector
	executor  *workflow.Executor
	graph     *workflow.Graph
	recovery  *checkpoint.RecoveryEngine
	manager   *checkpoint.Manager
}

// EngineOption configures an Engine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	embedder  debate.Embedder
	collector *metrics.Collector
}

// WithEmbedder supplies the embedding capability for convergence detection.
// Without one, debates terminate on round limits only.
func WithEmbedder(e debate.Embedder) EngineOption {
	return func(o *engineOptions) { o.embedder = e }
}

// WithCollector supplies a Prometheus collector. Without one, metrics are
// disabled.
func WithCollector(c *metrics.Collector) EngineOption {
	return func(o *engineOptions) { o.collector = c }
}

// New assembles the pipeline. store may be nil to disable checkpointing and
// recovery.
func New(cfg *config.Config, steps Steps, store checkpoint.Store, logger *zap.Logger, opts ...EngineOption) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := steps.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var options engineOptions
	for _, opt := range opts {
		opt(&options)
	}

	kinds := make([]retry.Kind, 0, len(cfg.Run.RetryableFaultKinds))
	for _, k := range cfg.Run.RetryableFaultKinds {
		kinds = append(kinds, retry.Kind(k))
	}
	policy := retry.NewPolicy(cfg.Run.MaxRetries, cfg.Run.BaseDelay.Std(), cfg.Run.BackoffMultiplier, kinds, logger)
	if options.collector != nil {
		policy.OnRetry(func(kind retry.Kind) { options.collector.RecordRetry(string(kind)) })
	}

	// One shared limiter across every collaborator step keeps the run inside
	// the upstream quota even during fan-out.
	var limiter *rate.Limiter
	if cfg.Run.StepRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Run.StepRateLimit), 1)
	}
	wrap := func(step workflow.StepExecutor) workflow.StepExecutor {
		if limiter == nil {
			return step
		}
		return workflow.WrapRateLimit(step, limiter)
	}

	detector := debate.NewDetector(options.embedder, cfg.Run.SemanticThreshold, cfg.Run.InfoGainThreshold, logger)

	registry := workflow.NewRegistry()
	graph := workflow.NewGraph()

	branches := make([]workflow.Branch, 0, len(steps.Analysts))
	for name, step := range steps.Analysts {
		stepName := "analyst_" + name
		if err := registry.Register(stepName, wrap(step)); err != nil {
			return nil, err
		}
		branches = append(branches, workflow.Branch{
			Name:   name,
			Step:   stepName,
			Inputs: []string{FieldTicker, FieldTradeDate},
		})
	}
	registry.MustRegister(stepAnalystJoin, analystJoin(logger))
	graph.MustAddNode(&workflow.Node{
		Name: nodeAnalysts,
		Kind: workflow.NodeKindFanOut,
		Group: &workflow.FanOutGroup{
			Branches: branches,
			Join:     stepAnalystJoin,
		},
		Next: nodeDebate,
	})

	controller := debate.NewController(
		wrap(steps.Bull), wrap(steps.Bear),
		detector,
		cfg.Run.MaxDebateRounds,
		cfg.Run.ConvergenceEnabled,
		logger,
		debate.WithMetrics(options.collector),
	)
	registry.MustRegister(nodeDebate, controller)
	graph.MustAddNode(&workflow.Node{
		Name:   nodeDebate,
		Kind:   workflow.NodeKindStep,
		Step:   nodeDebate,
		Inputs: append([]string{FieldTicker, FieldTradeDate}, reportFields...),
		Next:   nodeResearchManager,
	})

	afterSynthesis := nodeRiskDebate
	if steps.Trader != nil {
		afterSynthesis = nodeTrader
	}
	registry.MustRegister(nodeResearchManager, wrap(steps.ResearchManager))
	graph.MustAddNode(&workflow.Node{
		Name:   nodeResearchManager,
		Kind:   workflow.NodeKindStep,
		Step:   nodeResearchManager,
		Inputs: append([]string{FieldTicker, FieldTradeDate, FieldInvestmentDebate}, reportFields...),
		Next:   afterSynthesis,
	})

	if steps.Trader != nil {
		registry.MustRegister(nodeTrader, wrap(steps.Trader))
		graph.MustAddNode(&workflow.Node{
			Name:   nodeTrader,
			Kind:   workflow.NodeKindStep,
			Step:   nodeTrader,
			Inputs: append([]string{FieldTicker, FieldTradeDate, FieldInvestmentPlan}, reportFields...),
			Next:   nodeRiskDebate,
		})
	}

	riskController := debate.NewRiskController(
		wrap(steps.Aggressive), wrap(steps.Conservative), wrap(steps.Neutral),
		cfg.Run.MaxRiskRounds,
		logger,
		debate.WithRiskMetrics(options.collector),
	)
	registry.MustRegister(nodeRiskDebate, riskController)
	graph.MustAddNode(&workflow.Node{
		Name:   nodeRiskDebate,
		Kind:   workflow.NodeKindStep,
		Step:   nodeRiskDebate,
		Inputs: append([]string{FieldTicker, FieldTradeDate, FieldInvestmentPlan, FieldTraderPlan}, reportFields...),
		Next:   nodeRiskJudge,
	})

	registry.MustRegister(nodeRiskJudge, wrap(steps.RiskJudge))
	graph.MustAddNode(&workflow.Node{
		Name:   nodeRiskJudge,
		Kind:   workflow.NodeKindStep,
		Step:   nodeRiskJudge,
		Inputs: []string{FieldTicker, FieldTradeDate, FieldInvestmentPlan, FieldTraderPlan, FieldRiskDebate},
	})

	graph.SetEntry(nodeAnalysts)
	if err := graph.Validate(registry); err != nil {
		return nil, err
	}

	var manager *checkpoint.Manager
	execOpts := []workflow.Option{
		workflow.WithRetryPolicy(policy),
		workflow.WithMetrics(options.collector),
		workflow.WithBranchTimeout(cfg.Run.BranchTimeout.Std()),
		workflow.WithFailureUpdate(workflow.PartialUpdate{FieldFinalDecision: DefaultDecision}),
	}
	if store != nil {
		manager = checkpoint.NewManager(store, logger)
		execOpts = append(execOpts, workflow.WithCheckpointer(manager))
	}

	recoverySpec := checkpoint.MergeSpec{
		IdentityFields: []string{FieldTicker, FieldTradeDate},
		SubStateFields: []string{FieldInvestmentDebate, FieldRiskDebate},
		DecisionFields: []string{FieldInvestmentPlan, FieldTraderPlan, FieldFinalDecision},
	}

	return &Engine{
		cfg:       cfg,
		logger:    logger.With(zap.String("component", "engine")),
		collector: options.collector,
		executor:  workflow.NewExecutor(registry, logger, execOpts...),
		graph:     graph,
		recovery:  checkpoint.NewRecoveryEngine(store, recoverySpec, options.collector, logger),
		manager:   manager,
	}, nil
}

// Propagate runs the full pipeline for one ticker and trade date. The run id
// is deterministic (ticker-date) so a crashed run resumes from its latest
// checkpoint. Even a failed run returns a Result carrying the safe default
// decision alongside the error.
func (e *Engine) Propagate(ctx context.Context, ticker, tradeDate string) (*Result, error) {
	if ticker == "" || tradeDate == "" {
		return nil, fmt.Errorf("ticker and trade date are required")
	}
	runID := fmt.Sprintf("%s-%s", ticker, tradeDate)

	seed := workflow.NewState(map[string]any{
		FieldTicker:    ticker,
		FieldTradeDate: tradeDate,
	})
	initial := workflow.NewState(e.recovery.Recover(ctx, runID, seed))

	final, err := e.executor.Execute(ctx, e.graph, initial, runID)

	decision := final.GetString(FieldFinalDecision)
	if decision == "" {
		decision = DefaultDecision
	}
	result := &Result{RunID: runID, Decision: decision, State: final}

	if err != nil {
		e.logger.Error("run ended in failed terminal state",
			zap.String("run_id", runID),
			zap.String("decision", decision),
			zap.Error(err),
		)
		return result, err
	}
	return result, nil
}

// History returns the execution trace recorded for a run.
func (e *Engine) History(runID string) (*workflow.RunHistory, bool) {
	return e.executor.History(runID)
}

// Checkpoints lists up to limit snapshot metas for a run, newest first.
func (e *Engine) Checkpoints(ctx context.Context, runID string, limit int) ([]checkpoint.Meta, error) {
	if e.manager == nil {
		return nil, nil
	}
	return e.manager.List(ctx, runID, limit)
}

// analystJoin is the lenient join behind the analyst fan-out: failed branches
// are logged and contribute nothing, surviving outputs pass through.
func analystJoin(logger *zap.Logger) workflow.StepExecutor {
	log := logger.With(zap.String("component", "analyst_join"))
	return workflow.StepFunc(func(ctx context.Context, input workflow.Projection) (workflow.PartialUpdate, error) {
		out := workflow.PartialUpdate{}
		for branch, v := range input {
			switch val := v.(type) {
			case *workflow.BranchFailure:
				log.Warn("analyst branch produced no report",
					zap.String("branch", branch),
					zap.String("reason", val.Reason),
				)
			case workflow.PartialUpdate:
				for k, field := range val {
					out[k] = field
				}
			}
		}
		return out, nil
	})
}
