package debate

import (
	"context"

	"go.uber.org/zap"

	"github.com/tradeflow/tradeflow/internal/metrics"
	"github.com/tradeflow/tradeflow/retry"
	"github.com/tradeflow/tradeflow/workflow"
)

const (
	// ResponseKey is the field a speaker step writes its turn text under.
	ResponseKey = "response"

	// StateKey is the field the in-progress debate state is handed to each
	// speaker under, so a speaker can see the opponent's prior turns.
	StateKey = "debate_state"

	// FieldInvestmentDebate is the workflow state field the finalized
	// two-party debate folds into.
	FieldInvestmentDebate = "investment_debate_state"

	// FieldRiskDebate is the workflow state field the finalized risk debate
	// folds into.
	FieldRiskDebate = "risk_debate_state"
)

// Controller runs the two-party Bull/Bear debate to termination. It is
// itself a workflow step: the executor hands it the shared analysis context
// and receives the finalized debate folded into one state field.
type Controller struct {
	bull      workflow.StepExecutor
	bear      workflow.StepExecutor
	detector  *Detector
	maxRounds int
	enabled   bool
	policy    *retry.Policy
	collector *metrics.Collector
	logger    *zap.Logger
	outField  string
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithRetryPolicy applies a retry policy to each speaker invocation.
func WithRetryPolicy(p *retry.Policy) ControllerOption {
	return func(c *Controller) { c.policy = p }
}

// WithMetrics sets the Prometheus collector.
func WithMetrics(m *metrics.Collector) ControllerOption {
	return func(c *Controller) { c.collector = m }
}

// WithOutputField overrides the workflow state field the finalized debate is
// written to.
func WithOutputField(field string) ControllerOption {
	return func(c *Controller) { c.outField = field }
}

// NewController builds a two-party debate controller. maxRounds is the
// number of full Bull+Bear rounds; the hard turn cap is twice that.
// convergenceEnabled gates the detector per run; a nil or disabled detector
// behaves as if convergence were off.
func NewController(bull, bear workflow.StepExecutor, detector *Detector, maxRounds int, convergenceEnabled bool, logger *zap.Logger, opts ...ControllerOption) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{
		bull:      bull,
		bear:      bear,
		detector:  detector,
		maxRounds: maxRounds,
		enabled:   convergenceEnabled,
		logger:    logger.With(zap.String("component", "debate")),
		outField:  FieldInvestmentDebate,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute drives the debate state machine: speak, append, then evaluate
// termination in fixed order (hard cap, convergence gate, detector). An
// embedding fault permanently downgrades this run to round-limit-only.
func (c *Controller) Execute(ctx context.Context, input workflow.Projection) (workflow.PartialUpdate, error) {
	st := NewState()
	degraded := false
	turnCap := 2 * c.maxRounds

	for {
		text, err := c.speak(ctx, st, input)
		if err != nil {
			return nil, err
		}
		st.append(st.CurrentSpeaker, text)
		c.collector.RecordDebateTurn("investment", string(st.CurrentSpeaker))

		if st.RoundCount >= turnCap {
			st.TerminationReason = StopMaxRounds
			break
		}
		if !c.enabled || degraded || !c.detector.Enabled() {
			st.CurrentSpeaker = NextDebateSpeaker(st.CurrentSpeaker)
			continue
		}

		stop, reason, err := c.detector.ShouldStop(ctx, st.Transcript(), st.RoundCount)
		if err != nil {
			// Round-limit-only for the rest of the run keeps termination
			// deterministic after an embedding failure.
			degraded = true
			c.logger.Warn("convergence check failed, downgrading to round limit", zap.Error(err))
		} else if stop {
			st.TerminationReason = reason
			break
		}
		st.CurrentSpeaker = NextDebateSpeaker(st.CurrentSpeaker)
	}

	c.collector.RecordDebateStop("investment", string(st.TerminationReason))
	c.logger.Info("debate terminated",
		zap.Int("turns", st.RoundCount),
		zap.String("reason", string(st.TerminationReason)),
	)
	return workflow.PartialUpdate{c.outField: st.ToUpdate()}, nil
}

func (c *Controller) speak(ctx context.Context, st *State, input workflow.Projection) (string, error) {
	step := c.bull
	if st.CurrentSpeaker == SpeakerBear {
		step = c.bear
	}

	proj := make(workflow.Projection, len(input)+1)
	for k, v := range input {
		proj[k] = v
	}
	proj[StateKey] = st.ToUpdate()

	var update workflow.PartialUpdate
	var err error
	if c.policy != nil {
		update, err = retry.Do(ctx, c.policy, func(ctx context.Context) (workflow.PartialUpdate, error) {
			return step.Execute(ctx, proj)
		})
	} else {
		update, err = step.Execute(ctx, proj)
	}
	if err != nil {
		return "", err
	}
	text, _ := update[ResponseKey].(string)
	return text, nil
}
