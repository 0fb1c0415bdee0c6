package debate

import (
	"context"

	"go.uber.org/zap"

	"github.com/tradeflow/tradeflow/internal/metrics"
	"github.com/tradeflow/tradeflow/retry"
	"github.com/tradeflow/tradeflow/workflow"
)

// RiskController runs the three-party risk debate: a fixed Aggressive,
// Conservative, Neutral cycle terminated solely by the round cap. Unlike the
// two-party controller it performs no convergence detection; the asymmetry
// is deliberate.
type RiskController struct {
	speakers  map[Speaker]workflow.StepExecutor
	maxRounds int
	policy    *retry.Policy
	collector *metrics.Collector
	logger    *zap.Logger
	outField  string
}

// RiskOption configures a RiskController.
type RiskOption func(*RiskController)

// WithRiskRetryPolicy applies a retry policy to each speaker invocation.
func WithRiskRetryPolicy(p *retry.Policy) RiskOption {
	return func(c *RiskController) { c.policy = p }
}

// WithRiskMetrics sets the Prometheus collector.
func WithRiskMetrics(m *metrics.Collector) RiskOption {
	return func(c *RiskController) { c.collector = m }
}

// WithRiskOutputField overrides the workflow state field the finalized
// debate is written to.
func WithRiskOutputField(field string) RiskOption {
	return func(c *RiskController) { c.outField = field }
}

// NewRiskController builds the three-party controller. maxRounds is the
// number of full Aggressive+Conservative+Neutral rounds; the hard turn cap
// is three times that.
func NewRiskController(aggressive, conservative, neutral workflow.StepExecutor, maxRounds int, logger *zap.Logger, opts ...RiskOption) *RiskController {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &RiskController{
		speakers: map[Speaker]workflow.StepExecutor{
			SpeakerAggressive:   aggressive,
			SpeakerConservative: conservative,
			SpeakerNeutral:      neutral,
		},
		maxRounds: maxRounds,
		logger:    logger.With(zap.String("component", "risk_debate")),
		outField:  FieldRiskDebate,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute drives the cycle for exactly 3*maxRounds turns regardless of what
// the speakers say.
func (c *RiskController) Execute(ctx context.Context, input workflow.Projection) (workflow.PartialUpdate, error) {
	st := NewRiskState()
	turnCap := 3 * c.maxRounds

	for st.RoundCount < turnCap {
		text, err := c.speak(ctx, st, input)
		if err != nil {
			return nil, err
		}
		st.append(st.CurrentSpeaker, text)
		c.collector.RecordDebateTurn("risk", string(st.CurrentSpeaker))

		if st.RoundCount >= turnCap {
			break
		}
		st.CurrentSpeaker = NextRiskSpeaker(st.CurrentSpeaker)
	}

	c.collector.RecordDebateStop("risk", string(StopMaxRounds))
	c.logger.Info("risk debate terminated", zap.Int("turns", st.RoundCount))
	return workflow.PartialUpdate{c.outField: st.ToUpdate()}, nil
}

func (c *RiskController) speak(ctx context.Context, st *RiskState, input workflow.Projection) (string, error) {
	step := c.speakers[st.CurrentSpeaker]

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
