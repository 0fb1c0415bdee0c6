package workflow

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitedStep wraps a StepExecutor with a shared token-bucket limiter so
// steps backed by a quota-bound upstream (an LLM provider, a data vendor) do
// not exceed it across concurrent fan-out branches. Execute blocks until a
// token is available or the context is done.
type RateLimitedStep struct {
	step    StepExecutor
	limiter *rate.Limiter
}

// NewRateLimitedStep wraps step at r events per second with the given burst.
// The same limiter can be shared by wrapping several steps via WrapRateLimit.
func NewRateLimitedStep(step StepExecutor, r rate.Limit, burst int) *RateLimitedStep {
	return &RateLimitedStep{step: step, limiter: rate.NewLimiter(r, burst)}
}

// WrapRateLimit wraps step with an existing limiter.
func WrapRateLimit(step StepExecutor, limiter *rate.Limiter) *RateLimitedStep {
	return &RateLimitedStep{step: step, limiter: limiter}
}

// Execute waits for the limiter, then delegates to the wrapped step.
func (s *RateLimitedStep) Execute(ctx context.Context, input Projection) (PartialUpdate, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return s.step.Execute(ctx, input)
}
