// Package retry classifies step faults and applies exponential-backoff
// retry schedules to sequential workflow steps.
package retry

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Kind is the classified category of a fault.
type Kind string

const (
	// KindTransient covers temporary upstream hiccups that usually clear on retry.
	KindTransient Kind = "transient"
	// KindRateLimit covers quota and throttling responses.
	KindRateLimit Kind = "rate_limit"
	// KindNetwork covers connectivity-level failures.
	KindNetwork Kind = "network"
	// KindAPIError covers non-retryable upstream API errors.
	KindAPIError Kind = "api_error"
	// KindValidation covers malformed or missing input.
	KindValidation Kind = "validation"
	// KindUnknown is everything that matched no keyword set.
	KindUnknown Kind = "unknown"
)

// Keyword sets are a fixed contract; tests pin them. Matching is
// case-insensitive substring search, evaluated in this order.
var classifyOrder = []struct {
	kind     Kind
	keywords []string
}{
	{KindNetwork, []string{"connection", "timeout", "network", "dns"}},
	{KindRateLimit, []string{"rate limit", "429", "too many requests", "quota"}},
	{KindAPIError, []string{"401", "403", "500", "http status", "api error"}},
	{KindValidation, []string{"validation", "invalid", "missing", "required"}},
	{KindTransient, []string{"temporary", "unavailable", "502", "503"}},
}

// Classify maps an error to a fault Kind by keyword matching on its message.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	msg := strings.ToLower(err.Error())
	for _, c := range classifyOrder {
		for _, kw := range c.keywords {
			if strings.Contains(msg, kw) {
				return c.kind
			}
		}
	}
	return KindUnknown
}

// DefaultRetryableKinds is the default set of kinds worth retrying.
func DefaultRetryableKinds() []Kind {
	return []Kind{KindTransient, KindRateLimit, KindNetwork}
}

// maxDelay caps the exponential backoff schedule.
const maxDelay = 60 * time.Second

// Policy decides whether and when a failed attempt is retried.
// Delays block the calling goroutine so a sequential step's outcome is
// fully resolved before the executor proceeds.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	Multiplier float64

	retryable map[Kind]bool
	logger    *zap.Logger
	onRetry   func(kind Kind)

	// sleep is swapped out in tests to observe the backoff schedule.
	sleep func(ctx context.Context, d time.Duration) error
}

// OnRetry registers a hook invoked once per retried attempt with the
// classified fault kind, typically to feed a metrics counter.
func (p *Policy) OnRetry(fn func(kind Kind)) { p.onRetry = fn }

// NewPolicy builds a retry policy. A nil or empty retryable set falls back
// to DefaultRetryableKinds.
func NewPolicy(maxRetries int, baseDelay time.Duration, multiplier float64, retryable []Kind, logger *zap.Logger) *Policy {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(retryable) == 0 {
		retryable = DefaultRetryableKinds()
	}
	set := make(map[Kind]bool, len(retryable))
	for _, k := range retryable {
		set[k] = true
	}
	return &Policy{
		MaxRetries: maxRetries,
		BaseDelay:  baseDelay,
		Multiplier: multiplier,
		retryable:  set,
		logger:     logger.With(zap.String("component", "retry_policy")),
		sleep:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ShouldRetry reports whether err is worth another attempt. attempt is
// 1-indexed; once it exceeds MaxRetries the answer is always false.
func (p *Policy) ShouldRetry(err error, attempt int) bool {
	if attempt > p.MaxRetries {
		return false
	}
	return p.retryable[Classify(err)]
}

// Delay returns the backoff before the next attempt, capped at 60s.
// attempt is 1-indexed: Delay(1) == BaseDelay.
func (p *Policy) Delay(attempt int) time.Duration {
	d := time.Duration(float64(p.BaseDelay) * pow(p.Multiplier, attempt-1))
	if d > maxDelay {
		return maxDelay
	}
	return d
}

func pow(base float64, exp int) float64 {
	out := 1.0
	for i := 0; i < exp; i++ {
		out *= base
	}
	return out
}

// Do runs fn up to MaxRetries times, sleeping the backoff schedule between
// failed attempts. It returns the first success, or the last error once
// attempts are exhausted or the fault is not retryable.
func Do[T any](ctx context.Context, p *Policy, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	attempts := p.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		out, err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				p.logger.Info("succeeded after retry", zap.Int("attempt", attempt))
			}
			return out, nil
		}
		lastErr = err
		kind := Classify(err)

		if !p.ShouldRetry(err, attempt) {
			p.logger.Warn("fault not retryable",
				zap.String("kind", string(kind)),
				zap.Error(err),
			)
			return zero, err
		}

		if attempt < attempts {
			if p.onRetry != nil {
				p.onRetry(kind)
			}
			delay := p.Delay(attempt)
			p.logger.Warn("attempt failed, backing off",
				zap.Int("attempt", attempt),
				zap.String("kind", string(kind)),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
			if serr := p.sleep(ctx, delay); serr != nil {
				return zero, serr
			}
		} else {
			p.logger.Error("all attempts exhausted",
				zap.Int("attempts", attempts),
				zap.String("kind", string(kind)),
				zap.Error(err),
			)
		}
	}
	return zero, lastErr
}
