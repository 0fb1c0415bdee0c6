package debate

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"
)

// StopReason explains why a debate continued or terminated.
type StopReason string

const (
	StopMaxRounds         StopReason = "max_rounds"
	StopSemanticConverged StopReason = "semantic_converged"
	StopInfoGainLow       StopReason = "info_gain_low"
	StopContinue          StopReason = "continue"
)

const (
	defaultSemanticThreshold = 0.85
	defaultInfoGainThreshold = 0.10

	// A transcript needs two full rounds before the detector can compare
	// the latest round against the previous one.
	minTranscriptTurns = 4
)

// Embedder is the embedding capability consumed by the convergence detector.
// Implementations must be stateless and reentrant.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
	EmbedSingle(ctx context.Context, text string) ([]float64, error)
}

// ConvergenceFault wraps a failed embedding call. The controller downgrades
// to round-limit-only operation for the remainder of the run when it sees
// one; the fault itself never fails a run.
type ConvergenceFault struct {
	Err error
}

func (f *ConvergenceFault) Error() string {
	return fmt.Sprintf("convergence check: %v", f.Err)
}

func (f *ConvergenceFault) Unwrap() error { return f.Err }

// Detector decides whether a debate transcript has stopped producing new
// information. An embedder absent at construction fixes the detector to
// round-limit-only behavior for its entire lifetime; it is never re-probed
// mid-run, so a run's termination behavior stays deterministic.
type Detector struct {
	embedder          Embedder
	semanticThreshold float64
	infoGainThreshold float64
	logger            *zap.Logger
}

// NewDetector builds a detector. Thresholds at or below zero take the
// defaults (0.85 semantic, 0.10 info gain). A nil embedder is allowed and
// yields a detector that always reports continue.
func NewDetector(embedder Embedder, semanticThreshold, infoGainThreshold float64, logger *zap.Logger) *Detector {
	if semanticThreshold <= 0 {
		semanticThreshold = defaultSemanticThreshold
	}
	if infoGainThreshold <= 0 {
		infoGainThreshold = defaultInfoGainThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{
		embedder:          embedder,
		semanticThreshold: semanticThreshold,
		infoGainThreshold: infoGainThreshold,
		logger:            logger.With(zap.String("component", "convergence")),
	}
}

// Enabled reports whether the detector has an embedding capability.
func (d *Detector) Enabled() bool { return d != nil && d.embedder != nil }

// Diagnostics is the detector's view of a transcript without a termination
// decision attached. Comparable is false when the transcript is too short or
// the detector has no embedder.
type Diagnostics struct {
	Turns      int
	Comparable bool
	Similarity float64
	Novelty    float64
}

// Metrics computes the similarity and novelty the detector would evaluate on
// the transcript's latest two rounds.
func (d *Detector) Metrics(ctx context.Context, transcript []string) (Diagnostics, error) {
	diag := Diagnostics{Turns: len(transcript)}
	if !d.Enabled() || len(transcript) < minTranscriptTurns {
		return diag, nil
	}

	n := len(transcript)
	prev := strings.Join(transcript[n-4:n-2], " ")
	curr := strings.Join(transcript[n-2:], " ")

	vecs, err := d.embedder.Embed(ctx, []string{prev, curr})
	if err != nil || len(vecs) != 2 {
		if err == nil {
			err = fmt.Errorf("expected 2 embeddings, got %d", len(vecs))
		}
		return diag, &ConvergenceFault{Err: err}
	}

	diag.Comparable = true
	diag.Similarity = cosine(vecs[0], vecs[1])
	diag.Novelty = novelty(prev, curr)
	return diag, nil
}

// ShouldStop compares the latest full round of the transcript against the
// previous one. It returns (false, StopContinue) for short transcripts and
// disabled detectors; an embedding failure surfaces as a *ConvergenceFault
// with a continue verdict so the caller decides how to degrade.
func (d *Detector) ShouldStop(ctx context.Context, transcript []string, roundIndex int) (bool, StopReason, error) {
	diag, err := d.Metrics(ctx, transcript)
	if err != nil {
		return false, StopContinue, err
	}
	if !diag.Comparable {
		return false, StopContinue, nil
	}

	if diag.Similarity >= d.semanticThreshold {
		d.logger.Info("debate semantically converged",
			zap.Int("round", roundIndex),
			zap.Float64("similarity", diag.Similarity),
		)
		return true, StopSemanticConverged, nil
	}

	if diag.Novelty < d.infoGainThreshold {
		d.logger.Info("debate information gain below threshold",
			zap.Int("round", roundIndex),
			zap.Float64("novelty", diag.Novelty),
		)
		return true, StopInfoGainLow, nil
	}

	return false, StopContinue, nil
}

// cosine returns the cosine similarity of two vectors, clamped to 0.0 when
// either has zero norm or the dimensions disagree.
func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0.0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// novelty is the fraction of the current round's word set absent from the
// previous round, over lower-cased whitespace tokens.
func novelty(prev, curr string) float64 {
	prevWords := wordSet(prev)
	currWords := wordSet(curr)
	if len(currWords) == 0 {
		return 0.0
	}
	fresh := 0
	for w := range currWords {
		if !prevWords[w] {
			fresh++
		}
	}
	return float64(fresh) / float64(len(currWords))
}

func wordSet(text string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		out[w] = true
	}
	return out
}
