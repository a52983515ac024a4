// Package counterfactual finds evidence counterfactual explanations for
// binary linear classifiers on sparse, high-dimensional data.
//
// An explanation is a set of active features whose removal (zeroing) pushes
// the classifier score below a decision threshold. The search ranks every
// active feature by the score obtained when it alone is removed, then grows a
// removal set one ranked feature at a time. This needs one scorer call per
// active feature plus at most one per iteration, at the price of not
// guaranteeing a globally minimal explanation.
package counterfactual

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FrenchMajesty/evidence-counterfactual/pkg/sparse"
)

var (
	// ErrNilScorer is returned when no scorer is provided
	ErrNilScorer = errors.New("scorer is required")

	// ErrNonFiniteScore is returned when the scorer yields NaN or an infinity
	ErrNonFiniteScore = errors.New("scorer returned a non-finite score")

	// ErrFeatureNames is returned when the name table is shorter than the instance dimensionality
	ErrFeatureNames = errors.New("feature names do not cover the instance")
)

// Explainer searches for counterfactual explanations using a single scorer
type Explainer struct {
	scorer Scorer
	cfg    Config
	now    func() time.Time
}

// NewExplainer creates a new Explainer with the given scorer and configuration
func NewExplainer(scorer Scorer, cfg Config) (*Explainer, error) {
	if scorer == nil {
		return nil, ErrNilScorer
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &Explainer{
		scorer: scorer,
		cfg:    cfg,
		now:    time.Now,
	}, nil
}

// FindCounterfactualExplanations runs a single search with explicit bounds.
// featureNames maps feature index to display name; nil uses the decimal index.
func FindCounterfactualExplanations(
	ctx context.Context,
	instance sparse.Vector,
	scorer Scorer,
	threshold float64,
	featureNames []string,
	maxIter, maxExplained, maxFeatures int,
) (*Result, error) {
	explainer, err := NewExplainer(scorer, Config{
		Threshold:    threshold,
		MaxIter:      maxIter,
		MaxExplained: maxExplained,
		MaxFeatures:  maxFeatures,
	})
	if err != nil {
		return nil, err
	}
	return explainer.Explain(ctx, instance, featureNames)
}

// Explain finds the explanations for one instance. The instance is never
// modified; every perturbation is scored on a fresh copy.
//
// Scorer failures abort the search and are returned wrapped. Exceeding the time
// budget or cancelling ctx ends the search gracefully with the explanations
// found so far.
func (e *Explainer) Explain(ctx context.Context, instance sparse.Vector, featureNames []string) (*Result, error) {
	start := e.now()

	if featureNames != nil && len(featureNames) < instance.Dim() {
		return nil, fmt.Errorf("%d names for dimension %d: %w", len(featureNames), instance.Dim(), ErrFeatureNames)
	}

	runID := uuid.New().String()
	s := &search{
		scorer:   e.scorer,
		cfg:      e.cfg,
		log:      e.cfg.Logger.With(zap.String("run_id", runID)),
		now:      e.now,
		instance: instance,
	}

	found, err := s.run(ctx)
	if err != nil {
		e.cfg.Metrics.ObserveFailure(s.calls)
		return nil, err
	}

	result := s.assemble(found, featureNames)
	result.RunID = runID
	result.TimeElapsed = e.now().Sub(start)

	sizes := make([]int, len(result.Explanations))
	for i, ex := range result.Explanations {
		sizes[i] = ex.Size()
	}
	e.cfg.Metrics.ObserveRun(string(result.StopReason), result.ScorerCalls, sizes, result.TimeElapsed)

	s.log.Info("search finished",
		zap.String("stop_reason", string(result.StopReason)),
		zap.Int("iterations", result.Iterations),
		zap.Int("explanations", result.NumberExplanations),
		zap.Int("scorer_calls", result.ScorerCalls),
		zap.Duration("elapsed", result.TimeElapsed))

	return result, nil
}

// search holds the state of one Explain call
type search struct {
	scorer   Scorer
	cfg      Config
	log      *zap.Logger
	now      func() time.Time
	instance sparse.Vector

	baseline   float64
	active     int
	calls      int
	iterations int
	stop       StopReason
}

// candidate is an active feature with the score obtained when it alone is removed
type candidate struct {
	feature int
	score   float64
}

// discovery is an explanation before names are attached
type discovery struct {
	features []int
	score    float64
}

func (s *search) run(ctx context.Context) ([]discovery, error) {
	baseline, err := s.score(ctx, s.instance)
	if err != nil {
		return nil, fmt.Errorf("baseline score: %w", err)
	}
	s.baseline = baseline

	ranked, err := s.rank(ctx)
	if err != nil {
		return nil, fmt.Errorf("ranking: %w", err)
	}

	s.log.Debug("initialization done",
		zap.Float64("baseline", baseline),
		zap.Int("active_elements", s.active))

	found, err := s.expand(ctx, ranked)
	if err != nil {
		return nil, fmt.Errorf("expansion: %w", err)
	}
	return found, nil
}

// score calls the scorer and rejects non-finite results
func (s *search) score(ctx context.Context, v sparse.Vector) (float64, error) {
	s.calls++
	score, err := s.scorer.Score(ctx, v)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, fmt.Errorf("got %v: %w", score, ErrNonFiniteScore)
	}
	return score, nil
}

// rank scores every singleton removal and orders the candidates by ascending
// score. Ties keep ascending feature order.
func (s *search) rank(ctx context.Context) ([]candidate, error) {
	active := s.instance.NonZero()
	s.active = len(active)

	ranked := make([]candidate, 0, len(active))
	for _, feature := range active {
		score, err := s.score(ctx, s.instance.Without(feature))
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", feature, err)
		}
		ranked = append(ranked, candidate{feature: feature, score: score})
	}

	slices.SortStableFunc(ranked, func(a, b candidate) int {
		return cmp.Compare(a.score, b.score)
	})
	return ranked, nil
}

// expansion is the loop state. k is the size of the next combination and
// pointer the position in the ranking consulted by the stop heuristic.
type expansion struct {
	k         int
	iteration int
	pointer   int
	found     int
	elapsed   time.Duration
	heuristic StopReason
}

// expand grows the removal set along the ranking and collects every prefix
// whose removal crosses the threshold.
func (s *search) expand(ctx context.Context, ranked []candidate) ([]discovery, error) {
	st := expansion{k: 1}
	var found []discovery

	for {
		if reason := s.terminate(ctx, &st, len(ranked)); reason != "" {
			s.stop = reason
			break
		}

		iterStart := s.now()

		combination := make([]int, st.k)
		for j, c := range ranked[:st.k] {
			combination[j] = c.feature
		}

		score, err := s.score(ctx, s.instance.Without(combination...))
		if err != nil {
			return nil, fmt.Errorf("combination of size %d: %w", st.k, err)
		}

		s.log.Debug("iteration",
			zap.Int("iteration", st.iteration+1),
			zap.Int("k", st.k),
			zap.Float64("score", score))

		if score < s.cfg.Threshold {
			found = append(found, discovery{features: combination, score: score})
			st.found++
			s.log.Info("explanation found",
				zap.Int("size", st.k),
				zap.Float64("score_change", s.baseline-score))
		}

		st.advance(ranked, s.baseline)
		st.k++
		st.iteration++
		st.elapsed += s.now().Sub(iterStart)
	}

	s.iterations = st.iteration
	return found, nil
}

// terminate returns the reason the loop must stop before the next iteration, or "" to continue
func (s *search) terminate(ctx context.Context, st *expansion, candidates int) StopReason {
	switch {
	case st.iteration >= s.cfg.MaxIter:
		return StopMaxIter
	case candidates == 0:
		return StopNoCandidates
	case st.found >= s.cfg.MaxExplained:
		return StopMaxExplained
	case st.elapsed > s.cfg.TimeBudget:
		return StopTimeBudget
	case st.heuristic != "":
		return st.heuristic
	case s.cfg.MaxFeatures > 0 && st.k > s.cfg.MaxFeatures:
		return StopMaxFeatures
	case ctx.Err() != nil:
		return StopCancelled
	}
	return ""
}

// advance moves the heuristic pointer. The search stops once the ranking is
// exhausted or the next-ranked feature alone would raise the score above the baseline.
func (st *expansion) advance(ranked []candidate, baseline float64) {
	st.pointer++
	switch {
	case st.pointer == len(ranked):
		st.heuristic = StopExhausted
	case ranked[st.pointer].score > baseline:
		st.heuristic = StopScoreIncrease
	}
}

// assemble attaches names and summary statistics to the discoveries
func (s *search) assemble(found []discovery, featureNames []string) *Result {
	result := &Result{
		NumberActiveElements: s.active,
		NumberExplanations:   len(found),
		ScorePredicted:       s.baseline,
		Iterations:           s.iterations,
		ScorerCalls:          s.calls,
		StopReason:           s.stop,
		Explanations:         []Explanation{},
	}

	for i, d := range found {
		if i == 0 || len(d.features) < result.MinimumSizeExplanation {
			result.MinimumSizeExplanation = len(d.features)
		}
	}

	for _, d := range found[:min(len(found), s.cfg.MaxExplained)] {
		names := make([]string, len(d.features))
		for j, f := range d.features {
			names[j] = featureName(featureNames, f)
		}
		result.Explanations = append(result.Explanations, Explanation{
			Features:     d.features,
			FeatureNames: names,
			Score:        d.score,
			ScoreChange:  s.baseline - d.score,
		})
	}

	return result
}

func featureName(names []string, index int) string {
	if names == nil {
		return strconv.Itoa(index)
	}
	return names[index]
}
