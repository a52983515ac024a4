package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/FrenchMajesty/evidence-counterfactual/pkg/sparse"
)

// MockScorer is a mock implementation of Scorer for testing
type MockScorer struct {
	ScoreFunc func(ctx context.Context, instance sparse.Vector) (float64, error)

	mu        sync.Mutex
	CallCount int
	Calls     []sparse.Vector
}

func (m *MockScorer) Score(ctx context.Context, instance sparse.Vector) (float64, error) {
	m.mu.Lock()
	m.CallCount++
	m.Calls = append(m.Calls, instance)
	m.mu.Unlock()

	if m.ScoreFunc != nil {
		return m.ScoreFunc(ctx, instance)
	}

	// Default: the score is the fraction of active features still present
	if instance.Dim() == 0 {
		return 0, nil
	}
	return float64(instance.Nnz()) / float64(instance.Dim()), nil
}

// Count returns how many times Score was called
func (m *MockScorer) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

// TableScorer scores an instance by looking up its set of removed features.
// It is built for a fixed original instance and returns an error for any
// removal set that has no entry.
type TableScorer struct {
	Original sparse.Vector
	Scores   map[string]float64

	mu        sync.Mutex
	CallCount int
}

// NewTableScorer creates a TableScorer for the given original instance
func NewTableScorer(original sparse.Vector) *TableScorer {
	return &TableScorer{
		Original: original,
		Scores:   make(map[string]float64),
	}
}

// Set registers the score obtained when the given features are removed.
// Features must be listed in ascending order.
func (t *TableScorer) Set(score float64, removed ...int) *TableScorer {
	t.Scores[fmt.Sprint(removed)] = score
	return t
}

func (t *TableScorer) Score(ctx context.Context, instance sparse.Vector) (float64, error) {
	t.mu.Lock()
	t.CallCount++
	t.mu.Unlock()

	removed := []int{}
	for _, idx := range t.Original.NonZero() {
		if instance.At(idx) == 0 {
			removed = append(removed, idx)
		}
	}

	score, ok := t.Scores[fmt.Sprint(removed)]
	if !ok {
		return 0, fmt.Errorf("no score registered for removal of %v", removed)
	}
	return score, nil
}

// AdditiveScorer is a linear scorer over dense weights, useful as a
// deterministic stand-in for a trained model
type AdditiveScorer struct {
	Weights   []float64
	Intercept float64
}

func (a AdditiveScorer) Score(ctx context.Context, instance sparse.Vector) (float64, error) {
	dot, err := instance.Dot(a.Weights)
	if err != nil {
		return 0, err
	}
	return a.Intercept + dot, nil
}
