package counterfactual

import (
	"context"

	"github.com/FrenchMajesty/evidence-counterfactual/pkg/sparse"
)

// Scorer returns the score of the class of interest for a single instance.
// Higher scores mean a stronger prediction toward that class. Implementations
// must accept any vector with the instance's dimensionality and must not keep
// state between calls that changes their output.
type Scorer interface {
	Score(ctx context.Context, instance sparse.Vector) (float64, error)
}

// ScorerFunc adapts an ordinary function to the Scorer interface
type ScorerFunc func(ctx context.Context, instance sparse.Vector) (float64, error)

// Score implements Scorer
func (f ScorerFunc) Score(ctx context.Context, instance sparse.Vector) (float64, error) {
	return f(ctx, instance)
}
