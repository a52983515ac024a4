package counterfactual_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	counterfactual "github.com/FrenchMajesty/evidence-counterfactual"
	"github.com/FrenchMajesty/evidence-counterfactual/pkg/sparse"
	"github.com/FrenchMajesty/evidence-counterfactual/pkg/testutil"
)

func TestExplainBatch_PreservesOrder(t *testing.T) {
	model := testutil.AdditiveScorer{Weights: []float64{1, 1, 1, 1}, Intercept: -1.5}
	explainer, err := counterfactual.NewExplainer(model, counterfactual.Config{MaxIter: 10, MaxExplained: 1})
	require.NoError(t, err)

	instances := []sparse.Vector{
		sparse.FromDense([]float64{1, 1, 0, 0}),
		sparse.FromDense([]float64{1, 1, 1, 0}),
		sparse.FromDense([]float64{0, 0, 0, 0}),
		sparse.FromDense([]float64{1, 1, 1, 1}),
	}

	results, err := explainer.ExplainBatch(context.Background(), instances, []string{"w", "x", "y", "z"}, 2)
	require.NoError(t, err)
	require.Len(t, results, len(instances))

	wantSizes := []int{1, 2, 0, 3}
	for i, result := range results {
		assert.Equal(t, instances[i].Nnz(), result.NumberActiveElements)
		assert.Equal(t, wantSizes[i], result.MinimumSizeExplanation, "instance %d", i)
	}
	assert.Equal(t, [][]string{{"w"}}, results[0].FeatureNames())
}

func TestExplainBatch_ReturnsFirstError(t *testing.T) {
	boom := errors.New("scoring backend down")
	scorer := counterfactual.ScorerFunc(func(ctx context.Context, v sparse.Vector) (float64, error) {
		if v.Dim() == 3 {
			return 0, boom
		}
		return float64(v.Nnz()), nil
	})

	explainer, err := counterfactual.NewExplainer(scorer, counterfactual.Config{MaxIter: 5, MaxExplained: 1})
	require.NoError(t, err)

	_, err = explainer.ExplainBatch(context.Background(), []sparse.Vector{
		sparse.FromDense([]float64{1, 1}),
		sparse.FromDense([]float64{1, 1, 1}),
	}, nil, 0)
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "instance 1")
}
