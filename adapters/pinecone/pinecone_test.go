package pinecone

import (
	"context"
	"errors"
	"testing"

	"github.com/pinecone-io/go-pinecone/pinecone"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	counterfactual "github.com/FrenchMajesty/evidence-counterfactual"
	"github.com/FrenchMajesty/evidence-counterfactual/pkg/sparse"
)

// fakeIndex records the last query and returns canned matches
type fakeIndex struct {
	matches []*pinecone.ScoredVector
	err     error
	last    *pinecone.QueryByVectorValuesRequest
}

func (f *fakeIndex) QueryByVectorValues(ctx context.Context, in *pinecone.QueryByVectorValuesRequest) (*pinecone.QueryVectorsResponse, error) {
	f.last = in
	if f.err != nil {
		return nil, f.err
	}
	return &pinecone.QueryVectorsResponse{Matches: f.matches}, nil
}

func TestScorer_AveragesNeighbourSimilarity(t *testing.T) {
	index := &fakeIndex{matches: []*pinecone.ScoredVector{
		{Vector: &pinecone.Vector{Id: "a"}, Score: 0.5},
		{Vector: &pinecone.Vector{Id: "b"}, Score: 0.75},
	}}

	scorer, err := NewScorer(index, Config{Class: "spam", TopK: 2})
	require.NoError(t, err)

	score, err := scorer.Score(context.Background(), sparse.FromDense([]float64{0, 2, 0}))
	require.NoError(t, err)
	assert.InDelta(t, 0.625, score, 1e-6)

	require.NotNil(t, index.last)
	assert.Equal(t, uint32(2), index.last.TopK)
	assert.Equal(t, []float32{0, 2, 0}, index.last.Vector)
	assert.Nil(t, index.last.SparseValues)

	filter := index.last.MetadataFilter.AsMap()
	assert.Equal(t, map[string]any{"$eq": "spam"}, filter["label"])
}

func TestScorer_HybridSendsSparseValues(t *testing.T) {
	index := &fakeIndex{}
	scorer, err := NewScorer(index, Config{Class: "spam", LabelField: "class", Hybrid: true})
	require.NoError(t, err)

	score, err := scorer.Score(context.Background(), sparse.FromDense([]float64{0, 1.5, 0, 3}))
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)

	require.NotNil(t, index.last.SparseValues)
	assert.Equal(t, []uint32{1, 3}, index.last.SparseValues.Indices)
	assert.Equal(t, []float32{1.5, 3}, index.last.SparseValues.Values)
	assert.Equal(t, uint32(DefaultTopK), index.last.TopK)
	assert.Contains(t, index.last.MetadataFilter.AsMap(), "class")
}

func TestScorer_PropagatesQueryErrors(t *testing.T) {
	queryErr := errors.New("unavailable")
	scorer, err := NewScorer(&fakeIndex{err: queryErr}, Config{Class: "spam"})
	require.NoError(t, err)

	_, err = scorer.Score(context.Background(), sparse.FromDense([]float64{1}))
	assert.ErrorIs(t, err, queryErr)
}

func TestNewScorer_RequiresClass(t *testing.T) {
	_, err := NewScorer(&fakeIndex{}, Config{})
	assert.ErrorIs(t, err, ErrMissingClass)
}

func TestNewScorer_RejectsNegativeTopK(t *testing.T) {
	_, err := NewScorer(&fakeIndex{}, Config{Class: "spam", TopK: -1})
	assert.ErrorIs(t, err, ErrInvalidTopK)
}

func TestScorer_EmptyInstanceSkipsQuery(t *testing.T) {
	index := &fakeIndex{matches: []*pinecone.ScoredVector{{Vector: &pinecone.Vector{Id: "a"}, Score: 0.9}}}
	scorer, err := NewScorer(index, Config{Class: "spam"})
	require.NoError(t, err)

	score, err := scorer.Score(context.Background(), sparse.FromDense([]float64{0, 0, 0}))
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
	assert.Nil(t, index.last)
}

// The last combination the search can test zeroes every active feature
func TestScorer_SearchReachesFullRemoval(t *testing.T) {
	index := &fakeIndex{matches: []*pinecone.ScoredVector{{Vector: &pinecone.Vector{Id: "a"}, Score: 0.8}}}
	scorer, err := NewScorer(index, Config{Class: "spam"})
	require.NoError(t, err)

	result, err := counterfactual.FindCounterfactualExplanations(
		context.Background(), sparse.FromDense([]float64{1, 0, 2}), scorer, 0.5, nil, 10, 1, 0)
	require.NoError(t, err)

	require.Len(t, result.Explanations, 1)
	assert.Equal(t, []int{0, 2}, result.Explanations[0].Features)
	assert.InDelta(t, 0.8, result.Explanations[0].ScoreChange, 1e-6)
}
