package remote_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FrenchMajesty/evidence-counterfactual/adapters/remote"
	"github.com/FrenchMajesty/evidence-counterfactual/internal/retry"
	"github.com/FrenchMajesty/evidence-counterfactual/pkg/sparse"
)

func fastRetry() *retry.Config {
	return &retry.Config{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffMultiple: 1}
}

func TestScorer_Score(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req remote.ScoreRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		score := float64(req.Instance.Nnz()) / 10
		_ = json.NewEncoder(w).Encode(remote.ScoreResponse{Score: &score})
	}))
	defer server.Close()

	scorer, err := remote.NewScorer(remote.Config{Endpoint: server.URL, APIKey: "secret", Retry: fastRetry()})
	require.NoError(t, err)

	score, err := scorer.Score(context.Background(), sparse.FromDense([]float64{1, 0, 1, 1}))
	require.NoError(t, err)
	assert.InDelta(t, 0.3, score, 1e-12)
}

func TestScorer_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		score := 0.9
		_ = json.NewEncoder(w).Encode(remote.ScoreResponse{Score: &score})
	}))
	defer server.Close()

	scorer, err := remote.NewScorer(remote.Config{Endpoint: server.URL, Retry: fastRetry()})
	require.NoError(t, err)

	score, err := scorer.Score(context.Background(), sparse.FromDense([]float64{1}))
	require.NoError(t, err)
	assert.Equal(t, 0.9, score)
	assert.Equal(t, int32(3), calls.Load())
}

func TestScorer_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(remote.ScoreResponse{Error: "dimension mismatch"})
	}))
	defer server.Close()

	scorer, err := remote.NewScorer(remote.Config{Endpoint: server.URL, Retry: fastRetry()})
	require.NoError(t, err)

	_, err = scorer.Score(context.Background(), sparse.FromDense([]float64{1}))
	assert.ErrorContains(t, err, "dimension mismatch")
	assert.Equal(t, int32(1), calls.Load())
}

func TestScorer_MissingScore(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	scorer, err := remote.NewScorer(remote.Config{Endpoint: server.URL, Retry: fastRetry()})
	require.NoError(t, err)

	_, err = scorer.Score(context.Background(), sparse.FromDense([]float64{1}))
	assert.ErrorContains(t, err, "no score")
}

func TestNewScorer_RequiresEndpoint(t *testing.T) {
	_, err := remote.NewScorer(remote.Config{})
	assert.ErrorIs(t, err, remote.ErrEmptyEndpoint)
}

func TestNewScorer_RejectsNegativeRate(t *testing.T) {
	_, err := remote.NewScorer(remote.Config{Endpoint: "http://localhost:1", RequestsPerSecond: -1})
	assert.ErrorIs(t, err, remote.ErrInvalidRate)
}
