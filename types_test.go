package counterfactual_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	counterfactual "github.com/FrenchMajesty/evidence-counterfactual"
)

func TestResult_JSONWritesElapsedSeconds(t *testing.T) {
	result := &counterfactual.Result{
		RunID:       "run-1",
		TimeElapsed: 1500 * time.Millisecond,
		StopReason:  counterfactual.StopExhausted,
		Explanations: []counterfactual.Explanation{
			{Features: []int{4, 1}, FeatureNames: []string{"e", "b"}, Score: 0.2, ScoreChange: 0.6},
		},
		NumberExplanations: 1,
	}

	data, err := json.Marshal(result)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, 1.5, raw["time_elapsed_seconds"])
	assert.NotContains(t, raw, "time_elapsed")
	assert.Equal(t, "exhausted", raw["stop_reason"])

	var decoded counterfactual.Result
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, *result, decoded)
}
