package counterfactual

import (
	"encoding/json"
	"math"
	"time"
)

// StopReason names the condition that ended the expansion loop
type StopReason string

const (
	StopMaxIter      StopReason = "max_iter"
	StopNoCandidates StopReason = "no_candidates"
	StopMaxExplained StopReason = "max_explained"
	StopTimeBudget   StopReason = "time_budget"
	StopMaxFeatures  StopReason = "max_features"
	StopCancelled    StopReason = "cancelled"

	// StopExhausted means every ranked feature has been added to the combination
	StopExhausted StopReason = "exhausted"

	// StopScoreIncrease means removing the next-ranked feature alone would raise the score above the baseline
	StopScoreIncrease StopReason = "score_increase"
)

// Explanation is a set of active features whose joint removal pushes the score below the threshold
type Explanation struct {
	// Features are the feature indices in ranking order
	Features []int `json:"features"`

	// FeatureNames are the display names of Features
	FeatureNames []string `json:"feature_names"`

	// Score is the classifier score with all Features zeroed
	Score float64 `json:"score"`

	// ScoreChange is the baseline score minus Score
	ScoreChange float64 `json:"score_change"`
}

// Size returns the number of features in the explanation
func (e Explanation) Size() int {
	return len(e.Features)
}

// Result represents the outcome of a counterfactual search
type Result struct {
	// RunID identifies this search in logs and result files
	RunID string `json:"run_id"`

	// Explanations are in discovery order, which is order of increasing size
	Explanations []Explanation `json:"explanations"`

	// NumberActiveElements is the number of non-zero features in the instance
	NumberActiveElements int `json:"number_active_elements"`

	// NumberExplanations is the number of explanations found
	NumberExplanations int `json:"number_explanations"`

	// MinimumSizeExplanation is the size of the smallest explanation, or 0 when none was found
	MinimumSizeExplanation int `json:"minimum_size_explanation"`

	// TimeElapsed is the wall time of the whole search. JSON carries it as
	// fractional seconds in time_elapsed_seconds.
	TimeElapsed time.Duration `json:"-"`

	// ScorePredicted is the baseline score of the unperturbed instance
	ScorePredicted float64 `json:"score_predicted"`

	// Iterations is the number of expansion iterations executed
	Iterations int `json:"iterations"`

	// ScorerCalls counts every call made to the scorer, baseline included
	ScorerCalls int `json:"scorer_calls"`

	// StopReason is the termination condition that ended the loop
	StopReason StopReason `json:"stop_reason"`
}

// Found reports whether at least one explanation was found
func (r *Result) Found() bool {
	return r.NumberExplanations > 0
}

// FeatureNames returns the explanations as groups of feature names
func (r *Result) FeatureNames() [][]string {
	groups := make([][]string, len(r.Explanations))
	for i, e := range r.Explanations {
		groups[i] = e.FeatureNames
	}
	return groups
}

// ScoreChanges returns the score change of each explanation, parallel to FeatureNames
func (r *Result) ScoreChanges() []float64 {
	changes := make([]float64, len(r.Explanations))
	for i, e := range r.Explanations {
		changes[i] = e.ScoreChange
	}
	return changes
}

// resultFields is Result without its JSON methods
type resultFields Result

// MarshalJSON writes TimeElapsed as seconds
func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		resultFields
		TimeElapsedSeconds float64 `json:"time_elapsed_seconds"`
	}{
		resultFields:       resultFields(r),
		TimeElapsedSeconds: r.TimeElapsed.Seconds(),
	})
}

// UnmarshalJSON reads TimeElapsed from seconds
func (r *Result) UnmarshalJSON(data []byte) error {
	aux := struct {
		*resultFields
		TimeElapsedSeconds float64 `json:"time_elapsed_seconds"`
	}{resultFields: (*resultFields)(r)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.TimeElapsed = time.Duration(math.Round(aux.TimeElapsedSeconds * float64(time.Second)))
	return nil
}
