// Package linear implements a binary linear classifier that scores sparse instances.
package linear

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/FrenchMajesty/evidence-counterfactual/pkg/sparse"
)

// Output selects what Score returns
type Output string

const (
	// OutputDecision returns the raw decision function w·x + b
	OutputDecision Output = "decision"

	// OutputProbability returns the logistic probability of the positive class
	OutputProbability Output = "probability"
)

// ErrInvalidModel is returned when a model definition is inconsistent
var ErrInvalidModel = errors.New("invalid linear model")

// Model is a trained binary linear classifier
type Model struct {
	// Weights has one coefficient per feature
	Weights []float64 `yaml:"weights" json:"weights"`

	// Intercept is the bias term
	Intercept float64 `yaml:"intercept" json:"intercept"`

	// Output selects decision function or probability. Empty means OutputDecision.
	Output Output `yaml:"output" json:"output"`

	// Features is the optional feature-name vocabulary, parallel to Weights
	Features []string `yaml:"features,omitempty" json:"features,omitempty"`
}

// Validate checks that the model is usable for scoring
func (m *Model) Validate() error {
	if len(m.Weights) == 0 {
		return fmt.Errorf("%w: no weights", ErrInvalidModel)
	}
	if m.Features != nil && len(m.Features) != len(m.Weights) {
		return fmt.Errorf("%w: %d features for %d weights", ErrInvalidModel, len(m.Features), len(m.Weights))
	}
	switch m.Output {
	case "", OutputDecision, OutputProbability:
	default:
		return fmt.Errorf("%w: unknown output %q", ErrInvalidModel, m.Output)
	}
	return nil
}

// Dim returns the number of features the model expects
func (m *Model) Dim() int {
	return len(m.Weights)
}

// DecisionFunction returns w·x + b for the instance
func (m *Model) DecisionFunction(instance sparse.Vector) (float64, error) {
	dot, err := instance.Dot(m.Weights)
	if err != nil {
		return 0, err
	}
	return dot + m.Intercept, nil
}

// PredictProba returns the probability of the positive class
func (m *Model) PredictProba(instance sparse.Vector) (float64, error) {
	z, err := m.DecisionFunction(instance)
	if err != nil {
		return 0, err
	}
	return sigmoid(z), nil
}

// Score implements the counterfactual Scorer interface
func (m *Model) Score(ctx context.Context, instance sparse.Vector) (float64, error) {
	if m.Output == OutputProbability {
		return m.PredictProba(instance)
	}
	return m.DecisionFunction(instance)
}

// Predict returns the predicted label for the given threshold
func (m *Model) Predict(instance sparse.Vector, threshold float64) (bool, error) {
	score, err := m.Score(context.Background(), instance)
	if err != nil {
		return false, err
	}
	return score >= threshold, nil
}

func sigmoid(z float64) float64 {
	// Numerically stable for large |z|
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	ez := math.Exp(z)
	return ez / (1 + ez)
}

// Load reads a model from a YAML or JSON file, chosen by extension
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file %s: %w", path, err)
	}

	var m Model
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &m)
	default:
		err = yaml.Unmarshal(data, &m)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse model file %s: %w", path, err)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Save writes the model as YAML
func (m *Model) Save(path string) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal model: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write model file %s: %w", path, err)
	}
	return nil
}
