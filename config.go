package counterfactual

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/FrenchMajesty/evidence-counterfactual/internal/metrics"
)

const (
	// DefaultThreshold is the decision boundary used by DefaultConfig
	DefaultThreshold = 0.5

	// DefaultMaxIter is the iteration bound used by DefaultConfig
	DefaultMaxIter = 50

	// DefaultMaxExplained is the number of explanations collected by DefaultConfig
	DefaultMaxExplained = 1

	// DefaultMaxFeatures is the explanation size cap used by DefaultConfig
	DefaultMaxFeatures = 30

	// DefaultTimeBudget is the accumulated expansion-loop wall time after which the search stops
	DefaultTimeBudget = 300 * time.Second
)

// Config holds configuration for the Explainer
type Config struct {
	// Threshold is the decision boundary. A combination is an explanation when
	// the perturbed score falls strictly below it.
	Threshold float64 `yaml:"threshold" json:"threshold"`

	// MaxIter bounds the number of expansion iterations. Zero means the loop never runs.
	MaxIter int `yaml:"max_iter" json:"max_iter" validate:"gte=0"`

	// MaxExplained bounds the number of explanations collected. Zero means none are collected.
	MaxExplained int `yaml:"max_explained" json:"max_explained" validate:"gte=0"`

	// MaxFeatures caps the size of a tested combination. Zero or negative disables the cap.
	MaxFeatures int `yaml:"max_features" json:"max_features"`

	// TimeBudget caps the accumulated wall time of the expansion loop. If 0, uses DefaultTimeBudget.
	TimeBudget time.Duration `yaml:"time_budget" json:"time_budget" validate:"gte=0"`

	// Logger receives search progress. If nil, logging is disabled.
	Logger *zap.Logger `yaml:"-" json:"-" validate:"-"`

	// Metrics records run statistics. If nil, nothing is recorded.
	Metrics *metrics.Recorder `yaml:"-" json:"-" validate:"-"`
}

// DefaultConfig returns a configuration suitable for most linear text models
func DefaultConfig() Config {
	return Config{
		Threshold:    DefaultThreshold,
		MaxIter:      DefaultMaxIter,
		MaxExplained: DefaultMaxExplained,
		MaxFeatures:  DefaultMaxFeatures,
		TimeBudget:   DefaultTimeBudget,
	}
}

var configValidate = validator.New()

// applyDefaults fills in default values for unset config fields
func (c *Config) applyDefaults() {
	if c.TimeBudget == 0 {
		c.TimeBudget = DefaultTimeBudget
	}

	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// validate checks the numeric bounds of the config
func (c *Config) validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
