// Package adapters builds scorers for remote classifiers from explicit values
// or environment variables.
package adapters

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/FrenchMajesty/evidence-counterfactual/adapters/pinecone"
	"github.com/FrenchMajesty/evidence-counterfactual/adapters/remote"
)

const (
	EnvScorerURL      = "EDC_SCORER_URL"
	EnvScorerAPIKey   = "EDC_SCORER_API_KEY"
	EnvPineconeAPIKey = "PINECONE_API_KEY"
	EnvPineconeHost   = "PINECONE_HOST"
)

// NewRemoteScorer creates a scorer for an HTTP scoring service. A nil endpoint
// is read from EDC_SCORER_URL; the API key is optional.
func NewRemoteScorer(endpoint *string, apiKey *string, requestsPerSecond float64, logger *zap.Logger) (*remote.Scorer, error) {
	url, err := loadEnvVar(endpoint, EnvScorerURL)
	if err != nil {
		return nil, err
	}

	key := ""
	if apiKey != nil {
		key = *apiKey
	} else {
		key = os.Getenv(EnvScorerAPIKey)
	}

	return remote.NewScorer(remote.Config{
		Endpoint:          *url,
		APIKey:            key,
		RequestsPerSecond: requestsPerSecond,
		Logger:            logger,
	})
}

// NewPineconeScorer connects to a Pinecone index and scores by similarity to
// examples of class. Nil credentials are read from PINECONE_API_KEY and PINECONE_HOST.
func NewPineconeScorer(apiKey *string, host *string, namespace string, cfg pinecone.Config) (*pinecone.Scorer, error) {
	key, err := loadEnvVar(apiKey, EnvPineconeAPIKey)
	if err != nil {
		return nil, err
	}

	h, err := loadEnvVar(host, EnvPineconeHost)
	if err != nil {
		return nil, err
	}

	index, err := pinecone.Connect(*key, *h, namespace)
	if err != nil {
		return nil, err
	}

	return pinecone.NewScorer(index, cfg)
}

// loadEnvVar loads an environment variable into a pointer if no value is provided
func loadEnvVar(target *string, envKey string) (*string, error) {
	if target == nil {
		envVar := os.Getenv(envKey)
		if envVar == "" {
			return nil, fmt.Errorf("%s environment variable not set and no value provided", envKey)
		}
		return &envVar, nil
	}
	return target, nil
}
