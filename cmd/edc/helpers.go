package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	counterfactual "github.com/FrenchMajesty/evidence-counterfactual"
	"github.com/FrenchMajesty/evidence-counterfactual/pkg/sparse"
)

// saveResultsToFile writes the results to a uniquely named file in dir and returns its path
func saveResultsToFile(dir string, results []*counterfactual.Result) (string, error) {
	timestamp := time.Now().Format("20060102_150405")
	random := uuid.New().String()[:8]
	filename := filepath.Join(dir, fmt.Sprintf("results_%s_%s.json", timestamp, random))

	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", err
	}

	jsonData, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(filename, jsonData, 0644); err != nil {
		return "", err
	}

	return filename, nil
}

// loadInstances reads a JSON list of sparse vectors
func loadInstances(path string) ([]sparse.Vector, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open instances file: %w", err)
	}

	var instances []sparse.Vector
	if err := json.Unmarshal(data, &instances); err != nil {
		return nil, fmt.Errorf("failed to parse instances file %s: %w", path, err)
	}

	if len(instances) == 0 {
		return nil, fmt.Errorf("instances file %s holds no instances", path)
	}

	return instances, nil
}

// checkDimensions rejects instances that do not match the model dimension. A dim of 0 accepts any.
func checkDimensions(instances []sparse.Vector, dim int) error {
	if dim == 0 {
		return nil
	}
	for i, instance := range instances {
		if instance.Dim() != dim {
			return fmt.Errorf("instance %d has dimension %d, model expects %d: %w", i, instance.Dim(), dim, sparse.ErrDimensionMismatch)
		}
	}
	return nil
}

// loadConfig reads a YAML search configuration. Fields absent from the file keep their defaults.
func loadConfig(path string) (counterfactual.Config, error) {
	cfg := counterfactual.DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, nil
}
