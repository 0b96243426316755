package config

import (
	"fmt"
	"os"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/toolcat/visimatch/domain/feedback"
)

// HyperparameterOverrides is the on-disk shape of a training hyperparameter
// override file. Zero-value fields are left out of the merge so a YAML
// file only needs to name the handful of settings an operator wants to
// change, not the full set.
type HyperparameterOverrides struct {
	Epochs       int     `yaml:"epochs"`
	BatchSize    int     `yaml:"batch_size"`
	LearningRate float64 `yaml:"learning_rate"`
	WeightDecay  float64 `yaml:"weight_decay"`
}

// LoadHyperparameters reads an override file at path, if path is
// non-empty, and merges it onto defaults: every non-zero field in the
// file wins over the corresponding default. An empty path returns
// defaults unchanged.
func LoadHyperparameters(path string, defaults feedback.Hyperparameters) (feedback.Hyperparameters, error) {
	if path == "" {
		return defaults, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return feedback.Hyperparameters{}, fmt.Errorf("read hyperparameters file %s: %w", path, err)
	}

	var overrides HyperparameterOverrides
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return feedback.Hyperparameters{}, fmt.Errorf("parse hyperparameters file %s: %w", path, err)
	}

	merged := defaults
	src := feedback.Hyperparameters(overrides)
	if err := mergo.Merge(&merged, src, mergo.WithOverride); err != nil {
		return feedback.Hyperparameters{}, fmt.Errorf("merge hyperparameter overrides: %w", err)
	}
	return merged, nil
}
