package engine

import (
	"fmt"

	"github.com/Yates-Labs/prselect/internal/features"
)

// MergePolicy controls how Restore combines loaded state with memory.
type MergePolicy string

const (
	// MergeDedup appends loaded observations whose feature vectors are not
	// already in memory.
	MergeDedup MergePolicy = "merge"

	// Overwrite replaces in-memory state with the loaded state.
	Overwrite MergePolicy = "overwrite"
)

// MaxLearningRate bounds the SGD step size. Larger steps on standardised
// features diverge within a few updates.
const MaxLearningRate = 0.5

// Config tunes the selector.
type Config struct {
	// FeatureDim is the expected feature vector length.
	FeatureDim int `yaml:"feature_dim"`

	// WarmupThreshold is the sample count at which the scaler and model are
	// first fitted. Zero means one round over the catalog.
	WarmupThreshold int `yaml:"warmup_threshold"`

	// ExplorationRate is the probability of replacing a greedy pick with the
	// round-robin pick while SampleCount < ExplorationWindow. Zero disables it.
	ExplorationRate float64 `yaml:"exploration_rate"`

	// ExplorationWindow defaults to twice the catalog size when zero.
	ExplorationWindow int `yaml:"exploration_window"`

	// Seed seeds the exploration random source.
	Seed uint64 `yaml:"seed"`

	// ModelKind is KindSGD or KindRidge.
	ModelKind string `yaml:"model"`

	LearningRate float64 `yaml:"learning_rate"`
	L2           float64 `yaml:"l2"`
	RidgeAlpha   float64 `yaml:"ridge_alpha"`

	MergePolicy MergePolicy `yaml:"merge_policy"`
}

// DefaultConfig returns the incremental SGD setup with exploration enabled.
func DefaultConfig() Config {
	return Config{
		FeatureDim:      features.Len,
		ExplorationRate: 0.3,
		Seed:            42,
		ModelKind:       KindSGD,
		LearningRate:    0.01,
		L2:              0.0001,
		RidgeAlpha:      1.0,
		MergePolicy:     MergeDedup,
	}
}

// Validate checks ranges.
func (c Config) Validate() error {
	if c.FeatureDim <= 0 {
		return fmt.Errorf("feature_dim must be positive, got %d", c.FeatureDim)
	}
	if c.WarmupThreshold < 0 || c.ExplorationWindow < 0 {
		return fmt.Errorf("warmup_threshold and exploration_window must not be negative")
	}
	if c.ExplorationRate < 0 || c.ExplorationRate > 1 {
		return fmt.Errorf("exploration_rate must be within [0, 1], got %v", c.ExplorationRate)
	}
	if c.LearningRate < 0 || c.LearningRate > MaxLearningRate {
		return fmt.Errorf("learning_rate must be within [0, %v], got %v", MaxLearningRate, c.LearningRate)
	}
	if c.L2 < 0 || c.RidgeAlpha < 0 {
		return fmt.Errorf("l2 and ridge_alpha must not be negative")
	}
	switch c.ModelKind {
	case "", KindSGD, KindRidge:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownModel, c.ModelKind)
	}
	switch c.MergePolicy {
	case "", MergeDedup, Overwrite:
	default:
		return fmt.Errorf("unknown merge policy %q", c.MergePolicy)
	}
	return nil
}
