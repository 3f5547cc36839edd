// Package engine implements the online strategy selector. It starts with
// round-robin exploration over the catalog, then learns a regression from
// (features, strategy index) to reward and picks the strategy with the
// highest predicted reward.
//
// A Selector holds one mutable state and is not safe for concurrent use:
// callers must serialise Select, Observe and Restore.
package engine

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"go.uber.org/zap"
)

var (
	ErrEmptyCatalog      = errors.New("strategy catalog is empty")
	ErrDuplicateStrategy = errors.New("duplicate strategy name")
	ErrUnknownStrategy   = errors.New("unknown strategy")
	ErrFeatureLength     = errors.New("feature vector has wrong length")
	ErrNonFinite         = errors.New("observation contains non-finite values")
)

// maxPrediction is far outside the [0, 10] reward range. Larger predictions
// mean the model has diverged.
const maxPrediction = 1e3

// Mode records how a selection was made.
type Mode string

const (
	ModeCold     Mode = "cold"
	ModeExplore  Mode = "explore"
	ModeGreedy   Mode = "greedy"
	ModeFallback Mode = "fallback"
)

// Observation is one (features, strategy, reward) outcome.
type Observation struct {
	Features      []float64 `json:"features"`
	StrategyIndex int       `json:"strategy_index"`
	Reward        float64   `json:"reward"`
}

// Selection is the result of Select.
type Selection struct {
	Strategy    string    `json:"strategy"`
	Index       int       `json:"index"`
	Mode        Mode      `json:"mode"`
	Predictions []float64 `json:"predictions,omitempty"`
}

// Selector is the online strategy selector.
type Selector struct {
	cfg        Config
	strategies []string
	index      map[string]int

	history []Observation
	trained bool
	scaler  *Scaler
	model   Model

	rng    *rand.Rand
	logger *zap.Logger
}

// Option configures a Selector.
type Option func(*Selector)

// WithLogger sets the selector's logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Selector) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRand replaces the seeded exploration source.
func WithRand(r *rand.Rand) Option {
	return func(s *Selector) {
		if r != nil {
			s.rng = r
		}
	}
}

// WithModel replaces the model built from Config.ModelKind.
func WithModel(m Model) Option {
	return func(s *Selector) {
		if m != nil {
			s.model = m
		}
	}
}

// New creates a selector over the ordered strategy names.
func New(strategies []string, cfg Config, opts ...Option) (*Selector, error) {
	if len(strategies) == 0 {
		return nil, ErrEmptyCatalog
	}
	if cfg.FeatureDim == 0 {
		cfg.FeatureDim = DefaultConfig().FeatureDim
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	index := make(map[string]int, len(strategies))
	for i, name := range strategies {
		if _, dup := index[name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateStrategy, name)
		}
		index[name] = i
	}

	if cfg.WarmupThreshold == 0 {
		cfg.WarmupThreshold = len(strategies)
	}
	if cfg.ExplorationWindow == 0 {
		cfg.ExplorationWindow = 2 * len(strategies)
	}
	if cfg.MergePolicy == "" {
		cfg.MergePolicy = MergeDedup
	}

	model, err := NewModel(cfg.ModelKind, cfg)
	if err != nil {
		return nil, err
	}

	s := &Selector{
		cfg:        cfg,
		strategies: append([]string(nil), strategies...),
		index:      index,
		model:      model,
		rng:        rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Strategies returns the catalog names in index order.
func (s *Selector) Strategies() []string {
	return append([]string(nil), s.strategies...)
}

// Config returns the effective configuration.
func (s *Selector) Config() Config {
	return s.cfg
}

// SampleCount is the number of observations folded in.
func (s *Selector) SampleCount() int {
	return len(s.history)
}

// Trained reports whether selection currently uses the learned model.
func (s *Selector) Trained() bool {
	return s.trained
}

// Select picks a strategy for the feature vector.
func (s *Selector) Select(x []float64) (Selection, error) {
	if len(x) != s.cfg.FeatureDim {
		return Selection{}, fmt.Errorf("%w: got %d, want %d", ErrFeatureLength, len(x), s.cfg.FeatureDim)
	}

	if !s.trained {
		return s.roundRobin(ModeCold), nil
	}

	preds, err := s.predictAll(x)
	if err != nil {
		s.logger.Warn("prediction failed, falling back to round-robin", zap.Error(err))
		return s.roundRobin(ModeFallback), nil
	}

	best := 0
	for i := 1; i < len(preds); i++ {
		if preds[i] > preds[best] {
			best = i
		}
	}

	if len(s.history) < s.cfg.ExplorationWindow && s.cfg.ExplorationRate > 0 && s.rng.Float64() < s.cfg.ExplorationRate {
		sel := s.roundRobin(ModeExplore)
		sel.Predictions = preds
		s.logger.Debug("exploring instead of greedy pick",
			zap.String("greedy", s.strategies[best]),
			zap.String("strategy", sel.Strategy))
		return sel, nil
	}

	return Selection{
		Strategy:    s.strategies[best],
		Index:       best,
		Mode:        ModeGreedy,
		Predictions: preds,
	}, nil
}

func (s *Selector) roundRobin(mode Mode) Selection {
	i := len(s.history) % len(s.strategies)
	return Selection{Strategy: s.strategies[i], Index: i, Mode: mode}
}

func (s *Selector) predictAll(x []float64) (preds []float64, err error) {
	defer recoverInto(&err)

	scaled, err := s.transform(x)
	if err != nil {
		return nil, err
	}
	rows := make([][]float64, len(s.strategies))
	for i := range s.strategies {
		rows[i] = withStrategy(scaled, i)
	}
	preds, err = s.model.Predict(rows)
	if err != nil {
		return nil, err
	}
	if len(preds) != len(rows) || !allFinite(preds) {
		return nil, fmt.Errorf("%w: unusable predictions", ErrModelCorrupt)
	}
	for _, p := range preds {
		if math.Abs(p) > maxPrediction {
			return nil, fmt.Errorf("%w: prediction %g is outside the reward range", ErrModelCorrupt, p)
		}
	}
	return preds, nil
}

// Observe records the outcome of running strategy on x. Errors are returned
// only for invalid input; training failures are logged and leave the
// selector untrained with its history intact.
func (s *Selector) Observe(x []float64, strategy string, reward float64) error {
	idx, ok := s.index[strategy]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
	if len(x) != s.cfg.FeatureDim {
		return fmt.Errorf("%w: got %d, want %d", ErrFeatureLength, len(x), s.cfg.FeatureDim)
	}
	if !finite(reward) || !allFinite(x) {
		return ErrNonFinite
	}

	obs := Observation{Features: append([]float64(nil), x...), StrategyIndex: idx, Reward: reward}
	s.history = append(s.history, obs)

	if len(s.history) < s.cfg.WarmupThreshold {
		return nil
	}

	if err := s.learn(obs); err != nil {
		s.trained = false
		s.logger.Warn("model update failed, selector untrained until next successful fit",
			zap.Int("samples", len(s.history)),
			zap.Error(err))
	}
	return nil
}

func (s *Selector) learn(obs Observation) (err error) {
	defer recoverInto(&err)

	if s.scaler == nil {
		if err := s.refitScaler(); err != nil {
			return err
		}
		s.logger.Info("scaler fitted", zap.Int("samples", len(s.history)))
	}

	if !s.trained || !s.model.Incremental() {
		return s.retrain()
	}

	scaled, err := s.transform(obs.Features)
	if err != nil {
		return err
	}
	if err := s.model.PartialUpdate(withStrategy(scaled, obs.StrategyIndex), obs.Reward); err != nil {
		s.logger.Warn("incremental update failed, replaying history", zap.Error(err))
		return s.retrain()
	}
	return nil
}

// retrain fits the model from the full history.
func (s *Selector) retrain() error {
	rows := make([][]float64, len(s.history))
	targets := make([]float64, len(s.history))
	for i, o := range s.history {
		scaled, err := s.transform(o.Features)
		if err != nil {
			return err
		}
		rows[i] = withStrategy(scaled, o.StrategyIndex)
		targets[i] = o.Reward
	}

	s.model.Reset()
	if err := s.model.Fit(rows, targets); err != nil {
		return err
	}
	s.trained = true
	return nil
}

// transform scales x, refitting the scaler from full history and retrying
// once if the first attempt fails.
func (s *Selector) transform(x []float64) ([]float64, error) {
	out, err := s.scaler.Transform(x)
	if err == nil {
		return out, nil
	}
	s.logger.Warn("scaler transform failed, refitting", zap.Error(err))
	if err := s.refitScaler(); err != nil {
		return nil, err
	}
	return s.scaler.Transform(x)
}

func (s *Selector) refitScaler() error {
	rows := make([][]float64, len(s.history))
	for i, o := range s.history {
		rows[i] = o.Features
	}
	sc, err := FitScaler(rows)
	if err != nil {
		return err
	}
	s.scaler = sc
	return nil
}

func withStrategy(scaled []float64, idx int) []float64 {
	row := make([]float64, len(scaled)+1)
	copy(row, scaled)
	row[len(scaled)] = float64(idx)
	return row
}

func recoverInto(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: panic: %v", ErrModelFit, r)
	}
}

// Stats summarises the selector's history.
type Stats struct {
	TrainingSamples      int                `json:"training_samples"`
	AverageReward        float64            `json:"average_reward"`
	Distribution         map[string]int     `json:"strategy_distribution"`
	AverageByStrategy    map[string]float64 `json:"average_by_strategy"`
	UniqueStrategiesUsed int                `json:"unique_strategies_used"`
	ScalerFitted         bool               `json:"scaler_fitted"`
	Trained              bool               `json:"trained"`
	ModelKind            string             `json:"model_kind"`
}

// Stats computes summary statistics.
func (s *Selector) Stats() Stats {
	st := Stats{
		TrainingSamples:   len(s.history),
		Distribution:      make(map[string]int, len(s.strategies)),
		AverageByStrategy: make(map[string]float64, len(s.strategies)),
		ScalerFitted:      s.scaler != nil,
		Trained:           s.trained,
		ModelKind:         s.model.Kind(),
	}
	for _, name := range s.strategies {
		st.Distribution[name] = 0
	}

	sums := make(map[string]float64)
	total := 0.0
	for _, o := range s.history {
		name := s.strategies[o.StrategyIndex]
		st.Distribution[name]++
		sums[name] += o.Reward
		total += o.Reward
	}
	for name, n := range st.Distribution {
		if n > 0 {
			st.UniqueStrategiesUsed++
			st.AverageByStrategy[name] = sums[name] / float64(n)
		}
	}
	if len(s.history) > 0 {
		st.AverageReward = total / float64(len(s.history))
	}
	return st
}
