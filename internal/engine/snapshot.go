package engine

import (
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"
)

// Snapshot is a copy of everything the selector has learned.
type Snapshot struct {
	History     []Observation
	SampleCount int
	Trained     bool
	Scaler      *Scaler
	ModelKind   string
	Model       *Params
}

// Snapshot copies the current state.
func (s *Selector) Snapshot() Snapshot {
	hist := make([]Observation, len(s.history))
	for i, o := range s.history {
		hist[i] = Observation{
			Features:      append([]float64(nil), o.Features...),
			StrategyIndex: o.StrategyIndex,
			Reward:        o.Reward,
		}
	}
	return Snapshot{
		History:     hist,
		SampleCount: len(s.history),
		Trained:     s.trained,
		Scaler:      s.scaler.clone(),
		ModelKind:   s.model.Kind(),
		Model:       s.model.Params(),
	}
}

// RestoreReport describes what Restore did.
type RestoreReport struct {
	Loaded   int
	Appended int
	Skipped  int
	Policy   MergePolicy
	Retrain  bool
}

// Restore folds a previously saved snapshot into the selector according to
// policy (the configured policy when empty). Under MergeDedup, loaded
// observations whose feature vector already exists in memory are dropped;
// duplicates within the snapshot itself are kept. Observations that do not
// fit this catalog or feature length are skipped.
//
// Saved scaler and model parameters are adopted only when memory holds no
// learned state of its own and they fit the current dimensions. Otherwise
// the selector refits from the combined history once it reaches warmup.
func (s *Selector) Restore(snap Snapshot, policy MergePolicy) (RestoreReport, error) {
	if policy == "" {
		policy = s.cfg.MergePolicy
	}
	if policy != MergeDedup && policy != Overwrite {
		return RestoreReport{}, fmt.Errorf("unknown merge policy %q", policy)
	}

	rep := RestoreReport{Loaded: len(snap.History), Policy: policy}

	valid := make([]Observation, 0, len(snap.History))
	for _, o := range snap.History {
		if o.StrategyIndex < 0 || o.StrategyIndex >= len(s.strategies) ||
			len(o.Features) != s.cfg.FeatureDim || !allFinite(o.Features) || !finite(o.Reward) {
			rep.Skipped++
			continue
		}
		valid = append(valid, Observation{
			Features:      append([]float64(nil), o.Features...),
			StrategyIndex: o.StrategyIndex,
			Reward:        o.Reward,
		})
	}

	adoptLearned := false
	switch policy {
	case Overwrite:
		s.history = valid
		s.scaler = nil
		s.trained = false
		s.model.Reset()
		rep.Appended = len(valid)
		adoptLearned = true

	case MergeDedup:
		adoptLearned = len(s.history) == 0
		seen := make(map[string]struct{}, len(s.history))
		for _, o := range s.history {
			seen[vectorKey(o.Features)] = struct{}{}
		}
		for _, o := range valid {
			if _, dup := seen[vectorKey(o.Features)]; dup {
				rep.Skipped++
				continue
			}
			s.history = append(s.history, o)
			rep.Appended++
		}
	}

	adopted := false
	if adoptLearned && rep.Skipped == 0 {
		adopted = s.adopt(snap)
	}

	// Adopted parameters already cover every observation in memory.
	stale := rep.Appended > 0 && !adopted
	if len(s.history) >= s.cfg.WarmupThreshold && (!s.trained || stale) {
		rep.Retrain = true
		if err := s.relearn(); err != nil {
			s.trained = false
			s.logger.Warn("refit after restore failed", zap.Error(err))
		}
	}

	s.logger.Info("state restored",
		zap.String("policy", string(policy)),
		zap.Int("loaded", rep.Loaded),
		zap.Int("appended", rep.Appended),
		zap.Int("skipped", rep.Skipped),
		zap.Int("samples", len(s.history)),
		zap.Bool("trained", s.trained))
	return rep, nil
}

// adopt installs saved scaler and model parameters when they fit, and
// reports whether the model parameters were taken.
func (s *Selector) adopt(snap Snapshot) bool {
	if snap.Scaler != nil && len(snap.Scaler.Mean) == s.cfg.FeatureDim && snap.Scaler.validate() == nil {
		s.scaler = snap.Scaler.clone()
	}
	if s.scaler == nil || snap.Model == nil || !snap.Trained || !s.model.Incremental() ||
		snap.ModelKind != s.model.Kind() || len(snap.Model.Coef) != s.cfg.FeatureDim+1 ||
		len(s.history) < s.cfg.WarmupThreshold {
		return false
	}
	if err := s.model.SetParams(*snap.Model); err != nil {
		s.logger.Warn("ignoring saved model parameters", zap.Error(err))
		return false
	}
	s.trained = true
	return true
}

func (s *Selector) relearn() (err error) {
	defer recoverInto(&err)
	if s.scaler == nil {
		if err := s.refitScaler(); err != nil {
			return err
		}
	}
	return s.retrain()
}

func vectorKey(v []float64) string {
	var b strings.Builder
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%x", math.Float64bits(f))
	}
	return b.String()
}
