package engine

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrModelFit      = errors.New("model fit failed")
	ErrModelCorrupt  = errors.New("model state corrupt")
	ErrNotFitted     = errors.New("not fitted")
	ErrDimension     = errors.New("dimension mismatch")
	ErrUnknownModel  = errors.New("unknown model kind")
	ErrSingularModel = errors.New("singular system")
)

// Model kinds.
const (
	KindSGD   = "sgd"
	KindRidge = "ridge"
)

// Model is a regressor predicting reward from a scaled feature row with the
// strategy index appended.
type Model interface {
	// Kind names the implementation, used in persisted state.
	Kind() string

	// Incremental reports whether PartialUpdate is supported. Batch models
	// are refit from the full history after every observation.
	Incremental() bool

	// Predict returns one prediction per row.
	Predict(rows [][]float64) ([]float64, error)

	// Fit trains from scratch on the given rows.
	Fit(rows [][]float64, targets []float64) error

	// PartialUpdate folds one more sample into the current parameters.
	PartialUpdate(row []float64, target float64) error

	// Reset discards all learned parameters.
	Reset()

	// Params returns a copy of the linear parameters, or nil if untrained.
	Params() *Params

	// SetParams installs previously saved parameters.
	SetParams(p Params) error
}

// Params are linear model parameters.
type Params struct {
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
}

func (p Params) clone() Params {
	return Params{Coef: append([]float64(nil), p.Coef...), Intercept: p.Intercept}
}

func (p Params) validate() error {
	if len(p.Coef) == 0 {
		return fmt.Errorf("%w: empty coefficients", ErrModelCorrupt)
	}
	if !finite(p.Intercept) || !allFinite(p.Coef) {
		return fmt.Errorf("%w: non-finite parameters", ErrModelCorrupt)
	}
	return nil
}

func (p Params) predict(row []float64) (float64, error) {
	if len(row) != len(p.Coef) {
		return 0, fmt.Errorf("%w: row has %d values, model expects %d", ErrDimension, len(row), len(p.Coef))
	}
	y := p.Intercept
	for i, v := range row {
		y += p.Coef[i] * v
	}
	return y, nil
}

// NewModel builds a model of the given kind.
func NewModel(kind string, cfg Config) (Model, error) {
	switch kind {
	case "", KindSGD:
		return NewSGDRegressor(cfg.LearningRate, cfg.L2), nil
	case KindRidge:
		return NewRidgeRegressor(cfg.RidgeAlpha), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, kind)
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func allFinite(vs []float64) bool {
	for _, v := range vs {
		if !finite(v) {
			return false
		}
	}
	return true
}
