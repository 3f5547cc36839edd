package engine

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// RidgeRegressor is a batch linear model solved in closed form. The
// intercept is not penalised.
type RidgeRegressor struct {
	alpha  float64
	params *Params
}

// NewRidgeRegressor creates an untrained ridge model with penalty alpha.
func NewRidgeRegressor(alpha float64) *RidgeRegressor {
	if alpha <= 0 {
		alpha = 1.0
	}
	return &RidgeRegressor{alpha: alpha}
}

func (m *RidgeRegressor) Kind() string      { return KindRidge }
func (m *RidgeRegressor) Incremental() bool { return false }
func (m *RidgeRegressor) Reset()            { m.params = nil }

func (m *RidgeRegressor) Predict(rows [][]float64) ([]float64, error) {
	if m.params == nil {
		return nil, fmt.Errorf("ridge: %w", ErrNotFitted)
	}
	out := make([]float64, len(rows))
	for i, row := range rows {
		y, err := m.params.predict(row)
		if err != nil {
			return nil, err
		}
		out[i] = y
	}
	return out, nil
}

// Fit solves (XcᵀXc + αI)w = Xcᵀyc on centred data by Cholesky
// factorisation, then recovers the intercept from the means.
func (m *RidgeRegressor) Fit(rows [][]float64, targets []float64) error {
	if len(rows) == 0 {
		return fmt.Errorf("%w: no samples", ErrModelFit)
	}
	if len(rows) != len(targets) {
		return fmt.Errorf("%w: %d rows, %d targets", ErrDimension, len(rows), len(targets))
	}
	d := len(rows[0])
	if d == 0 {
		return fmt.Errorf("%w: empty rows", ErrDimension)
	}
	for _, row := range rows {
		if len(row) != d {
			return fmt.Errorf("%w: ragged rows", ErrDimension)
		}
		if !allFinite(row) {
			return fmt.Errorf("%w: non-finite sample", ErrModelFit)
		}
	}
	if !allFinite(targets) {
		return fmt.Errorf("%w: non-finite target", ErrModelFit)
	}

	n := len(rows)
	x := mat.NewDense(n, d, nil)
	for i, row := range rows {
		x.SetRow(i, row)
	}
	xMean := make([]float64, d)
	for j := range xMean {
		xMean[j] = stat.Mean(mat.Col(nil, j, x), nil)
	}
	yMean := stat.Mean(targets, nil)

	xc := mat.NewDense(n, d, nil)
	xc.Apply(func(_, j int, v float64) float64 { return v - xMean[j] }, x)
	yc := mat.NewVecDense(n, nil)
	for i, t := range targets {
		yc.SetVec(i, t-yMean)
	}

	var gram mat.SymDense
	gram.SymOuterK(1, xc.T())
	for j := 0; j < d; j++ {
		gram.SetSym(j, j, gram.At(j, j)+m.alpha)
	}
	var rhs mat.VecDense
	rhs.MulVec(xc.T(), yc)

	var chol mat.Cholesky
	if !chol.Factorize(&gram) {
		return fmt.Errorf("%w: %w", ErrModelFit, ErrSingularModel)
	}
	var w mat.VecDense
	if err := chol.SolveVecTo(&w, &rhs); err != nil {
		return fmt.Errorf("%w: %w", ErrModelFit, err)
	}
	coef := make([]float64, d)
	for j := range coef {
		coef[j] = w.AtVec(j)
	}

	intercept := yMean
	for j := range coef {
		intercept -= coef[j] * xMean[j]
	}

	p := Params{Coef: coef, Intercept: intercept}
	if err := p.validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrModelFit, err)
	}
	m.params = &p
	return nil
}

// PartialUpdate is not supported by a batch model.
func (m *RidgeRegressor) PartialUpdate([]float64, float64) error {
	return fmt.Errorf("%w: ridge model requires a full refit", ErrModelFit)
}

func (m *RidgeRegressor) Params() *Params {
	if m.params == nil {
		return nil
	}
	p := m.params.clone()
	return &p
}

func (m *RidgeRegressor) SetParams(p Params) error {
	if err := p.validate(); err != nil {
		return err
	}
	c := p.clone()
	m.params = &c
	return nil
}
