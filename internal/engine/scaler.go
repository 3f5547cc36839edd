package engine

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Scaler standardises features to zero mean and unit variance. Constant
// columns get a scale of 1.
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// FitScaler computes per-column mean and population standard deviation.
func FitScaler(rows [][]float64) (*Scaler, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("scaler: %w: no samples", ErrModelFit)
	}
	d := len(rows[0])
	if d == 0 {
		return nil, fmt.Errorf("scaler: %w: empty rows", ErrDimension)
	}
	x := mat.NewDense(len(rows), d, nil)
	for i, row := range rows {
		if len(row) != d {
			return nil, fmt.Errorf("scaler: %w: ragged rows", ErrDimension)
		}
		x.SetRow(i, row)
	}

	mean := make([]float64, d)
	scale := make([]float64, d)
	col := make([]float64, len(rows))
	for j := 0; j < d; j++ {
		mat.Col(col, j, x)
		mean[j], scale[j] = stat.PopMeanStdDev(col, nil)
		if scale[j] < 1e-12 {
			scale[j] = 1
		}
	}

	s := &Scaler{Mean: mean, Scale: scale}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Transform standardises one row.
func (s *Scaler) Transform(row []float64) ([]float64, error) {
	if s == nil {
		return nil, fmt.Errorf("scaler: %w", ErrNotFitted)
	}
	if len(row) != len(s.Mean) {
		return nil, fmt.Errorf("scaler: %w: row has %d values, fitted on %d", ErrDimension, len(row), len(s.Mean))
	}
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - s.Mean[j]) / s.Scale[j]
	}
	if !allFinite(out) {
		return nil, fmt.Errorf("scaler: %w: non-finite output", ErrModelFit)
	}
	return out, nil
}

func (s *Scaler) validate() error {
	if len(s.Mean) == 0 || len(s.Mean) != len(s.Scale) {
		return fmt.Errorf("scaler: %w: mean/scale length", ErrModelCorrupt)
	}
	if !allFinite(s.Mean) || !allFinite(s.Scale) {
		return fmt.Errorf("scaler: %w: non-finite state", ErrModelCorrupt)
	}
	for _, v := range s.Scale {
		if v == 0 {
			return fmt.Errorf("scaler: %w: zero scale", ErrModelCorrupt)
		}
	}
	return nil
}

func (s *Scaler) clone() *Scaler {
	if s == nil {
		return nil
	}
	return &Scaler{
		Mean:  append([]float64(nil), s.Mean...),
		Scale: append([]float64(nil), s.Scale...),
	}
}
