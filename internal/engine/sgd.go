package engine

import "fmt"

// SGDRegressor is a linear model trained by stochastic gradient descent on
// squared loss with an L2 penalty and a constant learning rate.
type SGDRegressor struct {
	eta    float64
	alpha  float64
	params *Params
}

// NewSGDRegressor creates an untrained SGD model.
func NewSGDRegressor(eta, alpha float64) *SGDRegressor {
	if eta <= 0 {
		eta = 0.01
	}
	if alpha < 0 {
		alpha = 0
	}
	return &SGDRegressor{eta: eta, alpha: alpha}
}

func (m *SGDRegressor) Kind() string      { return KindSGD }
func (m *SGDRegressor) Incremental() bool { return true }
func (m *SGDRegressor) Reset()            { m.params = nil }

func (m *SGDRegressor) Predict(rows [][]float64) ([]float64, error) {
	if m.params == nil {
		return nil, fmt.Errorf("sgd: %w", ErrNotFitted)
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

// Fit resets the model and makes a single pass over the samples in order.
func (m *SGDRegressor) Fit(rows [][]float64, targets []float64) error {
	if len(rows) != len(targets) {
		return fmt.Errorf("%w: %d rows, %d targets", ErrDimension, len(rows), len(targets))
	}
	m.Reset()
	for i, row := range rows {
		if err := m.PartialUpdate(row, targets[i]); err != nil {
			return err
		}
	}
	return nil
}

// PartialUpdate applies one gradient step. A step that leaves non-finite
// weights is rejected and the previous weights are kept.
func (m *SGDRegressor) PartialUpdate(row []float64, target float64) error {
	if !allFinite(row) || !finite(target) {
		return fmt.Errorf("%w: non-finite sample", ErrModelFit)
	}
	if m.params == nil {
		m.params = &Params{Coef: make([]float64, len(row))}
	}
	if len(row) != len(m.params.Coef) {
		return fmt.Errorf("%w: row has %d values, model expects %d", ErrModelCorrupt, len(row), len(m.params.Coef))
	}

	next := m.params.clone()
	pred, _ := next.predict(row)
	grad := pred - target

	decay := 1 - m.eta*m.alpha
	for i, v := range row {
		next.Coef[i] = next.Coef[i]*decay - m.eta*grad*v
	}
	next.Intercept -= m.eta * grad

	if err := next.validate(); err != nil {
		return err
	}
	m.params = &next
	return nil
}

func (m *SGDRegressor) Params() *Params {
	if m.params == nil {
		return nil
	}
	p := m.params.clone()
	return &p
}

func (m *SGDRegressor) SetParams(p Params) error {
	if err := p.validate(); err != nil {
		return err
	}
	c := p.clone()
	m.params = &c
	return nil
}
