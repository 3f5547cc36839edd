package reward

import (
	"math"
)

// Dimension weights for the judged score. They sum to 1.
var DimensionWeights = map[string]float64{
	"clarity":       0.18,
	"usefulness":    0.28,
	"depth":         0.20,
	"actionability": 0.24,
	"positivity":    0.10,
}

// dimensionOrder fixes iteration order so sums are reproducible.
var dimensionOrder = []string{"clarity", "usefulness", "depth", "actionability", "positivity"}

// neutralDimension stands in for a missing or non-numeric dimension.
const neutralDimension = 5.0

// Judgment is the structured evaluation returned by the judge, or an error
// record keeping the raw text when no usable evaluation was obtained.
type Judgment struct {
	Clarity       *float64 `json:"clarity,omitempty"`
	Usefulness    *float64 `json:"usefulness,omitempty"`
	Depth         *float64 `json:"depth,omitempty"`
	Actionability *float64 `json:"actionability,omitempty"`
	Positivity    *float64 `json:"positivity,omitempty"`
	Explanation   string   `json:"explain,omitempty"`

	Error string `json:"error,omitempty"`
	Raw   string `json:"raw,omitempty"`
}

// OK reports whether the judgment can be scored.
func (j Judgment) OK() bool {
	return j.Error == ""
}

// ParseJudgment extracts a Judgment from raw evaluator output. A failure is
// returned as an error-variant Judgment together with the parse error.
func ParseJudgment(raw string) (Judgment, error) {
	obj, err := ExtractJSONObject(raw)
	if err != nil {
		return Judgment{Error: describeParseFailure(err), Raw: raw}, err
	}

	// The evaluator may report its own failure inside the object.
	if msg, ok := obj["error"]; ok {
		j := Judgment{Error: "evaluator reported error", Raw: raw}
		if s, ok := msg.(string); ok && s != "" {
			j.Error = s
		}
		return j, ErrJudgeUnavailable
	}

	j := Judgment{
		Clarity:       numeric(obj["clarity"]),
		Usefulness:    numeric(obj["usefulness"]),
		Depth:         numeric(obj["depth"]),
		Actionability: numeric(obj["actionability"]),
		Positivity:    numeric(obj["positivity"]),
	}
	for _, key := range []string{"explain", "explanation"} {
		if s, ok := obj[key].(string); ok {
			j.Explanation = s
			break
		}
	}
	return j, nil
}

// dimension returns the named score or nil.
func (j Judgment) dimension(name string) *float64 {
	switch name {
	case "clarity":
		return j.Clarity
	case "usefulness":
		return j.Usefulness
	case "depth":
		return j.Depth
	case "actionability":
		return j.Actionability
	case "positivity":
		return j.Positivity
	}
	return nil
}

// Score is the weighted mean of the dimensions on [0, 10], rounded to two
// decimals. Missing dimensions count as 5; present ones are clamped to [0, 10].
// An explicit zero is kept as zero.
func (j Judgment) Score() float64 {
	total := 0.0
	for _, name := range dimensionOrder {
		v := neutralDimension
		if p := j.dimension(name); p != nil {
			v = clamp(*p, 0, 10)
		}
		total += v * DimensionWeights[name]
	}
	return round2(total)
}

// numeric accepts JSON numbers only; anything else reads as missing.
func numeric(v any) *float64 {
	f, ok := v.(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
