// Package reward scores a generated review. Every review gets a deterministic
// heuristic score; when a judge is configured its structured evaluation is
// blended in. Scoring never fails: judge problems degrade to the heuristic.
package reward

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Yates-Labs/prselect/internal/textutil"
)

var (
	// ErrJudgeUnavailable wraps failures of the judge call itself.
	ErrJudgeUnavailable = errors.New("judge unavailable")
)

const (
	judgedWeight    = 0.7
	heuristicWeight = 0.3
)

// Judge evaluates a review against the change it describes and returns the
// evaluator's raw text. Inputs arrive already truncated.
type Judge interface {
	Evaluate(ctx context.Context, diff, review, static, retrieved string) (string, error)
}

// Aux is the auxiliary material the review was produced with.
type Aux struct {
	Static  string
	Context string
}

// Result is the outcome of scoring one review.
type Result struct {
	Reward         float64    `json:"reward"`
	HeuristicScore float64    `json:"heuristic_score"`
	JudgedScore    *float64   `json:"judged_score"`
	Heuristics     Heuristics `json:"heuristics"`
	Judgment       *Judgment  `json:"judgment,omitempty"`
}

// Scorer combines heuristic and judged scores.
type Scorer struct {
	judge  Judge
	logger *zap.Logger
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithLogger sets the scorer's logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scorer) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewScorer creates a scorer. A nil judge means heuristic-only scoring.
func NewScorer(judge Judge, opts ...Option) *Scorer {
	s := &Scorer{judge: judge, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score rates review for the given diff. The reward is
// round(0.7*judged + 0.3*heuristic, 2), or round(heuristic, 2) when the
// judge is absent, fails, or returns nothing usable.
func (s *Scorer) Score(ctx context.Context, review, diff string, aux Aux) Result {
	heur := ComputeHeuristics(review)
	heurScore := heur.Score()

	res := Result{
		Reward:         round2(heurScore),
		HeuristicScore: round2(heurScore),
		Heuristics:     heur,
	}
	if s.judge == nil {
		return res
	}

	judgment, err := s.evaluate(ctx, review, diff, aux)
	res.Judgment = &judgment
	if err != nil {
		s.logger.Warn("judge evaluation failed, using heuristic score",
			zap.Error(err),
			zap.Float64("heuristic_score", res.HeuristicScore))
		return res
	}

	judged := judgment.Score()
	res.JudgedScore = &judged
	res.Reward = round2(judgedWeight*judged + heuristicWeight*heurScore)
	return res
}

func (s *Scorer) evaluate(ctx context.Context, review, diff string, aux Aux) (j Judgment, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrJudgeUnavailable, r)
			j = Judgment{Error: err.Error()}
		}
	}()

	raw, err := s.judge.Evaluate(ctx,
		textutil.Truncate(diff, textutil.MaxDiffChars),
		textutil.Truncate(review, textutil.MaxReviewChars),
		textutil.Truncate(aux.Static, textutil.MaxStaticChars),
		textutil.Truncate(aux.Context, textutil.MaxContextChars),
	)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrJudgeUnavailable, err)
		return Judgment{Error: err.Error()}, err
	}

	return ParseJudgment(raw)
}
