// Package orchestrator drives the per-input review loop: fetch a diff,
// extract features, select a strategy, generate and score a review, feed
// the reward back to the selector and persist its state.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/Yates-Labs/prselect/internal/engine"
	"github.com/Yates-Labs/prselect/internal/features"
	"github.com/Yates-Labs/prselect/internal/narrative"
	"github.com/Yates-Labs/prselect/internal/output"
	"github.com/Yates-Labs/prselect/internal/reward"
	"github.com/Yates-Labs/prselect/internal/state"
)

var (
	ErrFetch    = errors.New("failed to fetch diff")
	ErrSelect   = errors.New("strategy selection failed")
	ErrGenerate = errors.New("review generation failed")
	ErrObserve  = errors.New("failed to record outcome")
)

// DiffSource returns the unified diff for an input.
type DiffSource interface {
	FetchDiff(ctx context.Context, in Input) (string, error)
}

// Generator produces a review with the named strategy.
type Generator interface {
	Generate(ctx context.Context, diff, strategy string, rc narrative.ReviewContext) (*narrative.Review, error)
}

// Scorer turns a review into a reward.
type Scorer interface {
	Score(ctx context.Context, review, diff string, aux reward.Aux) reward.Result
}

// ContextProvider gathers auxiliary review context. On error the returned
// context is still used.
type ContextProvider interface {
	Gather(ctx context.Context, diff string) (narrative.ReviewContext, error)
}

// Publisher posts a finished review.
type Publisher interface {
	Publish(ctx context.Context, in Input, body string) (bool, error)
}

// ResultWriter persists per-input records.
type ResultWriter interface {
	Write(r output.Record) (jsonPath, mdPath string, err error)
}

// Outcome is the result of processing one input.
type Outcome struct {
	Input     Input
	Selection engine.Selection
	Review    *narrative.Review
	Score     reward.Result
	Record    output.Record
	Published bool
	Elapsed   time.Duration
}

// Failure records an input that could not be processed.
type Failure struct {
	Input Input
	Err   error
}

// BatchReport summarises RunBatch.
type BatchReport struct {
	Outcomes []Outcome
	Failures []Failure
	Saves    int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithContextProvider enables static analysis and retrieval.
func WithContextProvider(cp ContextProvider) Option {
	return func(p *Pipeline) { p.context = cp }
}

// WithPublisher posts each review.
func WithPublisher(pub Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

// WithResultWriter writes a record per input.
func WithResultWriter(w ResultWriter) Option {
	return func(p *Pipeline) { p.writer = w }
}

// WithStore persists selector state.
func WithStore(s state.Store) Option {
	return func(p *Pipeline) { p.store = s }
}

// WithSaveEvery sets how many processed inputs pass between saves in
// RunBatch.
func WithSaveEvery(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.saveEvery = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// Pipeline runs inputs through selection, generation, scoring and learning.
// It is not safe for concurrent use: the selector has a single writer.
type Pipeline struct {
	source    DiffSource
	selector  *engine.Selector
	generator Generator
	scorer    Scorer

	context   ContextProvider
	publisher Publisher
	writer    ResultWriter
	store     state.Store

	saveEvery int
	logger    *zap.Logger
}

// New creates a pipeline. source, selector, generator and scorer are
// required.
func New(source DiffSource, selector *engine.Selector, generator Generator, scorer Scorer, opts ...Option) (*Pipeline, error) {
	if source == nil || selector == nil || generator == nil || scorer == nil {
		return nil, fmt.Errorf("source, selector, generator and scorer are required")
	}
	p := &Pipeline{
		source:    source,
		selector:  selector,
		generator: generator,
		scorer:    scorer,
		saveEvery: 2,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Selector exposes the underlying selector.
func (p *Pipeline) Selector() *engine.Selector { return p.selector }

// LoadState restores persisted selector state. Missing, corrupt or
// incompatible state leaves the selector as it is and is not an error.
func (p *Pipeline) LoadState(ctx context.Context) (engine.RestoreReport, error) {
	if p.store == nil {
		return engine.RestoreReport{}, nil
	}

	doc, err := p.store.Load(ctx)
	switch {
	case errors.Is(err, state.ErrNotFound):
		p.logger.Info("no saved state, starting fresh")
		return engine.RestoreReport{}, nil
	case err != nil:
		p.logger.Warn("could not load saved state, starting fresh", zap.Error(err))
		return engine.RestoreReport{}, nil
	}

	if len(doc.FeatureNames) > 0 && !slices.Equal(doc.FeatureNames, features.Names) {
		p.logger.Warn("saved state uses a different feature layout, starting fresh",
			zap.Strings("saved", doc.FeatureNames))
		return engine.RestoreReport{}, nil
	}

	report, err := p.selector.Restore(doc.Snapshot(p.selector.Strategies()), "")
	if err != nil {
		return report, fmt.Errorf("failed to restore state: %w", err)
	}
	p.logger.Info("restored state",
		zap.Int("loaded", report.Loaded),
		zap.Int("appended", report.Appended),
		zap.Int("skipped", report.Skipped),
		zap.Bool("retrained", report.Retrain),
		zap.Int("samples", p.selector.SampleCount()))
	return report, nil
}

// SaveState persists selector state.
func (p *Pipeline) SaveState(ctx context.Context) error {
	if p.store == nil {
		return nil
	}
	doc := state.FromSnapshot(p.selector.Snapshot(), p.selector.Strategies(), features.Names)
	if err := p.store.Save(ctx, doc); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	p.logger.Debug("saved state", zap.Int("samples", doc.SampleCount))
	return nil
}

// ProcessOne reviews a single input and feeds its reward to the selector.
// Result writing and publishing failures are logged, not returned.
func (p *Pipeline) ProcessOne(ctx context.Context, in Input) (*Outcome, error) {
	start := time.Now()
	log := p.logger.With(zap.String("input", in.ID))

	diff, err := p.source.FetchDiff(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetch, in, err)
	}

	feats := features.Extract(diff)
	x := feats.Vector()

	sel, err := p.selector.Select(x)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSelect, err)
	}
	log.Info("selected strategy", zap.String("strategy", sel.Strategy), zap.String("mode", string(sel.Mode)))

	rc := p.gather(ctx, diff, log)

	rev, err := p.generator.Generate(ctx, diff, sel.Strategy, rc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s with %s: %w", ErrGenerate, in, sel.Strategy, err)
	}

	retrieved := rc.Text()
	score := p.scorer.Score(ctx, rev.Text, diff, reward.Aux{Static: rc.Static, Context: retrieved})

	if err := p.selector.Observe(x, sel.Strategy, score.Reward); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrObserve, err)
	}
	log.Info("scored review",
		zap.String("strategy", sel.Strategy),
		zap.Float64("reward", score.Reward),
		zap.Float64("heuristic", score.HeuristicScore),
		zap.Bool("judged", score.JudgedScore != nil),
		zap.Int("samples", p.selector.SampleCount()))

	out := &Outcome{
		Input:     in,
		Selection: sel,
		Review:    rev,
		Score:     score,
		Record: output.Record{
			Input:            in.ID,
			Strategy:         sel.Strategy,
			Reward:           score.Reward,
			HeuristicScore:   score.HeuristicScore,
			JudgedScore:      score.JudgedScore,
			Features:         feats,
			Heuristics:       score.Heuristics,
			Judgment:         score.Judgment,
			SampleCount:      p.selector.SampleCount(),
			Trained:          p.selector.Trained(),
			SelectionMode:    string(sel.Mode),
			Predictions:      sel.Predictions,
			Model:            rev.Model,
			GeneratedAt:      rev.GeneratedAt.UTC(),
			Review:           rev.Text,
			StaticOutput:     rc.Static,
			RetrievedContext: retrieved,
		},
	}

	if p.writer != nil {
		if jsonPath, mdPath, err := p.writer.Write(out.Record); err != nil {
			log.Warn("failed to write results", zap.Error(err))
		} else {
			log.Debug("wrote results", zap.String("json", jsonPath), zap.String("markdown", mdPath))
		}
	}

	if p.publisher != nil {
		posted, err := p.publisher.Publish(ctx, in, CommentBody(sel.Strategy, score.Reward, rev.Text))
		if err != nil {
			log.Warn("failed to publish review", zap.Error(err))
		}
		out.Published = posted
	}

	out.Elapsed = time.Since(start)
	return out, nil
}

// RunBatch processes inputs in order. A failing input is recorded and the
// loop continues. State is saved every saveEvery successful inputs and
// once more at the end; only the final save error is returned.
func (p *Pipeline) RunBatch(ctx context.Context, inputs []Input) (BatchReport, error) {
	var report BatchReport

	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			report.Failures = append(report.Failures, Failure{Input: in, Err: err})
			continue
		}

		out, err := p.ProcessOne(ctx, in)
		if err != nil {
			p.logger.Error("input failed", zap.String("input", in.ID), zap.Error(err))
			report.Failures = append(report.Failures, Failure{Input: in, Err: err})
			continue
		}
		report.Outcomes = append(report.Outcomes, *out)

		if p.store != nil && len(report.Outcomes)%p.saveEvery == 0 {
			if err := p.SaveState(ctx); err != nil {
				p.logger.Warn("periodic save failed", zap.Error(err))
			} else {
				report.Saves++
			}
		}
	}

	if p.store == nil {
		return report, nil
	}
	// Use a fresh context so a cancelled run still persists what it learned.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := p.SaveState(saveCtx); err != nil {
		return report, err
	}
	report.Saves++
	return report, nil
}

// Comparison is one strategy's result in CompareStrategies.
type Comparison struct {
	Strategy string
	Review   *narrative.Review
	Score    reward.Result
	Err      error
}

// CompareStrategies runs every catalog strategy on one input. Successful
// results are returned ascending by reward, followed by failures. With
// train set each successful outcome is also observed by the selector.
func (p *Pipeline) CompareStrategies(ctx context.Context, in Input, train bool) ([]Comparison, error) {
	diff, err := p.source.FetchDiff(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetch, in, err)
	}
	x := features.Extract(diff).Vector()
	rc := p.gather(ctx, diff, p.logger.With(zap.String("input", in.ID)))
	retrieved := rc.Text()

	var ok, failed []Comparison
	for _, name := range p.selector.Strategies() {
		rev, err := p.generator.Generate(ctx, diff, name, rc)
		if err != nil {
			p.logger.Warn("strategy failed", zap.String("strategy", name), zap.Error(err))
			failed = append(failed, Comparison{Strategy: name, Err: err})
			continue
		}
		score := p.scorer.Score(ctx, rev.Text, diff, reward.Aux{Static: rc.Static, Context: retrieved})
		ok = append(ok, Comparison{Strategy: name, Review: rev, Score: score})

		if train {
			if err := p.selector.Observe(x, name, score.Reward); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrObserve, err)
			}
		}
	}

	sort.SliceStable(ok, func(i, j int) bool { return ok[i].Score.Reward < ok[j].Score.Reward })
	return append(ok, failed...), nil
}

func (p *Pipeline) gather(ctx context.Context, diff string, log *zap.Logger) narrative.ReviewContext {
	if p.context == nil {
		return narrative.ReviewContext{}
	}
	rc, err := p.context.Gather(ctx, diff)
	if err != nil {
		log.Warn("continuing with partial review context", zap.Error(err))
	}
	return rc
}
