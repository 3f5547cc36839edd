package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yates-Labs/prselect/internal/engine"
	"github.com/Yates-Labs/prselect/internal/features"
	"github.com/Yates-Labs/prselect/internal/narrative"
	"github.com/Yates-Labs/prselect/internal/output"
	"github.com/Yates-Labs/prselect/internal/reward"
	"github.com/Yates-Labs/prselect/internal/state"
	"github.com/Yates-Labs/prselect/internal/strategy"
)

const pipelineDiff = `diff --git a/handler.py b/handler.py
--- a/handler.py
+++ b/handler.py
@@ -1,3 +1,6 @@
 def handle(req):
-    return None
+    try:
+        return process(req)
+    except Exception:
+        return None
`

// mapSource serves diffs from memory and fails for unknown inputs.
type mapSource map[string]string

func (m mapSource) FetchDiff(_ context.Context, in Input) (string, error) {
	diff, ok := m[in.ID]
	if !ok {
		return "", errors.New("not found")
	}
	return diff, nil
}

type fakeProvider struct {
	rc  narrative.ReviewContext
	err error
}

func (f fakeProvider) Gather(context.Context, string) (narrative.ReviewContext, error) {
	return f.rc, f.err
}

type fakePublisher struct {
	mu     sync.Mutex
	bodies []string
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, _ Input, body string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	f.bodies = append(f.bodies, body)
	return true, nil
}

// failingGenerator delegates to Generator except for one diff.
type failingGenerator struct {
	Generator
	failDiff string
}

func (g failingGenerator) Generate(ctx context.Context, diff, strategy string, rc narrative.ReviewContext) (*narrative.Review, error) {
	if diff == g.failDiff {
		return nil, errors.New("model unavailable")
	}
	return g.Generator.Generate(ctx, diff, strategy, rc)
}

type pipelineFixture struct {
	catalog  *strategy.Catalog
	selector *engine.Selector
	llm      *narrative.MockLLM
	store    *state.FileStore
	outDir   string
}

func newFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	catalog := strategy.Default()
	cfg := engine.DefaultConfig()
	cfg.ExplorationRate = 0
	sel, err := engine.New(catalog.Names(), cfg)
	require.NoError(t, err)

	dir := t.TempDir()
	return &pipelineFixture{
		catalog:  catalog,
		selector: sel,
		llm:      &narrative.MockLLM{},
		store:    state.NewFileStore(filepath.Join(dir, "state.json")),
		outDir:   filepath.Join(dir, "results"),
	}
}

func (f *pipelineFixture) pipeline(t *testing.T, source DiffSource, opts ...Option) *Pipeline {
	t.Helper()
	gen := narrative.NewGenerator(f.llm, narrative.DefaultLLMConfig(), f.catalog)
	scorer := reward.NewScorer(narrative.NewJudge(f.llm))
	p, err := New(source, f.selector, gen, scorer, opts...)
	require.NoError(t, err)
	return p
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestProcessOne(t *testing.T) {
	f := newFixture(t)
	writer, err := output.NewWriter(f.outDir)
	require.NoError(t, err)
	pub := &fakePublisher{}

	p := f.pipeline(t, mapSource{"pr-1": pipelineDiff},
		WithResultWriter(writer),
		WithPublisher(pub),
		WithContextProvider(fakeProvider{rc: narrative.ReviewContext{Static: "--- Pylint ---\nW0703 broad-except"}}),
	)

	out, err := p.ProcessOne(context.Background(), Input{ID: "pr-1"})
	require.NoError(t, err)

	assert.Equal(t, f.catalog.Names()[0], out.Selection.Strategy, "first pick is round-robin")
	assert.Equal(t, engine.ModeCold, out.Selection.Mode)
	assert.Greater(t, out.Score.Reward, 0.0)
	assert.NotNil(t, out.Score.JudgedScore)
	assert.Equal(t, 1, f.selector.SampleCount())

	assert.Equal(t, "pr-1", out.Record.Input)
	assert.Equal(t, 1, out.Record.SampleCount)
	assert.Equal(t, string(engine.ModeCold), out.Record.SelectionMode)
	assert.Equal(t, features.Extract(pipelineDiff), out.Record.Features)
	assert.Contains(t, out.Record.StaticOutput, "broad-except")

	entries, err := os.ReadDir(f.outDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "one json and one markdown file")

	assert.True(t, out.Published)
	require.Len(t, pub.bodies, 1)
	assert.Contains(t, pub.bodies[0], CommentMarker)
	assert.Contains(t, pub.bodies[0], out.Selection.Strategy)
}

func TestProcessOne_FetchFailure(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(t, mapSource{})

	_, err := p.ProcessOne(context.Background(), Input{ID: "missing"})
	assert.ErrorIs(t, err, ErrFetch)
	assert.Zero(t, f.selector.SampleCount())
}

func TestProcessOne_GenerationFailureIsNotObserved(t *testing.T) {
	f := newFixture(t)
	f.llm.Error = errors.New("rate limited")
	p := f.pipeline(t, mapSource{"pr-1": pipelineDiff})

	_, err := p.ProcessOne(context.Background(), Input{ID: "pr-1"})
	assert.ErrorIs(t, err, ErrGenerate)
	assert.Zero(t, f.selector.SampleCount())
}

func TestProcessOne_PartialContextAndSideEffectFailures(t *testing.T) {
	f := newFixture(t)
	pub := &fakePublisher{err: errors.New("forbidden")}
	p := f.pipeline(t, mapSource{"pr-1": pipelineDiff},
		WithPublisher(pub),
		WithContextProvider(fakeProvider{
			rc:  narrative.ReviewContext{Static: "static only"},
			err: errors.New("milvus unavailable"),
		}),
	)

	out, err := p.ProcessOne(context.Background(), Input{ID: "pr-1"})
	require.NoError(t, err)
	assert.Equal(t, "static only", out.Record.StaticOutput)
	assert.Empty(t, out.Record.RetrievedContext)
	assert.False(t, out.Published)
	assert.Equal(t, 1, f.selector.SampleCount())
}

func TestRunBatch_IsolatesFailuresAndSaves(t *testing.T) {
	f := newFixture(t)
	source := mapSource{"a": pipelineDiff, "c": pipelineDiff + "+# note\n", "d": pipelineDiff + "+# more\n"}
	p := f.pipeline(t, source, WithStore(f.store), WithSaveEvery(2))

	inputs := []Input{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}}
	report, err := p.RunBatch(context.Background(), inputs)
	require.NoError(t, err)

	assert.Len(t, report.Outcomes, 3)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "b", report.Failures[0].Input.ID)
	assert.Equal(t, 2, report.Saves, "one periodic save plus the final one")

	names := f.catalog.Names()
	for i, out := range report.Outcomes {
		assert.Equal(t, names[i%len(names)], out.Selection.Strategy, "cold start rotates through the catalog")
	}

	doc, err := f.store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, doc.SampleCount)
	assert.Equal(t, names, doc.Strategies)
	assert.Equal(t, features.Names, doc.FeatureNames)
}

func TestRunBatch_GenerationFailureIsSkipped(t *testing.T) {
	f := newFixture(t)
	broken := pipelineDiff + "+# broken\n"
	source := mapSource{"one": pipelineDiff, "two": broken, "three": pipelineDiff + "+# third\n"}
	gen := failingGenerator{
		Generator: narrative.NewGenerator(f.llm, narrative.DefaultLLMConfig(), f.catalog),
		failDiff:  broken,
	}
	p, err := New(source, f.selector, gen, reward.NewScorer(narrative.NewJudge(f.llm)), WithStore(f.store))
	require.NoError(t, err)

	inputs := []Input{{ID: "one"}, {ID: "two"}, {ID: "three"}}
	report, err := p.RunBatch(context.Background(), inputs)
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 2)
	assert.Equal(t, "one", report.Outcomes[0].Input.ID)
	assert.Equal(t, "three", report.Outcomes[1].Input.ID)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "two", report.Failures[0].Input.ID)
	assert.ErrorIs(t, report.Failures[0].Err, ErrGenerate)
	assert.Equal(t, 2, f.selector.SampleCount())

	names := f.catalog.Names()
	assert.Equal(t, names[0], report.Outcomes[0].Selection.Strategy)
	assert.Equal(t, names[1], report.Outcomes[1].Selection.Strategy, "the failed input does not advance the rotation")

	doc, err := f.store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, doc.SampleCount)
	require.Len(t, doc.History, 2)
	assert.Equal(t, 0, doc.History[0].StrategyIndex)
	assert.Equal(t, 1, doc.History[1].StrategyIndex)
}

func TestRunBatch_CancelledContextStillSaves(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(t, mapSource{"a": pipelineDiff}, WithStore(f.store))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := p.RunBatch(ctx, []Input{{ID: "a"}})
	require.NoError(t, err)
	assert.Empty(t, report.Outcomes)
	require.Len(t, report.Failures, 1)
	assert.ErrorIs(t, report.Failures[0].Err, context.Canceled)
	assert.Equal(t, 1, report.Saves)
}

func TestLoadState_RoundTrip(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(t, mapSource{"a": pipelineDiff}, WithStore(f.store))
	_, err := p.RunBatch(context.Background(), []Input{{ID: "a"}})
	require.NoError(t, err)

	g := newFixture(t)
	g.store = f.store
	q := g.pipeline(t, mapSource{}, WithStore(g.store))
	report, err := q.LoadState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Loaded)
	assert.Equal(t, 1, g.selector.SampleCount())
}

func TestLoadState_MissingCorruptOrIncompatible(t *testing.T) {
	ctx := context.Background()

	t.Run("missing", func(t *testing.T) {
		f := newFixture(t)
		p := f.pipeline(t, mapSource{}, WithStore(f.store))
		_, err := p.LoadState(ctx)
		require.NoError(t, err)
		assert.Zero(t, f.selector.SampleCount())
	})

	t.Run("corrupt", func(t *testing.T) {
		f := newFixture(t)
		path := filepath.Join(t.TempDir(), "state.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
		p := f.pipeline(t, mapSource{}, WithStore(state.NewFileStore(path)))
		_, err := p.LoadState(ctx)
		require.NoError(t, err)
		assert.Zero(t, f.selector.SampleCount())
	})

	t.Run("different feature layout", func(t *testing.T) {
		f := newFixture(t)
		x := make([]float64, features.Len)
		require.NoError(t, f.store.Save(ctx, state.Document{
			Version:      state.DocumentVersion,
			History:      []engine.Observation{{Features: x, StrategyIndex: 0, Reward: 5}},
			SampleCount:  1,
			Strategies:   f.catalog.Names(),
			FeatureNames: []string{"legacy"},
		}))
		p := f.pipeline(t, mapSource{}, WithStore(f.store))
		_, err := p.LoadState(ctx)
		require.NoError(t, err)
		assert.Zero(t, f.selector.SampleCount())
	})
}

func TestCompareStrategies(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(t, mapSource{"pr-1": pipelineDiff})

	results, err := p.CompareStrategies(context.Background(), Input{ID: "pr-1"}, false)
	require.NoError(t, err)
	require.Len(t, results, f.catalog.Len())
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i-1].Score.Reward, results[i].Score.Reward)
	}
	assert.Zero(t, f.selector.SampleCount(), "comparison without training leaves the selector alone")

	trained, err := p.CompareStrategies(context.Background(), Input{ID: "pr-1"}, true)
	require.NoError(t, err)
	assert.Len(t, trained, f.catalog.Len())
	assert.Equal(t, f.catalog.Len(), f.selector.SampleCount())
}

func TestCompareStrategies_FailuresLast(t *testing.T) {
	f := newFixture(t)
	f.llm.Error = errors.New("down")
	p := f.pipeline(t, mapSource{"pr-1": pipelineDiff})

	results, err := p.CompareStrategies(context.Background(), Input{ID: "pr-1"}, true)
	require.NoError(t, err)
	for _, r := range results {
		assert.Error(t, r.Err)
		assert.Nil(t, r.Review)
	}
	assert.Zero(t, f.selector.SampleCount())
}
