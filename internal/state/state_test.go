package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yates-Labs/prselect/internal/engine"
)

var strategies = []string{"zero-shot", "few-shot", "meta"}

func trainedSelector(t *testing.T) *engine.Selector {
	t.Helper()
	cfg := engine.DefaultConfig()
	cfg.FeatureDim = 3
	cfg.ExplorationRate = 0
	s, err := engine.New(strategies, cfg)
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		x := []float64{float64(i), float64(i % 2), float64(i * i)}
		require.NoError(t, s.Observe(x, strategies[i%3], float64(i)))
	}
	require.True(t, s.Trained())
	return s
}

func newSelector(t *testing.T) *engine.Selector {
	t.Helper()
	cfg := engine.DefaultConfig()
	cfg.FeatureDim = 3
	cfg.ExplorationRate = 0
	s, err := engine.New(strategies, cfg)
	require.NoError(t, err)
	return s
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	orig := trainedSelector(t)
	doc := FromSnapshot(orig.Snapshot(), strategies, []string{"a", "b", "c"})

	data, err := Encode(doc)
	require.NoError(t, err)
	decoded, err := Decode(data)
	require.NoError(t, err)

	restored := newSelector(t)
	_, err = restored.Restore(decoded.Snapshot(strategies), engine.MergeDedup)
	require.NoError(t, err)

	assert.Equal(t, orig.SampleCount(), restored.SampleCount())
	assert.Equal(t, orig.Trained(), restored.Trained())
	assert.Equal(t, orig.Snapshot().Model, restored.Snapshot().Model)
	assert.Equal(t, orig.Snapshot().Scaler, restored.Snapshot().Scaler)

	for _, x := range [][]float64{{0, 0, 0}, {5, 1, 25}, {2, 0, 9}} {
		a, err := orig.Select(x)
		require.NoError(t, err)
		b, err := restored.Select(x)
		require.NoError(t, err)
		assert.Equal(t, a.Index, b.Index, "selection for %v", x)
	}
}

func TestDecodeCorrupt(t *testing.T) {
	for _, data := range []string{"", "{", `{"version": 99}`, `{"sample_count": -1}`, `[1,2,3]`} {
		_, err := Decode([]byte(data))
		assert.ErrorIs(t, err, ErrCorrupt, "input %q", data)
	}
}

func TestSnapshotRemapsChangedCatalog(t *testing.T) {
	doc := Document{
		Strategies: []string{"zero-shot", "retired", "meta"},
		History: []engine.Observation{
			{Features: []float64{1, 1, 1}, StrategyIndex: 0, Reward: 1},
			{Features: []float64{2, 2, 2}, StrategyIndex: 1, Reward: 2},
			{Features: []float64{3, 3, 3}, StrategyIndex: 2, Reward: 3},
		},
		Trained:     true,
		ModelParams: &engine.Params{Coef: []float64{1, 1, 1, 1}},
	}

	snap := doc.Snapshot([]string{"meta", "zero-shot"})
	require.Len(t, snap.History, 3)
	assert.Equal(t, 1, snap.History[0].StrategyIndex)
	assert.Equal(t, -1, snap.History[1].StrategyIndex)
	assert.Equal(t, 0, snap.History[2].StrategyIndex)
	assert.Nil(t, snap.Model)
	assert.False(t, snap.Trained)
	// The document itself is untouched.
	assert.Equal(t, 1, doc.History[1].StrategyIndex)
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "selector_state.json")
	store := NewFileStore(path)

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	doc := FromSnapshot(trainedSelector(t).Snapshot(), strategies, nil)
	require.NoError(t, store.Save(ctx, doc))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, doc.SampleCount, loaded.SampleCount)
	assert.Equal(t, doc.History, loaded.History)
	assert.Equal(t, doc.ModelParams, loaded.ModelParams)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files left behind")

	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))
	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	sel := trainedSelector(t)
	first := FromSnapshot(sel.Snapshot(), strategies, nil)
	require.NoError(t, store.Save(ctx, first))

	require.NoError(t, sel.Observe([]float64{9, 1, 81}, strategies[0], 7))
	second := FromSnapshot(sel.Snapshot(), strategies, nil)
	require.NoError(t, store.Save(ctx, second))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.SampleCount, loaded.SampleCount)

	versions, err := store.Versions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, versions[1].ID, versions[0].ParentID)
	assert.Equal(t, second.SampleCount, versions[0].SampleCount)
	assert.True(t, versions[0].Trained)
}

func TestOpen(t *testing.T) {
	s, err := Open(BackendFile, filepath.Join(t.TempDir(), "s.json"))
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	_, err = Open("redis", "x")
	assert.Error(t, err)
}
