package rag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

// mockEmbedder maps text to a 3-dimensional vector by keyword counts so
// similarity is predictable.
type mockEmbedder struct {
	calls int
	err   error
}

func (m *mockEmbedder) Embed(_ context.Context, texts []string) ([]EmbeddingRecord, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	records := make([]EmbeddingRecord, len(texts))
	for i, text := range texts {
		lower := strings.ToLower(text)
		records[i] = EmbeddingRecord{
			Text: text,
			Embedding: []float32{
				float32(strings.Count(lower, "python")),
				float32(strings.Count(lower, "test")),
				0.1,
			},
			Index: i,
			Model: "mock",
		}
	}
	return records, nil
}

func (m *mockEmbedder) GetModel() string  { return "mock" }
func (m *mockEmbedder) GetDimension() int { return 3 }

func splitOrFail(t *testing.T, text string, size, overlap int) []string {
	t.Helper()
	chunks, err := SplitText(text, size, overlap)
	if err != nil {
		t.Fatalf("SplitText() error = %v", err)
	}
	return chunks
}

func TestSplitText(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta\n", 100)

	chunks := splitOrFail(t, text, 200, 40)
	if len(chunks) < 10 {
		t.Fatalf("expected many chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 200 {
			t.Errorf("chunk %d has %d characters", i, len(c))
		}
		if !strings.HasPrefix(c, "alpha") && !strings.HasPrefix(c, "beta") &&
			!strings.HasPrefix(c, "gamma") && !strings.HasPrefix(c, "delta") {
			t.Errorf("chunk %d starts mid-word: %q", i, c[:10])
		}
	}
	if plain := splitOrFail(t, text, 200, 0); len(plain) >= len(chunks) {
		t.Errorf("overlap produced %d chunks, without overlap %d", len(chunks), len(plain))
	}

	if got := splitOrFail(t, "short text", 1000, 100); len(got) != 1 || got[0] != "short text" {
		t.Errorf("short text split = %q", got)
	}
	if got := splitOrFail(t, "   \n\n  ", 10, 2); len(got) != 0 {
		t.Errorf("whitespace split = %q", got)
	}
}

func TestSplitText_RuneBoundaries(t *testing.T) {
	text := strings.Repeat("é", 500)
	for _, c := range splitOrFail(t, text, 101, 11) {
		if !utf8.ValidString(c) {
			t.Fatalf("invalid UTF-8 chunk %q", c)
		}
		if n := utf8.RuneCountInString(c); n > 101 {
			t.Fatalf("chunk has %d characters", n)
		}
	}
}

func TestSplitText_Terminates(t *testing.T) {
	tests := []struct {
		name string
		text string
		size int
	}{
		{"rune wider than chunk", "é", 1},
		{"continuation bytes", strings.Repeat("\x80", 2000), 1000},
		{"unbroken run", strings.Repeat("x", 2500), 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			done := make(chan []string, 1)
			go func() {
				chunks, _ := SplitText(tt.text, tt.size, 0)
				done <- chunks
			}()
			select {
			case chunks := <-done:
				if len(chunks) == 0 {
					t.Error("expected at least one chunk")
				}
			case <-time.After(2 * time.Second):
				t.Fatal("SplitText did not return within 2s")
			}
		})
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	err := store.Insert(ctx, []ChunkRecord{
		{Source: "py.md", Text: "python", Embedding: []float32{1, 0, 0}},
		{Source: "test.md", Text: "tests", Embedding: []float32{0, 1, 0}},
		{Source: "mixed.md", Text: "both", Embedding: []float32{1, 1, 0}},
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := store.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 2 || got[0].Source != "py.md" || got[1].Source != "mixed.md" {
		t.Errorf("unexpected ranking: %+v", got)
	}

	if _, err := store.Search(ctx, []float32{1, 0}, 1); !errors.Is(err, ErrInvalidDimension) {
		t.Errorf("expected ErrInvalidDimension, got %v", err)
	}

	exists, _ := store.Query(ctx, []string{"py.md", "nope.md"})
	if !exists["py.md"] || exists["nope.md"] {
		t.Errorf("Query() = %v", exists)
	}

	if err := store.Delete(ctx, []string{"py.md"}); err != nil {
		t.Fatal(err)
	}
	if store.Len() != 2 {
		t.Errorf("expected 2 chunks after delete, got %d", store.Len())
	}
}

func TestIndexDocuments(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	embedder := &mockEmbedder{}
	docs := []Document{
		{Source: "a.md", Text: strings.Repeat("python style guide. ", 20)},
		{Source: "b.md", Text: "always write a test"},
	}
	opts := DefaultIndexOptions()
	opts.ChunkSize = 100
	opts.ChunkOverlap = 10
	opts.BatchSize = 2

	report, err := IndexDocuments(ctx, docs, embedder, store, opts, nil)
	if err != nil {
		t.Fatalf("IndexDocuments() error = %v", err)
	}
	if report.Documents != 2 || report.Chunks != store.Len() || report.Chunks < 4 {
		t.Errorf("unexpected report %+v with %d stored", report, store.Len())
	}
	if embedder.calls != (report.Chunks+1)/2 {
		t.Errorf("expected batched embedding calls, got %d for %d chunks", embedder.calls, report.Chunks)
	}

	// Second run skips known sources.
	again, err := IndexDocuments(ctx, docs, embedder, store, opts, nil)
	if err != nil {
		t.Fatal(err)
	}
	if again.Skipped != 2 || again.Chunks != 0 {
		t.Errorf("expected everything skipped, got %+v", again)
	}

	// Forced reindex replaces rather than duplicates.
	before := store.Len()
	opts.ForceReindex = true
	if _, err := IndexDocuments(ctx, docs, embedder, store, opts, nil); err != nil {
		t.Fatal(err)
	}
	if store.Len() != before {
		t.Errorf("forced reindex changed chunk count from %d to %d", before, store.Len())
	}
}

func TestIndexDocuments_EmbedError(t *testing.T) {
	embedder := &mockEmbedder{err: ErrEmbeddingFailed}
	_, err := IndexDocuments(context.Background(), []Document{{Source: "a", Text: "x"}},
		embedder, NewMemoryStore(), DefaultIndexOptions(), nil)
	if !errors.Is(err, ErrEmbeddingFailed) {
		t.Errorf("expected ErrEmbeddingFailed, got %v", err)
	}
}

func TestRetriever(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	embedder := &mockEmbedder{}
	docs := []Document{
		{Source: "python.md", Text: "python python conventions"},
		{Source: "testing.md", Text: "test test coverage rules"},
	}
	if _, err := IndexDocuments(ctx, docs, embedder, store, DefaultIndexOptions(), nil); err != nil {
		t.Fatal(err)
	}

	r, err := NewRetriever(embedder, store, 1)
	if err != nil {
		t.Fatal(err)
	}
	got, err := r.RetrieveForChange(ctx, "+def test_login():\n+    assert test", "")
	if err != nil {
		t.Fatalf("RetrieveForChange() error = %v", err)
	}
	if len(got) != 1 || got[0].Source != "testing.md" {
		t.Errorf("unexpected retrieval: %+v", got)
	}

	if _, err := r.Retrieve(ctx, "  "); err == nil {
		t.Error("expected error for empty query")
	}
	if _, err := NewRetriever(nil, store, 0); err == nil {
		t.Error("expected error for nil embedder")
	}
}

func TestBuildQuery(t *testing.T) {
	q := BuildQuery(strings.Repeat("+line\n", 500), "no issues")
	if !strings.HasPrefix(q, "How to review this code? Diff: ") || !strings.HasSuffix(q, "Static Analysis: no issues") {
		t.Errorf("unexpected query shape: %q", q)
	}
	if len(q) > 2*queryExcerptChars+100 {
		t.Errorf("query not truncated: %d bytes", len(q))
	}
}

func TestLoadDirectory(t *testing.T) {
	root := t.TempDir()
	write := func(rel string, data []byte) {
		t.Helper()
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("docs/style.md", []byte("# style"))
	write("main.go", []byte("package main"))
	write("logo.png", []byte{0x89, 'P', 'N', 'G', 0, 0})
	write(".git/config", []byte("[core]"))
	write("node_modules/x/index.js", []byte("module.exports = 1"))

	docs, err := LoadDirectory(root)
	if err != nil {
		t.Fatalf("LoadDirectory() error = %v", err)
	}
	var sources []string
	for _, d := range docs {
		sources = append(sources, d.Source)
	}
	if strings.Join(sources, ",") != "docs/style.md,main.go" {
		t.Errorf("unexpected sources: %v", sources)
	}
}

func TestLoadStandards(t *testing.T) {
	if doc := LoadStandards(""); doc.Source != DefaultStandardsSource {
		t.Errorf("expected default standards, got %q", doc.Source)
	}

	path := filepath.Join(t.TempDir(), "standards.md")
	if err := os.WriteFile(path, []byte("# ours"), 0o644); err != nil {
		t.Fatal(err)
	}
	if doc := LoadStandards(path); doc.Source != "standards.md" || doc.Text != "# ours" {
		t.Errorf("unexpected standards doc: %+v", doc)
	}
}

func TestMilvusStore_Integration(t *testing.T) {
	if testing.Short() || os.Getenv("MILVUS_ADDRESS") == "" {
		t.Skip("MILVUS_ADDRESS not set, skipping Milvus integration test")
	}
	ctx := context.Background()
	cfg := DefaultMilvusConfig()
	cfg.Address = os.Getenv("MILVUS_ADDRESS")
	cfg.CollectionName = "prselect_test_chunks"
	cfg.Dimension = 3

	store, err := NewMilvusStore(ctx, cfg)
	if err != nil {
		t.Fatalf("NewMilvusStore() error = %v", err)
	}
	defer store.Close()
	_ = store.Delete(ctx, []string{"python.md"})

	if _, err := IndexDocuments(ctx, []Document{{Source: "python.md", Text: "python rules"}},
		&mockEmbedder{}, store, DefaultIndexOptions(), nil); err != nil {
		t.Fatalf("IndexDocuments() error = %v", err)
	}
	got, err := store.Search(ctx, []float32{1, 0, 0.1}, 1)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 1 || got[0].Source != "python.md" {
		t.Errorf("unexpected search result: %+v", got)
	}
}
