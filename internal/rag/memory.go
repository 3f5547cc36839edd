package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryStore is an in-process VectorStore with brute-force cosine search.
// It backs small knowledge bases indexed at startup when no Milvus address
// is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	records []ChunkRecord
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Insert(_ context.Context, records []ChunkRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		r.Embedding = append([]float32(nil), r.Embedding...)
		s.records = append(s.records, r)
	}
	return nil
}

func (s *MemoryStore) Flush(context.Context) error { return nil }

func (s *MemoryStore) Search(_ context.Context, queryVector []float32, topK int) ([]ContextChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chunks := make([]ContextChunk, 0, len(s.records))
	for _, r := range s.records {
		if len(r.Embedding) != len(queryVector) {
			return nil, fmt.Errorf("%w: expected %d, got %d", ErrInvalidDimension, len(r.Embedding), len(queryVector))
		}
		chunks = append(chunks, ContextChunk{
			Source:     r.Source,
			ChunkIndex: r.ChunkIndex,
			Text:       r.Text,
			Score:      cosine(queryVector, r.Embedding),
		})
	}

	sort.SliceStable(chunks, func(i, j int) bool { return chunks[i].Score > chunks[j].Score })
	if topK >= 0 && len(chunks) > topK {
		chunks = chunks[:topK]
	}
	return chunks, nil
}

func (s *MemoryStore) Query(_ context.Context, sources []string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	existence := make(map[string]bool, len(sources))
	for _, src := range sources {
		existence[src] = false
	}
	for _, r := range s.records {
		if _, ok := existence[r.Source]; ok {
			existence[r.Source] = true
		}
	}
	return existence, nil
}

func (s *MemoryStore) Delete(_ context.Context, sources []string) error {
	drop := make(map[string]struct{}, len(sources))
	for _, src := range sources {
		drop[src] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.records[:0]
	for _, r := range s.records {
		if _, ok := drop[r.Source]; !ok {
			kept = append(kept, r)
		}
	}
	s.records = kept
	return nil
}

// Len returns the number of stored chunks.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *MemoryStore) Close() error { return nil }

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
