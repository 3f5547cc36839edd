package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/Yates-Labs/prselect/internal/textutil"
)

// DefaultTopK is the number of chunks retrieved per review.
const DefaultTopK = 4

// queryExcerptChars bounds each part of a retrieval query.
const queryExcerptChars = 1000

// Retriever provides semantic retrieval over the knowledge base.
type Retriever struct {
	embedder    Embedder
	vectorStore VectorStore
	topK        int
}

// NewRetriever creates a new Retriever instance. topK <= 0 selects DefaultTopK.
func NewRetriever(embedder Embedder, vectorStore VectorStore, topK int) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder cannot be nil")
	}
	if vectorStore == nil {
		return nil, fmt.Errorf("vector store cannot be nil")
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	return &Retriever{
		embedder:    embedder,
		vectorStore: vectorStore,
		topK:        topK,
	}, nil
}

// BuildQuery forms the retrieval query for a change from excerpts of its
// diff and static-analysis output.
func BuildQuery(diff, static string) string {
	var b strings.Builder
	b.WriteString("How to review this code? Diff: ")
	b.WriteString(textutil.Truncate(diff, queryExcerptChars))
	b.WriteString("\nStatic Analysis: ")
	b.WriteString(textutil.Truncate(static, queryExcerptChars))
	return b.String()
}

// Retrieve performs semantic search using a free-text query.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]ContextChunk, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}

	embeddingRecords, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(embeddingRecords) == 0 {
		return nil, fmt.Errorf("no embedding generated for query")
	}

	chunks, err := r.vectorStore.Search(ctx, embeddingRecords[0].Embedding, r.topK)
	if err != nil {
		return nil, fmt.Errorf("failed to search for query: %w", err)
	}
	return chunks, nil
}

// RetrieveForChange retrieves context for a diff and its static-analysis
// output.
func (r *Retriever) RetrieveForChange(ctx context.Context, diff, static string) ([]ContextChunk, error) {
	return r.Retrieve(ctx, BuildQuery(diff, static))
}
