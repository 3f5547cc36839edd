package rag

import "context"

// Document is one knowledge-base source before splitting.
type Document struct {
	Source string `json:"source"`
	Text   string `json:"text"`
}

// ChunkRecord is an embedded piece of a document ready for storage.
type ChunkRecord struct {
	Source     string    `json:"source"`
	ChunkIndex int       `json:"chunk_index"`
	Text       string    `json:"text"`
	Embedding  []float32 `json:"embedding"`
}

// ContextChunk represents a retrieved chunk with similarity score
type ContextChunk struct {
	Source     string  `json:"source"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
	Score      float32 `json:"score"` // Cosine similarity, higher is closer
}

// VectorStore defines the interface for chunk storage and similarity search
type VectorStore interface {
	// Insert stores embedded chunks
	Insert(ctx context.Context, records []ChunkRecord) error

	// Flush ensures all pending data is persisted
	Flush(ctx context.Context) error

	// Search performs top-K similarity search
	Search(ctx context.Context, queryVector []float32, topK int) ([]ContextChunk, error)

	// Query reports which sources already have chunks in the store
	Query(ctx context.Context, sources []string) (map[string]bool, error)

	// Delete removes every chunk of the given sources
	Delete(ctx context.Context, sources []string) error

	// Close releases resources and closes connections
	Close() error
}

// IndexOptions provides configuration for document indexing
type IndexOptions struct {
	// BatchSize determines how many chunks to embed at once
	BatchSize int

	// ChunkSize and ChunkOverlap control splitting, in characters
	ChunkSize    int
	ChunkOverlap int

	// ForceReindex will delete and re-insert sources even if they exist
	ForceReindex bool

	// SkipExisting will check if a source already exists and skip if present
	SkipExisting bool
}

// DefaultIndexOptions returns sensible defaults for indexing
func DefaultIndexOptions() IndexOptions {
	return IndexOptions{
		BatchSize:    32,
		ChunkSize:    DefaultChunkSize,
		ChunkOverlap: DefaultChunkOverlap,
		SkipExisting: true,
	}
}

// IndexReport summarises an indexing run.
type IndexReport struct {
	Documents int `json:"documents"`
	Skipped   int `json:"skipped"`
	Chunks    int `json:"chunks"`
}
