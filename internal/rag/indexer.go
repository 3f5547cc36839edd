package rag

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// IndexDocuments splits documents into chunks, embeds them in batches and
// stores them. This function:
// 1. Optionally drops (ForceReindex) or skips (SkipExisting) known sources
// 2. Splits each document with SplitText
// 3. Embeds chunks in batches of opts.BatchSize and inserts each batch
// 4. Flushes once at the end
func IndexDocuments(
	ctx context.Context,
	docs []Document,
	embedder Embedder,
	vectorStore VectorStore,
	opts IndexOptions,
	logger *zap.Logger,
) (IndexReport, error) {
	var report IndexReport
	if len(docs) == 0 {
		return report, nil
	}
	if embedder == nil {
		return report, fmt.Errorf("embedder cannot be nil")
	}
	if vectorStore == nil {
		return report, fmt.Errorf("vector store cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultIndexOptions().BatchSize
	}

	sources := make([]string, len(docs))
	for i, doc := range docs {
		sources[i] = doc.Source
	}

	if opts.ForceReindex {
		if err := vectorStore.Delete(ctx, sources); err != nil {
			return report, fmt.Errorf("failed to delete existing sources: %w", err)
		}
	} else if opts.SkipExisting {
		existing, err := vectorStore.Query(ctx, sources)
		if err != nil {
			logger.Warn("existence check failed, indexing everything", zap.Error(err))
		} else {
			fresh := docs[:0:0]
			for _, doc := range docs {
				if existing[doc.Source] {
					report.Skipped++
					continue
				}
				fresh = append(fresh, doc)
			}
			docs = fresh
		}
	}

	var pending []ChunkRecord
	for _, doc := range docs {
		chunks, err := SplitText(doc.Text, opts.ChunkSize, opts.ChunkOverlap)
		if err != nil {
			return report, fmt.Errorf("%s: %w", doc.Source, err)
		}
		for i, text := range chunks {
			pending = append(pending, ChunkRecord{Source: doc.Source, ChunkIndex: i, Text: text})
		}
		report.Documents++
	}
	logger.Info("split documents",
		zap.Int("documents", report.Documents),
		zap.Int("chunks", len(pending)),
		zap.Int("skipped", report.Skipped))

	for batchStart := 0; batchStart < len(pending); batchStart += opts.BatchSize {
		batchEnd := min(batchStart+opts.BatchSize, len(pending))
		batch := pending[batchStart:batchEnd]

		texts := make([]string, len(batch))
		for i, rec := range batch {
			texts[i] = rec.Text
		}

		embeddings, err := embedder.Embed(ctx, texts)
		if err != nil {
			return report, fmt.Errorf("failed to generate embeddings for batch starting at %d: %w", batchStart, err)
		}
		if len(embeddings) != len(batch) {
			return report, fmt.Errorf("%w: got %d embeddings for %d chunks", ErrEmbeddingFailed, len(embeddings), len(batch))
		}
		for _, e := range embeddings {
			if e.Index < 0 || e.Index >= len(batch) {
				return report, fmt.Errorf("%w: embedding index %d out of range", ErrEmbeddingFailed, e.Index)
			}
			batch[e.Index].Embedding = e.Embedding
		}

		if err := vectorStore.Insert(ctx, batch); err != nil {
			return report, fmt.Errorf("failed to insert batch starting at %d: %w", batchStart, err)
		}
		report.Chunks += len(batch)
	}

	if err := vectorStore.Flush(ctx); err != nil {
		return report, fmt.Errorf("failed to flush: %w", err)
	}
	return report, nil
}
