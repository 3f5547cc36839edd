package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Yates-Labs/prselect/internal/narrative"
	"github.com/Yates-Labs/prselect/internal/rag"
)

// StaticAnalyzer produces a static-analysis report for a diff.
type StaticAnalyzer interface {
	Analyze(ctx context.Context, diff string) string
}

// Retriever finds knowledge-base passages relevant to a change.
type Retriever interface {
	RetrieveForChange(ctx context.Context, diff, static string) ([]rag.ContextChunk, error)
}

// AuxProvider gathers static analysis and retrieved context for a diff.
// Either collaborator may be nil.
type AuxProvider struct {
	analyzer  StaticAnalyzer
	retriever Retriever
	logger    *zap.Logger
}

// NewAuxProvider combines analyzer and retriever.
func NewAuxProvider(analyzer StaticAnalyzer, retriever Retriever, logger *zap.Logger) *AuxProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuxProvider{analyzer: analyzer, retriever: retriever, logger: logger}
}

// Gather runs analysis first so retrieval can use its output. A retrieval
// failure returns the partial context together with the error.
func (p *AuxProvider) Gather(ctx context.Context, diff string) (narrative.ReviewContext, error) {
	var rc narrative.ReviewContext
	if p.analyzer != nil {
		rc.Static = p.analyzer.Analyze(ctx, diff)
	}
	if p.retriever == nil {
		return rc, nil
	}

	chunks, err := p.retriever.RetrieveForChange(ctx, diff, rc.Static)
	if err != nil {
		return rc, fmt.Errorf("context retrieval failed: %w", err)
	}
	for _, c := range chunks {
		rc.Chunks = append(rc.Chunks, narrative.ContextChunk{Source: c.Source, Text: c.Text, Score: c.Score})
	}
	p.logger.Debug("retrieved context", zap.Int("chunks", len(rc.Chunks)))
	return rc, nil
}
