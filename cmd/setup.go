package cmd

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Yates-Labs/prselect/internal/analysis"
	"github.com/Yates-Labs/prselect/internal/config"
	"github.com/Yates-Labs/prselect/internal/engine"
	"github.com/Yates-Labs/prselect/internal/narrative"
	"github.com/Yates-Labs/prselect/internal/orchestrator"
	"github.com/Yates-Labs/prselect/internal/output"
	"github.com/Yates-Labs/prselect/internal/rag"
	"github.com/Yates-Labs/prselect/internal/reward"
	"github.com/Yates-Labs/prselect/internal/state"
	"github.com/Yates-Labs/prselect/internal/strategy"
)

// runtime bundles everything a review run needs. close releases the
// state store and vector store.
type runtime struct {
	catalog  *strategy.Catalog
	pipeline *orchestrator.Pipeline
	writer   *output.Writer
	store    state.Store
	closers  []func() error
}

func (r *runtime) close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			logger.Warn("cleanup failed", zap.Error(err))
		}
	}
}

type runtimeOptions struct {
	mockLLM   bool
	publisher orchestrator.Publisher
	noWrite   bool
}

func loadCatalog() (*strategy.Catalog, error) {
	if cfg.StrategiesFile == "" {
		return strategy.Default(), nil
	}
	return strategy.LoadFile(cfg.StrategiesFile)
}

func newLLM(c narrative.LLMConfig, mock bool) (narrative.LLM, error) {
	if mock {
		return &narrative.MockLLM{}, nil
	}
	return narrative.NewOpenAILLM(c)
}

// buildRuntime wires the pipeline for source and restores saved state.
func buildRuntime(ctx context.Context, source orchestrator.DiffSource, opts runtimeOptions) (*runtime, error) {
	rt := &runtime{}
	ok := false
	defer func() {
		if !ok {
			rt.close()
		}
	}()

	catalog, err := loadCatalog()
	if err != nil {
		return nil, err
	}
	rt.catalog = catalog

	selector, err := engine.New(catalog.Names(), cfg.Engine, engine.WithLogger(logger.Named("engine")))
	if err != nil {
		return nil, err
	}

	llm, err := newLLM(cfg.LLM, opts.mockLLM)
	if err != nil {
		return nil, err
	}
	generator := narrative.NewGenerator(llm, cfg.LLM, catalog)

	var judge reward.Judge
	if cfg.Judge.Enabled {
		judgeLLM, err := newLLM(cfg.Judge.LLMConfig, opts.mockLLM)
		if err != nil {
			return nil, err
		}
		judge = narrative.NewJudge(judgeLLM)
	}
	scorer := reward.NewScorer(judge, reward.WithLogger(logger.Named("reward")))

	store, err := state.Open(cfg.State.Backend, cfg.State.Path)
	if err != nil {
		return nil, err
	}
	rt.store = store
	rt.closers = append(rt.closers, store.Close)

	pipeOpts := []orchestrator.Option{
		orchestrator.WithLogger(logger.Named("pipeline")),
		orchestrator.WithStore(store),
		orchestrator.WithSaveEvery(cfg.Batch.SaveEvery),
	}

	provider, err := buildContextProvider(ctx, rt, opts.mockLLM)
	if err != nil {
		return nil, err
	}
	if provider != nil {
		pipeOpts = append(pipeOpts, orchestrator.WithContextProvider(provider))
	}

	if !opts.noWrite {
		w, err := output.NewWriter(cfg.Output.Dir)
		if err != nil {
			return nil, err
		}
		rt.writer = w
		pipeOpts = append(pipeOpts, orchestrator.WithResultWriter(w))
	}
	if opts.publisher != nil {
		pipeOpts = append(pipeOpts, orchestrator.WithPublisher(opts.publisher))
	}

	p, err := orchestrator.New(source, selector, generator, scorer, pipeOpts...)
	if err != nil {
		return nil, err
	}
	if _, err := p.LoadState(ctx); err != nil {
		return nil, err
	}
	rt.pipeline = p

	ok = true
	return rt, nil
}

// buildContextProvider returns nil when both analysis and retrieval are off.
// A retrieval backend that cannot be reached disables retrieval with a
// warning instead of failing the run.
func buildContextProvider(ctx context.Context, rt *runtime, mock bool) (*orchestrator.AuxProvider, error) {
	var analyzer orchestrator.StaticAnalyzer
	if cfg.Analysis.Enabled {
		analyzer = analysis.New(cfg.Analysis, analysis.WithLogger(logger.Named("analysis")))
	}

	var retriever orchestrator.Retriever
	if cfg.RAG.Enabled && !mock {
		r, err := buildRetriever(ctx, rt)
		switch {
		case errors.Is(err, rag.ErrMissingAPIKey):
			return nil, err
		case err != nil:
			logger.Warn("retrieval disabled", zap.Error(err))
		default:
			retriever = r
		}
	}

	if analyzer == nil && retriever == nil {
		return nil, nil
	}
	return orchestrator.NewAuxProvider(analyzer, retriever, logger.Named("context")), nil
}

func buildRetriever(ctx context.Context, rt *runtime) (*rag.Retriever, error) {
	embedder, err := rag.NewOpenAIEmbedder(cfg.RAG.Embedder)
	if err != nil {
		return nil, err
	}
	store, err := openVectorStore(ctx)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, store.Close)

	// The in-memory store starts empty every run; the Milvus collection is
	// topped up with anything not indexed yet.
	docs, err := knowledgeDocuments()
	if err != nil {
		return nil, err
	}
	report, err := rag.IndexDocuments(ctx, docs, embedder, store, indexOptions(false), logger.Named("rag"))
	if err != nil {
		return nil, fmt.Errorf("failed to index knowledge base: %w", err)
	}
	logger.Info("knowledge base ready",
		zap.String("backend", cfg.RAG.Backend),
		zap.Int("indexed", report.Documents),
		zap.Int("skipped", report.Skipped),
		zap.Int("chunks", report.Chunks))

	return rag.NewRetriever(embedder, store, cfg.RAG.TopK)
}

func openVectorStore(ctx context.Context) (rag.VectorStore, error) {
	if cfg.RAG.Backend == config.RAGMemory {
		return rag.NewMemoryStore(), nil
	}
	return rag.NewMilvusStore(ctx, cfg.RAG.Milvus)
}

// knowledgeDocuments loads the knowledge directory, if any, plus the coding
// standards document.
func knowledgeDocuments() ([]rag.Document, error) {
	var docs []rag.Document
	if cfg.RAG.KnowledgeDir != "" {
		loaded, err := rag.LoadDirectory(cfg.RAG.KnowledgeDir)
		if err != nil {
			return nil, err
		}
		docs = loaded
	}
	return append(docs, rag.LoadStandards(cfg.RAG.StandardsFile)), nil
}

func indexOptions(force bool) rag.IndexOptions {
	opts := rag.DefaultIndexOptions()
	opts.ChunkSize = cfg.RAG.Index.ChunkSize
	opts.ChunkOverlap = cfg.RAG.Index.ChunkOverlap
	if cfg.RAG.Index.BatchSize > 0 {
		opts.BatchSize = cfg.RAG.Index.BatchSize
	}
	opts.ForceReindex = force
	opts.SkipExisting = !force
	return opts
}
