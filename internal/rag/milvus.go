package rag

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// Common errors for Milvus operations
var (
	ErrInvalidDimension = errors.New("invalid vector dimension")
	ErrConnectionFailed = errors.New("failed to connect to Milvus")
	ErrInsertFailed     = errors.New("failed to insert records")
	ErrSearchFailed     = errors.New("failed to search vectors")
)

// MilvusConfig holds configuration for Milvus connection and collection
type MilvusConfig struct {
	Address        string `yaml:"address"`    // e.g. "localhost:19530"
	CollectionName string `yaml:"collection"` // Name of the collection
	Dimension      int    `yaml:"dimension"`  // Must match the embedder

	// HNSW index parameters
	M              int `yaml:"hnsw_m"`
	EfConstruction int `yaml:"hnsw_ef_construction"`
	EfSearch       int `yaml:"hnsw_ef_search"`
}

// DefaultMilvusConfig returns defaults for a local Milvus instance.
func DefaultMilvusConfig() MilvusConfig {
	return MilvusConfig{
		Address:        "localhost:19530",
		CollectionName: "prselect_knowledge",
		Dimension:      DefaultEmbedderConfig().Dimension,
		M:              16,
		EfConstruction: 256,
		EfSearch:       64,
	}
}

// MilvusStore implements VectorStore using Milvus
type MilvusStore struct {
	client client.Client
	config MilvusConfig
}

// NewMilvusStore connects to Milvus and ensures the collection exists with
// the chunk schema.
func NewMilvusStore(ctx context.Context, config MilvusConfig) (*MilvusStore, error) {
	if config.Dimension <= 0 {
		return nil, ErrInvalidDimension
	}

	c, err := client.NewGrpcClient(ctx, config.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	store := &MilvusStore{
		client: c,
		config: config,
	}

	if err := store.ensureCollection(ctx); err != nil {
		c.Close()
		return nil, err
	}

	return store, nil
}

// ensureCollection creates the collection with schema if it doesn't exist
func (m *MilvusStore) ensureCollection(ctx context.Context) error {
	has, err := m.client.HasCollection(ctx, m.config.CollectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}

	if !has {
		if err := m.client.CreateCollection(ctx, m.schema(), entity.DefaultShardNumber); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}

		idx, err := entity.NewIndexHNSW(entity.COSINE, m.config.M, m.config.EfConstruction)
		if err != nil {
			return fmt.Errorf("failed to create index config: %w", err)
		}
		if err := m.client.CreateIndex(ctx, m.config.CollectionName, "embedding", idx, false); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	if err := m.client.LoadCollection(ctx, m.config.CollectionName, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	return nil
}

func (m *MilvusStore) schema() *entity.Schema {
	return &entity.Schema{
		CollectionName: m.config.CollectionName,
		Description:    "knowledge-base chunks for review context",
		AutoID:         true,
		Fields: []*entity.Field{
			{
				Name:       "id",
				DataType:   entity.FieldTypeInt64,
				PrimaryKey: true,
				AutoID:     true,
			},
			{
				Name:     "source",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "1024",
				},
			},
			{
				Name:     "chunk_index",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     "text",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "65535",
				},
			},
			{
				Name:     "embedding",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": strconv.Itoa(m.config.Dimension),
				},
			},
		},
	}
}

// Insert adds chunk records to Milvus. Empty input is a no-op.
func (m *MilvusStore) Insert(ctx context.Context, records []ChunkRecord) error {
	if len(records) == 0 {
		return nil
	}

	sources := make([]string, len(records))
	indexes := make([]int64, len(records))
	texts := make([]string, len(records))
	embeddings := make([][]float32, len(records))

	for i, record := range records {
		if len(record.Embedding) != m.config.Dimension {
			return fmt.Errorf("%w: %s chunk %d has %d, expected %d",
				ErrInvalidDimension, record.Source, record.ChunkIndex, len(record.Embedding), m.config.Dimension)
		}
		sources[i] = record.Source
		indexes[i] = int64(record.ChunkIndex)
		texts[i] = record.Text
		embeddings[i] = record.Embedding
	}

	columns := []entity.Column{
		entity.NewColumnVarChar("source", sources),
		entity.NewColumnInt64("chunk_index", indexes),
		entity.NewColumnVarChar("text", texts),
		entity.NewColumnFloatVector("embedding", m.config.Dimension, embeddings),
	}

	if _, err := m.client.Insert(ctx, m.config.CollectionName, "", columns...); err != nil {
		return fmt.Errorf("%w: %v", ErrInsertFailed, err)
	}
	return nil
}

// Flush ensures inserted data is persisted
func (m *MilvusStore) Flush(ctx context.Context) error {
	if err := m.client.Flush(ctx, m.config.CollectionName, false); err != nil {
		return fmt.Errorf("failed to flush data: %w", err)
	}
	return nil
}

// Search performs top-K cosine similarity search
func (m *MilvusStore) Search(ctx context.Context, queryVector []float32, topK int) ([]ContextChunk, error) {
	if len(queryVector) != m.config.Dimension {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrInvalidDimension, m.config.Dimension, len(queryVector))
	}

	sp, err := entity.NewIndexHNSWSearchParam(m.config.EfSearch)
	if err != nil {
		return nil, fmt.Errorf("failed to create search params: %w", err)
	}

	results, err := m.client.Search(
		ctx,
		m.config.CollectionName,
		nil, // partition names
		"",
		[]string{"source", "chunk_index", "text"},
		[]entity.Vector{entity.FloatVector(queryVector)},
		"embedding",
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}

	if len(results) == 0 {
		return []ContextChunk{}, nil
	}

	result := results[0]
	chunks := make([]ContextChunk, 0, result.ResultCount)
	for i := 0; i < result.ResultCount; i++ {
		chunk := ContextChunk{Score: result.Scores[i]}

		for _, field := range result.Fields {
			switch col := field.(type) {
			case *entity.ColumnVarChar:
				switch col.Name() {
				case "source":
					chunk.Source = col.Data()[i]
				case "text":
					chunk.Text = col.Data()[i]
				}
			case *entity.ColumnInt64:
				if col.Name() == "chunk_index" {
					chunk.ChunkIndex = int(col.Data()[i])
				}
			}
		}

		chunks = append(chunks, chunk)
	}

	return chunks, nil
}

// Query checks which sources exist in the store
func (m *MilvusStore) Query(ctx context.Context, sources []string) (map[string]bool, error) {
	existence := make(map[string]bool, len(sources))
	if len(sources) == 0 {
		return existence, nil
	}
	for _, s := range sources {
		existence[s] = false
	}

	results, err := m.client.Query(
		ctx,
		m.config.CollectionName,
		nil, // partition names
		sourceFilter(sources),
		[]string{"source"},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}

	for _, column := range results {
		if column.Name() != "source" {
			continue
		}
		if varchar, ok := column.(*entity.ColumnVarChar); ok {
			for _, s := range varchar.Data() {
				existence[s] = true
			}
		}
	}

	return existence, nil
}

// Delete removes every chunk of the given sources
func (m *MilvusStore) Delete(ctx context.Context, sources []string) error {
	if len(sources) == 0 {
		return nil
	}
	if err := m.client.Delete(ctx, m.config.CollectionName, "", sourceFilter(sources)); err != nil {
		return fmt.Errorf("failed to delete records: %w", err)
	}
	return nil
}

// RowCount returns the collection's row count statistic.
func (m *MilvusStore) RowCount(ctx context.Context) (int64, error) {
	stats, err := m.client.GetCollectionStatistics(ctx, m.config.CollectionName)
	if err != nil {
		return 0, fmt.Errorf("failed to get stats: %w", err)
	}
	n, err := strconv.ParseInt(stats["row_count"], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse row count %q: %w", stats["row_count"], err)
	}
	return n, nil
}

// Close releases resources and closes the Milvus connection
func (m *MilvusStore) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

// sourceFilter builds a boolean expression matching any of sources.
func sourceFilter(sources []string) string {
	quoted := make([]string, len(sources))
	for i, s := range sources {
		quoted[i] = strconv.Quote(s)
	}
	return fmt.Sprintf("source in [%s]", strings.Join(quoted, ", "))
}
