package rag

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

var (
	ErrEmptyTexts      = errors.New("nothing to embed")
	ErrMissingAPIKey   = errors.New("embedder needs an API key: set OPENAI_API_KEY")
	ErrEmbeddingFailed = errors.New("embedding request failed")
)

// EmbeddingRecord is the vector for one chunk. Index is the chunk's position
// in the batch passed to Embed.
type EmbeddingRecord struct {
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
	Model     string    `json:"model"`
}

// Embedder turns knowledge-base chunks and review queries into vectors. All
// vectors from one Embedder have GetDimension components, which must match
// the vector store's collection.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([]EmbeddingRecord, error)
	GetModel() string
	GetDimension() int
}

// EmbedderConfig is the rag.embedder section of the configuration.
type EmbedderConfig struct {
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
	APIKey    string `yaml:"-"`
	BaseURL   string `yaml:"base_url"`
}

// DefaultEmbedderConfig matches text-embedding-3-small.
func DefaultEmbedderConfig() EmbedderConfig {
	return EmbedderConfig{
		Model:     "text-embedding-3-small",
		Dimension: 1536,
	}
}

// OpenAIEmbedder calls the OpenAI embeddings endpoint, or a compatible one
// when BaseURL is set.
type OpenAIEmbedder struct {
	client    openai.Client
	model     string
	dimension int
}

// NewOpenAIEmbedder builds an embedder from cfg. The API key falls back to
// OPENAI_API_KEY.
func NewOpenAIEmbedder(cfg EmbedderConfig) (*OpenAIEmbedder, error) {
	key := cfg.APIKey
	if key == "" {
		key = os.Getenv("OPENAI_API_KEY")
	}
	if key == "" {
		return nil, ErrMissingAPIKey
	}

	opts := []option.RequestOption{option.WithAPIKey(key)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIEmbedder{
		client:    openai.NewClient(opts...),
		model:     cfg.Model,
		dimension: cfg.Dimension,
	}, nil
}

func (e *OpenAIEmbedder) GetModel() string  { return e.model }
func (e *OpenAIEmbedder) GetDimension() int { return e.dimension }

// Embed requests one vector per text in a single call. Records come back in
// input order whatever order the endpoint answers in; a response that skips
// a text or returns a vector of the wrong length fails the whole batch.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([]EmbeddingRecord, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyTexts
	}

	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model:          e.model,
		Dimensions:     openai.Int(int64(e.dimension)),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrEmbeddingFailed, e.model, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: %d vectors for %d chunks", ErrEmbeddingFailed, len(resp.Data), len(texts))
	}

	records := make([]EmbeddingRecord, len(texts))
	seen := make([]bool, len(texts))
	for _, item := range resp.Data {
		i := int(item.Index)
		if i < 0 || i >= len(texts) || seen[i] {
			return nil, fmt.Errorf("%w: unexpected chunk index %d", ErrEmbeddingFailed, i)
		}
		if len(item.Embedding) != e.dimension {
			return nil, fmt.Errorf("%w: chunk %d has %d components, collection expects %d",
				ErrEmbeddingFailed, i, len(item.Embedding), e.dimension)
		}
		seen[i] = true

		vec := make([]float32, len(item.Embedding))
		for j, v := range item.Embedding {
			vec[j] = float32(v)
		}
		records[i] = EmbeddingRecord{Text: texts[i], Embedding: vec, Index: i, Model: e.model}
	}
	return records, nil
}
