// Package config loads prselect's YAML configuration and applies
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Yates-Labs/prselect/internal/analysis"
	"github.com/Yates-Labs/prselect/internal/engine"
	"github.com/Yates-Labs/prselect/internal/narrative"
	"github.com/Yates-Labs/prselect/internal/rag"
	"github.com/Yates-Labs/prselect/internal/state"
)

var ErrInvalid = errors.New("invalid configuration")

// RAG backends.
const (
	RAGMilvus = "milvus"
	RAGMemory = "memory"
)

// JudgeConfig configures the judging model.
type JudgeConfig struct {
	narrative.LLMConfig `yaml:",inline"`

	Enabled bool `yaml:"enabled"`
}

// GitHubConfig selects the repository reviewed by default.
type GitHubConfig struct {
	Owner string `yaml:"owner"`
	Repo  string `yaml:"repo"`
	Token string `yaml:"-"`

	// Post publishes each review as a pull request comment.
	Post bool `yaml:"post"`
}

// StateConfig locates the persisted engine state.
type StateConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// OutputConfig controls result files.
type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// RAGConfig controls knowledge-base retrieval.
type RAGConfig struct {
	Enabled       bool               `yaml:"enabled"`
	Backend       string             `yaml:"backend"`
	TopK          int                `yaml:"top_k"`
	KnowledgeDir  string             `yaml:"knowledge_dir"`
	StandardsFile string             `yaml:"standards_file"`
	Milvus        rag.MilvusConfig   `yaml:"milvus"`
	Embedder      rag.EmbedderConfig `yaml:"embedder"`
	Index         RAGIndexConfig     `yaml:"index"`
}

// RAGIndexConfig controls document splitting.
type RAGIndexConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
	BatchSize    int `yaml:"batch_size"`
}

// BatchConfig controls multi-input runs.
type BatchConfig struct {
	// SaveEvery persists state after this many processed inputs.
	SaveEvery int `yaml:"save_every"`

	// Limit caps the number of inputs per run. Zero means no cap.
	Limit int `yaml:"limit"`
}

// Config is the full application configuration.
type Config struct {
	LLM            narrative.LLMConfig `yaml:"llm"`
	Judge          JudgeConfig         `yaml:"judge"`
	GitHub         GitHubConfig        `yaml:"github"`
	Engine         engine.Config       `yaml:"engine"`
	State          StateConfig         `yaml:"state"`
	Output         OutputConfig        `yaml:"output"`
	RAG            RAGConfig           `yaml:"rag"`
	Analysis       analysis.Config     `yaml:"analysis"`
	Batch          BatchConfig         `yaml:"batch"`
	StrategiesFile string              `yaml:"strategies_file"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		LLM:    narrative.DefaultLLMConfig(),
		Judge:  JudgeConfig{LLMConfig: narrative.DefaultJudgeConfig(), Enabled: true},
		Engine: engine.DefaultConfig(),
		State: StateConfig{
			Backend: state.BackendFile,
			Path:    "prselect_state.json",
		},
		Output: OutputConfig{Dir: "results"},
		RAG: RAGConfig{
			Backend:  RAGMilvus,
			TopK:     rag.DefaultTopK,
			Milvus:   rag.DefaultMilvusConfig(),
			Embedder: rag.DefaultEmbedderConfig(),
			Index: RAGIndexConfig{
				ChunkSize:    rag.DefaultChunkSize,
				ChunkOverlap: rag.DefaultChunkOverlap,
				BatchSize:    rag.DefaultIndexOptions().BatchSize,
			},
		},
		Analysis: analysis.DefaultConfig(),
		Batch:    BatchConfig{SaveEvery: 2},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst ...*string) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		for _, d := range dst {
			*d = strings.TrimSpace(v)
		}
	}

	set("OPENAI_API_KEY", &c.LLM.APIKey, &c.Judge.APIKey, &c.RAG.Embedder.APIKey)
	set("LLM_BASE_URL", &c.LLM.BaseURL, &c.Judge.BaseURL)
	set("LLM_MODEL", &c.LLM.Model)
	set("JUDGE_MODEL", &c.Judge.Model)
	set("GITHUB_TOKEN", &c.GitHub.Token)
	set("GITHUB_OWNER", &c.GitHub.Owner)
	set("GITHUB_REPO", &c.GitHub.Repo)
	set("MILVUS_ADDRESS", &c.RAG.Milvus.Address)
	set("MILVUS_COLLECTION", &c.RAG.Milvus.CollectionName)
	set("PRSELECT_STATE", &c.State.Path)
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("%w: engine: %v", ErrInvalid, err)
	}
	switch c.State.Backend {
	case state.BackendFile, state.BackendSQLite:
	default:
		return fmt.Errorf("%w: unknown state backend %q", ErrInvalid, c.State.Backend)
	}
	if c.State.Path == "" {
		return fmt.Errorf("%w: state.path is required", ErrInvalid)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("%w: llm.model is required", ErrInvalid)
	}
	if c.Judge.Enabled && c.Judge.Model == "" {
		return fmt.Errorf("%w: judge.model is required when judging is enabled", ErrInvalid)
	}
	if c.RAG.Enabled {
		switch c.RAG.Backend {
		case RAGMilvus, RAGMemory:
		default:
			return fmt.Errorf("%w: unknown rag backend %q", ErrInvalid, c.RAG.Backend)
		}
		if c.RAG.Embedder.Dimension <= 0 {
			return fmt.Errorf("%w: rag.embedder.dimension must be positive", ErrInvalid)
		}
		if c.RAG.Backend == RAGMilvus && c.RAG.Milvus.Dimension != c.RAG.Embedder.Dimension {
			return fmt.Errorf("%w: rag.milvus.dimension %d does not match embedder dimension %d",
				ErrInvalid, c.RAG.Milvus.Dimension, c.RAG.Embedder.Dimension)
		}
	}
	if idx := c.RAG.Index; idx.ChunkSize != 0 || idx.ChunkOverlap != 0 {
		if idx.ChunkSize < rag.MinChunkSize {
			return fmt.Errorf("%w: rag.index.chunk_size must be at least %d, got %d", ErrInvalid, rag.MinChunkSize, idx.ChunkSize)
		}
		if idx.ChunkOverlap < 0 || idx.ChunkOverlap >= idx.ChunkSize {
			return fmt.Errorf("%w: rag.index.chunk_overlap must be within [0, chunk_size), got %d", ErrInvalid, idx.ChunkOverlap)
		}
	}
	if c.RAG.Index.BatchSize < 0 {
		return fmt.Errorf("%w: rag.index.batch_size must not be negative", ErrInvalid)
	}
	if c.Batch.SaveEvery < 1 {
		return fmt.Errorf("%w: batch.save_every must be at least 1", ErrInvalid)
	}
	if c.Batch.Limit < 0 {
		return fmt.Errorf("%w: batch.limit must not be negative", ErrInvalid)
	}
	return nil
}
