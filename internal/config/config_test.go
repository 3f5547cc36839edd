package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yates-Labs/prselect/internal/engine"
	"github.com/Yates-Labs/prselect/internal/state"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prselect.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"OPENAI_API_KEY", "LLM_BASE_URL", "LLM_MODEL", "JUDGE_MODEL", "GITHUB_TOKEN",
		"GITHUB_OWNER", "GITHUB_REPO", "MILVUS_ADDRESS", "MILVUS_COLLECTION", "PRSELECT_STATE",
	} {
		t.Setenv(key, "")
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, engine.KindSGD, cfg.Engine.ModelKind)
	assert.Equal(t, engine.MergeDedup, cfg.Engine.MergePolicy)
	assert.Equal(t, 2, cfg.Batch.SaveEvery)
	assert.True(t, cfg.Judge.Enabled)
	assert.False(t, cfg.RAG.Enabled)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
llm:
  model: llama-3.3-70b-versatile
  base_url: https://api.groq.com/openai/v1/
judge:
  enabled: false
engine:
  model: ridge
  exploration_rate: 0
  merge_policy: overwrite
state:
  backend: sqlite
  path: /tmp/prselect.db
analysis:
  timeout: 30s
batch:
  save_every: 5
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "llama-3.3-70b-versatile", cfg.LLM.Model)
	assert.Equal(t, "https://api.groq.com/openai/v1/", cfg.LLM.BaseURL)
	assert.Equal(t, 2000, cfg.LLM.MaxTokens, "unset fields keep defaults")
	assert.False(t, cfg.Judge.Enabled)
	assert.Equal(t, "gpt-4o", cfg.Judge.Model)
	assert.Equal(t, engine.KindRidge, cfg.Engine.ModelKind)
	assert.Zero(t, cfg.Engine.ExplorationRate)
	assert.Equal(t, engine.Overwrite, cfg.Engine.MergePolicy)
	assert.Equal(t, uint64(42), cfg.Engine.Seed)
	assert.Equal(t, state.BackendSQLite, cfg.State.Backend)
	assert.Equal(t, 30*time.Second, cfg.Analysis.Timeout)
	assert.NotEmpty(t, cfg.Analysis.Analyzers["python"])
	assert.Equal(t, 5, cfg.Batch.SaveEvery)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", " sk-test ")
	t.Setenv("JUDGE_MODEL", "gpt-4o-mini")
	t.Setenv("GITHUB_OWNER", "octo")
	t.Setenv("GITHUB_REPO", "widgets")
	t.Setenv("PRSELECT_STATE", "/var/lib/prselect/state.json")
	t.Setenv("MILVUS_ADDRESS", "milvus:19530")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "sk-test", cfg.Judge.APIKey)
	assert.Equal(t, "sk-test", cfg.RAG.Embedder.APIKey)
	assert.Equal(t, "gpt-4o-mini", cfg.Judge.Model)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, "octo", cfg.GitHub.Owner)
	assert.Equal(t, "widgets", cfg.GitHub.Repo)
	assert.Equal(t, "/var/lib/prselect/state.json", cfg.State.Path)
	assert.Equal(t, "milvus:19530", cfg.RAG.Milvus.Address)
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "llm: [unterminated"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "engine:\n  model: forest\n"))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"state backend", func(c *Config) { c.State.Backend = "redis" }},
		{"state path", func(c *Config) { c.State.Path = "" }},
		{"llm model", func(c *Config) { c.LLM.Model = "" }},
		{"judge model", func(c *Config) { c.Judge.Model = "" }},
		{"rag backend", func(c *Config) { c.RAG.Enabled = true; c.RAG.Backend = "pinecone" }},
		{"rag dimension mismatch", func(c *Config) { c.RAG.Enabled = true; c.RAG.Milvus.Dimension = 3072 }},
		{"save every", func(c *Config) { c.Batch.SaveEvery = 0 }},
		{"batch limit", func(c *Config) { c.Batch.Limit = -1 }},
		{"exploration rate", func(c *Config) { c.Engine.ExplorationRate = 1.5 }},
		{"learning rate", func(c *Config) { c.Engine.LearningRate = 10 }},
		{"chunk size below minimum", func(c *Config) { c.RAG.Index.ChunkSize = 1; c.RAG.Index.ChunkOverlap = 0 }},
		{"chunk overlap unset size", func(c *Config) { c.RAG.Index.ChunkSize = 0 }},
		{"chunk overlap too large", func(c *Config) { c.RAG.Index.ChunkOverlap = c.RAG.Index.ChunkSize }},
		{"chunk overlap negative", func(c *Config) { c.RAG.Index.ChunkOverlap = -1 }},
		{"index batch size", func(c *Config) { c.RAG.Index.BatchSize = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}

	memory := Default()
	memory.RAG.Enabled = true
	memory.RAG.Backend = RAGMemory
	memory.RAG.Milvus.Dimension = 0
	assert.NoError(t, memory.Validate(), "memory backend ignores milvus settings")
}
