// Package narrative produces review text with a language model. It defines a
// provider-agnostic LLM interface with an OpenAI-compatible implementation and
// a deterministic mock for tests, assembles strategy prompts, and asks a
// second model call to judge the resulting review.
package narrative

import (
	"context"
	"errors"
)

var (
	ErrLLMFailed     = errors.New("LLM request failed")
	ErrInvalidConfig = errors.New("invalid LLM configuration")
)

// LLM defines the interface for interacting with language models.
// Implementations must be stateless and thread-safe.
type LLM interface {
	// Generate produces text for a system and user prompt pair.
	// The system prompt may be empty.
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// LLMConfig holds common configuration options for LLM providers.
type LLMConfig struct {
	// Model specifies the model identifier (e.g., "gpt-4o", "llama-3.3-70b-versatile")
	Model string `yaml:"model"`

	// Temperature controls randomness (0.0 = provider default)
	Temperature float32 `yaml:"temperature"`

	// MaxTokens limits the response length (0 = use provider default)
	MaxTokens int `yaml:"max_tokens"`

	// APIKey is the authentication key for the provider
	APIKey string `yaml:"-"`

	// BaseURL points at an OpenAI-compatible endpoint such as Groq.
	// Empty means the OpenAI API.
	BaseURL string `yaml:"base_url"`
}

// DefaultLLMConfig returns defaults for review generation.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Model:       "gpt-4o",
		Temperature: 0.25,
		MaxTokens:   2000,
	}
}

// DefaultJudgeConfig returns defaults for the judging call. Judging wants
// repeatable scores, so temperature stays at the provider default.
func DefaultJudgeConfig() LLMConfig {
	return LLMConfig{
		Model:     "gpt-4o",
		MaxTokens: 400,
	}
}
