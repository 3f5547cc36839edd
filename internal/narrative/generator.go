package narrative

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Yates-Labs/prselect/internal/strategy"
)

var (
	ErrGenerationFailed = errors.New("review generation failed")
)

// Review is a generated code review.
type Review struct {
	// Strategy names the catalog entry used to produce the review
	Strategy string `json:"strategy"`

	// Text is the generated review content
	Text string `json:"text"`

	// GeneratedAt is when this review was created
	GeneratedAt time.Time `json:"generated_at"`

	// Model is the LLM model used to generate this review
	Model string `json:"model"`
}

// Generator produces reviews for a diff using a catalog strategy.
type Generator struct {
	llm     LLM
	config  LLMConfig
	catalog *strategy.Catalog
}

// NewGenerator creates a review generator with the given LLM implementation.
func NewGenerator(llm LLM, config LLMConfig, catalog *strategy.Catalog) *Generator {
	return &Generator{
		llm:     llm,
		config:  config,
		catalog: catalog,
	}
}

// Generate renders the named strategy's prompt and invokes the LLM.
func (g *Generator) Generate(ctx context.Context, diff, strategyName string, rc ReviewContext) (*Review, error) {
	if g.llm == nil {
		return nil, fmt.Errorf("%w: LLM is required", ErrGenerationFailed)
	}
	if g.catalog == nil {
		return nil, fmt.Errorf("%w: strategy catalog is required", ErrGenerationFailed)
	}

	s, err := g.catalog.Lookup(strategyName)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}

	prompt, err := AssemblePrompt(s, diff, rc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}

	text, err := g.llm.Generate(ctx, prompt.System, prompt.User)
	if err != nil {
		return nil, fmt.Errorf("%w: LLM invocation failed: %w", ErrGenerationFailed, err)
	}
	if text == "" {
		return nil, fmt.Errorf("%w: empty response", ErrGenerationFailed)
	}

	return &Review{
		Strategy:    s.Name,
		Text:        text,
		GeneratedAt: time.Now(),
		Model:       g.config.Model,
	}, nil
}
