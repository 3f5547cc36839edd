package narrative

import (
	"context"
	"fmt"
)

// Judge asks a model to grade a review. It satisfies reward.Judge.
type Judge struct {
	llm LLM
}

// NewJudge creates a judge backed by llm.
func NewJudge(llm LLM) *Judge {
	return &Judge{llm: llm}
}

// Evaluate returns the evaluator's raw response. Parsing is left to the
// scorer so a malformed answer can still be recorded.
func (j *Judge) Evaluate(ctx context.Context, diff, review, static, retrieved string) (string, error) {
	if j.llm == nil {
		return "", fmt.Errorf("%w: judge LLM is required", ErrInvalidConfig)
	}
	p := AssembleJudgePrompt(diff, review, static, retrieved)
	return j.llm.Generate(ctx, p.System, p.User)
}
