package narrative

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MockLLM is a deterministic LLM implementation for tests and offline runs.
// It returns predictable responses based on prompt content.
type MockLLM struct {
	// Response is the fixed text returned by Generate.
	// If empty, a default response is generated from the prompt.
	Response string

	// Error, if set, is returned by Generate instead of a response.
	Error error

	// LastPrompt and LastSystem store the most recent inputs.
	LastPrompt string
	LastSystem string

	// Calls counts Generate invocations.
	Calls int

	mu sync.Mutex
}

// NewMockLLM creates a mock LLM with the given fixed response.
func NewMockLLM(response string) *MockLLM {
	return &MockLLM{Response: response}
}

// NewMockLLMWithError creates a mock LLM that always returns an error.
func NewMockLLMWithError(err error) *MockLLM {
	return &MockLLM{Error: err}
}

// Generate returns the configured response or generates a deterministic one.
func (m *MockLLM) Generate(ctx context.Context, system, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls++
	m.LastPrompt = prompt
	m.LastSystem = system

	if m.Error != nil {
		return "", m.Error
	}

	if m.Response != "" {
		return m.Response, nil
	}

	if strings.Contains(prompt, judgeReviewHeader) {
		return mockJudgment(prompt), nil
	}
	return mockReview(prompt), nil
}

// mockReview writes a sectioned review naming the files in the diff.
func mockReview(prompt string) string {
	var b strings.Builder

	files := changedFiles(prompt)

	b.WriteString("## Summary\n")
	b.WriteString(fmt.Sprintf("This change touches %d file(s).\n\n", len(files)))

	b.WriteString("## Bugs\n")
	if len(files) == 0 {
		b.WriteString("- No issue found in the provided diff.\n")
	}
	for _, f := range files {
		b.WriteString(fmt.Sprintf("- %s: check error handling on the new code paths.\n", f))
	}

	b.WriteString("\n## Suggestions\n")
	b.WriteString("- Consider adding tests for the changed behavior.\n")
	b.WriteString("\n## Final Review\n")
	b.WriteString("Looks reasonable once the points above are addressed.\n")

	return b.String()
}

// mockJudgment scores longer reviews slightly higher so offline runs still
// produce varied rewards.
func mockJudgment(prompt string) string {
	review := prompt
	if i := strings.Index(prompt, judgeReviewHeader); i >= 0 {
		review = prompt[i+len(judgeReviewHeader):]
	}
	bullets := 0
	for _, line := range strings.Split(review, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "- ") {
			bullets++
		}
	}
	score := min(4+bullets, 10)
	return fmt.Sprintf(`{"clarity": %d, "usefulness": %d, "depth": %d, "actionability": %d, "positivity": 7, "explain": "mock evaluation based on %d findings"}`,
		score, score, max(score-1, 1), score, bullets)
}

func changedFiles(prompt string) []string {
	var files []string
	for _, line := range strings.Split(prompt, "\n") {
		if rest, ok := strings.CutPrefix(line, "+++ b/"); ok {
			files = append(files, strings.TrimSpace(rest))
		}
	}
	return files
}
