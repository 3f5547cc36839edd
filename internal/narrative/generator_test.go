package narrative

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Yates-Labs/prselect/internal/reward"
	"github.com/Yates-Labs/prselect/internal/strategy"
)

const testDiff = `diff --git a/api/handler.go b/api/handler.go
--- a/api/handler.go
+++ b/api/handler.go
@@ -10,3 +10,5 @@
+func Handle(w http.ResponseWriter, r *http.Request) {
+	body, _ := io.ReadAll(r.Body)
+}`

func TestGenerator_Generate_Success(t *testing.T) {
	mockLLM := NewMockLLM("## Summary\n- Ignored error from io.ReadAll.")
	config := DefaultLLMConfig()
	config.Model = "test-model"

	gen := NewGenerator(mockLLM, config, strategy.Default())

	rc := ReviewContext{
		Static: "handler.go:12: error return value not checked",
		Chunks: []ContextChunk{{Source: "CONTRIBUTING.md", Text: "Always check errors.", Score: 0.9}},
	}

	ctx := context.Background()
	review, err := gen.Generate(ctx, testDiff, "Meta", rc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if review.Strategy != "Meta" {
		t.Errorf("expected strategy Meta, got %s", review.Strategy)
	}
	if review.Model != "test-model" {
		t.Errorf("expected model test-model, got %s", review.Model)
	}
	if review.GeneratedAt.IsZero() {
		t.Error("generated timestamp is zero")
	}

	// Verify mock received the assembled prompt
	if !strings.Contains(mockLLM.LastSystem, "professional GitHub Pull Request review") {
		t.Errorf("unexpected system prompt: %q", mockLLM.LastSystem)
	}
	for _, want := range []string{"Critical Bugs", "+++ b/api/handler.go", "error return value not checked", "Always check errors."} {
		if !strings.Contains(mockLLM.LastPrompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestGenerator_Generate_Errors(t *testing.T) {
	tests := []struct {
		name     string
		gen      *Generator
		diff     string
		strategy string
	}{
		{"nil llm", NewGenerator(nil, DefaultLLMConfig(), strategy.Default()), testDiff, "Meta"},
		{"nil catalog", NewGenerator(NewMockLLM("x"), DefaultLLMConfig(), nil), testDiff, "Meta"},
		{"unknown strategy", NewGenerator(NewMockLLM("x"), DefaultLLMConfig(), strategy.Default()), testDiff, "Socratic"},
		{"empty diff", NewGenerator(NewMockLLM("x"), DefaultLLMConfig(), strategy.Default()), "  ", "Meta"},
		{"llm error", NewGenerator(NewMockLLMWithError(errors.New("rate limited")), DefaultLLMConfig(), strategy.Default()), testDiff, "Meta"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.gen.Generate(context.Background(), tt.diff, tt.strategy, ReviewContext{})
			if !errors.Is(err, ErrGenerationFailed) {
				t.Errorf("expected ErrGenerationFailed, got %v", err)
			}
		})
	}
}

func TestMockLLM_DefaultResponses(t *testing.T) {
	mock := &MockLLM{}
	gen := NewGenerator(mock, DefaultLLMConfig(), strategy.Default())

	review, err := gen.Generate(context.Background(), testDiff, "Zero-shot", ReviewContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(review.Text, "api/handler.go") {
		t.Errorf("mock review does not mention changed file:\n%s", review.Text)
	}

	// The mock's judge answer must parse and score.
	raw, err := NewJudge(mock).Evaluate(context.Background(), testDiff, review.Text, "", "")
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	j, err := reward.ParseJudgment(raw)
	if err != nil {
		t.Fatalf("mock judgment did not parse: %v\n%s", err, raw)
	}
	if s := j.Score(); s <= 0 || s > 10 {
		t.Errorf("mock judgment score %v out of range", s)
	}
	if mock.Calls != 2 {
		t.Errorf("expected 2 calls, got %d", mock.Calls)
	}
}

func TestJudgeSatisfiesScorer(t *testing.T) {
	var _ reward.Judge = (*Judge)(nil)

	mock := NewMockLLM(`Sure! {"clarity": 8, "usefulness": 8, "depth": 8, "actionability": 8, "positivity": 8, "explain": "ok"}`)
	scorer := reward.NewScorer(NewJudge(mock))

	res := scorer.Score(context.Background(), "## Summary\n- Fix the bug.", testDiff, reward.Aux{Static: "lint ok"})
	if res.JudgedScore == nil || *res.JudgedScore != 8 {
		t.Fatalf("JudgedScore = %v, want 8", res.JudgedScore)
	}
	if mock.LastSystem != judgeSystem {
		t.Errorf("unexpected judge system prompt %q", mock.LastSystem)
	}
	if !strings.Contains(mock.LastPrompt, "Static Analysis Results:\nlint ok") {
		t.Error("judge prompt missing static analysis")
	}
}
