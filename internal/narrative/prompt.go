package narrative

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Yates-Labs/prselect/internal/strategy"
	"github.com/Yates-Labs/prselect/internal/textutil"
)

var (
	ErrEmptyDiff = errors.New("diff is required for review")
)

const (
	noStaticResults = "No static analysis results."
	noContext       = "No relevant context retrieved."

	judgeSystem       = "You are an objective senior software engineer who judges review quality."
	judgeReviewHeader = "Review to evaluate:\n"
)

// Prompt is a system and user message pair.
type Prompt struct {
	System string
	User   string
}

// AssemblePrompt renders a strategy's instructions around the diff, the
// static-analysis output and the retrieved context. Inputs are truncated to
// the excerpt limits.
func AssemblePrompt(s strategy.Strategy, diff string, rc ReviewContext) (Prompt, error) {
	if strings.TrimSpace(diff) == "" {
		return Prompt{}, ErrEmptyDiff
	}

	var b strings.Builder
	b.WriteString(strings.TrimRight(s.Instructions, "\n"))
	b.WriteString("\n")
	writeCore(&b, diff, rc)
	if s.Suffix != "" {
		b.WriteString("\n")
		b.WriteString(strings.TrimRight(s.Suffix, "\n"))
		b.WriteString("\n")
	}

	return Prompt{System: s.System, User: b.String()}, nil
}

// writeCore writes the shared context, static and diff block.
func writeCore(b *strings.Builder, diff string, rc ReviewContext) {
	static := strings.TrimSpace(rc.Static)
	if static == "" {
		static = noStaticResults
	}
	retrieved := rc.Text()
	if retrieved == "" {
		retrieved = noContext
	}

	b.WriteString("---\nRETRIEVED CONTEXT:\n")
	b.WriteString(textutil.Truncate(retrieved, textutil.MaxContextChars))
	b.WriteString("\n---\nSTATIC ANALYSIS RESULTS:\n")
	b.WriteString(textutil.Truncate(static, textutil.MaxStaticChars))
	b.WriteString("\n---\nPR DIFF (truncated):\n")
	b.WriteString(textutil.Truncate(diff, textutil.MaxDiffChars))
	b.WriteString("\n---\n")
}

// AssembleJudgePrompt builds the evaluator prompt. Inputs are expected to be
// truncated by the caller.
func AssembleJudgePrompt(diff, review, static, retrieved string) Prompt {
	if strings.TrimSpace(static) == "" {
		static = noStaticResults
	}
	if strings.TrimSpace(retrieved) == "" {
		retrieved = noContext
	}

	var b strings.Builder
	b.WriteString("You will evaluate a Pull Request review based on the diff, static analysis, and retrieved context provided.\n")
	b.WriteString("Judge if the review properly used the static analysis and context.\n")
	b.WriteString("Produce ONLY a JSON object (no extra commentary).\n\n")
	b.WriteString("Fields (1-10 integers): clarity, usefulness, depth, actionability, positivity.\n")
	b.WriteString("Also include a short `explain` string (1-2 sentences).\n\n")
	b.WriteString("Output JSON (exact format):\n")
	b.WriteString("{\n")
	b.WriteString(`  "clarity": <int 1-10>,` + "\n")
	b.WriteString(`  "usefulness": <int 1-10>,` + "\n")
	b.WriteString(`  "depth": <int 1-10>,` + "\n")
	b.WriteString(`  "actionability": <int 1-10>,` + "\n")
	b.WriteString(`  "positivity": <int 1-10>,` + "\n")
	b.WriteString(`  "explain": "short explanation"` + "\n")
	b.WriteString("}\n\n")
	b.WriteString(fmt.Sprintf("PR Diff (truncated):\n%s\n\n", diff))
	b.WriteString(fmt.Sprintf("Static Analysis Results:\n%s\n\n", static))
	b.WriteString(fmt.Sprintf("Retrieved Context:\n%s\n\n", retrieved))
	b.WriteString(judgeReviewHeader)
	b.WriteString(review)
	b.WriteString("\n")

	return Prompt{System: judgeSystem, User: b.String()}
}

// sortedChunks orders chunks by relevance score (highest first), even if
// already sorted.
func sortedChunks(chunks []ContextChunk) []ContextChunk {
	sorted := make([]ContextChunk, len(chunks))
	copy(sorted, chunks)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })
	return sorted
}

func renderChunks(chunks []ContextChunk) string {
	var b strings.Builder
	for i, ch := range chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if ch.Source != "" {
			b.WriteString(fmt.Sprintf("[%s] (relevance: %.2f)\n", ch.Source, ch.Score))
		}
		b.WriteString(strings.TrimSpace(ch.Text))
	}
	return b.String()
}
