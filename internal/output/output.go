// Package output writes per-input result records and markdown review files.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Yates-Labs/prselect/internal/features"
	"github.com/Yates-Labs/prselect/internal/reward"
)

// ExportFormat represents supported export formats
type ExportFormat string

const (
	FormatJSON  ExportFormat = "json"
	FormatJSONL ExportFormat = "jsonl"
)

// Record is the result of processing one input.
type Record struct {
	RunID          string            `json:"run_id"`
	Input          string            `json:"input"`
	Strategy       string            `json:"strategy_id"`
	Reward         float64           `json:"reward"`
	HeuristicScore float64           `json:"heuristic_score"`
	JudgedScore    *float64          `json:"judged_score"`
	Features       features.Features `json:"features"`
	Heuristics     reward.Heuristics `json:"heuristics"`
	Judgment       *reward.Judgment  `json:"judgment,omitempty"`
	SampleCount    int               `json:"sample_count"`
	Trained        bool              `json:"trained"`
	SelectionMode  string            `json:"selection_mode"`
	Predictions    []float64         `json:"predictions,omitempty"`
	Model          string            `json:"model,omitempty"`
	GeneratedAt    time.Time         `json:"generated_at"`

	Review           string `json:"-"`
	StaticOutput     string `json:"static_output,omitempty"`
	RetrievedContext string `json:"retrieved_context,omitempty"`
}

// Export writes records in format to writer.
func Export(records []Record, format string, writer io.Writer) error {
	switch ExportFormat(strings.ToLower(format)) {
	case FormatJSON:
		encoder := json.NewEncoder(writer)
		encoder.SetIndent("", "  ")
		return encoder.Encode(records)
	case FormatJSONL:
		encoder := json.NewEncoder(writer)
		for _, r := range records {
			if err := encoder.Encode(r); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported export format: %s (supported: json, jsonl)", format)
	}
}

// Markdown renders the human-readable review file.
func Markdown(r Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Review for %s (Strategy: %s)\n", r.Input, r.Strategy)
	fmt.Fprintf(&b, "**Score:** %.2f/10\n\n", r.Reward)
	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "## AI Review\n\n%s\n\n", r.Review)
	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "## Static Analysis Output\n\n```\n%s\n```\n\n", r.StaticOutput)
	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "## Retrieved Context\n\n%s\n", r.RetrievedContext)
	return b.String()
}

// Writer stores records under a directory, one JSON and one markdown file
// per record.
type Writer struct {
	dir   string
	runID string
}

// NewWriter creates dir if needed and stamps records with a fresh run id.
func NewWriter(dir string) (*Writer, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	return &Writer{dir: dir, runID: uuid.NewString()}, nil
}

// RunID identifies this process's records.
func (w *Writer) RunID() string { return w.runID }

// Write fills in RunID and GeneratedAt when unset and writes both files,
// returning their paths.
func (w *Writer) Write(r Record) (jsonPath, mdPath string, err error) {
	if r.RunID == "" {
		r.RunID = w.runID
	}
	if r.GeneratedAt.IsZero() {
		r.GeneratedAt = time.Now().UTC()
	}

	stamp := r.GeneratedAt.Format("20060102_150405")
	base := fmt.Sprintf("%s_%s", Slug(r.Input), stamp)
	jsonPath = filepath.Join(w.dir, "results_"+base+".json")
	mdPath = filepath.Join(w.dir, fmt.Sprintf("review_%s_%s.md", Slug(r.Input), Slug(r.Strategy)))

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("failed to encode record: %w", err)
	}
	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		return "", "", fmt.Errorf("failed to write %s: %w", jsonPath, err)
	}
	if err := os.WriteFile(mdPath, []byte(Markdown(r)), 0o644); err != nil {
		return "", "", fmt.Errorf("failed to write %s: %w", mdPath, err)
	}
	return jsonPath, mdPath, nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Slug makes s safe for use in a file name.
func Slug(s string) string {
	slug := strings.Trim(unsafeChars.ReplaceAllString(s, "_"), "_")
	if slug == "" {
		return "input"
	}
	return slug
}
