// Package analysis runs local static analyzers over the files a diff touches
// and aggregates their output into one report for review prompts.
package analysis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// NoFilesMessage is the report when a diff has no recognised source files.
const NoFilesMessage = "No recognizable programming language files found in PR diff to analyze."

const defaultParallelism = 4

var changedFileRe = regexp.MustCompile(`(?m)^\+\+\+ b/(.*)$`)

// FileLanguages maps lower-case file extensions to analyzer languages.
var FileLanguages = map[string]string{
	"py":   "python",
	"js":   "javascript",
	"jsx":  "javascript",
	"ts":   "javascript",
	"tsx":  "javascript",
	"java": "java",
	"cpp":  "cpp",
	"cc":   "cpp",
	"cxx":  "cpp",
	"h":    "cpp",
	"hpp":  "cpp",
	"go":   "go",
	"kt":   "kotlin",
	"rs":   "rust",
}

// Analyzer is one external tool. Changed files are appended to Command.
type Analyzer struct {
	Name    string   `yaml:"name"`
	Command []string `yaml:"command"`
}

// DefaultAnalyzers lists the tools run per language. Tools must be on PATH.
func DefaultAnalyzers() map[string][]Analyzer {
	return map[string][]Analyzer{
		"python": {
			{Name: "Pylint", Command: []string{"pylint", "--exit-zero"}},
			{Name: "Flake8", Command: []string{"flake8", "--exit-zero"}},
			{Name: "Bandit", Command: []string{"bandit", "-r"}},
			{Name: "Mypy", Command: []string{"mypy", "--ignore-missing-imports"}},
		},
		"javascript": {
			{Name: "ESLint", Command: []string{"eslint", "--max-warnings=0"}},
		},
		"java": {
			{Name: "Checkstyle", Command: []string{"checkstyle", "-c", "/google_checks.xml"}},
		},
		"cpp": {
			{Name: "Cppcheck", Command: []string{"cppcheck", "--enable=all", "--quiet"}},
		},
		"go": {
			{Name: "Staticcheck", Command: []string{"staticcheck"}},
		},
		"rust": {
			{Name: "Clippy", Command: []string{"cargo", "clippy", "--", "-D", "warnings"}},
		},
	}
}

// Config controls static analysis.
type Config struct {
	Enabled     bool                  `yaml:"enabled"`
	Timeout     time.Duration         `yaml:"timeout"`
	WorkDir     string                `yaml:"work_dir"`
	Parallelism int                   `yaml:"parallelism"`
	Analyzers   map[string][]Analyzer `yaml:"analyzers"`
}

// DefaultConfig enables analysis with a 120s per-tool timeout.
func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		Timeout:     120 * time.Second,
		Parallelism: defaultParallelism,
		Analyzers:   DefaultAnalyzers(),
	}
}

// Runner executes one command and returns its captured output. A non-zero
// exit status is not an error.
type Runner func(ctx context.Context, dir, name string, args ...string) (stdout, stderr string, err error)

// Option configures a StaticAnalyzer.
type Option func(*StaticAnalyzer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *StaticAnalyzer) { a.logger = l }
}

// WithRunner replaces command execution.
func WithRunner(r Runner) Option {
	return func(a *StaticAnalyzer) { a.run = r }
}

// StaticAnalyzer runs the configured analyzers for a diff.
type StaticAnalyzer struct {
	cfg    Config
	run    Runner
	logger *zap.Logger
}

// New builds a StaticAnalyzer. Missing config fields take defaults.
func New(cfg Config, opts ...Option) *StaticAnalyzer {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = def.Parallelism
	}
	if cfg.Analyzers == nil {
		cfg.Analyzers = def.Analyzers
	}
	a := &StaticAnalyzer{cfg: cfg, run: execRunner, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// LanguageFiles is the set of changed files for one language.
type LanguageFiles struct {
	Language string
	Files    []string
}

// ChangedFiles groups the post-image paths in a unified diff by language,
// in order of first appearance. Unknown extensions and deleted files are
// skipped.
func ChangedFiles(diff string) []LanguageFiles {
	var groups []LanguageFiles
	index := map[string]int{}
	seen := map[string]bool{}

	for _, m := range changedFileRe.FindAllStringSubmatch(diff, -1) {
		p := strings.TrimSpace(m[1])
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true

		ext := strings.TrimPrefix(strings.ToLower(path.Ext(p)), ".")
		lang, ok := FileLanguages[ext]
		if !ok {
			continue
		}
		i, ok := index[lang]
		if !ok {
			i = len(groups)
			index[lang] = i
			groups = append(groups, LanguageFiles{Language: lang})
		}
		groups[i].Files = append(groups[i].Files, p)
	}
	return groups
}

// Analyze runs every analyzer for the languages in diff and returns the
// aggregated report. Tool failures are reported inline, never returned.
func (a *StaticAnalyzer) Analyze(ctx context.Context, diff string) string {
	groups := ChangedFiles(diff)
	if len(groups) == 0 {
		return NoFilesMessage
	}

	type job struct {
		section  int
		analyzer Analyzer
		files    []string
	}
	sections := make([][]string, len(groups))
	var jobs []job
	for i, g := range groups {
		sections[i] = []string{fmt.Sprintf("=== Targeted Static Analysis for %s (%d files changed) ===",
			strings.ToUpper(g.Language), len(g.Files))}
		analyzers := a.cfg.Analyzers[g.Language]
		if len(analyzers) == 0 {
			sections[i] = append(sections[i], "No analyzer configured for "+g.Language)
			continue
		}
		for _, an := range analyzers {
			jobs = append(jobs, job{section: i, analyzer: an, files: g.Files})
		}
	}

	outputs := make([]string, len(jobs))
	var eg errgroup.Group
	eg.SetLimit(a.cfg.Parallelism)
	for i, j := range jobs {
		eg.Go(func() error {
			outputs[i] = a.runOne(ctx, j.analyzer, j.files)
			return nil
		})
	}
	_ = eg.Wait()

	for i, j := range jobs {
		sections[j.section] = append(sections[j.section], outputs[i])
	}

	var parts []string
	for _, s := range sections {
		parts = append(parts, s...)
	}
	return strings.Join(parts, "\n\n")
}

func (a *StaticAnalyzer) runOne(ctx context.Context, an Analyzer, files []string) string {
	if len(an.Command) == 0 {
		return fmt.Sprintf("| %s: Error running analyzer: empty command", an.Name)
	}

	runCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	args := append(append([]string{}, an.Command[1:]...), files...)
	start := time.Now()
	stdout, stderr, err := a.run(runCtx, a.cfg.WorkDir, an.Command[0], args...)
	a.logger.Debug("analyzer finished",
		zap.String("analyzer", an.Name),
		zap.Int("files", len(files)),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err))

	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return fmt.Sprintf("| %s: Execution timed out after %s.", an.Name, a.cfg.Timeout)
	case errors.Is(err, exec.ErrNotFound):
		return fmt.Sprintf("| %s: Command not found. Is the tool installed locally and in PATH?", an.Name)
	case err != nil:
		return fmt.Sprintf("| %s: Error running analyzer: %v", an.Name, err)
	}

	out := strings.TrimSpace(stdout)
	if out == "" {
		out = strings.TrimSpace(stderr)
	}
	if out == "" {
		return fmt.Sprintf("| %s: No issues found.", an.Name)
	}
	return fmt.Sprintf("| %s:\n```\n%s\n```", an.Name, out)
}

func execRunner(ctx context.Context, dir, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		err = nil
	}
	return stdout.String(), stderr.String(), err
}
