package analysis

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const multiDiff = `diff --git a/app/main.py b/app/main.py
--- a/app/main.py
+++ b/app/main.py
@@ -1 +1,2 @@
+import os
diff --git a/web/App.TSX b/web/App.TSX
--- /dev/null
+++ b/web/App.TSX
@@ -0,0 +1 @@
+export default 1
diff --git a/README.md b/README.md
--- a/README.md
+++ b/README.md
@@ -1 +1 @@
-old
+new
diff --git a/app/util.py b/app/util.py
--- a/app/util.py
+++ b/app/util.py
@@ -1 +1 @@
-x = 1
+x = 2
`

func TestChangedFiles(t *testing.T) {
	got := ChangedFiles(multiDiff)
	require.Len(t, got, 2)
	assert.Equal(t, LanguageFiles{Language: "python", Files: []string{"app/main.py", "app/util.py"}}, got[0])
	assert.Equal(t, LanguageFiles{Language: "javascript", Files: []string{"web/App.TSX"}}, got[1])

	assert.Empty(t, ChangedFiles("no diff here"))
}

type call struct {
	name string
	args []string
}

type fakeRunner struct {
	mu      sync.Mutex
	calls   []call
	results map[string]func(ctx context.Context) (string, string, error)
}

func (f *fakeRunner) run(ctx context.Context, _ string, name string, args ...string) (string, string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{name, args})
	fn := f.results[name]
	f.mu.Unlock()
	if fn == nil {
		return "", "", nil
	}
	return fn(ctx)
}

func TestAnalyze_Report(t *testing.T) {
	fr := &fakeRunner{results: map[string]func(context.Context) (string, string, error){
		"pylint": func(context.Context) (string, string, error) {
			return "app/main.py:1:0: W0611 unused import os\n", "", nil
		},
		"flake8": func(context.Context) (string, string, error) { return "", "", nil },
		"bandit": func(context.Context) (string, string, error) { return "", "bandit warning on stderr", nil },
		"mypy": func(context.Context) (string, string, error) {
			return "", "", fmt.Errorf("exec: \"mypy\": %w", exec.ErrNotFound)
		},
	}}
	a := New(DefaultConfig(), WithRunner(fr.run))

	report := a.Analyze(context.Background(), multiDiff)

	assert.Contains(t, report, "=== Targeted Static Analysis for PYTHON (2 files changed) ===")
	assert.Contains(t, report, "| Pylint:\n```\napp/main.py:1:0: W0611 unused import os\n```")
	assert.Contains(t, report, "| Flake8: No issues found.")
	assert.Contains(t, report, "| Bandit:\n```\nbandit warning on stderr\n```")
	assert.Contains(t, report, "| Mypy: Command not found.")
	assert.Contains(t, report, "=== Targeted Static Analysis for JAVASCRIPT (1 files changed) ===")
	assert.Contains(t, report, "| ESLint: No issues found.")

	// Sections keep configuration order regardless of completion order.
	assert.Less(t, strings.Index(report, "Pylint"), strings.Index(report, "Mypy"))
	assert.Less(t, strings.Index(report, "Mypy"), strings.Index(report, "JAVASCRIPT"))

	for _, c := range fr.calls {
		if c.name == "pylint" {
			assert.Equal(t, []string{"--exit-zero", "app/main.py", "app/util.py"}, c.args)
		}
	}
}

func TestAnalyze_Timeout(t *testing.T) {
	fr := &fakeRunner{results: map[string]func(context.Context) (string, string, error){
		"staticcheck": func(ctx context.Context) (string, string, error) {
			<-ctx.Done()
			return "", "", ctx.Err()
		},
	}}
	cfg := DefaultConfig()
	cfg.Timeout = 10 * time.Millisecond
	a := New(cfg, WithRunner(fr.run))

	report := a.Analyze(context.Background(), "+++ b/main.go\n")
	assert.Contains(t, report, "| Staticcheck: Execution timed out after 10ms.")
}

func TestAnalyze_NoFilesAndUnconfigured(t *testing.T) {
	a := New(Config{Analyzers: map[string][]Analyzer{}})
	assert.Equal(t, NoFilesMessage, a.Analyze(context.Background(), "+++ b/notes.txt\n"))

	report := a.Analyze(context.Background(), "+++ b/lib.rs\n")
	assert.Contains(t, report, "No analyzer configured for rust")
}

func TestExecRunner_MissingBinary(t *testing.T) {
	a := New(Config{Analyzers: map[string][]Analyzer{
		"go": {{Name: "Ghost", Command: []string{"prselect-no-such-tool-xyz"}}},
	}})
	report := a.Analyze(context.Background(), "+++ b/main.go\n")
	assert.Contains(t, report, "| Ghost: Command not found.")
}
