package features

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

const sampleDiff = `diff --git a/app/main.py b/app/main.py
--- a/app/main.py
+++ b/app/main.py
@@ -1,3 +1,4 @@
 import os
+import logging
-def old():
+def handler(event):
+    # handle the event
+    return event
diff --git a/config.yaml b/config.yaml
--- a/config.yaml
+++ b/config.yaml
@@ -1 +1 @@
-debug: true
+debug: false`

func TestExtractEmpty(t *testing.T) {
	got := Extract("").Vector()
	want := make([]float64, Len)
	want[0] = 1

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("empty input vector mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractDeterministic(t *testing.T) {
	first := Extract(sampleDiff).Vector()
	for i := 0; i < 5; i++ {
		if diff := cmp.Diff(first, Extract(sampleDiff).Vector()); diff != "" {
			t.Fatalf("extraction not deterministic (-first +again):\n%s", diff)
		}
	}
}

func TestExtractSampleDiff(t *testing.T) {
	f := Extract(sampleDiff)

	tests := []struct {
		name string
		got  int
		want int
	}{
		{"num_lines", f.NumLines, 16},
		{"num_files", f.NumFiles, 2},
		// +++ and --- headers count as additions and deletions.
		{"additions", f.Additions, 7},
		{"deletions", f.Deletions, 4},
		{"net_changes", f.NetChanges, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %d, want %d", tt.name, tt.got, tt.want)
			}
		})
	}

	flags := map[string]bool{
		"has_comments":  f.HasComments,
		"has_functions": f.HasFunctions,
		"has_config":    f.HasConfig,
		"is_python":     f.IsPython,
	}
	for name, v := range flags {
		if !v {
			t.Errorf("expected %s to be set", name)
		}
	}
	if f.IsJava || f.IsJS || f.IsGo {
		t.Errorf("unexpected language indicators: java=%v js=%v go=%v", f.IsJava, f.IsJS, f.IsGo)
	}
}

func TestExtractIndicators(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		check func(Features) bool
	}{
		{"go file", "+++ b/internal/server.go\n+func main() {}", func(f Features) bool { return f.IsGo && f.HasFunctions }},
		{"typescript", "+++ b/web/app.ts", func(f Features) bool { return f.IsJS }},
		{"java", "+++ b/src/Main.java", func(f Features) bool { return f.IsJava }},
		{"tests", "+++ b/pkg/parser_test.go", func(f Features) bool { return f.HasTest }},
		{"docs", "+++ b/README.md", func(f Features) bool { return f.HasDocs }},
		{"c include", "#include <stdio.h>", func(f Features) bool { return f.HasImports }},
		{"block comment", "/* multi\nline */", func(f Features) bool { return f.HasComments }},
		{"no indicators", "plain words only", func(f Features) bool {
			return !f.HasComments && !f.HasFunctions && !f.HasImports && !f.HasConfig
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(Extract(tt.text)) {
				t.Errorf("indicator check failed for %q: %+v", tt.text, Extract(tt.text))
			}
		})
	}
}

func TestVectorMatchesNames(t *testing.T) {
	f := Extract(sampleDiff)
	v := f.Vector()
	if len(v) != len(Names) {
		t.Fatalf("vector length %d, names %d", len(v), len(Names))
	}
	m := f.Map()
	for i, name := range Names {
		if m[name] != v[i] {
			t.Errorf("Map()[%q] = %v, vector[%d] = %v", name, m[name], i, v[i])
		}
	}
}
