// Package features turns a unified diff into the fixed-length numeric vector
// consumed by the strategy selector. Extraction is pure and total: any string,
// including the empty one, yields a vector of the same length and order.
package features

import (
	"regexp"
	"strings"
)

// Names lists the vector components in the order produced by Features.Vector.
var Names = []string{
	"num_lines",
	"num_files",
	"additions",
	"deletions",
	"net_changes",
	"has_comments",
	"has_functions",
	"has_imports",
	"has_test",
	"has_docs",
	"has_config",
	"is_python",
	"is_js",
	"is_java",
	"is_go",
}

// Len is the length of every vector returned by Features.Vector.
var Len = len(Names)

var (
	fileHeaderRe = regexp.MustCompile(`(?m)^diff --git`)
	additionRe   = regexp.MustCompile(`(?m)^\+`)
	deletionRe   = regexp.MustCompile(`(?m)^-`)
	commentRe    = regexp.MustCompile(`(?s)#.*|//.*|/\*.*?\*/`)
	functionRe   = regexp.MustCompile(`(?i)def\s+\w+|\bfunction\b|\bfunc\b`)
	importRe     = regexp.MustCompile(`(?m)^import\s|^from\s|^#include`)
	testRe       = regexp.MustCompile(`(?i)test|spec|unittest`)
	docsRe       = regexp.MustCompile(`(?i)readme|doc|comment|documentation`)
	configRe     = regexp.MustCompile(`(?im)\.json$|\.ya?ml$|\.xml$|\.conf`)
	pythonRe     = regexp.MustCompile(`(?im)\.py$`)
	jsRe         = regexp.MustCompile(`(?im)\.js$|\.ts$`)
	javaRe       = regexp.MustCompile(`(?im)\.java$`)
	goRe         = regexp.MustCompile(`(?im)\.go$`)
)

// Features holds the raw extracted values. Count fields are occurrences,
// Has/Is fields are indicators.
type Features struct {
	NumLines     int  `json:"num_lines"`
	NumFiles     int  `json:"num_files"`
	Additions    int  `json:"additions"`
	Deletions    int  `json:"deletions"`
	NetChanges   int  `json:"net_changes"`
	HasComments  bool `json:"has_comments"`
	HasFunctions bool `json:"has_functions"`
	HasImports   bool `json:"has_imports"`
	HasTest      bool `json:"has_test"`
	HasDocs      bool `json:"has_docs"`
	HasConfig    bool `json:"has_config"`
	IsPython     bool `json:"is_python"`
	IsJS         bool `json:"is_js"`
	IsJava       bool `json:"is_java"`
	IsGo         bool `json:"is_go"`
}

// Extract computes every feature independently over the raw text.
func Extract(text string) Features {
	additions := len(additionRe.FindAllStringIndex(text, -1))
	deletions := len(deletionRe.FindAllStringIndex(text, -1))

	return Features{
		NumLines:     strings.Count(text, "\n") + 1,
		NumFiles:     len(fileHeaderRe.FindAllStringIndex(text, -1)),
		Additions:    additions,
		Deletions:    deletions,
		NetChanges:   additions - deletions,
		HasComments:  commentRe.MatchString(text),
		HasFunctions: functionRe.MatchString(text),
		HasImports:   importRe.MatchString(text),
		HasTest:      testRe.MatchString(text),
		HasDocs:      docsRe.MatchString(text),
		HasConfig:    configRe.MatchString(text),
		IsPython:     pythonRe.MatchString(text),
		IsJS:         jsRe.MatchString(text),
		IsJava:       javaRe.MatchString(text),
		IsGo:         goRe.MatchString(text),
	}
}

// Vector returns the features as floats in Names order.
func (f Features) Vector() []float64 {
	return []float64{
		float64(f.NumLines),
		float64(f.NumFiles),
		float64(f.Additions),
		float64(f.Deletions),
		float64(f.NetChanges),
		indicator(f.HasComments),
		indicator(f.HasFunctions),
		indicator(f.HasImports),
		indicator(f.HasTest),
		indicator(f.HasDocs),
		indicator(f.HasConfig),
		indicator(f.IsPython),
		indicator(f.IsJS),
		indicator(f.IsJava),
		indicator(f.IsGo),
	}
}

// Map returns the features keyed by name, for logs and result records.
func (f Features) Map() map[string]float64 {
	v := f.Vector()
	m := make(map[string]float64, len(v))
	for i, name := range Names {
		m[name] = v[i]
	}
	return m
}

func indicator(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
