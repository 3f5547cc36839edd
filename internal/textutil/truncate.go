// Package textutil holds small text helpers shared by prompt assembly and scoring.
package textutil

import "strings"

// TruncationMarker is appended to any text cut by Truncate.
const TruncationMarker = "... (Output truncated)"

// Excerpt limits used when building prompts for generation and judging.
const (
	MaxDiffChars    = 4000
	MaxReviewChars  = 4000
	MaxStaticChars  = 2000
	MaxContextChars = 2000
)

// Truncate returns text unchanged when it fits within limit bytes. Longer
// text is cut at the last newline inside the limit and marked, so excerpts
// never end mid-line. Without any newline the cut is made at the limit,
// backed off to a rune boundary.
func Truncate(text string, limit int) string {
	if limit <= 0 || len(text) <= limit {
		return text
	}

	cut := text[:limit]
	if i := strings.LastIndex(cut, "\n"); i >= 0 {
		return cut[:i] + "\n\n" + TruncationMarker
	}

	for limit > 0 && !utf8RuneStart(text[limit]) {
		limit--
	}
	return text[:limit] + " " + TruncationMarker
}

func utf8RuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
