package rag

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

// Chunking parameters, in characters.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 100

	// MinChunkSize is the smallest chunk size accepted from configuration.
	MinChunkSize = 100
)

// separators are tried in order; the empty separator cuts between runes.
var separators = []string{"\n\n", "\n", " ", ""}

// SplitText cuts text into chunks of at most size characters, with
// consecutive chunks sharing up to overlap characters. Cuts prefer
// paragraph, then line, then word boundaries. Whitespace-only chunks are
// dropped.
func SplitText(text string, size, overlap int) ([]string, error) {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(size),
		textsplitter.WithChunkOverlap(overlap),
		textsplitter.WithSeparators(separators),
	)
	parts, err := splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("split text: %w", err)
	}

	chunks := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			chunks = append(chunks, p)
		}
	}
	return chunks, nil
}
