package reward

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoStructuredData means the text contains no '{' at all.
	ErrNoStructuredData = errors.New("no JSON object in evaluator output")

	// ErrUnparsable means candidate objects exist but none decode.
	ErrUnparsable = errors.New("could not parse JSON from evaluator output")
)

// ParseError carries the raw evaluator text alongside the failure kind.
type ParseError struct {
	Kind error
	Raw  string
}

func (e *ParseError) Error() string {
	return e.Kind.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Kind
}

// ExtractJSONObject pulls the first JSON object out of free-form model output.
// The whole trimmed text is tried first, then every balanced {...} block from
// left to right; the first block that decodes to an object wins.
func ExtractJSONObject(text string) (map[string]any, error) {
	trimmed := strings.TrimSpace(text)
	if obj, ok := decodeObject(trimmed); ok {
		return obj, nil
	}

	if !strings.Contains(text, "{") {
		return nil, &ParseError{Kind: ErrNoStructuredData, Raw: text}
	}

	for start := strings.IndexByte(text, '{'); start >= 0; {
		if end := matchingBrace(text, start); end > start {
			if obj, ok := decodeObject(text[start : end+1]); ok {
				return obj, nil
			}
		}

		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}

	return nil, &ParseError{Kind: ErrUnparsable, Raw: text}
}

func decodeObject(s string) (map[string]any, bool) {
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

// matchingBrace returns the index of the '}' closing the '{' at start, or -1.
// Braces inside JSON strings are ignored.
func matchingBrace(s string, start int) int {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// describeParseFailure renders a parse failure for logs and records.
func describeParseFailure(err error) string {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe.Kind.Error()
	}
	return fmt.Sprint(err)
}
