package rag

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// MaxDocumentBytes bounds the size of a single loaded file.
const MaxDocumentBytes = 1 << 20

// DefaultStandardsSource names the built-in standards document.
const DefaultStandardsSource = "DEFAULT_CODING_STANDARDS"

// DefaultStandards is indexed when no standards file is supplied.
const DefaultStandards = `# Engineering Coding Standards

## Python
- All functions must have type hints.
- Use black for formatting.
- All public functions must have a docstring explaining args, returns, and raises.
- Avoid global variables. Pass state explicitly.

## General
- PRs should be small and focused.
- Always include unit tests for new logic.
- Do not commit secrets. Use .env files.
`

var skippedDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
}

// LoadDirectory reads every text file under root as a Document whose
// Source is the slash-separated path relative to root. Hidden and vendored
// directories, binaries and files over MaxDocumentBytes are skipped.
func LoadDirectory(root string) ([]Document, error) {
	var docs []Document
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && (skippedDirs[d.Name()] || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil || info.Size() > MaxDocumentBytes {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		if IsBinary(data) {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		docs = append(docs, Document{Source: filepath.ToSlash(rel), Text: string(data)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", root, err)
	}
	return docs, nil
}

// LoadStandards reads the standards file at path, falling back to
// DefaultStandards when path is empty or unreadable.
func LoadStandards(path string) Document {
	if path != "" {
		if data, err := os.ReadFile(path); err == nil && len(bytes.TrimSpace(data)) > 0 {
			return Document{Source: filepath.Base(path), Text: string(data)}
		}
	}
	return Document{Source: DefaultStandardsSource, Text: DefaultStandards}
}

// IsBinary reports whether data looks like a binary file.
func IsBinary(data []byte) bool {
	if len(data) > 8000 {
		data = data[:8000]
	}
	return bytes.IndexByte(data, 0) >= 0
}
