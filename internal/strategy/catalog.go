// Package strategy defines the ordered catalog of review strategies. A
// strategy is a named instruction template; the selector only ever sees its
// name and its position in the catalog.
package strategy

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	ErrEmptyCatalog  = errors.New("strategy catalog is empty")
	ErrDuplicateName = errors.New("duplicate strategy name")
	ErrUnknown       = errors.New("unknown strategy")
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Strategy is one review instruction template.
type Strategy struct {
	Name         string `yaml:"name"`
	System       string `yaml:"system"`
	Instructions string `yaml:"instructions"`
	// Suffix is appended after the diff and context block.
	Suffix string `yaml:"suffix,omitempty"`
}

// Catalog is an ordered, non-empty list of uniquely named strategies.
type Catalog struct {
	strategies []Strategy
	index      map[string]int
}

type catalogFile struct {
	Strategies []Strategy `yaml:"strategies"`
}

// New validates and indexes strategies.
func New(strategies []Strategy) (*Catalog, error) {
	if len(strategies) == 0 {
		return nil, ErrEmptyCatalog
	}
	c := &Catalog{
		strategies: make([]Strategy, len(strategies)),
		index:      make(map[string]int, len(strategies)),
	}
	for i, s := range strategies {
		s.Name = strings.TrimSpace(s.Name)
		if s.Name == "" {
			return nil, fmt.Errorf("strategy %d has no name", i)
		}
		if strings.TrimSpace(s.Instructions) == "" {
			return nil, fmt.Errorf("strategy %q has no instructions", s.Name)
		}
		if _, dup := c.index[s.Name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateName, s.Name)
		}
		c.index[s.Name] = i
		c.strategies[i] = s
	}
	return c, nil
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Parse(defaultsYAML)
	if err != nil {
		panic(fmt.Sprintf("built-in strategy catalog is invalid: %v", err))
	}
	return c
}

// Parse reads a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse strategy catalog: %w", err)
	}
	return New(f.Strategies)
}

// LoadFile reads a YAML catalog from path. An empty path yields the default.
func LoadFile(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read strategy catalog: %w", err)
	}
	return Parse(data)
}

// Len is the number of strategies.
func (c *Catalog) Len() int {
	return len(c.strategies)
}

// Names returns strategy names in catalog order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.strategies))
	for i, s := range c.strategies {
		names[i] = s.Name
	}
	return names
}

// Index returns the position of name.
func (c *Catalog) Index(name string) (int, bool) {
	i, ok := c.index[name]
	return i, ok
}

// Lookup returns the strategy called name.
func (c *Catalog) Lookup(name string) (Strategy, error) {
	i, ok := c.index[name]
	if !ok {
		return Strategy{}, fmt.Errorf("%w: %q", ErrUnknown, name)
	}
	return c.strategies[i], nil
}

// All returns a copy of the strategies in order.
func (c *Catalog) All() []Strategy {
	return append([]Strategy(nil), c.strategies...)
}
