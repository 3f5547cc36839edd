// Package state persists the selector's learned state. A Document is the
// on-disk form; stores write and read whole documents.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/Yates-Labs/prselect/internal/engine"
)

var (
	ErrNotFound = errors.New("no saved state")
	ErrCorrupt  = errors.New("saved state is corrupt")
)

// DocumentVersion is bumped when the document layout changes incompatibly.
const DocumentVersion = 1

// Document is the persisted selector state.
type Document struct {
	Version      int                  `json:"version"`
	History      []engine.Observation `json:"history"`
	SampleCount  int                  `json:"sample_count"`
	Trained      bool                 `json:"trained"`
	ModelKind    string               `json:"model_kind"`
	ModelParams  *engine.Params       `json:"model_params"`
	Scaler       *engine.Scaler       `json:"scaler"`
	Strategies   []string             `json:"strategies,omitempty"`
	FeatureNames []string             `json:"feature_names,omitempty"`
	SavedAt      time.Time            `json:"saved_at"`
}

// Store saves and loads documents.
type Store interface {
	Save(ctx context.Context, doc Document) error
	// Load returns ErrNotFound when nothing was saved and ErrCorrupt when
	// the saved data cannot be decoded.
	Load(ctx context.Context) (Document, error)
	Close() error
}

// FromSnapshot builds a document from selector state.
func FromSnapshot(snap engine.Snapshot, strategies, featureNames []string) Document {
	return Document{
		Version:      DocumentVersion,
		History:      snap.History,
		SampleCount:  snap.SampleCount,
		Trained:      snap.Trained,
		ModelKind:    snap.ModelKind,
		ModelParams:  snap.Model,
		Scaler:       snap.Scaler,
		Strategies:   slices.Clone(strategies),
		FeatureNames: slices.Clone(featureNames),
		SavedAt:      time.Now().UTC(),
	}
}

// Snapshot converts the document for engine.Selector.Restore. When the
// document was saved against a different catalog, strategy indices are
// remapped by name and learned parameters are dropped, since the strategy
// column no longer means the same thing. Observations of strategies that no
// longer exist get index -1 and are skipped by Restore.
func (d Document) Snapshot(current []string) engine.Snapshot {
	snap := engine.Snapshot{
		History:     d.History,
		SampleCount: d.SampleCount,
		Trained:     d.Trained,
		Scaler:      d.Scaler,
		ModelKind:   d.ModelKind,
		Model:       d.ModelParams,
	}
	if len(d.Strategies) == 0 || slices.Equal(d.Strategies, current) {
		return snap
	}

	pos := make(map[string]int, len(current))
	for i, name := range current {
		pos[name] = i
	}
	remapped := make([]engine.Observation, len(d.History))
	for i, o := range d.History {
		o.StrategyIndex = -1
		if d.History[i].StrategyIndex >= 0 && d.History[i].StrategyIndex < len(d.Strategies) {
			if idx, ok := pos[d.Strategies[d.History[i].StrategyIndex]]; ok {
				o.StrategyIndex = idx
			}
		}
		remapped[i] = o
	}
	snap.History = remapped
	snap.Model = nil
	snap.Trained = false
	return snap
}

// Encode renders the document as indented JSON.
func Encode(doc Document) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return data, nil
}

// Decode parses a document. Any decoding problem is reported as ErrCorrupt.
func Decode(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if doc.Version > DocumentVersion {
		return Document{}, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, doc.Version)
	}
	if doc.SampleCount < 0 {
		return Document{}, fmt.Errorf("%w: negative sample count", ErrCorrupt)
	}
	return doc, nil
}
