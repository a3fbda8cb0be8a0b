// Package pii detects sensitive spans in page text and attaches pixel
// geometry to them through the page's OCR words.
//
// Offsets are rune (code point) indices into the page text, end exclusive.
package pii

import (
	"context"

	"github.com/adverant/nexus/redaction-worker/internal/geometry"
)

// Entity is a typed sensitive span. Box and Words are set only when at
// least one OCR word overlaps the span.
type Entity struct {
	Type  string        `json:"entity_type"`
	Text  string        `json:"text"`
	Start *int          `json:"start,omitempty"`
	End   *int          `json:"end,omitempty"`
	Score float64       `json:"score"`
	Box   *geometry.Box `json:"bbox,omitempty"`
	Words []string      `json:"words,omitempty"`
}

// NewEntity builds an entity with a span
func NewEntity(entityType, text string, start, end int, score float64) Entity {
	return Entity{Type: entityType, Text: text, Start: &start, End: &end, Score: score}
}

// Span returns the entity offsets, and false when either is missing
func (e Entity) Span() (int, int, bool) {
	if e.Start == nil || e.End == nil {
		return 0, 0, false
	}
	return *e.Start, *e.End, true
}

// HasGeometry reports whether the entity was mapped onto words
func (e Entity) HasGeometry() bool {
	return e.Box != nil
}

// EntityRecognizer finds sensitive spans in plain text
type EntityRecognizer interface {
	Detect(ctx context.Context, text string) ([]Entity, error)
}
