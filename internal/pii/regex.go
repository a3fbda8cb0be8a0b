package pii

import (
	"context"
	"regexp"
	"sort"
	"unicode/utf8"
)

// Pattern binds an entity type to the expression that finds it
type Pattern struct {
	Type string
	Expr *regexp.Regexp
}

// DefaultPatterns covers common US identifiers and contact details
var DefaultPatterns = []Pattern{
	{"US_SSN", regexp.MustCompile(`\b\d{3}-?\d{2}-?\d{4}\b`)},
	{"CREDIT_CARD", regexp.MustCompile(`\b(?:\d{4}-?\d{4}-?\d{4}-?\d{4}|\d{4}-?\d{6}-?\d{5})\b`)},
	{"PHONE_NUMBER", regexp.MustCompile(`(?:\+\d{1,2}\s)?(?:\(\d{3}\)|\b\d{3})[-.\s]?\d{3}[-.\s]?\d{4}\b`)},
	{"EMAIL_ADDRESS", regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
	{"DATE", regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`)},
	{"IP_ADDRESS", regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)},
	{"US_DRIVER_LICENSE", regexp.MustCompile(`\b[A-Z]\d{7}\b`)},
}

// RegexRecognizer is a deterministic EntityRecognizer driven by patterns.
// Every match scores 1.0.
type RegexRecognizer struct {
	patterns []Pattern
}

// NewRegexRecognizer creates a recognizer; nil patterns means DefaultPatterns
func NewRegexRecognizer(patterns []Pattern) *RegexRecognizer {
	if patterns == nil {
		patterns = DefaultPatterns
	}
	return &RegexRecognizer{patterns: patterns}
}

// Detect returns every match ordered by start offset, then type
func (r *RegexRecognizer) Detect(ctx context.Context, text string) ([]Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	runeAt := runeOffsets(text)
	var entities []Entity
	for _, p := range r.patterns {
		for _, loc := range p.Expr.FindAllStringIndex(text, -1) {
			entities = append(entities, NewEntity(p.Type, text[loc[0]:loc[1]], runeAt[loc[0]], runeAt[loc[1]], 1.0))
		}
	}

	sort.SliceStable(entities, func(i, j int) bool {
		if *entities[i].Start != *entities[j].Start {
			return *entities[i].Start < *entities[j].Start
		}
		return entities[i].Type < entities[j].Type
	})
	return entities, nil
}

// runeOffsets maps every byte offset that starts a rune (and len(text))
// to its rune index
func runeOffsets(text string) map[int]int {
	out := make(map[int]int, len(text)+1)
	i := 0
	for b := range text {
		out[b] = i
		i++
	}
	out[len(text)] = utf8.RuneCountInString(text)
	return out
}
