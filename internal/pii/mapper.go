package pii

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/adverant/nexus/redaction-worker/internal/geometry"
	"github.com/adverant/nexus/redaction-worker/internal/ocr"
)

// CharToWordMap maps rune offsets of the page text to word indices.
// Offsets not covered by a word are absent.
type CharToWordMap map[int]int

// BuildCharToWordMap aligns words (in recognizer order) with the text by a
// forward search from a moving cursor. Words that cannot be found from the
// cursor onward are skipped and leave the cursor in place.
func BuildCharToWordMap(text string, words []ocr.Word) CharToWordMap {
	m := make(CharToWordMap)
	byteCursor, runeCursor := 0, 0

	for idx, w := range words {
		if w.Text == "" {
			continue
		}
		rel := strings.Index(text[byteCursor:], w.Text)
		if rel < 0 {
			continue
		}

		start := runeCursor + utf8.RuneCountInString(text[byteCursor:byteCursor+rel])
		length := utf8.RuneCountInString(w.Text)
		for i := start; i < start+length; i++ {
			m[i] = idx
		}

		byteCursor += rel + len(w.Text)
		runeCursor = start + length
	}
	return m
}

// MapEntity attaches the union box and word texts of every word the
// entity's span touches. Entities without a span, or whose span covers no
// mapped offset, come back unchanged. The cost is bounded by the smaller of
// the span and the map, whatever offsets the recognizer reports.
func MapEntity(e Entity, charMap CharToWordMap, words []ocr.Word) Entity {
	start, end, ok := e.Span()
	if !ok {
		return e
	}
	if start < 0 {
		start = 0
	}

	seen := make(map[int]struct{})
	touch := func(offset int) {
		if idx, ok := charMap[offset]; ok && idx >= 0 && idx < len(words) {
			seen[idx] = struct{}{}
		}
	}
	if end-start > len(charMap) {
		for offset := range charMap {
			if offset >= start && offset < end {
				touch(offset)
			}
		}
	} else {
		for i := start; i < end; i++ {
			touch(i)
		}
	}
	if len(seen) == 0 {
		return e
	}

	indices := make([]int, 0, len(seen))
	for idx := range seen {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	boxes := make([]geometry.Box, len(indices))
	texts := make([]string, len(indices))
	for i, idx := range indices {
		boxes[i] = words[idx].Box
		texts[i] = words[idx].Text
	}
	box, _ := geometry.UnionAll(boxes...)

	e.Box = &box
	e.Words = texts
	return e
}

// MapEntitiesToGeometry maps every entity against the page text and words.
// Several entities may map onto the same words.
func MapEntitiesToGeometry(text string, words []ocr.Word, entities []Entity) []Entity {
	charMap := BuildCharToWordMap(text, words)
	out := make([]Entity, len(entities))
	for i, e := range entities {
		out[i] = MapEntity(e, charMap, words)
	}
	return out
}
