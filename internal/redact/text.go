package redact

import (
	"fmt"
	"sort"

	"github.com/adverant/nexus/redaction-worker/internal/pii"
)

// Marker is the literal that replaces a redacted span
func Marker(entityType string) string {
	return fmt.Sprintf("[REDACTED_%s]", entityType)
}

type span struct {
	start, end int
	entityType string
}

// RedactText replaces every entity span with its marker. Entities without
// offsets are skipped. Overlapping spans are merged under the type of the
// span that starts first (the longer one on ties), so no character of an
// outer span survives. Splices run from the highest offset down so earlier
// offsets stay valid.
//
// On any failure the original text is returned together with the error;
// a partially redacted string is never returned.
func RedactText(text string, entities []pii.Entity) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = text, fmt.Errorf("text redaction aborted: %v", r)
		}
	}()

	runes := []rune(text)
	spans := make([]span, 0, len(entities))
	for _, e := range entities {
		start, end, ok := e.Span()
		if !ok {
			continue
		}
		if start < 0 || end < start || end > len(runes) {
			return text, fmt.Errorf("entity %s has invalid span [%d:%d) for text of length %d", e.Type, start, end, len(runes))
		}
		if start == end {
			continue
		}
		spans = append(spans, span{start: start, end: end, entityType: e.Type})
	}
	if len(spans) == 0 {
		return text, nil
	}

	merged := mergeSpans(spans)
	for i := len(merged) - 1; i >= 0; i-- {
		s := merged[i]
		marker := []rune(Marker(s.entityType))
		tail := append(marker, runes[s.end:]...)
		runes = append(runes[:s.start], tail...)
	}
	return string(runes), nil
}

// mergeSpans sorts spans ascending and folds overlapping ones together
func mergeSpans(spans []span) []span {
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end > spans[j].end
	})

	out := []span{spans[0]}
	for _, s := range spans[1:] {
		last := &out[len(out)-1]
		if s.start < last.end {
			last.end = max(last.end, s.end)
			continue
		}
		out = append(out, s)
	}
	return out
}
