package layout

import (
	"strings"

	"github.com/adverant/nexus/redaction-worker/internal/geometry"
	"github.com/adverant/nexus/redaction-worker/internal/ocr"
)

// FormField is a label/value pair found on one line
type FormField struct {
	Label string       `json:"field"`
	Value string       `json:"value"`
	Box   geometry.Box `json:"bbox"`
}

// DefaultLabelVocabulary lists bare words treated as labels without a colon
var DefaultLabelVocabulary = []string{"name", "address", "phone", "email", "date", "id"}

// FormFieldDetector finds label/value pairs line by line
type FormFieldDetector struct {
	lineTolerance int
	vocabulary    map[string]struct{}
}

// NewFormFieldDetector creates a detector. An empty vocabulary falls back
// to DefaultLabelVocabulary.
func NewFormFieldDetector(opts Options) *FormFieldDetector {
	vocab := opts.LabelVocabulary
	if len(vocab) == 0 {
		vocab = DefaultLabelVocabulary
	}
	set := make(map[string]struct{}, len(vocab))
	for _, v := range vocab {
		set[strings.ToLower(v)] = struct{}{}
	}
	return &FormFieldDetector{lineTolerance: opts.LineTolerance, vocabulary: set}
}

// IsLabel reports whether a token reads as a field label
func (d *FormFieldDetector) IsLabel(text string) bool {
	if strings.HasSuffix(text, ":") {
		return true
	}
	_, ok := d.vocabulary[strings.ToLower(text)]
	return ok
}

// Detect returns every field on the page. Each label on a line takes the
// rest of that line as its value, so fields on one line may overlap.
func (d *FormFieldDetector) Detect(words []ocr.Word) []FormField {
	var fields []FormField
	for _, line := range GroupRows(words, d.lineTolerance) {
		fields = append(fields, d.detectLine(line.Words)...)
	}
	return fields
}

func (d *FormFieldDetector) detectLine(words []ocr.Word) []FormField {
	var fields []FormField
	for i := 0; i < len(words)-1; i++ {
		if !d.IsLabel(words[i].Text) {
			continue
		}
		rest := words[i+1:]
		values := make([]string, len(rest))
		for j, w := range rest {
			values[j] = w.Text
		}
		box, _ := geometry.UnionAll(wordBoxes(words[i:])...)
		fields = append(fields, FormField{
			Label: strings.TrimRight(words[i].Text, ":"),
			Value: strings.Join(values, " "),
			Box:   box,
		})
	}
	return fields
}
