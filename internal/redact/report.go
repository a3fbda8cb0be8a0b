package redact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adverant/nexus/redaction-worker/internal/ocr"
	"github.com/adverant/nexus/redaction-worker/internal/pii"
)

// RedactedPage is the redaction outcome for one page
type RedactedPage struct {
	PageNum           int        `json:"page_num"`
	Status            ocr.Status `json:"status"`
	Message           string     `json:"message,omitempty"`
	RedactionCount    int        `json:"redactions"`
	RedactedAreas     []Area     `json:"redacted_areas"`
	RedactedText      *string    `json:"redacted_text,omitempty"`
	RedactedImagePath string     `json:"redacted_image_path,omitempty"`
}

// ReportSummary is the document-level part of the report
type ReportSummary struct {
	TotalPages      int             `json:"total_pages"`
	TotalRedactions int             `json:"total_redactions"`
	Sensitivity     pii.Sensitivity `json:"sensitivity"`
	EntityTypes     []string        `json:"entity_types"`
	EntityCount     int             `json:"entity_count"`
}

// Report aggregates every page's redaction result
type Report struct {
	DocumentID  string         `json:"document_id"`
	GeneratedAt time.Time      `json:"generated_at"`
	Color       string         `json:"color"`
	Summary     ReportSummary  `json:"summary"`
	Pages       []RedactedPage `json:"pages"`
}

// NewReport assembles a report from finished pages and the PII summary
func NewReport(documentID, colorName string, pages []RedactedPage, summary pii.Summary) *Report {
	total := 0
	for _, p := range pages {
		total += len(p.RedactedAreas)
	}
	types := summary.EntityTypes
	if types == nil {
		types = []string{}
	}
	return &Report{
		DocumentID:  documentID,
		GeneratedAt: time.Now().UTC(),
		Color:       colorName,
		Summary: ReportSummary{
			TotalPages:      len(pages),
			TotalRedactions: total,
			Sensitivity:     summary.Sensitivity,
			EntityTypes:     types,
			EntityCount:     summary.EntityCount,
		},
		Pages: pages,
	}
}

// Validate checks the report's counting invariants
func (r *Report) Validate() error {
	sum := 0
	for _, p := range r.Pages {
		if p.RedactionCount != len(p.RedactedAreas) {
			return fmt.Errorf("page %d: redactions=%d but %d areas", p.PageNum, p.RedactionCount, len(p.RedactedAreas))
		}
		sum += len(p.RedactedAreas)
	}
	if sum != r.Summary.TotalRedactions {
		return fmt.Errorf("total_redactions=%d but pages sum to %d", r.Summary.TotalRedactions, sum)
	}
	if len(r.Pages) != r.Summary.TotalPages {
		return fmt.Errorf("total_pages=%d but %d pages", r.Summary.TotalPages, len(r.Pages))
	}
	return nil
}

// PagesWithStatus counts pages in the given status
func (r *Report) PagesWithStatus(status ocr.Status) int {
	n := 0
	for _, p := range r.Pages {
		if p.Status == status {
			n++
		}
	}
	return n
}

// WriteReport writes the report as indented JSON
func WriteReport(report *Report, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadReport loads a report written by WriteReport
func ReadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &r, nil
}
