package pii

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/adverant/nexus/redaction-worker/internal/errors"
	"github.com/adverant/nexus/redaction-worker/internal/logging"
	"github.com/adverant/nexus/redaction-worker/internal/ocr"
)

// Sensitivity is a coarse document classification by entity count
type Sensitivity string

const (
	SensitivityLow    Sensitivity = "low"
	SensitivityMedium Sensitivity = "medium"
	SensitivityHigh   Sensitivity = "high"
)

// mediumLimit is the entity count at which a document becomes high
const mediumLimit = 5

// ClassifySensitivity maps a document-wide entity count to a sensitivity
func ClassifySensitivity(entityCount int) Sensitivity {
	switch {
	case entityCount <= 0:
		return SensitivityLow
	case entityCount < mediumLimit:
		return SensitivityMedium
	default:
		return SensitivityHigh
	}
}

// PageResult holds the entities found on one page
type PageResult struct {
	PageNum  int        `json:"page_num"`
	Status   ocr.Status `json:"status"`
	Entities []Entity   `json:"entities"`
	Message  string     `json:"message,omitempty"`
}

// Summary aggregates entities across the whole document
type Summary struct {
	Sensitivity Sensitivity `json:"sensitivity"`
	EntityCount int         `json:"entity_count"`
	EntityTypes []string    `json:"entity_types"`
}

// Result is the PII pass over a document
type Result struct {
	Status  ocr.Status   `json:"status"`
	Pages   []PageResult `json:"pages"`
	Summary Summary      `json:"summary"`
}

// Page returns the result for a page number, or nil
func (r *Result) Page(num int) *PageResult {
	if r == nil {
		return nil
	}
	for i := range r.Pages {
		if r.Pages[i].PageNum == num {
			return &r.Pages[i]
		}
	}
	return nil
}

// Summarize computes the document summary from a set of page results
func Summarize(pages []PageResult) Summary {
	types := make(map[string]struct{})
	count := 0
	for _, p := range pages {
		if p.Status != ocr.StatusSuccess {
			continue
		}
		count += len(p.Entities)
		for _, e := range p.Entities {
			types[e.Type] = struct{}{}
		}
	}

	sorted := make([]string, 0, len(types))
	for t := range types {
		sorted = append(sorted, t)
	}
	sort.Strings(sorted)

	return Summary{Sensitivity: ClassifySensitivity(count), EntityCount: count, EntityTypes: sorted}
}

// Detector runs an EntityRecognizer over OCR pages and maps the findings
// onto word geometry
type Detector struct {
	recognizer  EntityRecognizer
	concurrency int
	logger      *logging.Logger
}

// NewDetector creates a detector. concurrency bounds parallel pages.
func NewDetector(recognizer EntityRecognizer, concurrency int) *Detector {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Detector{recognizer: recognizer, concurrency: concurrency, logger: logging.NewLogger("pii")}
}

// DetectDocument processes every OCR page. Each page is isolated: failures
// become error entries and never reach sibling pages.
func (d *Detector) DetectDocument(ctx context.Context, documentID string, ocrResult *ocr.Result) *Result {
	result := &Result{Status: ocr.StatusSuccess}
	if ocrResult == nil || ocrResult.Status == ocr.StatusError {
		result.Status = ocr.StatusError
	}
	if ocrResult == nil {
		result.Summary = Summarize(nil)
		return result
	}

	result.Pages = make([]PageResult, len(ocrResult.Pages))
	sem := make(chan struct{}, d.concurrency)
	var wg sync.WaitGroup
	for i := range ocrResult.Pages {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			result.Pages[i] = d.detectPage(ctx, documentID, &ocrResult.Pages[i])
		}(i)
	}
	wg.Wait()

	result.Summary = Summarize(result.Pages)
	d.logger.Info("PII detection complete",
		"document", documentID,
		"entities", result.Summary.EntityCount,
		"sensitivity", result.Summary.Sensitivity,
		"types", strings.Join(result.Summary.EntityTypes, ","))
	return result
}

func (d *Detector) detectPage(ctx context.Context, documentID string, page *ocr.PageResult) (res PageResult) {
	res.PageNum = page.PageNum
	defer func() {
		if r := recover(); r != nil {
			res = PageResult{PageNum: page.PageNum, Status: ocr.StatusError, Message: fmt.Sprintf("entity recognizer panic: %v", r)}
		}
	}()

	if page.Status == ocr.StatusError {
		err := errors.NewUpstreamFailureError(documentID, page.PageNum, "ocr", page.Message)
		return PageResult{PageNum: page.PageNum, Status: ocr.StatusError, Message: err.Error()}
	}
	if strings.TrimSpace(page.Text) == "" {
		return PageResult{PageNum: page.PageNum, Status: ocr.StatusWarning, Message: "no text on page"}
	}

	entities, err := d.recognizer.Detect(ctx, page.Text)
	if err != nil {
		d.logger.Warn("Entity recognition failed", "document", documentID, "page", page.PageNum, "error", err)
		return PageResult{PageNum: page.PageNum, Status: ocr.StatusError, Message: err.Error()}
	}

	mapped := MapEntitiesToGeometry(page.Text, page.Words, entities)
	for _, e := range mapped {
		if e.HasGeometry() {
			continue
		}
		start, end, _ := e.Span()
		miss := errors.NewGeometryMissError(documentID, page.PageNum, e.Type, start, end)
		d.logger.Debug("Entity has no geometry, text-only redaction", "document", documentID, "page", page.PageNum, "reason", miss.Message)
	}

	return PageResult{PageNum: page.PageNum, Status: ocr.StatusSuccess, Entities: mapped}
}
