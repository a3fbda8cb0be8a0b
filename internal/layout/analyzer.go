/**
 * Layout Analyzer for the Redaction Worker
 *
 * Reconstructs document structure from OCR word boxes:
 * - text blocks (paragraphs and headings) in reading order
 * - label/value form fields
 * - column-aligned tables with a cell grid
 *
 * Pages are analyzed independently. Layout runs alongside PII detection on
 * the same OCR output and never depends on it.
 */

package layout

import (
	"context"
	"time"

	"github.com/adverant/nexus/redaction-worker/internal/logging"
	"github.com/adverant/nexus/redaction-worker/internal/ocr"
)

// Options holds layout tolerances, all in pixels of the normalized raster
type Options struct {
	LineTolerance     int
	GapThreshold      int
	HeadingRatio      float64
	TableRowTolerance int
	ColumnTolerance   int
	DedupeTables      bool
	LabelVocabulary   []string
}

// DefaultOptions returns the tolerances tuned for 1800px-wide pages
func DefaultOptions() Options {
	return Options{
		LineTolerance:     10,
		GapThreshold:      20,
		HeadingRatio:      1.2,
		TableRowTolerance: 5,
		ColumnTolerance:   50,
	}
}

// PageLayout is the structure recovered from one page
type PageLayout struct {
	PageNum    int         `json:"page_num"`
	Status     ocr.Status  `json:"status"`
	Message    string      `json:"message,omitempty"`
	Forms      []FormField `json:"forms"`
	Tables     []Table     `json:"tables"`
	TextBlocks []Block     `json:"text_blocks"`
}

// Summary counts detections across the document
type Summary struct {
	FormFields int `json:"form_fields"`
	Tables     int `json:"tables"`
	TextBlocks int `json:"text_blocks"`
}

// Result is the layout of a whole document
type Result struct {
	Status  ocr.Status   `json:"status"`
	Pages   []PageLayout `json:"pages"`
	Summary Summary      `json:"summary"`
}

// LayoutAnalyzer performs document layout analysis
type LayoutAnalyzer struct {
	clusterer *Clusterer
	forms     *FormFieldDetector
	tables    *TableDetector
	logger    *logging.Logger
}

// NewLayoutAnalyzer creates a new layout analyzer
func NewLayoutAnalyzer(opts Options) *LayoutAnalyzer {
	return &LayoutAnalyzer{
		clusterer: NewClusterer(opts),
		forms:     NewFormFieldDetector(opts),
		tables:    NewTableDetector(opts),
		logger:    logging.NewLogger("layout"),
	}
}

// AnalyzePage runs all detectors over one page's words
func (l *LayoutAnalyzer) AnalyzePage(pageNum int, words []ocr.Word) PageLayout {
	if len(words) == 0 {
		return PageLayout{PageNum: pageNum, Status: ocr.StatusWarning, Message: "no words on page"}
	}
	return PageLayout{
		PageNum:    pageNum,
		Status:     ocr.StatusSuccess,
		Forms:      l.forms.Detect(words),
		Tables:     l.tables.Detect(words),
		TextBlocks: l.clusterer.Blocks(words),
	}
}

// AnalyzeLayout analyzes every page of an OCR result. Pages whose
// recognition failed are carried as error entries.
func (l *LayoutAnalyzer) AnalyzeLayout(ctx context.Context, ocrResult *ocr.Result) *Result {
	startTime := time.Now()
	result := &Result{Status: ocr.StatusSuccess}
	if ocrResult == nil || ocrResult.Status == ocr.StatusError {
		result.Status = ocr.StatusError
	}
	if ocrResult == nil {
		return result
	}

	for _, page := range ocrResult.Pages {
		if ctx.Err() != nil {
			result.Pages = append(result.Pages, PageLayout{PageNum: page.PageNum, Status: ocr.StatusError, Message: ctx.Err().Error()})
			continue
		}
		if page.Status == ocr.StatusError {
			result.Pages = append(result.Pages, PageLayout{PageNum: page.PageNum, Status: ocr.StatusError, Message: page.Message})
			continue
		}

		pl := l.AnalyzePage(page.PageNum, page.Words)
		result.Summary.FormFields += len(pl.Forms)
		result.Summary.Tables += len(pl.Tables)
		result.Summary.TextBlocks += len(pl.TextBlocks)
		result.Pages = append(result.Pages, pl)
	}

	l.logger.Info("Layout analysis complete",
		"pages", len(result.Pages),
		"form_fields", result.Summary.FormFields,
		"tables", result.Summary.Tables,
		"text_blocks", result.Summary.TextBlocks,
		"duration", time.Since(startTime))

	return result
}
