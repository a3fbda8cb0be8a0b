/**
 * Redaction Engine
 *
 * Applies two independent redaction channels per page:
 * - text: entity spans replaced by [REDACTED_<type>] markers
 * - image: padded entity boxes filled with an opaque color
 *
 * Pages are redacted concurrently; each worker writes only its own slot of
 * the output slice. A failing page becomes an error entry and never stops
 * its siblings.
 */

package redact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adverant/nexus/redaction-worker/internal/errors"
	"github.com/adverant/nexus/redaction-worker/internal/logging"
	"github.com/adverant/nexus/redaction-worker/internal/ocr"
	"github.com/adverant/nexus/redaction-worker/internal/pii"
	"github.com/adverant/nexus/redaction-worker/internal/preprocess"
)

// Options holds redaction settings
type Options struct {
	Padding     int
	Color       string
	OutputDir   string
	Concurrency int
}

// Engine redacts document pages
type Engine struct {
	opts   Options
	logger *logging.Logger
}

// NewEngine creates a redaction engine. It fails only on an unknown
// default color.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Color == "" {
		opts.Color = "black"
	}
	if _, err := ParseColor(opts.Color); err != nil {
		return nil, err
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.OutputDir == "" {
		opts.OutputDir = os.TempDir()
	}
	return &Engine{opts: opts, logger: logging.NewLogger("redact")}, nil
}

// DocumentDir is where the engine writes a document's artifacts
func (e *Engine) DocumentDir(documentID string) string {
	return filepath.Join(e.opts.OutputDir, documentID)
}

// Redact produces one RedactedPage per document page and the report.
// colorName selects the fill; empty uses the engine default.
func (e *Engine) Redact(ctx context.Context, documentID string, pages []preprocess.Page, ocrResult *ocr.Result, piiResult *pii.Result, colorName string) (*Report, error) {
	startTime := time.Now()
	if colorName == "" {
		colorName = e.opts.Color
	}
	fill, err := ParseColor(colorName)
	if err != nil {
		return nil, err
	}
	images := NewImageRedactor(e.opts.Padding, fill)

	dir := e.DocumentDir(documentID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.NewIOFailureError(documentID, 0, dir, err)
	}

	out := make([]RedactedPage, len(pages))
	sem := make(chan struct{}, e.opts.Concurrency)
	var wg sync.WaitGroup
	for i, page := range pages {
		wg.Add(1)
		go func(i int, page preprocess.Page) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			out[i] = e.redactPage(ctx, images, documentID, dir, page, ocrResult.Page(page.Num), piiResult.Page(page.Num))
		}(i, page)
	}
	wg.Wait()

	var summary pii.Summary
	if piiResult != nil {
		summary = piiResult.Summary
	} else {
		summary = pii.Summarize(nil)
	}
	report := NewReport(documentID, colorName, out, summary)

	e.logger.Info("Redaction complete",
		"document", documentID,
		"pages", report.Summary.TotalPages,
		"redactions", report.Summary.TotalRedactions,
		"errors", report.PagesWithStatus(ocr.StatusError),
		"duration", time.Since(startTime))

	return report, nil
}

func (e *Engine) redactPage(ctx context.Context, images *ImageRedactor, documentID, dir string, page preprocess.Page, ocrPage *ocr.PageResult, piiPage *pii.PageResult) (res RedactedPage) {
	res = RedactedPage{PageNum: page.Num, RedactedAreas: []Area{}}
	defer func() {
		if r := recover(); r != nil {
			res = errorPage(page.Num, fmt.Sprintf("redaction panic: %v", r))
		}
	}()

	if err := ctx.Err(); err != nil {
		return errorPage(page.Num, err.Error())
	}

	if piiPage == nil {
		return errorPage(page.Num, errors.NewUpstreamFailureError(documentID, page.Num, "pii", "no result for page").Error())
	}
	if piiPage.Status == ocr.StatusError {
		return errorPage(page.Num, errors.NewUpstreamFailureError(documentID, page.Num, "pii", piiPage.Message).Error())
	}

	if _, err := os.Stat(page.Path); err != nil {
		e.logger.Warn("Page source missing", "document", documentID, "page", page.Num, "path", page.Path)
		return errorPage(page.Num, errors.NewIOFailureError(documentID, page.Num, page.Path, err).Error())
	}

	if piiPage.Status == ocr.StatusWarning {
		res.Status = ocr.StatusWarning
		res.Message = piiPage.Message
		res.RedactedImagePath = page.Path
		return res
	}

	res.Status = ocr.StatusSuccess

	// text channel
	if ocrPage != nil {
		redacted, err := RedactText(ocrPage.Text, piiPage.Entities)
		if err != nil {
			res.Status = ocr.StatusWarning
			res.Message = errors.NewTextRedactionError(documentID, page.Num, err).Error()
			e.logger.Warn("Text redaction failed", "document", documentID, "page", page.Num, "error", err)
		} else {
			res.RedactedText = &redacted
		}
	}

	// image channel
	if len(piiPage.Entities) == 0 {
		res.RedactedImagePath = page.Path
		return res
	}

	dst := filepath.Join(dir, fmt.Sprintf("page_%d_redacted.png", page.Num))
	areas, err := images.RedactImage(page.Path, dst, piiPage.Entities)
	if err != nil {
		e.logger.Error("Image redaction failed", "document", documentID, "page", page.Num, "error", err)
		return errorPage(page.Num, errors.NewIOFailureError(documentID, page.Num, page.Path, err).Error())
	}

	res.RedactedImagePath = dst
	res.RedactedAreas = areas
	res.RedactionCount = len(areas)
	return res
}

func errorPage(num int, message string) RedactedPage {
	return RedactedPage{PageNum: num, Status: ocr.StatusError, Message: message, RedactedAreas: []Area{}}
}
