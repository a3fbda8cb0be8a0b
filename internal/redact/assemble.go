package redact

import (
	"context"
	"os"
	"sort"

	"github.com/go-pdf/fpdf"

	"github.com/adverant/nexus/redaction-worker/internal/errors"
	"github.com/adverant/nexus/redaction-worker/internal/logging"
	"github.com/adverant/nexus/redaction-worker/internal/ocr"
)

// AssemblyResult describes a combined redacted document
type AssemblyResult struct {
	Status              ocr.Status `json:"status"`
	OutputPath          string     `json:"output_path"`
	TotalPages          int        `json:"total_pages"`
	PagesWithRedactions int        `json:"pages_with_redactions"`
	TotalRedactions     int        `json:"total_redactions"`
}

// Assembler combines redacted page images into one document
type Assembler interface {
	Assemble(ctx context.Context, report *Report, outputPath string) (*AssemblyResult, error)
}

// PDFAssembler writes one PDF page per successful redacted page image
type PDFAssembler struct {
	logger *logging.Logger
}

// NewPDFAssembler creates a PDF assembler
func NewPDFAssembler() *PDFAssembler {
	return &PDFAssembler{logger: logging.NewLogger("assemble")}
}

// Assemble places pages in page order, skipping failed pages and pages whose
// image is missing. Landscape images get landscape pages; each image is
// scaled to fit and centered.
func (a *PDFAssembler) Assemble(ctx context.Context, report *Report, outputPath string) (*AssemblyResult, error) {
	if report == nil {
		return nil, errors.NewAssemblyFailureError("", "no report", nil)
	}

	pages := make([]RedactedPage, len(report.Pages))
	copy(pages, report.Pages)
	sort.Slice(pages, func(i, j int) bool { return pages[i].PageNum < pages[j].PageNum })

	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)

	result := &AssemblyResult{OutputPath: outputPath}
	for _, p := range pages {
		if err := ctx.Err(); err != nil {
			return nil, errors.NewAssemblyFailureError(report.DocumentID, "cancelled", err)
		}
		if p.Status != ocr.StatusSuccess || p.RedactedImagePath == "" {
			continue
		}
		if _, err := os.Stat(p.RedactedImagePath); err != nil {
			a.logger.Warn("Skipping page with missing image", "document", report.DocumentID, "page", p.PageNum)
			continue
		}

		opts := fpdf.ImageOptions{ReadDpi: false}
		info := pdf.RegisterImageOptions(p.RedactedImagePath, opts)
		if pdf.Err() {
			return nil, errors.NewAssemblyFailureError(report.DocumentID, "image registration failed", pdf.Error())
		}

		orientation := "P"
		if info.Width() > info.Height() {
			orientation = "L"
		}
		pdf.AddPageFormat(orientation, pdf.GetPageSizeStr("A4"))

		pageW, pageH := pdf.GetPageSize()
		x, y, w, h := fitRect(info.Width(), info.Height(), pageW, pageH)
		pdf.ImageOptions(p.RedactedImagePath, x, y, w, h, false, opts, 0, "")

		result.TotalPages++
		result.TotalRedactions += p.RedactionCount
		if p.RedactionCount > 0 {
			result.PagesWithRedactions++
		}
	}

	if result.TotalPages == 0 {
		return nil, errors.NewAssemblyFailureError(report.DocumentID, "no redacted pages to assemble", nil)
	}

	if err := pdf.OutputFileAndClose(outputPath); err != nil {
		return nil, errors.NewAssemblyFailureError(report.DocumentID, "write failed", err)
	}

	result.Status = ocr.StatusSuccess
	a.logger.Info("Redacted PDF written", "document", report.DocumentID, "path", outputPath, "pages", result.TotalPages)
	return result, nil
}

// fitRect scales an image of size (iw, ih) into a page of size (pw, ph)
// keeping its aspect ratio, centered
func fitRect(iw, ih, pw, ph float64) (x, y, w, h float64) {
	if iw <= 0 || ih <= 0 {
		return 0, 0, pw, ph
	}
	scale := pw / iw
	if s := ph / ih; s < scale {
		scale = s
	}
	w, h = iw*scale, ih*scale
	return (pw - w) / 2, (ph - h) / 2, w, h
}
