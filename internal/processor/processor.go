/**
 * Document Processor for the Redaction Worker
 *
 * Orchestrates one document end to end:
 * - preprocess: rasterize and normalize every page
 * - OCR: words with boxes per page
 * - layout analysis and PII detection, concurrently on the same OCR output
 * - redaction: text + image channels, JSON report, optional redacted PDF
 * - persistence: record store, database and audit trail
 *
 * Collaborators are constructed by the caller and injected.
 */

package processor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adverant/nexus/redaction-worker/internal/errors"
	"github.com/adverant/nexus/redaction-worker/internal/layout"
	"github.com/adverant/nexus/redaction-worker/internal/logging"
	"github.com/adverant/nexus/redaction-worker/internal/ocr"
	"github.com/adverant/nexus/redaction-worker/internal/pii"
	"github.com/adverant/nexus/redaction-worker/internal/preprocess"
	"github.com/adverant/nexus/redaction-worker/internal/redact"
	"github.com/adverant/nexus/redaction-worker/internal/storage"
)

// Document statuses
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusPartial    = "partial"
	StatusFailed     = "failed"
)

// DocumentProcessorInterface defines the interface for document processing
type DocumentProcessorInterface interface {
	ProcessDocument(ctx context.Context, req *ProcessRequest) (*ProcessResult, error)
	UpdateJobStatus(ctx context.Context, documentID string, status string, metadata map[string]interface{}) error
}

// ProcessorConfig holds the injected collaborators
type ProcessorConfig struct {
	Preprocessor *preprocess.Preprocessor
	OCR          *ocr.Service
	Layout       *layout.LayoutAnalyzer
	PII          *pii.Detector
	Redactor     *redact.Engine
	Assembler    redact.Assembler // nil disables PDF assembly
	Storage      *storage.StorageManager
	Audit        *storage.AuditLogger // nil disables auditing
	UploadDir    string
}

// ProcessRequest represents a document processing request
type ProcessRequest struct {
	DocumentID  string
	UserID      string
	Filename    string
	FilePath    string
	FileBuffer  []byte
	Color       string
	Layout      bool
	AssemblePDF bool
}

// ProcessResult represents the processing result
type ProcessResult struct {
	DocumentID       string
	Status           string
	PageCount        int
	Layout           *layout.Result
	PII              *pii.Result
	Report           *redact.Report
	ReportPath       string
	Assembly         *redact.AssemblyResult
	AssemblyError    string
	ProcessingTimeMs int64
}

// DocumentProcessor handles document processing
type DocumentProcessor struct {
	config *ProcessorConfig
	logger *logging.Logger
}

// NewDocumentProcessor creates a new document processor
func NewDocumentProcessor(cfg *ProcessorConfig) (*DocumentProcessor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Preprocessor == nil {
		return nil, fmt.Errorf("preprocessor is required")
	}
	if cfg.OCR == nil {
		return nil, fmt.Errorf("OCR service is required")
	}
	if cfg.PII == nil {
		return nil, fmt.Errorf("PII detector is required")
	}
	if cfg.Redactor == nil {
		return nil, fmt.Errorf("redaction engine is required")
	}
	if cfg.Layout == nil {
		cfg.Layout = layout.NewLayoutAnalyzer(layout.DefaultOptions())
	}
	if cfg.Storage == nil {
		cfg.Storage = storage.NewStorageManager(nil, nil)
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = os.TempDir()
	}

	return &DocumentProcessor{config: cfg, logger: logging.NewLogger("processor")}, nil
}

// ProcessDocument runs the whole pipeline for one document. Page failures
// are reported inside the result; an error is returned only when no page
// could be processed at all.
func (p *DocumentProcessor) ProcessDocument(ctx context.Context, req *ProcessRequest) (*ProcessResult, error) {
	startTime := time.Now()
	if req.DocumentID == "" {
		req.DocumentID = uuid.New().String()
	}
	log := p.logger.With("document", req.DocumentID)

	record := &storage.DocumentRecord{ID: req.DocumentID, UserID: req.UserID, Filename: req.Filename}
	if err := p.config.Storage.UpdateStatus(ctx, record, StatusProcessing, "", ""); err != nil {
		log.Warn("Failed to record processing status", "error", err)
	}
	p.audit(ctx, storage.EventDocumentReceived, req, map[string]interface{}{"filename": req.Filename})

	path, err := p.resolveFile(req)
	if err != nil {
		return nil, p.fail(ctx, record, req, err)
	}

	// Step 1: rasterize
	prepared, err := p.config.Preprocessor.Prepare(ctx, req.DocumentID, path)
	if err != nil {
		return nil, p.fail(ctx, record, req, err)
	}
	record.PageCount = len(prepared.Pages)
	p.audit(ctx, storage.EventDocumentPrepared, req, map[string]interface{}{"pages": len(prepared.Pages), "mimeType": prepared.MimeType})

	// Step 2: recognize
	ocrResult := p.config.OCR.RecognizeDocument(ctx, prepared.Pages)
	p.audit(ctx, storage.EventOCRCompleted, req, map[string]interface{}{"status": ocrResult.Status, "words": ocrResult.WordCount()})
	if ocrResult.Status == ocr.StatusError {
		return nil, p.fail(ctx, record, req, errors.NewUpstreamFailureError(req.DocumentID, 0, "ocr", ocrResult.Message))
	}

	// Step 3: layout and PII share the OCR output and run side by side
	var layoutResult *layout.Result
	var piiResult *pii.Result
	var wg sync.WaitGroup
	if req.Layout {
		wg.Add(1)
		go func() {
			defer wg.Done()
			layoutResult = p.config.Layout.AnalyzeLayout(ctx, ocrResult)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		piiResult = p.config.PII.DetectDocument(ctx, req.DocumentID, ocrResult)
	}()
	wg.Wait()

	if layoutResult != nil {
		record.Layout = &layoutResult.Summary
		p.audit(ctx, storage.EventLayoutAnalyzed, req, map[string]interface{}{
			"formFields": layoutResult.Summary.FormFields,
			"tables":     layoutResult.Summary.Tables,
			"textBlocks": layoutResult.Summary.TextBlocks,
		})
	}
	record.PII = &piiResult.Summary
	p.audit(ctx, storage.EventPIIDetected, req, map[string]interface{}{
		"entityCount": piiResult.Summary.EntityCount,
		"entityTypes": piiResult.Summary.EntityTypes,
		"sensitivity": piiResult.Summary.Sensitivity,
	})

	// Step 4: redact
	report, err := p.config.Redactor.Redact(ctx, req.DocumentID, prepared.Pages, ocrResult, piiResult, req.Color)
	if err != nil {
		return nil, p.fail(ctx, record, req, err)
	}
	if err := report.Validate(); err != nil {
		log.Error("Report failed validation", "error", err)
	}

	result := &ProcessResult{
		DocumentID: req.DocumentID,
		PageCount:  len(prepared.Pages),
		Layout:     layoutResult,
		PII:        piiResult,
		Report:     report,
	}

	result.ReportPath = filepath.Join(p.config.Redactor.DocumentDir(req.DocumentID), "redaction_report.json")
	if err := redact.WriteReport(report, result.ReportPath); err != nil {
		log.Error("Failed to write report", "error", err)
		result.ReportPath = ""
	}
	record.ReportPath = result.ReportPath
	record.TotalRedactions = report.Summary.TotalRedactions

	// Step 5: optional combined document
	if req.AssemblePDF && p.config.Assembler != nil {
		pdfPath := filepath.Join(p.config.Redactor.DocumentDir(req.DocumentID), "redacted.pdf")
		assembly, err := p.config.Assembler.Assemble(ctx, report, pdfPath)
		if err != nil {
			log.Warn("PDF assembly failed, page results kept", "error", err)
			result.AssemblyError = err.Error()
		} else {
			result.Assembly = assembly
			record.PDFPath = assembly.OutputPath
		}
	}

	result.Status = documentStatus(report)
	record.Status = result.Status
	result.ProcessingTimeMs = time.Since(startTime).Milliseconds()

	redacted := make(map[int]bool, len(report.Pages))
	for _, page := range report.Pages {
		redacted[page.PageNum] = page.Status != ocr.StatusError
	}
	findings := storage.FindingsFromPII(req.DocumentID, piiResult, redacted)
	if err := p.config.Storage.SaveDocument(ctx, record, findings, time.Since(startTime)); err != nil {
		log.Warn("Failed to persist document", "error", err)
	}

	p.audit(ctx, storage.EventRedactionComplete, req, map[string]interface{}{
		"status":          result.Status,
		"totalRedactions": report.Summary.TotalRedactions,
		"errorPages":      report.PagesWithStatus(ocr.StatusError),
		"processingTime":  result.ProcessingTimeMs,
	})

	log.Info("Document processed",
		"status", result.Status,
		"pages", result.PageCount,
		"redactions", report.Summary.TotalRedactions,
		"sensitivity", report.Summary.Sensitivity,
		"duration", time.Since(startTime))

	return result, nil
}

// UpdateJobStatus records a status change coming from the queue layer
func (p *DocumentProcessor) UpdateJobStatus(ctx context.Context, documentID string, status string, metadata map[string]interface{}) error {
	rec, err := p.config.Storage.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if rec == nil {
		rec = &storage.DocumentRecord{ID: documentID}
	}
	if fn, ok := metadata["filename"].(string); ok && rec.Filename == "" {
		rec.Filename = fn
	}
	if uid, ok := metadata["userId"].(string); ok && rec.UserID == "" {
		rec.UserID = uid
	}
	errMsg, _ := metadata["error"].(string)
	code, _ := metadata["error_code"].(string)
	return p.config.Storage.UpdateStatus(ctx, rec, status, errors.ErrorCode(code), errMsg)
}

// resolveFile returns a path to the input, spilling an in-memory buffer to
// the upload directory when needed
func (p *DocumentProcessor) resolveFile(req *ProcessRequest) (string, error) {
	if req.FilePath != "" {
		return req.FilePath, nil
	}
	if len(req.FileBuffer) == 0 {
		return "", fmt.Errorf("no file source provided (path or buffer)")
	}

	dir := filepath.Join(p.config.UploadDir, req.DocumentID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.NewIOFailureError(req.DocumentID, 0, dir, err)
	}
	name := filepath.Base(req.Filename)
	if name == "." || name == "/" || name == "" {
		name = "upload"
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, req.FileBuffer, 0o600); err != nil {
		return "", errors.NewIOFailureError(req.DocumentID, 0, path, err)
	}
	return path, nil
}

func (p *DocumentProcessor) fail(ctx context.Context, record *storage.DocumentRecord, req *ProcessRequest, cause error) error {
	p.logger.Error("Document processing failed", "document", req.DocumentID, "error", cause)
	if err := p.config.Storage.UpdateStatus(ctx, record, StatusFailed, errors.CodeOf(cause), cause.Error()); err != nil {
		p.logger.Warn("Failed to record failure", "document", req.DocumentID, "error", err)
	}
	details := map[string]interface{}{"error": cause.Error()}
	if code := errors.CodeOf(cause); code != "" {
		details["errorCode"] = string(code)
	}
	p.audit(ctx, storage.EventDocumentFailed, req, details)
	return cause
}

func (p *DocumentProcessor) audit(ctx context.Context, event string, req *ProcessRequest, details map[string]interface{}) {
	if p.config.Audit == nil {
		return
	}
	if err := p.config.Audit.Log(ctx, event, req.DocumentID, req.UserID, details); err != nil {
		p.logger.Warn("Audit write failed", "event", event, "document", req.DocumentID, "error", err)
	}
}

// documentStatus is completed when every page succeeded, failed when none
// did, and partial otherwise
func documentStatus(report *redact.Report) string {
	errorsSeen := report.PagesWithStatus(ocr.StatusError)
	switch {
	case errorsSeen == 0:
		return StatusCompleted
	case errorsSeen == len(report.Pages):
		return StatusFailed
	default:
		return StatusPartial
	}
}
