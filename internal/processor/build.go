package processor

import (
	"github.com/adverant/nexus/redaction-worker/internal/config"
	"github.com/adverant/nexus/redaction-worker/internal/layout"
	"github.com/adverant/nexus/redaction-worker/internal/ocr"
	"github.com/adverant/nexus/redaction-worker/internal/pii"
	"github.com/adverant/nexus/redaction-worker/internal/preprocess"
	"github.com/adverant/nexus/redaction-worker/internal/redact"
	"github.com/adverant/nexus/redaction-worker/internal/storage"
)

// NewFromConfig wires every stage from worker configuration. The
// recognizers are injected so callers choose the OCR and PII backends.
func NewFromConfig(cfg *config.Config, text ocr.TextRecognizer, entities pii.EntityRecognizer, sm *storage.StorageManager, audit *storage.AuditLogger) (*DocumentProcessor, error) {
	engine, err := redact.NewEngine(redact.Options{
		Padding:     cfg.RedactionPadding,
		Color:       cfg.RedactionColor,
		OutputDir:   cfg.OutputDir,
		Concurrency: cfg.PageConcurrency,
	})
	if err != nil {
		return nil, err
	}

	opts := layout.DefaultOptions()
	opts.LineTolerance = cfg.LineTolerance
	opts.GapThreshold = cfg.GapThreshold
	opts.HeadingRatio = cfg.HeadingRatio
	opts.TableRowTolerance = cfg.TableRowTolerance
	opts.ColumnTolerance = cfg.ColumnTolerance
	opts.DedupeTables = cfg.DedupeTables

	return NewDocumentProcessor(&ProcessorConfig{
		Preprocessor: preprocess.NewPreprocessor(preprocess.Config{
			TempDir:        cfg.TempDir,
			NormalizeWidth: cfg.NormalizeWidth,
			DPI:            cfg.PDFDPI,
		}),
		OCR:       ocr.NewService(text, cfg.PageConcurrency),
		Layout:    layout.NewLayoutAnalyzer(opts),
		PII:       pii.NewDetector(entities, cfg.PageConcurrency),
		Redactor:  engine,
		Assembler: redact.NewPDFAssembler(),
		Storage:   sm,
		Audit:     audit,
		UploadDir: cfg.TempDir,
	})
}
