package queue

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/adverant/nexus/redaction-worker/internal/errors"
	"github.com/adverant/nexus/redaction-worker/internal/logging"
	"github.com/adverant/nexus/redaction-worker/internal/processor"
)

// TaskRedactDocument is the task type both queue backends consume
const TaskRedactDocument = "redact-document"

const defaultProcessingTimeout = 5 * time.Minute

// JobPayload is the document reference carried by a queued job. The file
// is either a path visible to the worker or an inline buffer.
type JobPayload struct {
	DocumentID  string `json:"documentId"`
	UserID      string `json:"userId,omitempty"`
	Filename    string `json:"filename,omitempty"`
	FilePath    string `json:"filePath,omitempty"`
	FileBuffer  []byte `json:"-"`
	Color       string `json:"color,omitempty"`
	Layout      bool   `json:"layout"`
	AssemblePDF bool   `json:"assemblePdf"`
}

// MarshalJSON writes the buffer as base64
func (p JobPayload) MarshalJSON() ([]byte, error) {
	type Alias JobPayload
	return json.Marshal(&struct {
		FileBuffer string `json:"fileBuffer,omitempty"`
		Alias
	}{
		FileBuffer: base64.StdEncoding.EncodeToString(p.FileBuffer),
		Alias:      Alias(p),
	})
}

// UnmarshalJSON accepts fileBuffer as a base64 string or a Node.js Buffer
// object ({"type":"Buffer","data":[...]}).
func (p *JobPayload) UnmarshalJSON(data []byte) error {
	type Alias JobPayload
	aux := &struct {
		FileBuffer interface{} `json:"fileBuffer,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(p),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("failed to unmarshal JobPayload: %w", err)
	}

	switch v := aux.FileBuffer.(type) {
	case nil:
	case string:
		decoded, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return fmt.Errorf("failed to decode base64 fileBuffer: %w", err)
		}
		if len(decoded) > 0 {
			p.FileBuffer = decoded
		}
	case map[string]interface{}:
		if bufferType, ok := v["type"].(string); !ok || bufferType != "Buffer" {
			return fmt.Errorf("invalid Buffer object format (missing or incorrect 'type' field)")
		}
		dataArray, ok := v["data"].([]interface{})
		if !ok {
			return fmt.Errorf("Buffer object missing 'data' array")
		}
		p.FileBuffer = make([]byte, len(dataArray))
		for i, val := range dataArray {
			byteVal, ok := val.(float64)
			if !ok {
				return fmt.Errorf("invalid byte value in Buffer data array at index %d", i)
			}
			p.FileBuffer[i] = byte(byteVal)
		}
	default:
		return fmt.Errorf("fileBuffer must be either base64 string or Buffer object, got %T", v)
	}

	return nil
}

// Validate checks that the payload names a document source
func (p *JobPayload) Validate() error {
	if p.DocumentID == "" {
		return fmt.Errorf("documentId is required")
	}
	if p.FilePath == "" && len(p.FileBuffer) == 0 {
		return fmt.Errorf("job %s has neither filePath nor fileBuffer", p.DocumentID)
	}
	return nil
}

func (p *JobPayload) request() *processor.ProcessRequest {
	return &processor.ProcessRequest{
		DocumentID:  p.DocumentID,
		UserID:      p.UserID,
		Filename:    p.Filename,
		FilePath:    p.FilePath,
		FileBuffer:  p.FileBuffer,
		Color:       p.Color,
		Layout:      p.Layout,
		AssemblePDF: p.AssemblePDF,
	}
}

// runJob processes one payload under a timeout and records the outcome
// through the processor. statusCtx outlives the processing deadline so the
// failure can still be written after a timeout.
func runJob(statusCtx context.Context, proc processor.DocumentProcessorInterface, job *JobPayload, timeout time.Duration, logger *logging.Logger) (*processor.ProcessResult, error) {
	startTime := time.Now()
	if timeout <= 0 {
		timeout = defaultProcessingTimeout
	}
	log := logger.With("document", job.DocumentID)

	if err := proc.UpdateJobStatus(statusCtx, job.DocumentID, processor.StatusProcessing, map[string]interface{}{
		"filename": job.Filename,
		"userId":   job.UserID,
	}); err != nil {
		log.Warn("Failed to update status to processing", "error", err)
	}

	ctx, cancel := context.WithTimeout(statusCtx, timeout)
	defer cancel()

	result, err := proc.ProcessDocument(ctx, job.request())
	duration := time.Since(startTime)

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			log.Error("Processing timed out", "duration", duration, "timeout", timeout)
			timeoutErr := errors.NewProcessingTimeoutError(job.DocumentID, timeout, err)
			meta := timeoutErr.ToMap()
			meta["error"] = timeoutErr.Error()
			if updateErr := proc.UpdateJobStatus(statusCtx, job.DocumentID, processor.StatusFailed, meta); updateErr != nil {
				log.Warn("Failed to update status to failed", "error", updateErr)
			}
			return nil, fmt.Errorf("processing timeout: %w", timeoutErr)
		}

		log.Error("Processing failed", "duration", duration, "error", err)
		meta := map[string]interface{}{
			"error":          err.Error(),
			"processingTime": duration.Milliseconds(),
		}
		if code := errors.CodeOf(err); code != "" {
			meta["error_code"] = string(code)
		}
		if updateErr := proc.UpdateJobStatus(statusCtx, job.DocumentID, processor.StatusFailed, meta); updateErr != nil {
			log.Warn("Failed to update status to failed", "error", updateErr)
		}
		return nil, fmt.Errorf("document processing failed: %w", err)
	}

	log.Info("Processing completed", "status", result.Status, "duration", duration)
	return result, nil
}

// resultSummary is the compact job result published to the queue
func resultSummary(result *processor.ProcessResult) map[string]interface{} {
	summary := map[string]interface{}{
		"documentId":     result.DocumentID,
		"status":         result.Status,
		"pageCount":      result.PageCount,
		"reportPath":     result.ReportPath,
		"processingTime": result.ProcessingTimeMs,
	}
	if result.Report != nil {
		summary["totalRedactions"] = result.Report.Summary.TotalRedactions
		summary["sensitivity"] = result.Report.Summary.Sensitivity
	}
	if result.Assembly != nil {
		summary["pdfPath"] = result.Assembly.OutputPath
	}
	if result.AssemblyError != "" {
		summary["assemblyError"] = result.AssemblyError
	}
	return summary
}
