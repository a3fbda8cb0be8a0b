package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/adverant/nexus/redaction-worker/internal/logging"
)

// Audit event types written by the pipeline
const (
	EventDocumentReceived  = "document_received"
	EventDocumentPrepared  = "document_prepared"
	EventOCRCompleted      = "ocr_completed"
	EventLayoutAnalyzed    = "layout_analyzed"
	EventPIIDetected       = "pii_detected"
	EventRedactionComplete = "redaction_completed"
	EventDocumentFailed    = "document_failed"
)

// AuditEvent is one line of the audit trail
type AuditEvent struct {
	Timestamp  time.Time              `json:"timestamp"`
	EventType  string                 `json:"event_type"`
	DocumentID string                 `json:"document_id,omitempty"`
	UserID     string                 `json:"user_id,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// AuditSink receives audit events in addition to the log file
type AuditSink interface {
	InsertAuditEvent(ctx context.Context, event *AuditEvent) error
}

// AuditLogger appends JSON lines to a daily file, audit_YYYYMMDD.log.
// It owns a logrus instance of its own so the audit trail never mixes with
// operational logs.
type AuditLogger struct {
	dir    string
	sink   AuditSink
	now    func() time.Time
	mu     sync.Mutex
	out    *logrus.Logger
	file   *os.File
	path   string
	logger *logging.Logger
}

// NewAuditLogger creates the log directory. sink may be nil.
func NewAuditLogger(dir string, sink AuditSink) (*AuditLogger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit log dir: %w", err)
	}

	out := logrus.New()
	out.SetLevel(logrus.InfoLevel)
	out.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat:   time.RFC3339Nano,
		DisableHTMLEscape: true,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime: "timestamp",
		},
	})

	return &AuditLogger{
		dir:    dir,
		sink:   sink,
		now:    time.Now,
		out:    out,
		logger: logging.NewLogger("audit"),
	}, nil
}

// PathFor returns the file that holds events of the given day
func (a *AuditLogger) PathFor(day time.Time) string {
	return filepath.Join(a.dir, fmt.Sprintf("audit_%s.log", day.Format("20060102")))
}

// Log records an event. A failing sink is logged and does not fail the
// call; a failing file write does.
func (a *AuditLogger) Log(ctx context.Context, eventType, documentID, userID string, details map[string]interface{}) error {
	event := &AuditEvent{
		Timestamp:  a.now().UTC(),
		EventType:  eventType,
		DocumentID: documentID,
		UserID:     userID,
		Details:    details,
	}

	if err := a.write(event); err != nil {
		return err
	}

	if a.sink != nil {
		if err := a.sink.InsertAuditEvent(ctx, event); err != nil {
			a.logger.Warn("Audit sink failed", "event", eventType, "document", documentID, "error", err)
		}
	}
	return nil
}

func (a *AuditLogger) write(event *AuditEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.rotate(event.Timestamp); err != nil {
		return err
	}

	fields := logrus.Fields{"event_type": event.EventType}
	if event.DocumentID != "" {
		fields["document_id"] = event.DocumentID
	}
	if event.UserID != "" {
		fields["user_id"] = event.UserID
	}
	if len(event.Details) > 0 {
		fields["details"] = event.Details
	}
	a.out.WithFields(fields).WithTime(event.Timestamp).Info(event.EventType)
	return nil
}

// rotate points the audit output at the file for ts's day
func (a *AuditLogger) rotate(ts time.Time) error {
	path := a.PathFor(ts)
	if a.file != nil && a.path == path {
		return nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	if a.file != nil {
		a.file.Close()
	}
	a.file, a.path = f, path
	a.out.SetOutput(f)
	return nil
}

// Close releases the current audit file
func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file, a.path = nil, ""
	a.out.SetOutput(io.Discard)
	return err
}
