/**
 * PostgreSQL Client for the Redaction Worker
 *
 * Persists document status, PII findings and audit events. Optional: the
 * worker runs without a database and keeps only the file audit log.
 */

package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/adverant/nexus/redaction-worker/internal/layout"
	"github.com/adverant/nexus/redaction-worker/internal/pii"
)

//go:embed schema.sql
var schemaSQL string

// PostgresClient handles database operations
type PostgresClient struct {
	db *sql.DB
}

// DocumentUpdate represents a document status update
type DocumentUpdate struct {
	DocumentID       string
	UserID           string
	Filename         string
	Status           string
	PageCount        int
	EntityCount      int
	EntityTypes      []string
	Sensitivity      string
	TotalRedactions  int
	ReportPath       string
	ProcessingTimeMs int64
	ErrorCode        string
	ErrorMessage     string
	Metadata         map[string]interface{}
}

// Finding is one PII entity persisted for a page
type Finding struct {
	DocumentID string
	PageNum    int
	EntityType string
	Confidence float64
	Start      int
	End        int
	Redacted   bool
}

// sanitizeConfidence clamps to [0,1] and rounds to 4 decimals so the value
// fits a NUMERIC(5,4) column
func sanitizeConfidence(confidence float64) float64 {
	if confidence < 0.0 {
		return 0.0
	}
	if confidence > 1.0 {
		return 1.0
	}
	return float64(int(confidence*10000+0.5)) / 10000
}

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(databaseURL string) (*PostgresClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{db: db}, nil
}

// EnsureSchema creates the redaction schema and tables if missing
func (p *PostgresClient) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// UpdateDocumentStatus upserts the document row
func (p *PostgresClient) UpdateDocumentStatus(ctx context.Context, update *DocumentUpdate) error {
	if update.DocumentID == "" {
		return fmt.Errorf("document ID is required")
	}

	if update.Status == "" {
		return fmt.Errorf("status is required")
	}

	metadataJSON, err := json.Marshal(update.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO redaction.documents (
			id, user_id, filename, status, page_count,
			entity_count, entity_types, sensitivity, total_redactions,
			report_path, processing_time_ms, error_code, error_message,
			metadata, created_at, updated_at
		) VALUES (
			$1, COALESCE(NULLIF($2, ''), 'anonymous'), NULLIF($3, ''), $4, NULLIF($5, 0),
			$6, $7, NULLIF($8, ''), $9,
			NULLIF($10, ''), NULLIF($11, 0), NULLIF($12, ''), NULLIF($13, ''),
			COALESCE($14::jsonb, '{}'::jsonb), NOW(), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			page_count = COALESCE(EXCLUDED.page_count, redaction.documents.page_count),
			entity_count = EXCLUDED.entity_count,
			entity_types = EXCLUDED.entity_types,
			sensitivity = COALESCE(EXCLUDED.sensitivity, redaction.documents.sensitivity),
			total_redactions = EXCLUDED.total_redactions,
			report_path = COALESCE(EXCLUDED.report_path, redaction.documents.report_path),
			processing_time_ms = COALESCE(EXCLUDED.processing_time_ms, redaction.documents.processing_time_ms),
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message,
			metadata = COALESCE(EXCLUDED.metadata, redaction.documents.metadata),
			filename = COALESCE(EXCLUDED.filename, redaction.documents.filename),
			updated_at = NOW()
		RETURNING id
	`

	entityTypes := update.EntityTypes
	if entityTypes == nil {
		entityTypes = []string{}
	}

	var returnedID string
	err = p.db.QueryRowContext(
		ctx,
		query,
		update.DocumentID,       // $1
		update.UserID,           // $2
		update.Filename,         // $3
		update.Status,           // $4
		update.PageCount,        // $5
		update.EntityCount,      // $6
		pq.Array(entityTypes),   // $7
		update.Sensitivity,      // $8
		update.TotalRedactions,  // $9
		update.ReportPath,       // $10
		update.ProcessingTimeMs, // $11
		update.ErrorCode,        // $12
		update.ErrorMessage,     // $13
		metadataJSON,            // $14
	).Scan(&returnedID)

	if err != nil {
		return fmt.Errorf("failed to update document status (document=%s, status=%s): %w",
			update.DocumentID, update.Status, err)
	}

	return nil
}

// StoreFindings replaces the findings of a document using COPY
func (p *PostgresClient) StoreFindings(ctx context.Context, documentID string, findings []Finding) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM redaction.pii_findings WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("failed to clear findings: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyInSchema("redaction", "pii_findings",
		"document_id", "page_num", "entity_type", "confidence", "start_offset", "end_offset", "redacted"))
	if err != nil {
		return fmt.Errorf("failed to prepare copy: %w", err)
	}

	for _, f := range findings {
		if _, err := stmt.ExecContext(ctx, documentID, f.PageNum, f.EntityType,
			sanitizeConfidence(f.Confidence), f.Start, f.End, f.Redacted); err != nil {
			stmt.Close()
			return fmt.Errorf("failed to copy finding: %w", err)
		}
	}

	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return fmt.Errorf("failed to flush findings: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("failed to close copy: %w", err)
	}

	return tx.Commit()
}

// InsertAuditEvent appends an audit event row
func (p *PostgresClient) InsertAuditEvent(ctx context.Context, event *AuditEvent) error {
	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal audit details: %w", err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO redaction.audit_logs (event_type, document_id, user_id, details, created_at)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4::jsonb, $5)
	`, event.EventType, event.DocumentID, event.UserID, details, event.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// GetDocumentByID rebuilds a document record from its row. nil, nil when
// the document is unknown.
func (p *PostgresClient) GetDocumentByID(ctx context.Context, documentID string) (*DocumentRecord, error) {
	if documentID == "" {
		return nil, fmt.Errorf("document ID is required")
	}

	query := `
		SELECT id, user_id, filename, status, page_count, entity_count,
			entity_types, sensitivity, total_redactions, report_path,
			error_code, error_message, metadata, created_at, updated_at
		FROM redaction.documents
		WHERE id = $1
	`

	var (
		rec                     DocumentRecord
		filename, sensitivity   sql.NullString
		reportPath              sql.NullString
		errorCode, errorMessage sql.NullString
		pageCount               sql.NullInt64
		entityCount             int
		entityTypes             pq.StringArray
		metadata                []byte
	)

	err := p.db.QueryRowContext(ctx, query, documentID).Scan(
		&rec.ID, &rec.UserID, &filename, &rec.Status, &pageCount, &entityCount,
		&entityTypes, &sensitivity, &rec.TotalRedactions, &reportPath,
		&errorCode, &errorMessage, &metadata, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	rec.Filename = filename.String
	rec.PageCount = int(pageCount.Int64)
	rec.ReportPath = reportPath.String
	rec.ErrorCode = errorCode.String
	rec.Error = errorMessage.String
	if sensitivity.Valid || entityCount > 0 {
		rec.PII = &pii.Summary{
			Sensitivity: pii.Sensitivity(sensitivity.String),
			EntityCount: entityCount,
			EntityTypes: []string(entityTypes),
		}
	}

	var meta struct {
		PDFPath string          `json:"pdfPath"`
		Layout  *layout.Summary `json:"layout"`
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &meta); err != nil {
			return nil, fmt.Errorf("failed to decode document metadata: %w", err)
		}
	}
	rec.PDFPath = meta.PDFPath
	rec.Layout = meta.Layout

	return &rec, nil
}

// Ping checks database connectivity
func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *PostgresClient) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// GetStats returns connection pool statistics
func (p *PostgresClient) GetStats() sql.DBStats {
	return p.db.Stats()
}
