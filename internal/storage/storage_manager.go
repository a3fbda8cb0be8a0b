/**
 * Storage Manager for the Redaction Worker
 *
 * Coordinates the document record store (Redis or memory) with the optional
 * PostgreSQL database. The record store is authoritative for the service;
 * PostgreSQL holds the durable status, findings and audit rows, and answers
 * lookups for records the store has already expired.
 */

package storage

import (
	"context"
	"time"

	"github.com/adverant/nexus/redaction-worker/internal/errors"
	"github.com/adverant/nexus/redaction-worker/internal/ocr"
	"github.com/adverant/nexus/redaction-worker/internal/pii"
)

// documentArchive answers lookups the record store cannot
type documentArchive interface {
	GetDocumentByID(ctx context.Context, documentID string) (*DocumentRecord, error)
}

// StorageManager coordinates record store and database operations
type StorageManager struct {
	store    DocumentStore
	postgres *PostgresClient
	archive  documentArchive
}

// NewStorageManager creates a storage manager. postgres may be nil.
func NewStorageManager(store DocumentStore, postgres *PostgresClient) *StorageManager {
	if store == nil {
		store = NewMemoryStore()
	}
	sm := &StorageManager{store: store, postgres: postgres}
	if postgres != nil {
		sm.archive = postgres
	}
	return sm
}

// Postgres returns the database client, or nil when none is configured
func (sm *StorageManager) Postgres() *PostgresClient {
	return sm.postgres
}

// GetDocument loads a record from the store, then from the database when
// the store has none. nil when unknown to both.
func (sm *StorageManager) GetDocument(ctx context.Context, id string) (*DocumentRecord, error) {
	rec, err := sm.store.Get(ctx, id)
	if err != nil {
		return nil, errors.NewStorageFailedError(id, err)
	}
	if rec != nil || sm.archive == nil {
		return rec, nil
	}

	rec, err = sm.archive.GetDocumentByID(ctx, id)
	if err != nil {
		return nil, errors.NewDatabaseFailedError(id, "get document", err)
	}
	return rec, nil
}

// UpdateStatus moves a document to a new status, creating the record if
// needed. code and errMsg describe a failure and are cleared when empty.
func (sm *StorageManager) UpdateStatus(ctx context.Context, rec *DocumentRecord, status string, code errors.ErrorCode, errMsg string) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	rec.Status = status
	rec.ErrorCode = string(code)
	rec.Error = errMsg

	if err := sm.store.Put(ctx, rec.ID, rec); err != nil {
		return errors.NewStorageFailedError(rec.ID, err)
	}

	if sm.postgres == nil {
		return nil
	}
	if err := sm.postgres.UpdateDocumentStatus(ctx, documentUpdate(rec)); err != nil {
		return errors.NewDatabaseFailedError(rec.ID, "update status", err)
	}
	return nil
}

// SaveDocument stores the final record and, with a database, its findings
func (sm *StorageManager) SaveDocument(ctx context.Context, rec *DocumentRecord, findings []Finding, processingTime time.Duration) error {
	rec.UpdatedAt = time.Now().UTC()
	if err := sm.store.Put(ctx, rec.ID, rec); err != nil {
		return errors.NewStorageFailedError(rec.ID, err)
	}

	if sm.postgres == nil {
		return nil
	}

	update := documentUpdate(rec)
	update.ProcessingTimeMs = processingTime.Milliseconds()
	if err := sm.postgres.UpdateDocumentStatus(ctx, update); err != nil {
		return errors.NewDatabaseFailedError(rec.ID, "update status", err)
	}
	if err := sm.postgres.StoreFindings(ctx, rec.ID, findings); err != nil {
		return errors.NewDatabaseFailedError(rec.ID, "store findings", err)
	}
	return nil
}

// Close releases the database and a closable store
func (sm *StorageManager) Close() error {
	if c, ok := sm.store.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			return err
		}
	}
	if sm.postgres != nil {
		return sm.postgres.Close()
	}
	return nil
}

func documentUpdate(rec *DocumentRecord) *DocumentUpdate {
	update := &DocumentUpdate{
		DocumentID:      rec.ID,
		UserID:          rec.UserID,
		Filename:        rec.Filename,
		Status:          rec.Status,
		PageCount:       rec.PageCount,
		TotalRedactions: rec.TotalRedactions,
		ReportPath:      rec.ReportPath,
		ErrorCode:       rec.ErrorCode,
		ErrorMessage:    rec.Error,
		Metadata: map[string]interface{}{
			"pdfPath": rec.PDFPath,
		},
	}
	if rec.PII != nil {
		update.EntityCount = rec.PII.EntityCount
		update.EntityTypes = rec.PII.EntityTypes
		update.Sensitivity = string(rec.PII.Sensitivity)
	}
	if rec.Layout != nil {
		update.Metadata["layout"] = rec.Layout
	}
	return update
}

// FindingsFromPII flattens the entities of successful pages. An entity is
// marked redacted when its page was redacted successfully.
func FindingsFromPII(documentID string, res *pii.Result, redactedPages map[int]bool) []Finding {
	if res == nil {
		return nil
	}
	var findings []Finding
	for _, page := range res.Pages {
		if page.Status != ocr.StatusSuccess {
			continue
		}
		for _, e := range page.Entities {
			start, end, _ := e.Span()
			findings = append(findings, Finding{
				DocumentID: documentID,
				PageNum:    page.PageNum,
				EntityType: e.Type,
				Confidence: e.Score,
				Start:      start,
				End:        end,
				Redacted:   redactedPages[page.PageNum],
			})
		}
	}
	return findings
}
