package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/thesishub/thesishub-api/internal/models"
)

const documentColumns = `id, group_id, type, state, file_key, file_name, uploaded_at, reviewed_at`

// DocumentRepository stores milestone document metadata. File bytes live in
// the storage backend keyed by file_key.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository creates a new document repository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create inserts a document record in PENDING state.
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	doc.State = models.DocumentPending
	doc.UploadedAt = time.Now().UTC()
	const query = `INSERT INTO documents (id, group_id, type, state, file_key, file_name, uploaded_at)
        VALUES (:id, :group_id, :type, :state, :file_key, :file_name, :uploaded_at)`
	if _, err := r.db.NamedExecContext(ctx, query, doc); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// FindByID returns a document by identifier.
func (r *DocumentRepository) FindByID(ctx context.Context, id string) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1 LIMIT 1`
	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find document: %w", err)
	}
	return &doc, nil
}

// ListByGroup returns a group's documents newest first.
func (r *DocumentRepository) ListByGroup(ctx context.Context, groupID string) ([]models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE group_id = $1 ORDER BY uploaded_at DESC`
	var docs []models.Document
	if err := r.db.SelectContext(ctx, &docs, query, groupID); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// AcceptedTypes returns the distinct document types the group has in
// ACCEPTED state, the inputs to status derivation.
func (r *DocumentRepository) AcceptedTypes(ctx context.Context, groupID string) ([]models.DocumentType, error) {
	const query = `SELECT DISTINCT type FROM documents WHERE group_id = $1 AND state = 'ACCEPTED'`
	var types []models.DocumentType
	if err := r.db.SelectContext(ctx, &types, query, groupID); err != nil {
		return nil, fmt.Errorf("list accepted types: %w", err)
	}
	return types, nil
}

// SetState records a review decision.
func (r *DocumentRepository) SetState(ctx context.Context, id string, state models.DocumentState) error {
	const query = `UPDATE documents SET state = $2, reviewed_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, state, time.Now().UTC()); err != nil {
		return fmt.Errorf("set document state: %w", err)
	}
	return nil
}

// Delete removes a document record and returns its file key so the caller
// can queue file cleanup.
func (r *DocumentRepository) Delete(ctx context.Context, id string) (fileKey string, err error) {
	const query = `DELETE FROM documents WHERE id = $1 RETURNING file_key`
	if err := r.db.GetContext(ctx, &fileKey, query, id); err != nil {
		if err == sql.ErrNoRows {
			return "", err
		}
		return "", fmt.Errorf("delete document: %w", err)
	}
	return fileKey, nil
}
