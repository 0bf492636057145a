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

// JournalRepository stores the append-only comment thread and student
// logbooks attached to a group.
type JournalRepository struct {
	db *sqlx.DB
}

// NewJournalRepository creates a new journal repository.
func NewJournalRepository(db *sqlx.DB) *JournalRepository {
	return &JournalRepository{db: db}
}

// CreateComment appends a comment.
func (r *JournalRepository) CreateComment(ctx context.Context, comment *models.Comment) error {
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	comment.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO comments (id, group_id, author_id, author_name, text, created_at)
        VALUES (:id, :group_id, :author_id, :author_name, :text, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, comment); err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

// ListComments returns the group's comments oldest first.
func (r *JournalRepository) ListComments(ctx context.Context, groupID string) ([]models.Comment, error) {
	const query = `SELECT id, group_id, author_id, author_name, text, created_at
        FROM comments WHERE group_id = $1 ORDER BY created_at`
	var comments []models.Comment
	if err := r.db.SelectContext(ctx, &comments, query, groupID); err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return comments, nil
}

// CreateLogbook appends a logbook entry in unapproved state.
func (r *JournalRepository) CreateLogbook(ctx context.Context, entry *models.LogbookEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.Approved = false
	entry.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO logbooks (id, group_id, author_id, author_name, body, approved, created_at)
        VALUES (:id, :group_id, :author_id, :author_name, :body, :approved, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("insert logbook: %w", err)
	}
	return nil
}

// ListLogbooks returns the group's logbook entries oldest first.
func (r *JournalRepository) ListLogbooks(ctx context.Context, groupID string) ([]models.LogbookEntry, error) {
	const query = `SELECT id, group_id, author_id, author_name, body, approved, created_at
        FROM logbooks WHERE group_id = $1 ORDER BY created_at`
	var entries []models.LogbookEntry
	if err := r.db.SelectContext(ctx, &entries, query, groupID); err != nil {
		return nil, fmt.Errorf("list logbooks: %w", err)
	}
	return entries, nil
}

// FindLogbook returns a logbook entry by identifier.
func (r *JournalRepository) FindLogbook(ctx context.Context, id string) (*models.LogbookEntry, error) {
	const query = `SELECT id, group_id, author_id, author_name, body, approved, created_at
        FROM logbooks WHERE id = $1 LIMIT 1`
	var entry models.LogbookEntry
	if err := r.db.GetContext(ctx, &entry, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find logbook: %w", err)
	}
	return &entry, nil
}

// SetLogbookApproval records the supervisor's approval decision.
func (r *JournalRepository) SetLogbookApproval(ctx context.Context, id string, approved bool) error {
	const query = `UPDATE logbooks SET approved = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, approved); err != nil {
		return fmt.Errorf("set logbook approval: %w", err)
	}
	return nil
}
