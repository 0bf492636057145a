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

const batchColumns = `id, number, max_groups, min_groups, max_students_per_group, supervisor_pct, internal_pct, external_pct, supervisor_cap, internal_cap, external_cap, created_at, updated_at`

// BatchRepository manages cohort configuration rows.
type BatchRepository struct {
	db *sqlx.DB
}

// NewBatchRepository creates a new batch repository.
func NewBatchRepository(db *sqlx.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// Create inserts a batch.
func (r *BatchRepository) Create(ctx context.Context, batch *models.Batch) error {
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	batch.CreatedAt = now
	batch.UpdatedAt = now
	const query = `INSERT INTO batches (id, number, max_groups, min_groups, max_students_per_group, supervisor_pct, internal_pct, external_pct, supervisor_cap, internal_cap, external_cap, created_at, updated_at)
        VALUES (:id, :number, :max_groups, :min_groups, :max_students_per_group, :supervisor_pct, :internal_pct, :external_pct, :supervisor_cap, :internal_cap, :external_cap, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, batch); err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

// Update persists batch limits and weighting.
func (r *BatchRepository) Update(ctx context.Context, batch *models.Batch) error {
	batch.UpdatedAt = time.Now().UTC()
	const query = `UPDATE batches SET number = :number, max_groups = :max_groups, min_groups = :min_groups, max_students_per_group = :max_students_per_group,
        supervisor_pct = :supervisor_pct, internal_pct = :internal_pct, external_pct = :external_pct,
        supervisor_cap = :supervisor_cap, internal_cap = :internal_cap, external_cap = :external_cap, updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, batch); err != nil {
		return fmt.Errorf("update batch: %w", err)
	}
	return nil
}

// FindByID returns a batch by identifier.
func (r *BatchRepository) FindByID(ctx context.Context, id string) (*models.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches WHERE id = $1 LIMIT 1`
	var batch models.Batch
	if err := r.db.GetContext(ctx, &batch, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find batch: %w", err)
	}
	return &batch, nil
}

// List returns all batches newest first.
func (r *BatchRepository) List(ctx context.Context) ([]models.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches ORDER BY number DESC`
	var batches []models.Batch
	if err := r.db.SelectContext(ctx, &batches, query); err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	return batches, nil
}

// Delete removes a batch. The groups.batch_id foreign key is declared
// ON DELETE SET NULL so referencing groups keep existing without a batch.
func (r *BatchRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM batches WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete batch: %w", err)
	}
	return nil
}

// GroupCount returns how many groups reference the batch.
func (r *BatchRepository) GroupCount(ctx context.Context, id string) (int, error) {
	const query = `SELECT COUNT(*) FROM groups WHERE batch_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, id); err != nil {
		return 0, fmt.Errorf("count batch groups: %w", err)
	}
	return count, nil
}
