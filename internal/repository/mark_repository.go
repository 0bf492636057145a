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

const markColumns = `id, group_id, student_id, grader_id, role, value, comment, created_at, updated_at`
const resultColumns = `id, group_id, student_id, total, grade, calculated_at`

// MarkRepository stores marks and the results derived from them. Derivation
// happens inside the same transaction as the mark write so a committed mark
// is never observable without its recomputed result.
type MarkRepository struct {
	db *sqlx.DB
}

// NewMarkRepository creates a new mark repository.
func NewMarkRepository(db *sqlx.DB) *MarkRepository {
	return &MarkRepository{db: db}
}

// UpsertWithResult writes the grader's mark for the student, then recomputes
// and stores the student's result from all current marks using the batch
// weights. One mark per (group, grader, student); resubmission overwrites
// value, comment and the role snapshot.
func (r *MarkRepository) UpsertWithResult(ctx context.Context, mark *models.Mark, batch *models.Batch) (*models.Result, error) {
	if mark.ID == "" {
		mark.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	mark.CreatedAt = now
	mark.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback() //nolint:errcheck
		}
	}()

	const upsertMark = `INSERT INTO marks (id, group_id, student_id, grader_id, role, value, comment, created_at, updated_at)
        VALUES (:id, :group_id, :student_id, :grader_id, :role, :value, :comment, :created_at, :updated_at)
        ON CONFLICT (group_id, grader_id, student_id)
        DO UPDATE SET role = EXCLUDED.role, value = EXCLUDED.value, comment = EXCLUDED.comment, updated_at = EXCLUDED.updated_at`
	if _, err = tx.NamedExecContext(ctx, upsertMark, mark); err != nil {
		return nil, fmt.Errorf("upsert mark: %w", err)
	}

	marksQuery := `SELECT ` + markColumns + ` FROM marks WHERE group_id = $1 AND student_id = $2 FOR UPDATE`
	var marks []models.Mark
	if err = tx.SelectContext(ctx, &marks, marksQuery, mark.GroupID, mark.StudentID); err != nil {
		return nil, fmt.Errorf("load student marks: %w", err)
	}

	total := models.WeightedTotal(marks, batch)
	result := &models.Result{
		ID:           uuid.NewString(),
		GroupID:      mark.GroupID,
		StudentID:    mark.StudentID,
		Total:        total,
		Grade:        models.LetterGrade(total),
		CalculatedAt: now,
	}
	const upsertResult = `INSERT INTO results (id, group_id, student_id, total, grade, calculated_at)
        VALUES (:id, :group_id, :student_id, :total, :grade, :calculated_at)
        ON CONFLICT (group_id, student_id)
        DO UPDATE SET total = EXCLUDED.total, grade = EXCLUDED.grade, calculated_at = EXCLUDED.calculated_at`
	if _, err = tx.NamedExecContext(ctx, upsertResult, result); err != nil {
		return nil, fmt.Errorf("upsert result: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit mark: %w", err)
	}
	return result, nil
}

// ListByGroup returns every mark recorded for the group.
func (r *MarkRepository) ListByGroup(ctx context.Context, groupID string) ([]models.Mark, error) {
	query := `SELECT ` + markColumns + ` FROM marks WHERE group_id = $1 ORDER BY student_id, role`
	var marks []models.Mark
	if err := r.db.SelectContext(ctx, &marks, query, groupID); err != nil {
		return nil, fmt.Errorf("list marks: %w", err)
	}
	return marks, nil
}

// ListByGrader returns the grader's own marks within the group.
func (r *MarkRepository) ListByGrader(ctx context.Context, groupID, graderID string) ([]models.Mark, error) {
	query := `SELECT ` + markColumns + ` FROM marks WHERE group_id = $1 AND grader_id = $2 ORDER BY student_id`
	var marks []models.Mark
	if err := r.db.SelectContext(ctx, &marks, query, groupID, graderID); err != nil {
		return nil, fmt.Errorf("list grader marks: %w", err)
	}
	return marks, nil
}

// ResultsByGroup returns the group's materialized results.
func (r *MarkRepository) ResultsByGroup(ctx context.Context, groupID string) ([]models.Result, error) {
	query := `SELECT ` + resultColumns + ` FROM results WHERE group_id = $1 ORDER BY student_id`
	var results []models.Result
	if err := r.db.SelectContext(ctx, &results, query, groupID); err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	return results, nil
}

// ResultForStudent returns a single student's result within the group.
func (r *MarkRepository) ResultForStudent(ctx context.Context, groupID, studentID string) (*models.Result, error) {
	query := `SELECT ` + resultColumns + ` FROM results WHERE group_id = $1 AND student_id = $2 LIMIT 1`
	var result models.Result
	if err := r.db.GetContext(ctx, &result, query, groupID, studentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find result: %w", err)
	}
	return &result, nil
}

// ResultsByBatch returns all results for groups in the batch, joined with
// student and group identity for grade sheet export.
func (r *MarkRepository) ResultsByBatch(ctx context.Context, batchID string) ([]models.ResultRow, error) {
	const query = `SELECT res.group_id, g.title AS group_title, res.student_id, u.full_name AS student_name, res.total, res.grade
        FROM results res
        JOIN groups g ON g.id = res.group_id
        JOIN users u ON u.id = res.student_id
        WHERE g.batch_id = $1
        ORDER BY g.title, u.full_name`
	var rows []models.ResultRow
	if err := r.db.SelectContext(ctx, &rows, query, batchID); err != nil {
		return nil, fmt.Errorf("list batch results: %w", err)
	}
	return rows, nil
}
