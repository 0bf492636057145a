package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/thesishub/thesishub-api/internal/models"
)

// Sentinel errors surfaced by transactional group operations. Services map
// these onto the API error taxonomy.
var (
	ErrGroupFull           = errors.New("group member limit reached")
	ErrMembershipClosed    = errors.New("group no longer pending approval")
	ErrDuplicateInviteCode = errors.New("invite code already in use")
)

const groupColumns = `id, title, department, field_id, invite_code, batch_id, choice1_id, choice2_id, choice3_id, supervisor_id, internal_id, external_id, progress, approved, created_at, updated_at`

// GroupRepository owns group rows, membership moves and the cascade rules
// tied to them.
type GroupRepository struct {
	db *sqlx.DB
}

// NewGroupRepository creates a new group repository.
func NewGroupRepository(db *sqlx.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// Create inserts the group and points the creator's membership at it in one
// transaction. Returns ErrDuplicateInviteCode when the invite code collides
// so the caller can regenerate and retry.
func (r *GroupRepository) Create(ctx context.Context, group *models.Group, creatorID string) error {
	if group.ID == "" {
		group.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	group.CreatedAt = now
	group.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	const insertGroup = `INSERT INTO groups (id, title, department, field_id, invite_code, batch_id, choice1_id, choice2_id, choice3_id, supervisor_id, internal_id, external_id, progress, approved, created_at, updated_at)
        VALUES (:id, :title, :department, :field_id, :invite_code, :batch_id, :choice1_id, :choice2_id, :choice3_id, :supervisor_id, :internal_id, :external_id, :progress, :approved, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insertGroup, group); err != nil {
		tx.Rollback() //nolint:errcheck
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" && strings.Contains(pqErr.Constraint, "invite_code") {
			return ErrDuplicateInviteCode
		}
		return fmt.Errorf("insert group: %w", err)
	}
	const setMembership = `UPDATE students SET group_id = $2, updated_at = $3 WHERE user_id = $1`
	if _, err := tx.ExecContext(ctx, setMembership, creatorID, group.ID, now); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("set creator membership: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit group: %w", err)
	}
	return nil
}

// FindByID returns a group by identifier.
func (r *GroupRepository) FindByID(ctx context.Context, id string) (*models.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups WHERE id = $1 LIMIT 1`
	var group models.Group
	if err := r.db.GetContext(ctx, &group, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find group: %w", err)
	}
	return &group, nil
}

// FindByInviteCode returns a group by its invite code.
func (r *GroupRepository) FindByInviteCode(ctx context.Context, code string) (*models.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups WHERE invite_code = $1 LIMIT 1`
	var group models.Group
	if err := r.db.GetContext(ctx, &group, query, code); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find group by invite code: %w", err)
	}
	return &group, nil
}

// List returns groups matching the filter with a total count.
func (r *GroupRepository) List(ctx context.Context, filter models.GroupFilter) ([]models.Group, int, error) {
	baseQuery := `FROM groups WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.BatchID != "" {
		conditions = append(conditions, fmt.Sprintf("batch_id = $%d", len(args)+1))
		args = append(args, filter.BatchID)
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("(supervisor_id = $%d OR internal_id = $%d OR external_id = $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.Approved != nil {
		conditions = append(conditions, fmt.Sprintf("approved = $%d", len(args)+1))
		args = append(args, *filter.Approved)
	}
	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY created_at LIMIT %d OFFSET %d", groupColumns, baseQuery, pageSize, offset)
	var groups []models.Group
	if err := r.db.SelectContext(ctx, &groups, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list groups: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count groups: %w", err)
	}
	return groups, total, nil
}

// Members returns the group's student roster.
func (r *GroupRepository) Members(ctx context.Context, groupID string) ([]models.GroupMember, error) {
	const query = `SELECT s.user_id, u.full_name, u.email, u.department
        FROM students s
        JOIN users u ON u.id = s.user_id
        WHERE s.group_id = $1
        ORDER BY u.full_name`
	var members []models.GroupMember
	if err := r.db.SelectContext(ctx, &members, query, groupID); err != nil {
		return nil, fmt.Errorf("list group members: %w", err)
	}
	return members, nil
}

// MemberIDs returns the user ids of the group's students.
func (r *GroupRepository) MemberIDs(ctx context.Context, groupID string) ([]string, error) {
	const query = `SELECT user_id FROM students WHERE group_id = $1`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, groupID); err != nil {
		return nil, fmt.Errorf("list group member ids: %w", err)
	}
	return ids, nil
}

// MoveStudent changes a student's membership pointer inside one transaction.
// target is nil when the student leaves without joining another group.
//
// Invariants enforced here, against state read under row locks:
//   - the target group must still be pending admin approval
//   - the target group must have fewer than maxMembers students
//   - when the student's previous group is left with no members, it is
//     deleted in the same transaction (storage-level cascades remove its
//     documents, marks, results, comments, logbooks and notifications)
//
// The returned id is the deleted previous group, if any.
func (r *GroupRepository) MoveStudent(ctx context.Context, studentID string, target *string, maxMembers int) (deletedGroupID *string, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback() //nolint:errcheck
		}
	}()

	var oldGroupID *string
	const lockStudent = `SELECT group_id FROM students WHERE user_id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &oldGroupID, lockStudent, studentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("lock student row: %w", err)
	}

	if target != nil {
		var approved bool
		const lockGroup = `SELECT approved FROM groups WHERE id = $1 FOR UPDATE`
		if err = tx.GetContext(ctx, &approved, lockGroup, *target); err != nil {
			if err == sql.ErrNoRows {
				return nil, err
			}
			return nil, fmt.Errorf("lock target group: %w", err)
		}
		if approved {
			err = ErrMembershipClosed
			return nil, err
		}
		var members int
		const countMembers = `SELECT COUNT(*) FROM students WHERE group_id = $1`
		if err = tx.GetContext(ctx, &members, countMembers, *target); err != nil {
			return nil, fmt.Errorf("count target members: %w", err)
		}
		if maxMembers > 0 && members >= maxMembers {
			err = ErrGroupFull
			return nil, err
		}
	}

	const updateStudent = `UPDATE students SET group_id = $2, updated_at = $3 WHERE user_id = $1`
	if _, err = tx.ExecContext(ctx, updateStudent, studentID, target, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("update membership: %w", err)
	}

	if oldGroupID != nil && (target == nil || *target != *oldGroupID) {
		var remaining int
		const countRemaining = `SELECT COUNT(*) FROM students WHERE group_id = $1`
		if err = tx.GetContext(ctx, &remaining, countRemaining, *oldGroupID); err != nil {
			return nil, fmt.Errorf("count remaining members: %w", err)
		}
		if remaining == 0 {
			const deleteGroup = `DELETE FROM groups WHERE id = $1`
			if _, err = tx.ExecContext(ctx, deleteGroup, *oldGroupID); err != nil {
				return nil, fmt.Errorf("delete emptied group: %w", err)
			}
			deletedGroupID = oldGroupID
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit membership change: %w", err)
	}
	return deletedGroupID, nil
}

// AssignRole sets one of the group's resolved teacher roles.
func (r *GroupRepository) AssignRole(ctx context.Context, groupID string, role models.TeacherRole, teacherID string) error {
	var column string
	switch role {
	case models.RoleSupervisor:
		column = "supervisor_id"
	case models.RoleInternal:
		column = "internal_id"
	case models.RoleExternal:
		column = "external_id"
	default:
		return fmt.Errorf("unknown teacher role %q", role)
	}
	query := fmt.Sprintf(`UPDATE groups SET %s = $2, updated_at = $3 WHERE id = $1`, column)
	if _, err := r.db.ExecContext(ctx, query, groupID, teacherID, time.Now().UTC()); err != nil {
		return fmt.Errorf("assign %s: %w", strings.ToLower(string(role)), err)
	}
	return nil
}

// SetApproval flips the approval flag together with the progress adjustment
// decided by the service.
func (r *GroupRepository) SetApproval(ctx context.Context, groupID string, approved bool, progress int) error {
	const query = `UPDATE groups SET approved = $2, progress = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, groupID, approved, progress, time.Now().UTC()); err != nil {
		return fmt.Errorf("set approval: %w", err)
	}
	return nil
}

// UpdateProgress stores a progress value already clamped by the service.
func (r *GroupRepository) UpdateProgress(ctx context.Context, groupID string, progress int) error {
	const query = `UPDATE groups SET progress = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, groupID, progress, time.Now().UTC()); err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}
