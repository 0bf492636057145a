package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/thesishub/thesishub-api/internal/models"
)

const userColumns = `id, email, password_hash, full_name, phone, department, role, active, last_login, created_at, updated_at`

// UserRepository provides database access for users, role profiles and auth
// session state.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts the user row together with its role profile in one
// transaction so a student or teacher never exists without their side table.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	const insertUser = `INSERT INTO users (id, email, password_hash, full_name, phone, department, role, active, created_at, updated_at)
        VALUES (:id, :email, :password_hash, :full_name, :phone, :department, :role, :active, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insertUser, user); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("insert user: %w", err)
	}
	switch user.Role {
	case models.RoleStudent:
		const insertStudent = `INSERT INTO students (user_id, created_at, updated_at) VALUES ($1, $2, $2)`
		if _, err := tx.ExecContext(ctx, insertStudent, user.ID, now); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("insert student profile: %w", err)
		}
	case models.RoleTeacher:
		const insertTeacher = `INSERT INTO teachers (user_id, designation, external, created_at, updated_at) VALUES ($1, '', FALSE, $2, $2)`
		if _, err := tx.ExecContext(ctx, insertTeacher, user.ID, now); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("insert teacher profile: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit user: %w", err)
	}
	return nil
}

// FindByEmail returns a user by email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

// FindByID returns a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// Update persists mutable profile fields.
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now().UTC()
	const query = `UPDATE users SET email = :email, full_name = :full_name, phone = :phone, department = :department, active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

// UpdateLastLogin updates the last_login timestamp for a user.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE users SET last_login = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, ts, ts); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// UpdatePassword updates the stored password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	const query = `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, passwordHash, updatedAt); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// List returns users based on filters with total count.
func (r *UserRepository) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	baseQuery := `FROM users WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Role != nil {
		conditions = append(conditions, fmt.Sprintf("role = $%d", len(args)+1))
		args = append(args, *filter.Role)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(email) LIKE $%d OR LOWER(full_name) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"email":      true,
		"created_at": true,
		"updated_at": true,
		"full_name":  true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}

	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
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

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", userColumns, baseQuery, sortBy, sortOrder, pageSize, offset)

	var users []models.User
	if err := r.db.SelectContext(ctx, &users, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	return users, total, nil
}

// StudentProfile returns the student side table row for a user.
func (r *UserRepository) StudentProfile(ctx context.Context, userID string) (*models.StudentProfile, error) {
	const query = `SELECT user_id, group_id, created_at, updated_at FROM students WHERE user_id = $1 LIMIT 1`
	var profile models.StudentProfile
	if err := r.db.GetContext(ctx, &profile, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find student profile: %w", err)
	}
	return &profile, nil
}

// TeacherProfile returns the teacher side table row for a user.
func (r *UserRepository) TeacherProfile(ctx context.Context, userID string) (*models.TeacherProfile, error) {
	const query = `SELECT user_id, designation, external, field_id, created_at, updated_at FROM teachers WHERE user_id = $1 LIMIT 1`
	var profile models.TeacherProfile
	if err := r.db.GetContext(ctx, &profile, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find teacher profile: %w", err)
	}
	return &profile, nil
}

// UpdateTeacherProfile persists designation, external eligibility and field.
func (r *UserRepository) UpdateTeacherProfile(ctx context.Context, profile *models.TeacherProfile) error {
	profile.UpdatedAt = time.Now().UTC()
	const query = `UPDATE teachers SET designation = :designation, external = :external, field_id = :field_id, updated_at = :updated_at WHERE user_id = :user_id`
	if _, err := r.db.NamedExecContext(ctx, query, profile); err != nil {
		return fmt.Errorf("update teacher profile: %w", err)
	}
	return nil
}

// ListTeacherChoices returns teachers attached to a research field that still
// have capacity for more supervised groups.
func (r *UserRepository) ListTeacherChoices(ctx context.Context, fieldID string, maxGroups int) ([]models.TeacherChoice, error) {
	const query = `SELECT t.user_id, u.full_name, COUNT(g.id) AS group_count
        FROM teachers t
        JOIN users u ON u.id = t.user_id
        LEFT JOIN groups g ON g.supervisor_id = t.user_id
        WHERE t.field_id = $1 AND u.active
        GROUP BY t.user_id, u.full_name
        HAVING COUNT(g.id) < $2
        ORDER BY u.full_name`
	var choices []models.TeacherChoice
	if err := r.db.SelectContext(ctx, &choices, query, fieldID, maxGroups); err != nil {
		return nil, fmt.Errorf("list teacher choices: %w", err)
	}
	return choices, nil
}

// ListResearchFields returns all known research fields.
func (r *UserRepository) ListResearchFields(ctx context.Context) ([]models.ResearchField, error) {
	const query = `SELECT id, name FROM research_fields ORDER BY name`
	var fields []models.ResearchField
	if err := r.db.SelectContext(ctx, &fields, query); err != nil {
		return nil, fmt.Errorf("list research fields: %w", err)
	}
	return fields, nil
}

// CreateRefreshToken stores a refresh token session.
func (r *UserRepository) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	const query = `INSERT INTO refresh_tokens (id, user_id, token, expires_at, created_at, revoked, ip_address, user_agent)
        VALUES (:id, :user_id, :token, :expires_at, :created_at, :revoked, :ip_address, :user_agent)`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

// FindRefreshToken returns a refresh token row by its opaque value.
func (r *UserRepository) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	const query = `SELECT id, user_id, token, expires_at, created_at, revoked, revoked_at, ip_address, user_agent FROM refresh_tokens WHERE token = $1 LIMIT 1`
	var row models.RefreshToken
	if err := r.db.GetContext(ctx, &row, query, token); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return &row, nil
}

// RevokeRefreshToken marks a single refresh token as revoked.
func (r *UserRepository) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, revokedAt); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeUserRefreshTokens revokes every live session for a user.
func (r *UserRepository) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE user_id = $1 AND NOT revoked`
	if _, err := r.db.ExecContext(ctx, query, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return nil
}

// CreateAuditLog records an audit trail row.
func (r *UserRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_logs (id, user_id, action, resource, resource_id, old_values, new_values, ip_address, user_agent, created_at)
        VALUES (:id, :user_id, :action, :resource, :resource_id, :old_values, :new_values, :ip_address, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}
