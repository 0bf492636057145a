package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/thesishub/thesishub-api/internal/models"
	appErrors "github.com/thesishub/thesishub-api/pkg/errors"
)

type userRepository interface {
	Create(ctx context.Context, user *models.User) error
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	StudentProfile(ctx context.Context, userID string) (*models.StudentProfile, error)
	TeacherProfile(ctx context.Context, userID string) (*models.TeacherProfile, error)
	UpdateTeacherProfile(ctx context.Context, profile *models.TeacherProfile) error
	ListResearchFields(ctx context.Context) ([]models.ResearchField, error)
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// CreateUserRequest is the admin payload for registering an account.
type CreateUserRequest struct {
	Email      string          `json:"email" validate:"required,email"`
	Password   string          `json:"password" validate:"required,min=6"`
	FullName   string          `json:"full_name" validate:"required"`
	Phone      string          `json:"phone"`
	Department string          `json:"department"`
	Role       models.UserRole `json:"role" validate:"required,oneof=ADMIN TEACHER STUDENT"`
}

// UpdateUserRequest carries mutable account fields.
type UpdateUserRequest struct {
	Email      string `json:"email" validate:"omitempty,email"`
	FullName   string `json:"full_name"`
	Phone      string `json:"phone"`
	Department string `json:"department"`
	Active     *bool  `json:"active"`
}

// UpdateTeacherProfileRequest sets teacher-specific attributes.
type UpdateTeacherProfileRequest struct {
	Designation string  `json:"designation"`
	External    *bool   `json:"external"`
	FieldID     *string `json:"field_id"`
}

// UserDetail joins an account with its role profile.
type UserDetail struct {
	User    models.User            `json:"user"`
	Student *models.StudentProfile `json:"student,omitempty"`
	Teacher *models.TeacherProfile `json:"teacher,omitempty"`
}

// UserService implements account management use cases.
type UserService struct {
	repo      userRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService constructs a UserService.
func NewUserService(repo userRepository, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, validator: validate, logger: logger}
}

// Create registers a new account together with its role profile.
func (s *UserService) Create(ctx context.Context, actorID string, req CreateUserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}

	if _, err := s.repo.FindByEmail(ctx, req.Email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Email:        req.Email,
		PasswordHash: string(hash),
		FullName:     req.FullName,
		Phone:        req.Phone,
		Department:   req.Department,
		Role:         req.Role,
		Active:       true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	s.audit(ctx, actorID, models.AuditActionUserCreate, "user", user.ID, map[string]string{"email": user.Email, "role": string(user.Role)})
	return user, nil
}

// Get returns an account joined with its role profile.
func (s *UserService) Get(ctx context.Context, id string) (*UserDetail, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	detail := &UserDetail{User: *user}
	switch user.Role {
	case models.RoleStudent:
		profile, err := s.repo.StudentProfile(ctx, id)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student profile")
		}
		detail.Student = profile
	case models.RoleTeacher:
		profile, err := s.repo.TeacherProfile(ctx, id)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher profile")
		}
		detail.Teacher = profile
	}
	return detail, nil
}

// List returns accounts matching the filter.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return users, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Update persists mutable account fields.
func (s *UserService) Update(ctx context.Context, actorID, id string, req UpdateUserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid update payload")
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if req.Email != "" {
		user.Email = req.Email
	}
	if req.FullName != "" {
		user.FullName = req.FullName
	}
	if req.Phone != "" {
		user.Phone = req.Phone
	}
	if req.Department != "" {
		user.Department = req.Department
	}
	if req.Active != nil {
		user.Active = *req.Active
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}

	s.audit(ctx, actorID, models.AuditActionUserUpdate, "user", user.ID, map[string]string{"email": user.Email})
	return user, nil
}

// UpdateTeacherProfile sets designation, external eligibility and research
// field for a teacher account.
func (s *UserService) UpdateTeacherProfile(ctx context.Context, actorID, teacherID string, req UpdateTeacherProfileRequest) (*models.TeacherProfile, error) {
	profile, err := s.repo.TeacherProfile(ctx, teacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher profile")
	}

	if req.Designation != "" {
		profile.Designation = req.Designation
	}
	if req.External != nil {
		profile.External = *req.External
	}
	if req.FieldID != nil {
		profile.FieldID = req.FieldID
	}

	if err := s.repo.UpdateTeacherProfile(ctx, profile); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update teacher profile")
	}

	s.audit(ctx, actorID, models.AuditActionUserUpdate, "teacher", teacherID, map[string]string{"designation": profile.Designation})
	return profile, nil
}

// ListResearchFields returns the catalogue of thesis topic areas.
func (s *UserService) ListResearchFields(ctx context.Context) ([]models.ResearchField, error) {
	fields, err := s.repo.ListResearchFields(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list research fields")
	}
	return fields, nil
}

func (s *UserService) audit(ctx context.Context, actorID, action, resource, resourceID string, values map[string]string) {
	payload, _ := json.Marshal(values)
	log := &models.AuditLog{
		Action:     action,
		Resource:   resource,
		ResourceID: &resourceID,
		NewValues:  payload,
		CreatedAt:  time.Now().UTC(),
	}
	if actorID != "" {
		log.UserID = &actorID
	}
	if err := s.repo.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}
