package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/thesishub/thesishub-api/internal/models"
	"github.com/thesishub/thesishub-api/internal/repository"
	appErrors "github.com/thesishub/thesishub-api/pkg/errors"
)

type groupRepository interface {
	Create(ctx context.Context, group *models.Group, creatorID string) error
	FindByID(ctx context.Context, id string) (*models.Group, error)
	FindByInviteCode(ctx context.Context, code string) (*models.Group, error)
	List(ctx context.Context, filter models.GroupFilter) ([]models.Group, int, error)
	Members(ctx context.Context, groupID string) ([]models.GroupMember, error)
	MoveStudent(ctx context.Context, studentID string, target *string, maxMembers int) (*string, error)
	AssignRole(ctx context.Context, groupID string, role models.TeacherRole, teacherID string) error
	SetApproval(ctx context.Context, groupID string, approved bool, progress int) error
	UpdateProgress(ctx context.Context, groupID string, progress int) error
}

type groupUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	StudentProfile(ctx context.Context, userID string) (*models.StudentProfile, error)
	TeacherProfile(ctx context.Context, userID string) (*models.TeacherProfile, error)
	ListTeacherChoices(ctx context.Context, fieldID string, maxGroups int) ([]models.TeacherChoice, error)
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type groupBatchRepository interface {
	FindByID(ctx context.Context, id string) (*models.Batch, error)
	GroupCount(ctx context.Context, id string) (int, error)
}

type groupDocumentRepository interface {
	ListByGroup(ctx context.Context, groupID string) ([]models.Document, error)
	AcceptedTypes(ctx context.Context, groupID string) ([]models.DocumentType, error)
}

type overviewCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CreateGroupRequest is the student payload for forming a group.
type CreateGroupRequest struct {
	Title      string  `json:"title" validate:"required"`
	Department string  `json:"department" validate:"required"`
	BatchID    string  `json:"batch_id" validate:"required"`
	FieldID    *string `json:"field_id"`
	Choice1ID  *string `json:"choice1_id"`
	Choice2ID  *string `json:"choice2_id"`
	Choice3ID  *string `json:"choice3_id"`
}

// AssignRoleRequest names a teacher for one of the group's grading roles.
type AssignRoleRequest struct {
	Role      models.TeacherRole `json:"role" validate:"required,oneof=SUPERVISOR INTERNAL EXTERNAL"`
	TeacherID string             `json:"teacher_id" validate:"required"`
}

// GroupServiceConfig carries lifecycle policy knobs.
type GroupServiceConfig struct {
	MaxGroupsPerTeacher int
	InviteCodeRetries   int
	CacheEnabled        bool
	CacheTTL            time.Duration
}

// GroupService implements the group lifecycle: creation, membership moves,
// admin approval, role assignment and progress tracking.
type GroupService struct {
	groups    groupRepository
	users     groupUserRepository
	batches   groupBatchRepository
	documents groupDocumentRepository
	cache     overviewCache
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
	config    GroupServiceConfig
}

// NewGroupService constructs a GroupService.
func NewGroupService(groups groupRepository, users groupUserRepository, batches groupBatchRepository, documents groupDocumentRepository, cache overviewCache, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService, config GroupServiceConfig) *GroupService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.InviteCodeRetries <= 0 {
		config.InviteCodeRetries = 5
	}
	return &GroupService{
		groups:    groups,
		users:     users,
		batches:   batches,
		documents: documents,
		cache:     cache,
		validator: validate,
		logger:    logger,
		metrics:   metrics,
		config:    config,
	}
}

// Create forms a new group with the student as its first member. The invite
// code is regenerated on collision up to the configured retry limit.
func (s *GroupService) Create(ctx context.Context, studentID string, req CreateGroupRequest) (*models.Group, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid group payload")
	}
	if err := validateTeacherChoices(req.Choice1ID, req.Choice2ID, req.Choice3ID); err != nil {
		return nil, err
	}

	profile, err := s.users.StudentProfile(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only students can form groups")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student profile")
	}
	if profile.GroupID != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student already belongs to a group")
	}

	batch, err := s.batches.FindByID(ctx, req.BatchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	count, err := s.batches.GroupCount(ctx, batch.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count batch groups")
	}
	if count >= batch.MaxGroups {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("batch already has its maximum of %d groups", batch.MaxGroups))
	}

	group := &models.Group{
		Title:      req.Title,
		Department: req.Department,
		BatchID:    &batch.ID,
		FieldID:    req.FieldID,
		Choice1ID:  req.Choice1ID,
		Choice2ID:  req.Choice2ID,
		Choice3ID:  req.Choice3ID,
	}

	for attempt := 0; attempt < s.config.InviteCodeRetries; attempt++ {
		code, err := generateInviteCode()
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate invite code")
		}
		group.InviteCode = code
		err = s.groups.Create(ctx, group, studentID)
		if err == nil {
			return group, nil
		}
		if !errors.Is(err, repository.ErrDuplicateInviteCode) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create group")
		}
		s.logger.Debug("invite code collision, retrying", zap.Int("attempt", attempt+1))
	}
	return nil, appErrors.Clone(appErrors.ErrInternal, "could not allocate a unique invite code")
}

// Join adds the student to the group behind the invite code. Joining is only
// possible while the group is still pending admin approval and below the
// batch member limit.
func (s *GroupService) Join(ctx context.Context, studentID, inviteCode string) (*models.Group, error) {
	profile, err := s.users.StudentProfile(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only students can join groups")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student profile")
	}
	if profile.GroupID != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student already belongs to a group")
	}

	group, err := s.groups.FindByInviteCode(ctx, strings.TrimSpace(inviteCode))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no group matches that invite code")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
	}

	if group.BatchID == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "group is not attached to a batch")
	}
	batch, err := s.batches.FindByID(ctx, *group.BatchID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}

	if _, err := s.groups.MoveStudent(ctx, studentID, &group.ID, batch.MaxStudentsPerGroup); err != nil {
		switch {
		case errors.Is(err, repository.ErrGroupFull):
			return nil, appErrors.ErrGroupFull
		case errors.Is(err, repository.ErrMembershipClosed):
			return nil, appErrors.ErrMembershipClosed
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "group no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to join group")
	}

	s.invalidateOverview(ctx, group.ID)
	return group, nil
}

// Leave removes the student from their current group. When the student was
// the last member the group and everything attached to it is deleted.
func (s *GroupService) Leave(ctx context.Context, studentID string) error {
	profile, err := s.users.StudentProfile(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrForbidden, "only students can leave groups")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student profile")
	}
	if profile.GroupID == nil {
		return appErrors.Clone(appErrors.ErrConflict, "student is not in a group")
	}
	groupID := *profile.GroupID

	deleted, err := s.groups.MoveStudent(ctx, studentID, nil, 0)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to leave group")
	}
	if deleted != nil {
		s.metrics.RecordGroupDeleted()
		s.logger.Info("group deleted after last member left", zap.String("group_id", *deleted))
	}

	s.invalidateOverview(ctx, groupID)
	return nil
}

// Get returns a single group row with its derived status. Status only needs
// the distinct accepted document types, so the full rows are not loaded.
func (s *GroupService) Get(ctx context.Context, id string) (*models.Group, error) {
	group, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	types, err := s.documents.AcceptedTypes(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load accepted documents")
	}
	group.Status = models.DeriveStatusFromTypes(group.Approved, types)
	return group, nil
}

func (s *GroupService) load(ctx context.Context, id string) (*models.Group, error) {
	group, err := s.groups.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "group not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
	}
	return group, nil
}

// Overview returns the group with members, documents and its derived status.
// The payload is cached when the read cache is enabled.
func (s *GroupService) Overview(ctx context.Context, id string) (*models.GroupOverview, error) {
	cacheKey := overviewCacheKey(id)
	if s.config.CacheEnabled && s.cache != nil {
		var cached models.GroupOverview
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			s.metrics.RecordCacheOperation(true)
			return &cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("overview cache read failed", zap.Error(err))
		}
		s.metrics.RecordCacheOperation(false)
	}

	group, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	members, err := s.groups.Members(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load members")
	}
	docs, err := s.documents.ListByGroup(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load documents")
	}

	overview := &models.GroupOverview{
		Group:     *group,
		Status:    models.DeriveStatus(group.Approved, docs),
		Members:   members,
		Documents: docs,
	}

	if s.config.CacheEnabled && s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, overview, s.config.CacheTTL); err != nil {
			s.logger.Warn("overview cache write failed", zap.Error(err))
		}
	}
	return overview, nil
}

// List returns groups matching the filter.
func (s *GroupService) List(ctx context.Context, filter models.GroupFilter) ([]models.Group, *models.Pagination, error) {
	groups, total, err := s.groups.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list groups")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return groups, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// SetApproval records the admin decision. Approving sets progress to 100.
// Disapproving resets progress to 90, but only for groups currently at 100
// so earlier progress is never clobbered.
func (s *GroupService) SetApproval(ctx context.Context, actorID, groupID string, approve bool) (*models.Group, error) {
	group, err := s.load(ctx, groupID)
	if err != nil {
		return nil, err
	}

	progress := group.Progress
	if approve {
		progress = 100
	} else if group.Progress == 100 {
		progress = 90
	}

	if err := s.groups.SetApproval(ctx, groupID, approve, progress); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to set approval")
	}
	group.Approved = approve
	group.Progress = progress

	payload, _ := json.Marshal(map[string]interface{}{"approved": approve, "progress": progress})
	if err := s.users.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionGroupApprove,
		Resource:   "group",
		ResourceID: &groupID,
		NewValues:  payload,
	}); err != nil {
		s.logger.Warn("failed to record approval audit log", zap.Error(err))
	}

	s.invalidateOverview(ctx, groupID)
	return group, nil
}

// UpdateProgress stores the supervisor's progress estimate, silently clamped
// to the 0..100 range.
func (s *GroupService) UpdateProgress(ctx context.Context, teacherID, groupID string, progress int) (*models.Group, error) {
	group, err := s.load(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if role, ok := group.RoleOf(teacherID); !ok || role != models.RoleSupervisor {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the supervisor can update progress")
	}

	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}

	if err := s.groups.UpdateProgress(ctx, groupID, progress); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update progress")
	}
	group.Progress = progress

	s.invalidateOverview(ctx, groupID)
	return group, nil
}

// AssignRole resolves one of the group's grading roles to a teacher. The
// external examiner role is restricted to teachers flagged as external.
func (s *GroupService) AssignRole(ctx context.Context, actorID, groupID string, req AssignRoleRequest) (*models.Group, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid role payload")
	}

	group, err := s.load(ctx, groupID)
	if err != nil {
		return nil, err
	}

	teacher, err := s.users.FindByID(ctx, req.TeacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	if teacher.Role != models.RoleTeacher {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user is not a teacher")
	}

	if req.Role == models.RoleExternal {
		profile, err := s.users.TeacherProfile(ctx, req.TeacherID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher profile")
		}
		if !profile.External {
			return nil, appErrors.Clone(appErrors.ErrValidation, "teacher is not eligible for the external examiner role")
		}
	}

	if err := s.groups.AssignRole(ctx, groupID, req.Role, req.TeacherID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign role")
	}
	switch req.Role {
	case models.RoleSupervisor:
		group.SupervisorID = &req.TeacherID
	case models.RoleInternal:
		group.InternalID = &req.TeacherID
	case models.RoleExternal:
		group.ExternalID = &req.TeacherID
	}

	payload, _ := json.Marshal(map[string]string{"role": string(req.Role), "teacher_id": req.TeacherID})
	if err := s.users.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionRoleAssign,
		Resource:   "group",
		ResourceID: &groupID,
		NewValues:  payload,
	}); err != nil {
		s.logger.Warn("failed to record role assignment audit log", zap.Error(err))
	}

	s.invalidateOverview(ctx, groupID)
	return group, nil
}

// TeacherChoices lists supervisor candidates for a research field that still
// have capacity for more groups.
func (s *GroupService) TeacherChoices(ctx context.Context, fieldID string) ([]models.TeacherChoice, error) {
	if fieldID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "field_id is required")
	}
	choices, err := s.users.ListTeacherChoices(ctx, fieldID, s.config.MaxGroupsPerTeacher)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teacher choices")
	}
	return choices, nil
}

func (s *GroupService) invalidateOverview(ctx context.Context, groupID string) {
	if !s.config.CacheEnabled || s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, overviewCacheKey(groupID)); err != nil {
		s.logger.Warn("overview cache invalidation failed", zap.Error(err))
	}
}

func overviewCacheKey(groupID string) string {
	return "group:overview:" + groupID
}

// validateTeacherChoices enforces the preference-list rules: choices must be
// pairwise distinct and choice 3 requires choice 2.
func validateTeacherChoices(c1, c2, c3 *string) error {
	if c3 != nil && c2 == nil {
		return appErrors.Clone(appErrors.ErrValidation, "choice 2 is required before choice 3")
	}
	seen := make(map[string]bool, 3)
	for _, c := range []*string{c1, c2, c3} {
		if c == nil {
			continue
		}
		if seen[*c] {
			return appErrors.Clone(appErrors.ErrValidation, "choices must be different")
		}
		seen[*c] = true
	}
	return nil
}

func generateInviteCode() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(buf)), nil
}
