package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/thesishub/thesishub-api/internal/models"
	"github.com/thesishub/thesishub-api/internal/repository"
	appErrors "github.com/thesishub/thesishub-api/pkg/errors"
)

type mockGroupRepo struct {
	group         *models.Group
	createErrs    []error
	createCalls   int
	moveErr       error
	movedTo       *string
	moveCalls     int
	approval      *bool
	progressSaved *int
	assignedRole  models.TeacherRole
	assignedTo    string
}

func (r *mockGroupRepo) Create(ctx context.Context, group *models.Group, creatorID string) error {
	idx := r.createCalls
	r.createCalls++
	if idx < len(r.createErrs) {
		return r.createErrs[idx]
	}
	group.ID = "group-new"
	r.group = group
	return nil
}

func (r *mockGroupRepo) FindByID(ctx context.Context, id string) (*models.Group, error) {
	if r.group == nil || r.group.ID != id {
		return nil, sql.ErrNoRows
	}
	copied := *r.group
	return &copied, nil
}

func (r *mockGroupRepo) FindByInviteCode(ctx context.Context, code string) (*models.Group, error) {
	if r.group == nil || r.group.InviteCode != code {
		return nil, sql.ErrNoRows
	}
	copied := *r.group
	return &copied, nil
}

func (r *mockGroupRepo) List(ctx context.Context, filter models.GroupFilter) ([]models.Group, int, error) {
	if r.group == nil {
		return nil, 0, nil
	}
	return []models.Group{*r.group}, 1, nil
}

func (r *mockGroupRepo) Members(ctx context.Context, groupID string) ([]models.GroupMember, error) {
	return nil, nil
}

func (r *mockGroupRepo) MoveStudent(ctx context.Context, studentID string, target *string, maxMembers int) (*string, error) {
	r.moveCalls++
	if r.moveErr != nil {
		return nil, r.moveErr
	}
	r.movedTo = target
	return nil, nil
}

func (r *mockGroupRepo) AssignRole(ctx context.Context, groupID string, role models.TeacherRole, teacherID string) error {
	r.assignedRole = role
	r.assignedTo = teacherID
	return nil
}

func (r *mockGroupRepo) SetApproval(ctx context.Context, groupID string, approved bool, progress int) error {
	r.approval = &approved
	r.progressSaved = &progress
	if r.group != nil {
		r.group.Approved = approved
		r.group.Progress = progress
	}
	return nil
}

func (r *mockGroupRepo) UpdateProgress(ctx context.Context, groupID string, progress int) error {
	r.progressSaved = &progress
	if r.group != nil {
		r.group.Progress = progress
	}
	return nil
}

type mockGroupUserRepo struct {
	student *models.StudentProfile
	users   map[string]*models.User
	teacher *models.TeacherProfile
	audits  []models.AuditLog
	choices []models.TeacherChoice
}

func (r *mockGroupUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := r.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (r *mockGroupUserRepo) StudentProfile(ctx context.Context, userID string) (*models.StudentProfile, error) {
	if r.student == nil || r.student.UserID != userID {
		return nil, sql.ErrNoRows
	}
	return r.student, nil
}

func (r *mockGroupUserRepo) TeacherProfile(ctx context.Context, userID string) (*models.TeacherProfile, error) {
	if r.teacher == nil || r.teacher.UserID != userID {
		return nil, sql.ErrNoRows
	}
	return r.teacher, nil
}

func (r *mockGroupUserRepo) ListTeacherChoices(ctx context.Context, fieldID string, maxGroups int) ([]models.TeacherChoice, error) {
	return r.choices, nil
}

func (r *mockGroupUserRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	r.audits = append(r.audits, *log)
	return nil
}

type mockGroupBatchRepo struct {
	batch  *models.Batch
	groups int
}

func (r *mockGroupBatchRepo) FindByID(ctx context.Context, id string) (*models.Batch, error) {
	if r.batch == nil || r.batch.ID != id {
		return nil, sql.ErrNoRows
	}
	return r.batch, nil
}

func (r *mockGroupBatchRepo) GroupCount(ctx context.Context, id string) (int, error) {
	return r.groups, nil
}

type mockGroupDocRepo struct {
	docs     []models.Document
	accepted []models.DocumentType
}

func (r *mockGroupDocRepo) ListByGroup(ctx context.Context, groupID string) ([]models.Document, error) {
	return r.docs, nil
}

func (r *mockGroupDocRepo) AcceptedTypes(ctx context.Context, groupID string) ([]models.DocumentType, error) {
	return r.accepted, nil
}

var testBatchID = "batch-1"

func newGroupFixture(group *models.Group) (*GroupService, *mockGroupRepo, *mockGroupUserRepo, *mockGroupBatchRepo) {
	groups := &mockGroupRepo{group: group}
	users := &mockGroupUserRepo{users: map[string]*models.User{}}
	batches := &mockGroupBatchRepo{batch: &models.Batch{
		ID: "batch-1", MaxGroups: 10, MaxStudentsPerGroup: 5,
		SupervisorPct: 50, InternalPct: 30, ExternalPct: 20,
	}}
	docs := &mockGroupDocRepo{}
	svc := NewGroupService(groups, users, batches, docs, nil, validator.New(), zap.NewNop(), nil, GroupServiceConfig{
		MaxGroupsPerTeacher: 8,
		InviteCodeRetries:   3,
	})
	return svc, groups, users, batches
}

func TestGroupServiceApproveSetsProgressTo100(t *testing.T) {
	svc, repo, _, _ := newGroupFixture(&models.Group{ID: "group-1", Progress: 40})

	group, err := svc.SetApproval(context.Background(), "admin-1", "group-1", true)
	require.NoError(t, err)
	assert.True(t, group.Approved)
	assert.Equal(t, 100, group.Progress)
	require.NotNil(t, repo.progressSaved)
	assert.Equal(t, 100, *repo.progressSaved)
}

func TestGroupServiceDisapproveResetsFullProgressTo90(t *testing.T) {
	svc, _, _, _ := newGroupFixture(&models.Group{ID: "group-1", Approved: true, Progress: 100})

	group, err := svc.SetApproval(context.Background(), "admin-1", "group-1", false)
	require.NoError(t, err)
	assert.False(t, group.Approved)
	assert.Equal(t, 90, group.Progress)
}

func TestGroupServiceDisapprovePreservesPartialProgress(t *testing.T) {
	svc, _, _, _ := newGroupFixture(&models.Group{ID: "group-1", Approved: true, Progress: 40})

	group, err := svc.SetApproval(context.Background(), "admin-1", "group-1", false)
	require.NoError(t, err)
	assert.Equal(t, 40, group.Progress)
}

func TestGroupServiceProgressClamped(t *testing.T) {
	supervisor := "teacher-1"
	svc, _, _, _ := newGroupFixture(&models.Group{ID: "group-1", SupervisorID: &supervisor})

	group, err := svc.UpdateProgress(context.Background(), supervisor, "group-1", 150)
	require.NoError(t, err)
	assert.Equal(t, 100, group.Progress)

	group, err = svc.UpdateProgress(context.Background(), supervisor, "group-1", -5)
	require.NoError(t, err)
	assert.Equal(t, 0, group.Progress)
}

func TestGroupServiceProgressRequiresSupervisor(t *testing.T) {
	supervisor := "teacher-1"
	svc, _, _, _ := newGroupFixture(&models.Group{ID: "group-1", SupervisorID: &supervisor})

	_, err := svc.UpdateProgress(context.Background(), "teacher-2", "group-1", 50)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestGroupServiceJoinMapsCapacityError(t *testing.T) {
	svc, repo, users, _ := newGroupFixture(&models.Group{ID: "group-1", InviteCode: "ABCD1234", BatchID: &testBatchID})
	users.student = &models.StudentProfile{UserID: "student-1"}
	repo.moveErr = repository.ErrGroupFull

	_, err := svc.Join(context.Background(), "student-1", "ABCD1234")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrGroupFull.Code, appErrors.FromError(err).Code)
}

func TestGroupServiceJoinMapsClosedMembership(t *testing.T) {
	svc, repo, users, _ := newGroupFixture(&models.Group{ID: "group-1", InviteCode: "ABCD1234", BatchID: &testBatchID})
	users.student = &models.StudentProfile{UserID: "student-1"}
	repo.moveErr = repository.ErrMembershipClosed

	_, err := svc.Join(context.Background(), "student-1", "ABCD1234")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrMembershipClosed.Code, appErrors.FromError(err).Code)
}

func TestGroupServiceJoinUnknownCode(t *testing.T) {
	svc, _, users, _ := newGroupFixture(&models.Group{ID: "group-1", InviteCode: "ABCD1234", BatchID: &testBatchID})
	users.student = &models.StudentProfile{UserID: "student-1"}

	_, err := svc.Join(context.Background(), "student-1", "WRONG")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestGroupServiceJoinRejectsSecondGroup(t *testing.T) {
	existing := "group-0"
	svc, _, users, _ := newGroupFixture(&models.Group{ID: "group-1", InviteCode: "ABCD1234", BatchID: &testBatchID})
	users.student = &models.StudentProfile{UserID: "student-1", GroupID: &existing}

	_, err := svc.Join(context.Background(), "student-1", "ABCD1234")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestGroupServiceCreateRetriesInviteCodeCollisions(t *testing.T) {
	svc, repo, users, _ := newGroupFixture(nil)
	users.student = &models.StudentProfile{UserID: "student-1"}
	repo.createErrs = []error{repository.ErrDuplicateInviteCode, repository.ErrDuplicateInviteCode}

	group, err := svc.Create(context.Background(), "student-1", CreateGroupRequest{
		Title:      "Solar Tracker",
		Department: "EEE",
		BatchID:    "batch-1",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, repo.createCalls)
	assert.NotEmpty(t, group.InviteCode)
}

func TestGroupServiceCreateGivesUpAfterRetryBudget(t *testing.T) {
	svc, repo, users, _ := newGroupFixture(nil)
	users.student = &models.StudentProfile{UserID: "student-1"}
	repo.createErrs = []error{
		repository.ErrDuplicateInviteCode,
		repository.ErrDuplicateInviteCode,
		repository.ErrDuplicateInviteCode,
	}

	_, err := svc.Create(context.Background(), "student-1", CreateGroupRequest{
		Title:      "Solar Tracker",
		Department: "EEE",
		BatchID:    "batch-1",
	})
	require.Error(t, err)
	assert.Equal(t, 3, repo.createCalls)
}

func TestGroupServiceCreateRejectsFullBatch(t *testing.T) {
	svc, _, users, batches := newGroupFixture(nil)
	users.student = &models.StudentProfile{UserID: "student-1"}
	batches.groups = batches.batch.MaxGroups

	_, err := svc.Create(context.Background(), "student-1", CreateGroupRequest{
		Title:      "Solar Tracker",
		Department: "EEE",
		BatchID:    "batch-1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestGroupServiceAssignExternalRequiresEligibility(t *testing.T) {
	svc, _, users, _ := newGroupFixture(&models.Group{ID: "group-1"})
	users.users["teacher-1"] = &models.User{ID: "teacher-1", Role: models.RoleTeacher}
	users.teacher = &models.TeacherProfile{UserID: "teacher-1", External: false}

	_, err := svc.AssignRole(context.Background(), "admin-1", "group-1", AssignRoleRequest{
		Role:      models.RoleExternal,
		TeacherID: "teacher-1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	users.teacher.External = true
	group, err := svc.AssignRole(context.Background(), "admin-1", "group-1", AssignRoleRequest{
		Role:      models.RoleExternal,
		TeacherID: "teacher-1",
	})
	require.NoError(t, err)
	require.NotNil(t, group.ExternalID)
	assert.Equal(t, "teacher-1", *group.ExternalID)
}

func TestGroupServiceGetDerivesStatus(t *testing.T) {
	groups := &mockGroupRepo{group: &models.Group{ID: "group-1", Approved: true}}
	docs := &mockGroupDocRepo{accepted: []models.DocumentType{models.DocumentProposal}}
	svc := NewGroupService(groups, &mockGroupUserRepo{}, &mockGroupBatchRepo{}, docs, nil, validator.New(), zap.NewNop(), nil, GroupServiceConfig{})

	group, err := svc.Get(context.Background(), "group-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusProposalDone, group.Status)

	groups.group.Approved = false
	group, err = svc.Get(context.Background(), "group-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingApproval, group.Status)
}

func TestGroupServiceCreateRejectsDuplicateChoices(t *testing.T) {
	svc, repo, users, _ := newGroupFixture(nil)
	users.student = &models.StudentProfile{UserID: "student-1"}
	teacher := "teacher-1"

	_, err := svc.Create(context.Background(), "student-1", CreateGroupRequest{
		Title:      "Solar Tracker",
		Department: "EEE",
		BatchID:    "batch-1",
		Choice1ID:  &teacher,
		Choice2ID:  &teacher,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 0, repo.createCalls)
}

func TestGroupServiceCreateRequiresChoiceTwoBeforeThree(t *testing.T) {
	svc, repo, users, _ := newGroupFixture(nil)
	users.student = &models.StudentProfile{UserID: "student-1"}
	teacher := "teacher-1"

	_, err := svc.Create(context.Background(), "student-1", CreateGroupRequest{
		Title:      "Solar Tracker",
		Department: "EEE",
		BatchID:    "batch-1",
		Choice3ID:  &teacher,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 0, repo.createCalls)
}
