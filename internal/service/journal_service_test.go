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
	appErrors "github.com/thesishub/thesishub-api/pkg/errors"
)

type mockJournalRepo struct {
	comments []models.Comment
	logbooks map[string]models.LogbookEntry
}

func (r *mockJournalRepo) CreateComment(ctx context.Context, comment *models.Comment) error {
	comment.ID = "comment-new"
	r.comments = append(r.comments, *comment)
	return nil
}

func (r *mockJournalRepo) ListComments(ctx context.Context, groupID string) ([]models.Comment, error) {
	return r.comments, nil
}

func (r *mockJournalRepo) CreateLogbook(ctx context.Context, entry *models.LogbookEntry) error {
	if r.logbooks == nil {
		r.logbooks = make(map[string]models.LogbookEntry)
	}
	entry.ID = "logbook-new"
	r.logbooks[entry.ID] = *entry
	return nil
}

func (r *mockJournalRepo) ListLogbooks(ctx context.Context, groupID string) ([]models.LogbookEntry, error) {
	var out []models.LogbookEntry
	for _, e := range r.logbooks {
		out = append(out, e)
	}
	return out, nil
}

func (r *mockJournalRepo) FindLogbook(ctx context.Context, id string) (*models.LogbookEntry, error) {
	if e, ok := r.logbooks[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (r *mockJournalRepo) SetLogbookApproval(ctx context.Context, id string, approved bool) error {
	e := r.logbooks[id]
	e.Approved = approved
	r.logbooks[id] = e
	return nil
}

type mockJournalGroupRepo struct {
	group   *models.Group
	members []string
}

func (r *mockJournalGroupRepo) FindByID(ctx context.Context, id string) (*models.Group, error) {
	if r.group == nil || r.group.ID != id {
		return nil, sql.ErrNoRows
	}
	return r.group, nil
}

func (r *mockJournalGroupRepo) MemberIDs(ctx context.Context, groupID string) ([]string, error) {
	return r.members, nil
}

type mockJournalUserRepo struct {
	users map[string]*models.User
}

func (r *mockJournalUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := r.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

type journalRecorder struct {
	comments []string
	logbooks []string
}

func (n *journalRecorder) CommentPosted(ctx context.Context, group *models.Group, authorName string) {
	n.comments = append(n.comments, authorName)
}

func (n *journalRecorder) LogbookSubmitted(ctx context.Context, group *models.Group, authorName string) {
	n.logbooks = append(n.logbooks, authorName)
}

func newJournalFixture() (*JournalService, *mockJournalRepo, *journalRecorder) {
	supervisor := "teacher-1"
	groups := &mockJournalGroupRepo{
		group:   &models.Group{ID: "group-1", Title: "Solar Tracker", SupervisorID: &supervisor},
		members: []string{"student-1"},
	}
	users := &mockJournalUserRepo{users: map[string]*models.User{
		"student-1": {ID: "student-1", FullName: "Student One", Role: models.RoleStudent},
		"teacher-1": {ID: "teacher-1", FullName: "Dr. Rahman", Role: models.RoleTeacher},
		"outsider":  {ID: "outsider", FullName: "Outsider", Role: models.RoleStudent},
	}}
	repo := &mockJournalRepo{}
	notifier := &journalRecorder{}
	svc := NewJournalService(repo, groups, users, notifier, validator.New(), zap.NewNop())
	return svc, repo, notifier
}

func TestJournalCommentNotifiesStudents(t *testing.T) {
	svc, repo, notifier := newJournalFixture()

	comment, err := svc.PostComment(context.Background(), "teacher-1", "group-1", PostCommentRequest{Text: "revise chapter 2"})
	require.NoError(t, err)
	assert.Equal(t, "Dr. Rahman", comment.AuthorName)
	assert.Len(t, repo.comments, 1)
	assert.Equal(t, []string{"Dr. Rahman"}, notifier.comments)
}

func TestJournalCommentRejectsOutsider(t *testing.T) {
	svc, repo, _ := newJournalFixture()

	_, err := svc.PostComment(context.Background(), "outsider", "group-1", PostCommentRequest{Text: "hello"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.comments)
}

func TestJournalLogbookNotifiesSupervisor(t *testing.T) {
	svc, repo, notifier := newJournalFixture()

	entry, err := svc.PostLogbook(context.Background(), "student-1", "group-1", PostLogbookRequest{Body: "met supervisor"})
	require.NoError(t, err)
	assert.False(t, entry.Approved)
	assert.Len(t, repo.logbooks, 1)
	assert.Equal(t, []string{"Student One"}, notifier.logbooks)
}

func TestJournalLogbookApprovalSupervisorOnly(t *testing.T) {
	svc, repo, _ := newJournalFixture()
	repo.logbooks = map[string]models.LogbookEntry{
		"logbook-1": {ID: "logbook-1", GroupID: "group-1", AuthorID: "student-1"},
	}

	_, err := svc.ApproveLogbook(context.Background(), "teacher-other", "logbook-1", true)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	entry, err := svc.ApproveLogbook(context.Background(), "teacher-1", "logbook-1", true)
	require.NoError(t, err)
	assert.True(t, entry.Approved)
	assert.True(t, repo.logbooks["logbook-1"].Approved)
}
