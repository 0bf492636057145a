package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/thesishub/thesishub-api/internal/models"
)

type sentNotice struct {
	groupID    string
	content    string
	recipients []string
}

type mockNotificationRepo struct {
	sent   []sentNotice
	viewed []string
}

func (r *mockNotificationRepo) CreateMany(ctx context.Context, groupID, content string, recipientIDs []string) error {
	r.sent = append(r.sent, sentNotice{groupID: groupID, content: content, recipients: recipientIDs})
	return nil
}

func (r *mockNotificationRepo) ListByUser(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	return nil, nil
}

func (r *mockNotificationRepo) MarkViewed(ctx context.Context, userID, groupID string) error {
	r.viewed = append(r.viewed, userID+"|"+groupID)
	return nil
}

func (r *mockNotificationRepo) UnreadCount(ctx context.Context, userID string) (int, error) {
	return 0, nil
}

type mockNotificationGroupRepo struct {
	members []string
}

func (r *mockNotificationGroupRepo) MemberIDs(ctx context.Context, groupID string) ([]string, error) {
	return r.members, nil
}

func newNotificationFixture(members []string) (*NotificationService, *mockNotificationRepo) {
	repo := &mockNotificationRepo{}
	groups := &mockNotificationGroupRepo{members: members}
	return NewNotificationService(repo, groups, zap.NewNop(), nil), repo
}

func TestNotificationUploadGoesToSupervisorOnly(t *testing.T) {
	svc, repo := newNotificationFixture([]string{"student-1", "student-2"})
	supervisor := "teacher-1"
	group := &models.Group{ID: "group-1", Title: "Solar Tracker", Approved: true, SupervisorID: &supervisor}

	svc.DocumentUploaded(context.Background(), group, models.DocumentProposal)

	require.Len(t, repo.sent, 1)
	assert.Equal(t, []string{"teacher-1"}, repo.sent[0].recipients)
	assert.Contains(t, repo.sent[0].content, "Proposal")
}

func TestNotificationUploadSkippedForUnapprovedGroup(t *testing.T) {
	svc, repo := newNotificationFixture([]string{"student-1"})
	supervisor := "teacher-1"
	group := &models.Group{ID: "group-1", SupervisorID: &supervisor}

	svc.DocumentUploaded(context.Background(), group, models.DocumentProposal)
	assert.Empty(t, repo.sent)
}

func TestNotificationUploadSkippedWithoutSupervisor(t *testing.T) {
	svc, repo := newNotificationFixture([]string{"student-1"})
	group := &models.Group{ID: "group-1", Approved: true}

	svc.DocumentUploaded(context.Background(), group, models.DocumentProposal)
	assert.Empty(t, repo.sent)
}

func TestNotificationReviewGoesToAllMembers(t *testing.T) {
	svc, repo := newNotificationFixture([]string{"student-1", "student-2"})
	group := &models.Group{ID: "group-1", Title: "Solar Tracker", Approved: true}

	svc.DocumentReviewed(context.Background(), group, models.DocumentProposal, models.DocumentRejected)

	require.Len(t, repo.sent, 1)
	assert.ElementsMatch(t, []string{"student-1", "student-2"}, repo.sent[0].recipients)
	assert.Contains(t, repo.sent[0].content, "rejected")
}

func TestNotificationCommentGoesToAllMembers(t *testing.T) {
	svc, repo := newNotificationFixture([]string{"student-1", "student-2"})
	group := &models.Group{ID: "group-1", Title: "Solar Tracker"}

	svc.CommentPosted(context.Background(), group, "Dr. Rahman")

	require.Len(t, repo.sent, 1)
	assert.ElementsMatch(t, []string{"student-1", "student-2"}, repo.sent[0].recipients)
	assert.Contains(t, repo.sent[0].content, "Dr. Rahman")
}

func TestNotificationLogbookGoesToSupervisor(t *testing.T) {
	svc, repo := newNotificationFixture([]string{"student-1"})
	supervisor := "teacher-1"
	group := &models.Group{ID: "group-1", Title: "Solar Tracker", SupervisorID: &supervisor}

	svc.LogbookSubmitted(context.Background(), group, "Student One")

	require.Len(t, repo.sent, 1)
	assert.Equal(t, []string{"teacher-1"}, repo.sent[0].recipients)
}

func TestNotificationLogbookSkippedWithoutSupervisor(t *testing.T) {
	svc, repo := newNotificationFixture([]string{"student-1"})
	group := &models.Group{ID: "group-1"}

	svc.LogbookSubmitted(context.Background(), group, "Student One")
	assert.Empty(t, repo.sent)
}
