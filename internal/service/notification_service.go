package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/thesishub/thesishub-api/internal/models"
	appErrors "github.com/thesishub/thesishub-api/pkg/errors"
)

type notificationRepository interface {
	CreateMany(ctx context.Context, groupID, content string, recipientIDs []string) error
	ListByUser(ctx context.Context, userID string, limit int) ([]models.Notification, error)
	MarkViewed(ctx context.Context, userID, groupID string) error
	UnreadCount(ctx context.Context, userID string) (int, error)
}

type notificationGroupRepository interface {
	MemberIDs(ctx context.Context, groupID string) ([]string, error)
}

// NotificationService persists notices and fans them out according to the
// dispatch rules. Dispatch happens after the triggering write has committed;
// failures are logged and never fail the caller.
type NotificationService struct {
	repo    notificationRepository
	groups  notificationGroupRepository
	logger  *zap.Logger
	metrics *MetricsService
}

// NewNotificationService constructs a NotificationService.
func NewNotificationService(repo notificationRepository, groups notificationGroupRepository, logger *zap.Logger, metrics *MetricsService) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{repo: repo, groups: groups, logger: logger, metrics: metrics}
}

// DocumentUploaded notifies the group's supervisor about a new upload. Only
// approved groups with a resolved supervisor produce a notice.
func (s *NotificationService) DocumentUploaded(ctx context.Context, group *models.Group, docType models.DocumentType) {
	if !group.Approved || group.SupervisorID == nil {
		return
	}
	content := fmt.Sprintf("Group %q uploaded a new %s.", group.Title, docType)
	s.dispatch(ctx, group.ID, content, []string{*group.SupervisorID})
}

// DocumentReviewed notifies every student in the group about the review
// decision on their document.
func (s *NotificationService) DocumentReviewed(ctx context.Context, group *models.Group, docType models.DocumentType, state models.DocumentState) {
	verb := "accepted"
	if state == models.DocumentRejected {
		verb = "rejected"
	}
	content := fmt.Sprintf("Your %s was %s.", docType, verb)
	s.dispatchToMembers(ctx, group.ID, content)
}

// CommentPosted notifies every student in the group about a new comment.
func (s *NotificationService) CommentPosted(ctx context.Context, group *models.Group, authorName string) {
	content := fmt.Sprintf("%s commented on group %q.", authorName, group.Title)
	s.dispatchToMembers(ctx, group.ID, content)
}

// LogbookSubmitted notifies the group's supervisor about a new logbook entry.
func (s *NotificationService) LogbookSubmitted(ctx context.Context, group *models.Group, authorName string) {
	if group.SupervisorID == nil {
		return
	}
	content := fmt.Sprintf("%s added a logbook entry in group %q.", authorName, group.Title)
	s.dispatch(ctx, group.ID, content, []string{*group.SupervisorID})
}

// List returns the user's notices newest first.
func (s *NotificationService) List(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	notices, err := s.repo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return notices, nil
}

// MarkViewed flips the user's unviewed notices for a group to viewed.
func (s *NotificationService) MarkViewed(ctx context.Context, userID, groupID string) error {
	if err := s.repo.MarkViewed(ctx, userID, groupID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notifications viewed")
	}
	return nil
}

// UnreadCount returns how many unviewed notices the user has.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	count, err := s.repo.UnreadCount(ctx, userID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count notifications")
	}
	return count, nil
}

func (s *NotificationService) dispatchToMembers(ctx context.Context, groupID, content string) {
	memberIDs, err := s.groups.MemberIDs(ctx, groupID)
	if err != nil {
		s.logger.Warn("failed to resolve notification recipients", zap.String("group_id", groupID), zap.Error(err))
		return
	}
	s.dispatch(ctx, groupID, content, memberIDs)
}

func (s *NotificationService) dispatch(ctx context.Context, groupID, content string, recipientIDs []string) {
	if err := s.repo.CreateMany(ctx, groupID, content, recipientIDs); err != nil {
		s.logger.Warn("failed to dispatch notifications",
			zap.String("group_id", groupID),
			zap.Int("recipients", len(recipientIDs)),
			zap.Error(err))
		return
	}
	s.metrics.RecordNotifications(len(recipientIDs))
}
