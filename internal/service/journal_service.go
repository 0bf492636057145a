package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/thesishub/thesishub-api/internal/models"
	appErrors "github.com/thesishub/thesishub-api/pkg/errors"
)

type journalRepository interface {
	CreateComment(ctx context.Context, comment *models.Comment) error
	ListComments(ctx context.Context, groupID string) ([]models.Comment, error)
	CreateLogbook(ctx context.Context, entry *models.LogbookEntry) error
	ListLogbooks(ctx context.Context, groupID string) ([]models.LogbookEntry, error)
	FindLogbook(ctx context.Context, id string) (*models.LogbookEntry, error)
	SetLogbookApproval(ctx context.Context, id string, approved bool) error
}

type journalGroupRepository interface {
	FindByID(ctx context.Context, id string) (*models.Group, error)
	MemberIDs(ctx context.Context, groupID string) ([]string, error)
}

type journalUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type journalNotifier interface {
	CommentPosted(ctx context.Context, group *models.Group, authorName string)
	LogbookSubmitted(ctx context.Context, group *models.Group, authorName string)
}

// PostCommentRequest is the payload for adding a comment to a group thread.
type PostCommentRequest struct {
	Text string `json:"text" validate:"required"`
}

// PostLogbookRequest is the payload for a student logbook entry.
type PostLogbookRequest struct {
	Body string `json:"body" validate:"required"`
}

// JournalService implements the group comment thread and student logbooks.
type JournalService struct {
	journal   journalRepository
	groups    journalGroupRepository
	users     journalUserRepository
	notifier  journalNotifier
	validator *validator.Validate
	logger    *zap.Logger
}

// NewJournalService constructs a JournalService.
func NewJournalService(journal journalRepository, groups journalGroupRepository, users journalUserRepository, notifier journalNotifier, validate *validator.Validate, logger *zap.Logger) *JournalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &JournalService{journal: journal, groups: groups, users: users, notifier: notifier, validator: validate, logger: logger}
}

// PostComment appends a comment from a group member or one of the group's
// teachers, then notifies the group's students.
func (s *JournalService) PostComment(ctx context.Context, authorID, groupID string, req PostCommentRequest) (*models.Comment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid comment payload")
	}

	group, author, err := s.loadParticipant(ctx, groupID, authorID)
	if err != nil {
		return nil, err
	}

	comment := &models.Comment{
		GroupID:    groupID,
		AuthorID:   authorID,
		AuthorName: author.FullName,
		Text:       req.Text,
	}
	if err := s.journal.CreateComment(ctx, comment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save comment")
	}

	s.notifier.CommentPosted(ctx, group, author.FullName)
	return comment, nil
}

// ListComments returns the group's comment thread oldest first.
func (s *JournalService) ListComments(ctx context.Context, groupID string) ([]models.Comment, error) {
	comments, err := s.journal.ListComments(ctx, groupID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list comments")
	}
	return comments, nil
}

// PostLogbook appends a logbook entry by a group member and notifies the
// supervisor.
func (s *JournalService) PostLogbook(ctx context.Context, authorID, groupID string, req PostLogbookRequest) (*models.LogbookEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid logbook payload")
	}

	group, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !s.isMember(ctx, groupID, authorID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only group members can write logbook entries")
	}
	author, err := s.loadUser(ctx, authorID)
	if err != nil {
		return nil, err
	}

	entry := &models.LogbookEntry{
		GroupID:    groupID,
		AuthorID:   authorID,
		AuthorName: author.FullName,
		Body:       req.Body,
	}
	if err := s.journal.CreateLogbook(ctx, entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save logbook entry")
	}

	s.notifier.LogbookSubmitted(ctx, group, author.FullName)
	return entry, nil
}

// ListLogbooks returns the group's logbook entries oldest first.
func (s *JournalService) ListLogbooks(ctx context.Context, groupID string) ([]models.LogbookEntry, error) {
	entries, err := s.journal.ListLogbooks(ctx, groupID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list logbook entries")
	}
	return entries, nil
}

// ApproveLogbook records the supervisor's approval decision on an entry.
func (s *JournalService) ApproveLogbook(ctx context.Context, teacherID, entryID string, approve bool) (*models.LogbookEntry, error) {
	entry, err := s.journal.FindLogbook(ctx, entryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "logbook entry not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load logbook entry")
	}
	group, err := s.loadGroup(ctx, entry.GroupID)
	if err != nil {
		return nil, err
	}
	if role, ok := group.RoleOf(teacherID); !ok || role != models.RoleSupervisor {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the supervisor can approve logbook entries")
	}

	if err := s.journal.SetLogbookApproval(ctx, entryID, approve); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to set logbook approval")
	}
	entry.Approved = approve
	return entry, nil
}

func (s *JournalService) loadParticipant(ctx context.Context, groupID, userID string) (*models.Group, *models.User, error) {
	group, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return nil, nil, err
	}
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	if _, isTeacher := group.RoleOf(userID); !isTeacher && !s.isMember(ctx, groupID, userID) && user.Role != models.RoleAdmin {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "not a participant of this group")
	}
	return group, user, nil
}

func (s *JournalService) loadGroup(ctx context.Context, groupID string) (*models.Group, error) {
	group, err := s.groups.FindByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "group not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
	}
	return group, nil
}

func (s *JournalService) loadUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

func (s *JournalService) isMember(ctx context.Context, groupID, userID string) bool {
	memberIDs, err := s.groups.MemberIDs(ctx, groupID)
	if err != nil {
		s.logger.Warn("failed to load members", zap.String("group_id", groupID), zap.Error(err))
		return false
	}
	for _, id := range memberIDs {
		if id == userID {
			return true
		}
	}
	return false
}
