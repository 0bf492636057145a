package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/thesishub/thesishub-api/internal/models"
	appErrors "github.com/thesishub/thesishub-api/pkg/errors"
)

type markRepository interface {
	UpsertWithResult(ctx context.Context, mark *models.Mark, batch *models.Batch) (*models.Result, error)
	ListByGroup(ctx context.Context, groupID string) ([]models.Mark, error)
	ListByGrader(ctx context.Context, groupID, graderID string) ([]models.Mark, error)
	ResultsByGroup(ctx context.Context, groupID string) ([]models.Result, error)
	ResultForStudent(ctx context.Context, groupID, studentID string) (*models.Result, error)
}

type gradingGroupRepository interface {
	FindByID(ctx context.Context, id string) (*models.Group, error)
	MemberIDs(ctx context.Context, groupID string) ([]string, error)
}

type gradingBatchRepository interface {
	FindByID(ctx context.Context, id string) (*models.Batch, error)
}

// SubmitMarkRequest is a grader's score for one student.
type SubmitMarkRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	Value     int    `json:"value" validate:"min=0"`
	Comment   string `json:"comment"`
}

// GradingService validates and records marks and exposes the results derived
// from them.
type GradingService struct {
	marks     markRepository
	groups    gradingGroupRepository
	batches   gradingBatchRepository
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
}

// NewGradingService constructs a GradingService.
func NewGradingService(marks markRepository, groups gradingGroupRepository, batches gradingBatchRepository, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService) *GradingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &GradingService{marks: marks, groups: groups, batches: batches, validator: validate, logger: logger, metrics: metrics}
}

// SubmitMark records the grader's mark for a student and recomputes the
// student's result in the same transaction. The grader must hold one of the
// group's resolved roles and the value may not exceed that role's cap.
func (s *GradingService) SubmitMark(ctx context.Context, graderID, groupID string, req SubmitMarkRequest) (*models.Mark, *models.Result, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid mark payload")
	}

	group, err := s.groups.FindByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "group not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
	}

	role, ok := group.RoleOf(graderID)
	if !ok {
		return nil, nil, appErrors.ErrInvalidGrader
	}

	if group.BatchID == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrConflict, "group is not attached to a batch")
	}
	batch, err := s.batches.FindByID(ctx, *group.BatchID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}

	limit := batch.CapFor(role)
	if req.Value < 0 || req.Value > limit {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("mark must be between 0 and %d for the %s role", limit, role))
	}

	memberIDs, err := s.groups.MemberIDs(ctx, groupID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load members")
	}
	isMember := false
	for _, id := range memberIDs {
		if id == req.StudentID {
			isMember = true
			break
		}
	}
	if !isMember {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "student is not a member of this group")
	}

	mark := &models.Mark{
		GroupID:   groupID,
		StudentID: req.StudentID,
		GraderID:  graderID,
		Role:      role,
		Value:     req.Value,
		Comment:   req.Comment,
	}
	result, err := s.marks.UpsertWithResult(ctx, mark, batch)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record mark")
	}

	s.metrics.RecordMarkSubmitted()
	s.logger.Info("mark recorded",
		zap.String("group_id", groupID),
		zap.String("student_id", req.StudentID),
		zap.String("role", string(role)),
		zap.Int("value", req.Value),
		zap.Float64("total", result.Total),
		zap.String("grade", result.Grade))
	return mark, result, nil
}

// GroupMarks returns every mark recorded for the group.
func (s *GradingService) GroupMarks(ctx context.Context, groupID string) ([]models.Mark, error) {
	marks, err := s.marks.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list marks")
	}
	return marks, nil
}

// OwnMarks returns the grader's marks within a group.
func (s *GradingService) OwnMarks(ctx context.Context, groupID, graderID string) ([]models.Mark, error) {
	marks, err := s.marks.ListByGrader(ctx, groupID, graderID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list marks")
	}
	return marks, nil
}

// GroupResults returns the group's materialized results.
func (s *GradingService) GroupResults(ctx context.Context, groupID string) ([]models.Result, error) {
	results, err := s.marks.ResultsByGroup(ctx, groupID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list results")
	}
	return results, nil
}

// StudentResult returns one student's result within a group.
func (s *GradingService) StudentResult(ctx context.Context, groupID, studentID string) (*models.Result, error) {
	result, err := s.marks.ResultForStudent(ctx, groupID, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no result recorded yet")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load result")
	}
	return result, nil
}
