package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/thesishub/thesishub-api/internal/models"
	appErrors "github.com/thesishub/thesishub-api/pkg/errors"
)

type mockMarkRepo struct {
	marks map[string]models.Mark
}

func markKey(m *models.Mark) string {
	return m.GroupID + "|" + m.GraderID + "|" + m.StudentID
}

func (r *mockMarkRepo) UpsertWithResult(ctx context.Context, mark *models.Mark, batch *models.Batch) (*models.Result, error) {
	if r.marks == nil {
		r.marks = make(map[string]models.Mark)
	}
	r.marks[markKey(mark)] = *mark

	var studentMarks []models.Mark
	for _, m := range r.marks {
		if m.GroupID == mark.GroupID && m.StudentID == mark.StudentID {
			studentMarks = append(studentMarks, m)
		}
	}
	total := models.WeightedTotal(studentMarks, batch)
	return &models.Result{
		GroupID:      mark.GroupID,
		StudentID:    mark.StudentID,
		Total:        total,
		Grade:        models.LetterGrade(total),
		CalculatedAt: time.Now().UTC(),
	}, nil
}

func (r *mockMarkRepo) ListByGroup(ctx context.Context, groupID string) ([]models.Mark, error) {
	var out []models.Mark
	for _, m := range r.marks {
		if m.GroupID == groupID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *mockMarkRepo) ListByGrader(ctx context.Context, groupID, graderID string) ([]models.Mark, error) {
	var out []models.Mark
	for _, m := range r.marks {
		if m.GroupID == groupID && m.GraderID == graderID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *mockMarkRepo) ResultsByGroup(ctx context.Context, groupID string) ([]models.Result, error) {
	return nil, nil
}

func (r *mockMarkRepo) ResultForStudent(ctx context.Context, groupID, studentID string) (*models.Result, error) {
	return nil, sql.ErrNoRows
}

type mockGradingGroupRepo struct {
	group   *models.Group
	members []string
}

func (r *mockGradingGroupRepo) FindByID(ctx context.Context, id string) (*models.Group, error) {
	if r.group == nil || r.group.ID != id {
		return nil, sql.ErrNoRows
	}
	return r.group, nil
}

func (r *mockGradingGroupRepo) MemberIDs(ctx context.Context, groupID string) ([]string, error) {
	return r.members, nil
}

type mockGradingBatchRepo struct {
	batch *models.Batch
}

func (r *mockGradingBatchRepo) FindByID(ctx context.Context, id string) (*models.Batch, error) {
	if r.batch == nil {
		return nil, sql.ErrNoRows
	}
	return r.batch, nil
}

func newGradingFixture() (*GradingService, *mockMarkRepo) {
	supervisor := "teacher-sup"
	internal := "teacher-int"
	external := "teacher-ext"
	batchID := "batch-1"
	groups := &mockGradingGroupRepo{
		group: &models.Group{
			ID:           "group-1",
			BatchID:      &batchID,
			Approved:     true,
			SupervisorID: &supervisor,
			InternalID:   &internal,
			ExternalID:   &external,
		},
		members: []string{"student-1", "student-2"},
	}
	batches := &mockGradingBatchRepo{batch: &models.Batch{
		ID:            "batch-1",
		SupervisorPct: 50, InternalPct: 30, ExternalPct: 20,
		SupervisorCap: 50, InternalCap: 30, ExternalCap: 20,
	}}
	marks := &mockMarkRepo{}
	svc := NewGradingService(marks, groups, batches, validator.New(), zap.NewNop(), nil)
	return svc, marks
}

func TestGradingServiceAggregatesWeightedTotal(t *testing.T) {
	svc, _ := newGradingFixture()
	ctx := context.Background()

	_, _, err := svc.SubmitMark(ctx, "teacher-sup", "group-1", SubmitMarkRequest{StudentID: "student-1", Value: 45})
	require.NoError(t, err)
	_, _, err = svc.SubmitMark(ctx, "teacher-int", "group-1", SubmitMarkRequest{StudentID: "student-1", Value: 18})
	require.NoError(t, err)
	_, result, err := svc.SubmitMark(ctx, "teacher-ext", "group-1", SubmitMarkRequest{StudentID: "student-1", Value: 20})
	require.NoError(t, err)

	assert.InDelta(t, 31.9, result.Total, 0.0001)
	assert.Equal(t, "F", result.Grade)
}

func TestGradingServiceRejectsMarkAboveCap(t *testing.T) {
	svc, marks := newGradingFixture()
	ctx := context.Background()

	_, _, err := svc.SubmitMark(ctx, "teacher-int", "group-1", SubmitMarkRequest{StudentID: "student-1", Value: 31})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "30")
	assert.Empty(t, marks.marks)
}

func TestGradingServiceAtCapAccepted(t *testing.T) {
	svc, _ := newGradingFixture()

	_, result, err := svc.SubmitMark(context.Background(), "teacher-sup", "group-1", SubmitMarkRequest{StudentID: "student-1", Value: 50})
	require.NoError(t, err)
	assert.InDelta(t, 25.0, result.Total, 0.0001)
}

func TestGradingServiceRejectsNonGrader(t *testing.T) {
	svc, marks := newGradingFixture()

	_, _, err := svc.SubmitMark(context.Background(), "teacher-other", "group-1", SubmitMarkRequest{StudentID: "student-1", Value: 10})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidGrader.Code, appErrors.FromError(err).Code)
	assert.Empty(t, marks.marks)
}

func TestGradingServiceRejectsNonMemberStudent(t *testing.T) {
	svc, marks := newGradingFixture()

	_, _, err := svc.SubmitMark(context.Background(), "teacher-sup", "group-1", SubmitMarkRequest{StudentID: "student-elsewhere", Value: 10})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, marks.marks)
}

func TestGradingServiceResubmissionOverwrites(t *testing.T) {
	svc, marks := newGradingFixture()
	ctx := context.Background()

	_, _, err := svc.SubmitMark(ctx, "teacher-sup", "group-1", SubmitMarkRequest{StudentID: "student-1", Value: 30})
	require.NoError(t, err)
	_, result, err := svc.SubmitMark(ctx, "teacher-sup", "group-1", SubmitMarkRequest{StudentID: "student-1", Value: 40})
	require.NoError(t, err)

	assert.Len(t, marks.marks, 1)
	assert.InDelta(t, 20.0, result.Total, 0.0001)
}
