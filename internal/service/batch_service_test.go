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

type mockBatchRepo struct {
	batches map[string]models.Batch
}

func (r *mockBatchRepo) Create(ctx context.Context, batch *models.Batch) error {
	if r.batches == nil {
		r.batches = make(map[string]models.Batch)
	}
	batch.ID = "batch-new"
	r.batches[batch.ID] = *batch
	return nil
}

func (r *mockBatchRepo) Update(ctx context.Context, batch *models.Batch) error {
	r.batches[batch.ID] = *batch
	return nil
}

func (r *mockBatchRepo) FindByID(ctx context.Context, id string) (*models.Batch, error) {
	if b, ok := r.batches[id]; ok {
		return &b, nil
	}
	return nil, sql.ErrNoRows
}

func (r *mockBatchRepo) List(ctx context.Context) ([]models.Batch, error) {
	var out []models.Batch
	for _, b := range r.batches {
		out = append(out, b)
	}
	return out, nil
}

func (r *mockBatchRepo) Delete(ctx context.Context, id string) error {
	delete(r.batches, id)
	return nil
}

func (r *mockBatchRepo) GroupCount(ctx context.Context, id string) (int, error) {
	return 0, nil
}

func newBatchService() (*BatchService, *mockBatchRepo) {
	repo := &mockBatchRepo{}
	return NewBatchService(repo, validator.New(), zap.NewNop()), repo
}

func TestBatchServiceRejectsWeightsNotSumming100(t *testing.T) {
	svc, repo := newBatchService()

	_, err := svc.Create(context.Background(), BatchRequest{
		Number:              12,
		MaxGroups:           10,
		MaxStudentsPerGroup: 5,
		SupervisorPct:       50,
		InternalPct:         30,
		ExternalPct:         30,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidWeights.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.batches)
}

func TestBatchServiceAppliesDefaultWeightsAndCaps(t *testing.T) {
	svc, _ := newBatchService()

	batch, err := svc.Create(context.Background(), BatchRequest{
		Number:              12,
		MaxGroups:           10,
		MaxStudentsPerGroup: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, 50, batch.SupervisorPct)
	assert.Equal(t, 30, batch.InternalPct)
	assert.Equal(t, 20, batch.ExternalPct)
	assert.Equal(t, models.DefaultSupervisorCap, batch.SupervisorCap)
	assert.Equal(t, models.DefaultInternalCap, batch.InternalCap)
	assert.Equal(t, models.DefaultExternalCap, batch.ExternalCap)
	assert.True(t, batch.WeightsValid())
}

func TestBatchServiceCustomCaps(t *testing.T) {
	svc, _ := newBatchService()

	batch, err := svc.Create(context.Background(), BatchRequest{
		Number:              13,
		MaxGroups:           10,
		MaxStudentsPerGroup: 5,
		SupervisorPct:       40,
		InternalPct:         30,
		ExternalPct:         30,
		SupervisorCap:       40,
		InternalCap:         30,
		ExternalCap:         30,
	})
	require.NoError(t, err)
	assert.Equal(t, 40, batch.SupervisorCap)
	assert.Equal(t, 30, batch.ExternalCap)
}

func TestBatchServiceRejectsMinAboveMax(t *testing.T) {
	svc, _ := newBatchService()

	_, err := svc.Create(context.Background(), BatchRequest{
		Number:              12,
		MaxGroups:           5,
		MinGroups:           6,
		MaxStudentsPerGroup: 5,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
