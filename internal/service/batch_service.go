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

type batchRepository interface {
	Create(ctx context.Context, batch *models.Batch) error
	Update(ctx context.Context, batch *models.Batch) error
	FindByID(ctx context.Context, id string) (*models.Batch, error)
	List(ctx context.Context) ([]models.Batch, error)
	Delete(ctx context.Context, id string) error
	GroupCount(ctx context.Context, id string) (int, error)
}

// BatchRequest is the admin payload for creating or updating a cohort.
// Weight and cap fields fall back to defaults when left zero.
type BatchRequest struct {
	Number              int `json:"number" validate:"required,min=1"`
	MaxGroups           int `json:"max_groups" validate:"required,min=1"`
	MinGroups           int `json:"min_groups" validate:"min=0"`
	MaxStudentsPerGroup int `json:"max_students_per_group" validate:"required,min=1"`
	SupervisorPct       int `json:"supervisor_pct" validate:"min=0,max=100"`
	InternalPct         int `json:"internal_pct" validate:"min=0,max=100"`
	ExternalPct         int `json:"external_pct" validate:"min=0,max=100"`
	SupervisorCap       int `json:"supervisor_cap" validate:"min=0,max=100"`
	InternalCap         int `json:"internal_cap" validate:"min=0,max=100"`
	ExternalCap         int `json:"external_cap" validate:"min=0,max=100"`
}

// BatchService implements cohort configuration use cases.
type BatchService struct {
	repo      batchRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewBatchService constructs a BatchService.
func NewBatchService(repo batchRepository, validate *validator.Validate, logger *zap.Logger) *BatchService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &BatchService{repo: repo, validator: validate, logger: logger}
}

// Create registers a new batch. Role percentages must sum to exactly 100 so
// every computed total lands on the 0..100 scale.
func (s *BatchService) Create(ctx context.Context, req BatchRequest) (*models.Batch, error) {
	batch, err := s.buildBatch(req)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, batch); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create batch")
	}
	return batch, nil
}

// Update replaces a batch's limits and weighting.
func (s *BatchService) Update(ctx context.Context, id string, req BatchRequest) (*models.Batch, error) {
	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}

	batch, err := s.buildBatch(req)
	if err != nil {
		return nil, err
	}
	batch.ID = existing.ID
	batch.CreatedAt = existing.CreatedAt

	if err := s.repo.Update(ctx, batch); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update batch")
	}
	return batch, nil
}

// Get returns a batch by identifier.
func (s *BatchService) Get(ctx context.Context, id string) (*models.Batch, error) {
	batch, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	return batch, nil
}

// List returns all batches newest first.
func (s *BatchService) List(ctx context.Context) ([]models.Batch, error) {
	batches, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list batches")
	}
	return batches, nil
}

// Delete removes a batch. Groups that referenced it survive with a cleared
// batch pointer.
func (s *BatchService) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete batch")
	}
	return nil
}

func (s *BatchService) buildBatch(req BatchRequest) (*models.Batch, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid batch payload")
	}

	batch := &models.Batch{
		Number:              req.Number,
		MaxGroups:           req.MaxGroups,
		MinGroups:           req.MinGroups,
		MaxStudentsPerGroup: req.MaxStudentsPerGroup,
		SupervisorPct:       req.SupervisorPct,
		InternalPct:         req.InternalPct,
		ExternalPct:         req.ExternalPct,
		SupervisorCap:       req.SupervisorCap,
		InternalCap:         req.InternalCap,
		ExternalCap:         req.ExternalCap,
	}
	if batch.SupervisorPct == 0 && batch.InternalPct == 0 && batch.ExternalPct == 0 {
		batch.SupervisorPct = models.DefaultSupervisorCap
		batch.InternalPct = models.DefaultInternalCap
		batch.ExternalPct = models.DefaultExternalCap
	}
	if batch.SupervisorCap == 0 {
		batch.SupervisorCap = models.DefaultSupervisorCap
	}
	if batch.InternalCap == 0 {
		batch.InternalCap = models.DefaultInternalCap
	}
	if batch.ExternalCap == 0 {
		batch.ExternalCap = models.DefaultExternalCap
	}

	if !batch.WeightsValid() {
		return nil, appErrors.ErrInvalidWeights
	}
	if batch.MinGroups > batch.MaxGroups {
		return nil, appErrors.Clone(appErrors.ErrValidation, "min_groups cannot exceed max_groups")
	}
	return batch, nil
}
