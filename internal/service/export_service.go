package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/thesishub/thesishub-api/internal/models"
	appErrors "github.com/thesishub/thesishub-api/pkg/errors"
	"github.com/thesishub/thesishub-api/pkg/export"
)

// GradeSheetFormat selects the rendered output.
type GradeSheetFormat string

const (
	FormatCSV GradeSheetFormat = "csv"
	FormatPDF GradeSheetFormat = "pdf"
)

type exportResultRepository interface {
	ResultsByBatch(ctx context.Context, batchID string) ([]models.ResultRow, error)
}

type exportBatchRepository interface {
	FindByID(ctx context.Context, id string) (*models.Batch, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// GradeSheet is a rendered grade sheet ready to be served.
type GradeSheet struct {
	FileName    string
	ContentType string
	Data        []byte
}

// ExportService renders per-batch grade sheets.
type ExportService struct {
	results exportResultRepository
	batches exportBatchRepository
	csv     csvRenderer
	pdf     pdfRenderer
	logger  *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(results exportResultRepository, batches exportBatchRepository, csv csvRenderer, pdf pdfRenderer, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{results: results, batches: batches, csv: csv, pdf: pdf, logger: logger}
}

// GradeSheet renders the batch's results as CSV or PDF.
func (s *ExportService) GradeSheet(ctx context.Context, batchID string, format GradeSheetFormat) (*GradeSheet, error) {
	batch, err := s.batches.FindByID(ctx, batchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}

	rows, err := s.results.ResultsByBatch(ctx, batchID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch results")
	}

	dataset := export.Dataset{
		Headers: []string{"Group", "Student", "Total", "Grade"},
		Rows:    make([]map[string]string, 0, len(rows)),
	}
	for _, row := range rows {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Group":   row.GroupTitle,
			"Student": row.StudentName,
			"Total":   strconv.FormatFloat(row.Total, 'f', 2, 64),
			"Grade":   row.Grade,
		})
	}

	title := fmt.Sprintf("Batch %d Grade Sheet", batch.Number)
	switch format {
	case FormatPDF:
		data, err := s.pdf.Render(dataset, title)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &GradeSheet{
			FileName:    fmt.Sprintf("batch-%d-grades.pdf", batch.Number),
			ContentType: "application/pdf",
			Data:        data,
		}, nil
	case FormatCSV, "":
		data, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &GradeSheet{
			FileName:    fmt.Sprintf("batch-%d-grades.csv", batch.Number),
			ContentType: "text/csv",
			Data:        data,
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
}
