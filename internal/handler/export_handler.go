package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thesishub/thesishub-api/internal/service"
	"github.com/thesishub/thesishub-api/pkg/response"
)

// ExportHandler handles grade sheet export endpoints.
type ExportHandler struct {
	service *service.ExportService
}

// NewExportHandler creates a new export handler.
func NewExportHandler(svc *service.ExportService) *ExportHandler {
	return &ExportHandler{service: svc}
}

// GradeSheet godoc
// @Summary Export grade sheet
// @Description Render a batch's aggregated results as CSV or PDF
// @Tags Exports
// @Produce application/octet-stream
// @Param id path string true "Batch ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} binary
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /batches/{id}/grade-sheet [get]
func (h *ExportHandler) GradeSheet(c *gin.Context) {
	format := service.GradeSheetFormat(c.DefaultQuery("format", string(service.FormatCSV)))

	sheet, err := h.service.GradeSheet(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+sheet.FileName+`"`)
	c.Data(http.StatusOK, sheet.ContentType, sheet.Data)
}
