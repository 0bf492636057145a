package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thesishub/thesishub-api/internal/service"
	appErrors "github.com/thesishub/thesishub-api/pkg/errors"
	"github.com/thesishub/thesishub-api/pkg/response"
)

// BatchHandler handles cohort configuration endpoints.
type BatchHandler struct {
	service *service.BatchService
}

// NewBatchHandler creates a new batch handler.
func NewBatchHandler(svc *service.BatchService) *BatchHandler {
	return &BatchHandler{service: svc}
}

// Create godoc
// @Summary Create batch
// @Description Create a cohort with grading weights and per-role caps
// @Tags Batches
// @Accept json
// @Produce json
// @Param payload body service.BatchRequest true "Batch payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /batches [post]
func (h *BatchHandler) Create(c *gin.Context) {
	var req service.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	batch, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, batch)
}

// Update godoc
// @Summary Update batch
// @Description Update cohort configuration
// @Tags Batches
// @Accept json
// @Produce json
// @Param id path string true "Batch ID"
// @Param payload body service.BatchRequest true "Batch payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /batches/{id} [put]
func (h *BatchHandler) Update(c *gin.Context) {
	var req service.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	batch, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, batch, nil)
}

// Get godoc
// @Summary Get batch
// @Tags Batches
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /batches/{id} [get]
func (h *BatchHandler) Get(c *gin.Context) {
	batch, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, batch, nil)
}

// List godoc
// @Summary List batches
// @Tags Batches
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /batches [get]
func (h *BatchHandler) List(c *gin.Context) {
	batches, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, batches, nil)
}

// Delete godoc
// @Summary Delete batch
// @Tags Batches
// @Param id path string true "Batch ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /batches/{id} [delete]
func (h *BatchHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}
