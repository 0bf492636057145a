package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thesishub/thesishub-api/internal/service"
	appErrors "github.com/thesishub/thesishub-api/pkg/errors"
	"github.com/thesishub/thesishub-api/pkg/response"
)

// GradingHandler handles mark submission and result endpoints.
type GradingHandler struct {
	service *service.GradingService
}

// NewGradingHandler creates a new grading handler.
func NewGradingHandler(svc *service.GradingService) *GradingHandler {
	return &GradingHandler{service: svc}
}

// SubmitMark godoc
// @Summary Submit mark
// @Description Record a mark for a group member; resubmission overwrites
// @Tags Grading
// @Accept json
// @Produce json
// @Param id path string true "Group ID"
// @Param payload body service.SubmitMarkRequest true "Mark payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /groups/{id}/marks [post]
func (h *GradingHandler) SubmitMark(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.SubmitMarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	mark, result, err := h.service.SubmitMark(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"mark": mark, "result": result}, nil)
}

// GroupMarks godoc
// @Summary List group marks
// @Description All marks recorded for a group
// @Tags Grading
// @Produce json
// @Param id path string true "Group ID"
// @Success 200 {object} response.Envelope
// @Router /groups/{id}/marks [get]
func (h *GradingHandler) GroupMarks(c *gin.Context) {
	marks, err := h.service.GroupMarks(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, marks, nil)
}

// OwnMarks godoc
// @Summary List own marks
// @Description Marks the calling grader recorded for a group
// @Tags Grading
// @Produce json
// @Param id path string true "Group ID"
// @Success 200 {object} response.Envelope
// @Router /groups/{id}/marks/own [get]
func (h *GradingHandler) OwnMarks(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	marks, err := h.service.OwnMarks(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, marks, nil)
}

// GroupResults godoc
// @Summary List group results
// @Description Aggregated weighted totals and letter grades per student
// @Tags Grading
// @Produce json
// @Param id path string true "Group ID"
// @Success 200 {object} response.Envelope
// @Router /groups/{id}/results [get]
func (h *GradingHandler) GroupResults(c *gin.Context) {
	results, err := h.service.GroupResults(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, results, nil)
}

// OwnResult godoc
// @Summary Get own result
// @Description The calling student's aggregated result for a group
// @Tags Grading
// @Produce json
// @Param id path string true "Group ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /groups/{id}/results/me [get]
func (h *GradingHandler) OwnResult(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	result, err := h.service.StudentResult(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, result, nil)
}
