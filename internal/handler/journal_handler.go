package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thesishub/thesishub-api/internal/service"
	appErrors "github.com/thesishub/thesishub-api/pkg/errors"
	"github.com/thesishub/thesishub-api/pkg/response"
)

// JournalHandler handles comment thread and logbook endpoints.
type JournalHandler struct {
	service *service.JournalService
}

// NewJournalHandler creates a new journal handler.
func NewJournalHandler(svc *service.JournalService) *JournalHandler {
	return &JournalHandler{service: svc}
}

// PostComment godoc
// @Summary Post comment
// @Description Add a comment to the group's discussion thread
// @Tags Journal
// @Accept json
// @Produce json
// @Param id path string true "Group ID"
// @Param payload body service.PostCommentRequest true "Comment payload"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /groups/{id}/comments [post]
func (h *JournalHandler) PostComment(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.PostCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	comment, err := h.service.PostComment(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, comment)
}

// ListComments godoc
// @Summary List comments
// @Description Group discussion thread, oldest first
// @Tags Journal
// @Produce json
// @Param id path string true "Group ID"
// @Success 200 {object} response.Envelope
// @Router /groups/{id}/comments [get]
func (h *JournalHandler) ListComments(c *gin.Context) {
	comments, err := h.service.ListComments(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, comments, nil)
}

// PostLogbook godoc
// @Summary Submit logbook entry
// @Description Record a student work log for supervisor review
// @Tags Journal
// @Accept json
// @Produce json
// @Param id path string true "Group ID"
// @Param payload body service.PostLogbookRequest true "Logbook payload"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /groups/{id}/logbooks [post]
func (h *JournalHandler) PostLogbook(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.PostLogbookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	entry, err := h.service.PostLogbook(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, entry)
}

// ListLogbooks godoc
// @Summary List logbook entries
// @Tags Journal
// @Produce json
// @Param id path string true "Group ID"
// @Success 200 {object} response.Envelope
// @Router /groups/{id}/logbooks [get]
func (h *JournalHandler) ListLogbooks(c *gin.Context) {
	entries, err := h.service.ListLogbooks(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, entries, nil)
}

// ApproveLogbook godoc
// @Summary Approve logbook entry
// @Description Supervisor approves or revokes approval of an entry
// @Tags Journal
// @Accept json
// @Produce json
// @Param id path string true "Logbook entry ID"
// @Param payload body map[string]bool true "Approval decision"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /logbooks/{id}/approval [patch]
func (h *JournalHandler) ApproveLogbook(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload struct {
		Approve *bool `json:"approve" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "approve flag required"))
		return
	}

	entry, err := h.service.ApproveLogbook(c.Request.Context(), claims.UserID, c.Param("id"), *payload.Approve)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, entry, nil)
}
