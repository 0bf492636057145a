package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/thesishub/thesishub-api/internal/models"
	"github.com/thesishub/thesishub-api/internal/service"
	appErrors "github.com/thesishub/thesishub-api/pkg/errors"
	"github.com/thesishub/thesishub-api/pkg/response"
)

// GroupHandler handles group lifecycle endpoints.
type GroupHandler struct {
	service *service.GroupService
}

// NewGroupHandler creates a new group handler.
func NewGroupHandler(svc *service.GroupService) *GroupHandler {
	return &GroupHandler{service: svc}
}

// Create godoc
// @Summary Create group
// @Description Create a project group; the creator becomes its first member
// @Tags Groups
// @Accept json
// @Produce json
// @Param payload body service.CreateGroupRequest true "Group payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /groups [post]
func (h *GroupHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	group, err := h.service.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, group)
}

// Join godoc
// @Summary Join group
// @Description Join a pending group by invite code
// @Tags Groups
// @Accept json
// @Produce json
// @Param payload body map[string]string true "Invite code"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /groups/join [post]
func (h *GroupHandler) Join(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload struct {
		InviteCode string `json:"invite_code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invite code required"))
		return
	}

	group, err := h.service.Join(c.Request.Context(), claims.UserID, payload.InviteCode)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, group, nil)
}

// Leave godoc
// @Summary Leave group
// @Description Leave the current group; an emptied group is removed
// @Tags Groups
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /groups/leave [post]
func (h *GroupHandler) Leave(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Leave(c.Request.Context(), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// List godoc
// @Summary List groups
// @Tags Groups
// @Produce json
// @Param batch_id query string false "Batch filter"
// @Param teacher_id query string false "Teacher filter"
// @Param approved query bool false "Approval filter"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /groups [get]
func (h *GroupHandler) List(c *gin.Context) {
	var filter models.GroupFilter
	filter.BatchID = c.Query("batch_id")
	filter.TeacherID = c.Query("teacher_id")

	if approved := c.Query("approved"); approved != "" {
		if val, err := strconv.ParseBool(approved); err == nil {
			filter.Approved = &val
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("page_size", "20")); err == nil {
		filter.PageSize = size
	}

	groups, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, groups, pagination)
}

// Get godoc
// @Summary Get group
// @Tags Groups
// @Produce json
// @Param id path string true "Group ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /groups/{id} [get]
func (h *GroupHandler) Get(c *gin.Context) {
	group, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, group, nil)
}

// Overview godoc
// @Summary Group overview
// @Description Group detail with derived status, members and documents
// @Tags Groups
// @Produce json
// @Param id path string true "Group ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /groups/{id}/overview [get]
func (h *GroupHandler) Overview(c *gin.Context) {
	overview, err := h.service.Overview(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, overview, nil)
}

// SetApproval godoc
// @Summary Approve or disapprove group
// @Description Admin decision on a pending group
// @Tags Groups
// @Accept json
// @Produce json
// @Param id path string true "Group ID"
// @Param payload body map[string]bool true "Approval decision"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /groups/{id}/approval [patch]
func (h *GroupHandler) SetApproval(c *gin.Context) {
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

	group, err := h.service.SetApproval(c.Request.Context(), claims.UserID, c.Param("id"), *payload.Approve)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, group, nil)
}

// UpdateProgress godoc
// @Summary Update group progress
// @Description Supervisor adjusts the progress percentage
// @Tags Groups
// @Accept json
// @Produce json
// @Param id path string true "Group ID"
// @Param payload body map[string]int true "Progress value"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /groups/{id}/progress [patch]
func (h *GroupHandler) UpdateProgress(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload struct {
		Progress *int `json:"progress" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "progress value required"))
		return
	}

	group, err := h.service.UpdateProgress(c.Request.Context(), claims.UserID, c.Param("id"), *payload.Progress)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, group, nil)
}

// AssignRole godoc
// @Summary Assign grading role
// @Description Assign a teacher as supervisor, internal or external examiner
// @Tags Groups
// @Accept json
// @Produce json
// @Param id path string true "Group ID"
// @Param payload body service.AssignRoleRequest true "Role assignment"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /groups/{id}/roles [put]
func (h *GroupHandler) AssignRole(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.AssignRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	group, err := h.service.AssignRole(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, group, nil)
}

// TeacherChoices godoc
// @Summary List supervisor choices
// @Description Teachers in a research field with their current group counts
// @Tags Groups
// @Produce json
// @Param field_id query string true "Research field ID"
// @Success 200 {object} response.Envelope
// @Router /groups/teacher-choices [get]
func (h *GroupHandler) TeacherChoices(c *gin.Context) {
	fieldID := c.Query("field_id")
	if fieldID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "field_id is required"))
		return
	}

	choices, err := h.service.TeacherChoices(c.Request.Context(), fieldID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, choices, nil)
}
