package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/thesishub/thesishub-api/internal/service"
	appErrors "github.com/thesishub/thesishub-api/pkg/errors"
	"github.com/thesishub/thesishub-api/pkg/response"
)

// NotificationHandler handles notice feed endpoints.
type NotificationHandler struct {
	service *service.NotificationService
}

// NewNotificationHandler creates a new notification handler.
func NewNotificationHandler(svc *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{service: svc}
}

// List godoc
// @Summary List notifications
// @Description The caller's notices, newest first
// @Tags Notifications
// @Produce json
// @Param limit query int false "Max entries"
// @Success 200 {object} response.Envelope
// @Router /notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		if val, err := strconv.Atoi(raw); err == nil {
			limit = val
		}
	}

	notices, err := h.service.List(c.Request.Context(), claims.UserID, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, notices, nil)
}

// UnreadCount godoc
// @Summary Count unread notifications
// @Tags Notifications
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /notifications/unread-count [get]
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	count, err := h.service.UnreadCount(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"unread": count}, nil)
}

// MarkViewed godoc
// @Summary Mark notifications viewed
// @Description Mark the caller's notices for a group as viewed
// @Tags Notifications
// @Accept json
// @Success 204 {object} response.Envelope
// @Router /notifications/viewed [post]
func (h *NotificationHandler) MarkViewed(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload struct {
		GroupID string `json:"group_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "group_id required"))
		return
	}

	if err := h.service.MarkViewed(c.Request.Context(), claims.UserID, payload.GroupID); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}
