package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thesishub/thesishub-api/internal/models"
	"github.com/thesishub/thesishub-api/internal/service"
	appErrors "github.com/thesishub/thesishub-api/pkg/errors"
	"github.com/thesishub/thesishub-api/pkg/response"
)

// DocumentHandler handles milestone document endpoints.
type DocumentHandler struct {
	service *service.DocumentService
}

// NewDocumentHandler creates a new document handler.
func NewDocumentHandler(svc *service.DocumentService) *DocumentHandler {
	return &DocumentHandler{service: svc}
}

// Upload godoc
// @Summary Upload document
// @Description Upload a milestone document for the caller's group
// @Tags Documents
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Group ID"
// @Param type formData string true "Document type"
// @Param file formData file true "Document file"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /groups/{id}/documents [post]
func (h *DocumentHandler) Upload(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	docType := models.DocumentType(c.PostForm("type"))

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "file is required"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "could not read uploaded file"))
		return
	}
	defer file.Close()

	doc, err := h.service.Upload(c.Request.Context(), claims.UserID, c.Param("id"), docType, fileHeader.Filename, fileHeader.Size, file)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, doc)
}

// List godoc
// @Summary List group documents
// @Description Documents of a group, newest first; marks the viewer's notices read
// @Tags Documents
// @Produce json
// @Param id path string true "Group ID"
// @Success 200 {object} response.Envelope
// @Router /groups/{id}/documents [get]
func (h *DocumentHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	docs, err := h.service.ListByGroup(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, docs, nil)
}

// Review godoc
// @Summary Review document
// @Description Supervisor accepts or rejects a pending document
// @Tags Documents
// @Accept json
// @Produce json
// @Param id path string true "Document ID"
// @Param payload body map[string]bool true "Review decision"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /documents/{id}/review [patch]
func (h *DocumentHandler) Review(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload struct {
		Accept *bool `json:"accept" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "accept flag required"))
		return
	}

	doc, err := h.service.Review(c.Request.Context(), claims.UserID, c.Param("id"), *payload.Accept)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, doc, nil)
}

// DownloadGrant godoc
// @Summary Issue download token
// @Description Short-lived signed token for downloading a document
// @Tags Documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /documents/{id}/download-url [post]
func (h *DocumentHandler) DownloadGrant(c *gin.Context) {
	grant, err := h.service.DownloadGrant(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, grant, nil)
}

// Download godoc
// @Summary Download document
// @Description Stream the document bytes for a valid signed token
// @Tags Documents
// @Produce application/octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Router /downloads [get]
func (h *DocumentHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}

	doc, file, err := h.service.Download(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "could not stat file"))
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+doc.FileName+`"`)
	c.DataFromReader(http.StatusOK, info.Size(), "application/octet-stream", file, nil)
}

// Delete godoc
// @Summary Delete document
// @Description Remove a document record and queue its file for cleanup
// @Tags Documents
// @Param id path string true "Document ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /documents/{id} [delete]
func (h *DocumentHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Delete(c.Request.Context(), claims.UserID, claims.Role, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}
