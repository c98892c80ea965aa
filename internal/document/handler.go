package document

import (
	"net/http"
	"strconv"

	"devunity/internal/domain"
	"devunity/internal/errors"
	"devunity/internal/utils"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

type CreateRequest struct {
	Title    string  `json:"title" binding:"required,min=1,max=255"`
	Content  string  `json:"content"`
	Language string  `json:"language" binding:"max=64"`
	FolderID *uint64 `json:"folderId"`
}

type ImportRequest struct {
	Title    string  `json:"title" binding:"required,min=1,max=255"`
	Content  *string `json:"content" binding:"required"`
	Language string  `json:"language" binding:"max=64"`
	FolderID *uint64 `json:"folderId"`
}

type UpdateRequest struct {
	Title    *string `json:"title" binding:"omitempty,min=1,max=255"`
	Content  *string `json:"content"`
	Language *string `json:"language" binding:"omitempty,max=64"`
	IsPublic *bool   `json:"isPublic"`
	FolderID *uint64 `json:"folderId"`
	Autosave bool    `json:"autosave"`
	Message  string  `json:"message" binding:"max=255"`
}

type AddCollaboratorRequest struct {
	Email      string `json:"email" binding:"required,email"`
	Permission string `json:"permission" binding:"required,oneof=read write admin"`
}

type SaveVersionRequest struct {
	Message string  `json:"message" binding:"max=255"`
	Content *string `json:"content"`
}

func documentID(c *gin.Context) (uint64, bool) {
	docID, err := utils.ParseID(c, "id")
	if err != nil {
		c.Error(errors.NotFound("Document not found", err))
		return 0, false
	}
	return docID, true
}

func (h *Handler) ListDocuments(c *gin.Context) {
	folderID, err := utils.ParseOptionalID(c, "folderId")
	if err != nil {
		c.Error(errors.BadRequest("Invalid folderId", err))
		return
	}

	page, pageSize := utils.GetPaginationParams(c)
	result, err := h.service.ListDocuments(c.Request.Context(), c.GetUint64("user_id"), folderID, page, pageSize)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) Create(c *gin.Context) {
	var form CreateRequest
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	doc, err := h.service.CreateDocument(c.Request.Context(), c.GetUint64("user_id"), CreateInput{
		Title:    form.Title,
		Content:  form.Content,
		Language: form.Language,
		FolderID: form.FolderID,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, doc)
}

// Import accepts the json export shape and creates a new document from it
func (h *Handler) Import(c *gin.Context) {
	var form ImportRequest
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	doc, err := h.service.CreateDocument(c.Request.Context(), c.GetUint64("user_id"), CreateInput{
		Title:    form.Title,
		Content:  *form.Content,
		Language: form.Language,
		FolderID: form.FolderID,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, doc)
}

func (h *Handler) ShowDocument(c *gin.Context) {
	docID, ok := documentID(c)
	if !ok {
		return
	}

	doc, err := h.service.GetDocument(c.Request.Context(), docID, c.GetUint64("user_id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, doc)
}

func (h *Handler) Update(c *gin.Context) {
	docID, ok := documentID(c)
	if !ok {
		return
	}

	var form UpdateRequest
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	doc, err := h.service.UpdateDocument(c.Request.Context(), docID, c.GetUint64("user_id"), UpdateInput{
		Title:    form.Title,
		Content:  form.Content,
		Language: form.Language,
		IsPublic: form.IsPublic,
		FolderID: form.FolderID,
		Autosave: form.Autosave,
		Message:  form.Message,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, doc)
}

func (h *Handler) DeleteDocument(c *gin.Context) {
	docID, ok := documentID(c)
	if !ok {
		return
	}

	if err := h.service.DeleteDocument(c.Request.Context(), docID, c.GetUint64("user_id")); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) ListCollaborators(c *gin.Context) {
	docID, ok := documentID(c)
	if !ok {
		return
	}

	result, err := h.service.ListCollaborators(c.Request.Context(), docID, c.GetUint64("user_id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) AddCollaborator(c *gin.Context) {
	docID, ok := documentID(c)
	if !ok {
		return
	}

	var req AddCollaboratorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	result, err := h.service.AddCollaborator(
		c.Request.Context(),
		docID,
		c.GetUint64("user_id"),
		req.Email,
		domain.Permission(req.Permission),
	)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

func (h *Handler) RemoveCollaborator(c *gin.Context) {
	docID, ok := documentID(c)
	if !ok {
		return
	}

	targetUserID, err := strconv.ParseUint(c.Param("userId"), 10, 64)
	if err != nil {
		c.Error(errors.NotFound("Collaborator not found", err))
		return
	}

	if err := h.service.RemoveCollaborator(c.Request.Context(), docID, c.GetUint64("user_id"), targetUserID); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) Export(c *gin.Context) {
	docID, ok := documentID(c)
	if !ok {
		return
	}

	export, err := h.service.Export(c.Request.Context(), docID, c.GetUint64("user_id"), c.Param("format"))
	if err != nil {
		c.Error(err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+export.Filename+`"`)
	c.Data(http.StatusOK, export.ContentType, export.Body)
}

func (h *Handler) ListActivity(c *gin.Context) {
	docID, ok := documentID(c)
	if !ok {
		return
	}

	activities, err := h.service.ListActivity(c.Request.Context(), docID, c.GetUint64("user_id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, activities)
}

func (h *Handler) ListVersions(c *gin.Context) {
	docID, ok := documentID(c)
	if !ok {
		return
	}

	versions, err := h.service.ListVersions(c.Request.Context(), docID, c.GetUint64("user_id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, versions)
}

func (h *Handler) ShowVersion(c *gin.Context) {
	docID, ok := documentID(c)
	if !ok {
		return
	}
	versionID, err := utils.ParseID(c, "versionId")
	if err != nil {
		c.Error(errors.NotFound("Version not found", err))
		return
	}

	v, err := h.service.GetVersion(c.Request.Context(), docID, versionID, c.GetUint64("user_id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, v)
}

func (h *Handler) SaveVersion(c *gin.Context) {
	docID, ok := documentID(c)
	if !ok {
		return
	}

	var req SaveVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	v, err := h.service.SaveVersion(c.Request.Context(), docID, c.GetUint64("user_id"), req.Message, req.Content)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, v)
}

func (h *Handler) RestoreVersion(c *gin.Context) {
	docID, ok := documentID(c)
	if !ok {
		return
	}
	versionID, err := utils.ParseID(c, "versionId")
	if err != nil {
		c.Error(errors.NotFound("Version not found", err))
		return
	}

	result, err := h.service.RestoreVersion(c.Request.Context(), docID, versionID, c.GetUint64("user_id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, result)
}
