package folder

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
	Name         string  `json:"name" binding:"required,min=1,max=255"`
	ParentFolder *uint64 `json:"parentFolder"`
}

type UpdateRequest struct {
	Name         *string `json:"name" binding:"omitempty,min=1,max=255"`
	ParentFolder *uint64 `json:"parentFolder"`
}

type AddCollaboratorRequest struct {
	Email         string   `json:"email" binding:"required,email"`
	Permission    string   `json:"permission" binding:"required,oneof=read write admin"`
	SelectedFiles []uint64 `json:"selectedFiles"`
}

func folderID(c *gin.Context) (uint64, bool) {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		c.Error(errors.NotFound("Folder not found", err))
		return 0, false
	}
	return id, true
}

func (h *Handler) ListFolders(c *gin.Context) {
	folders, err := h.service.ListFolders(c.Request.Context(), c.GetUint64("user_id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, folders)
}

func (h *Handler) Create(c *gin.Context) {
	var form CreateRequest
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	folder, err := h.service.CreateFolder(c.Request.Context(), c.GetUint64("user_id"), CreateInput{
		Name:           form.Name,
		ParentFolderID: form.ParentFolder,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, folder)
}

func (h *Handler) ShowFolder(c *gin.Context) {
	id, ok := folderID(c)
	if !ok {
		return
	}

	folder, err := h.service.GetFolder(c.Request.Context(), id, c.GetUint64("user_id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, folder)
}

func (h *Handler) Update(c *gin.Context) {
	id, ok := folderID(c)
	if !ok {
		return
	}

	var form UpdateRequest
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	folder, err := h.service.UpdateFolder(c.Request.Context(), id, c.GetUint64("user_id"), UpdateInput{
		Name:           form.Name,
		ParentFolderID: form.ParentFolder,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, folder)
}

func (h *Handler) DeleteFolder(c *gin.Context) {
	id, ok := folderID(c)
	if !ok {
		return
	}

	if err := h.service.DeleteFolder(c.Request.Context(), id, c.GetUint64("user_id")); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) Tree(c *gin.Context) {
	id, ok := folderID(c)
	if !ok {
		return
	}

	tree, err := h.service.Tree(c.Request.Context(), id, c.GetUint64("user_id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, tree)
}

func (h *Handler) ListCollaborators(c *gin.Context) {
	id, ok := folderID(c)
	if !ok {
		return
	}

	result, err := h.service.ListCollaborators(c.Request.Context(), id, c.GetUint64("user_id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) AddCollaborator(c *gin.Context) {
	id, ok := folderID(c)
	if !ok {
		return
	}

	var req AddCollaboratorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	result, err := h.service.AddCollaborator(c.Request.Context(), id, c.GetUint64("user_id"), ShareInput{
		Email:         req.Email,
		Permission:    domain.Permission(req.Permission),
		SelectedFiles: req.SelectedFiles,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

func (h *Handler) RemoveCollaborator(c *gin.Context) {
	id, ok := folderID(c)
	if !ok {
		return
	}

	targetUserID, err := strconv.ParseUint(c.Param("userId"), 10, 64)
	if err != nil {
		c.Error(errors.NotFound("Collaborator not found", err))
		return
	}

	if err := h.service.RemoveCollaborator(c.Request.Context(), id, c.GetUint64("user_id"), targetUserID); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}
