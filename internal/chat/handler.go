package chat

import (
	"net/http"

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

type PostRequest struct {
	Content string `json:"content" binding:"required,max=5000"`
}

func (h *Handler) ListDocumentMessages(c *gin.Context) {
	docID, err := utils.ParseID(c, "id")
	if err != nil {
		c.Error(errors.NotFound("Document not found", err))
		return
	}

	messages, err := h.service.ListDocumentMessages(c.Request.Context(), docID, c.GetUint64("user_id"), utils.LimitParam(c, DefaultLimit, MaxLimit))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

func (h *Handler) PostDocumentMessage(c *gin.Context) {
	docID, err := utils.ParseID(c, "id")
	if err != nil {
		c.Error(errors.NotFound("Document not found", err))
		return
	}

	var req PostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	msg, err := h.service.PostDocumentMessage(c.Request.Context(), docID, c.GetUint64("user_id"), req.Content)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *Handler) ListFolderMessages(c *gin.Context) {
	folderID, err := utils.ParseID(c, "id")
	if err != nil {
		c.Error(errors.NotFound("Folder not found", err))
		return
	}

	messages, err := h.service.ListFolderMessages(c.Request.Context(), folderID, c.GetUint64("user_id"), utils.LimitParam(c, DefaultLimit, MaxLimit))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

func (h *Handler) PostFolderMessage(c *gin.Context) {
	folderID, err := utils.ParseID(c, "id")
	if err != nil {
		c.Error(errors.NotFound("Folder not found", err))
		return
	}

	var req PostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	msg, err := h.service.PostFolderMessage(c.Request.Context(), folderID, c.GetUint64("user_id"), req.Content)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}
