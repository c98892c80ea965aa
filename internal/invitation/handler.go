package invitation

import (
	"context"
	"net/http"

	"devunity/internal/domain"
	"devunity/internal/errors"
	"devunity/internal/middleware"
	"devunity/internal/utils"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) ListPending(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.Error(errors.Unauthorized("Authentication required", nil))
		return
	}

	invitations, err := h.service.ListPending(c.Request.Context(), user)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, invitations)
}

func (h *Handler) Accept(c *gin.Context) {
	h.resolve(c, h.service.Accept)
}

func (h *Handler) Reject(c *gin.Context) {
	h.resolve(c, h.service.Reject)
}

func (h *Handler) resolve(c *gin.Context, action func(ctx context.Context, id uint64, user *domain.User) (*domain.Invitation, error)) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.Error(errors.Unauthorized("Authentication required", nil))
		return
	}
	id, err := utils.ParseID(c, "id")
	if err != nil {
		c.Error(errors.NotFound("Invitation not found", err))
		return
	}

	inv, err := action(c.Request.Context(), id, user)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invitation": inv})
}
