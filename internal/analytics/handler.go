package analytics

import (
	"net/http"
	"strconv"

	"devunity/internal/errors"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Usage(c *gin.Context) {
	days := DefaultDays
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.Error(errors.BadRequest("days must be a positive integer", err))
			return
		}
		days = n
	}

	usage, err := h.service.Usage(c.Request.Context(), c.GetUint64("user_id"), days)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, usage)
}
