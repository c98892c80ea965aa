package user

import (
	"net/http"

	"devunity/internal/errors"

	"github.com/gin-gonic/gin"
)

const maxAvatarSize = 5 << 20

// Handler handles HTTP requests for users
type Handler struct {
	service Service
}

// NewHandler creates a new user handler
func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// FormLogin represents login form data
type FormLogin struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// FormRegister represents registration form data
type FormRegister struct {
	Username string `json:"username" binding:"required,min=3,max=64"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

// Register handles user registration
func (h *Handler) Register(c *gin.Context) {
	var form FormRegister
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	result, err := h.service.Register(c.Request.Context(), RegisterInput{
		Username:   form.Username,
		Email:      form.Email,
		Password:   form.Password,
		DeviceInfo: c.Request.UserAgent(),
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// Login handles user login
func (h *Handler) Login(c *gin.Context) {
	var form FormLogin
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	result, err := h.service.Login(c.Request.Context(), form.Email, form.Password, c.Request.UserAgent())
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Logout handles user logout
func (h *Handler) Logout(c *gin.Context) {
	if err := h.service.Logout(c.Request.Context(), c.GetString("session_token")); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetProfile handles getting the current user's profile
func (h *Handler) GetProfile(c *gin.Context) {
	user, err := h.service.GetUserByID(c.Request.Context(), c.GetUint64("user_id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user.ToSafeUser()})
}

func (h *Handler) SearchUsers(c *gin.Context) {
	users, err := h.service.SearchUsers(c.Request.Context(), c.Query("q"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, users)
}

// UploadAvatar accepts a multipart "avatar" file
func (h *Handler) UploadAvatar(c *gin.Context) {
	file, err := c.FormFile("avatar")
	if err != nil {
		c.Error(errors.BadRequest("Avatar file is required", err))
		return
	}
	if file.Size > maxAvatarSize {
		c.Error(errors.BadRequest("Avatar must be at most 5MB", nil))
		return
	}

	f, err := file.Open()
	if err != nil {
		c.Error(errors.BadRequest("Unable to read avatar", err))
		return
	}
	defer f.Close()

	user, err := h.service.UploadAvatar(c.Request.Context(), c.GetUint64("user_id"), f, file.Size, file.Header.Get("Content-Type"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user.ToSafeUser()})
}
