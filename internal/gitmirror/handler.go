package gitmirror

import (
	"net/http"
	"strings"

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

type AuthenticateRequest struct {
	Code string `json:"code" binding:"required"`
}

type RepoRequest struct {
	FolderID    uint64 `json:"folderId" binding:"required"`
	Name        string `json:"name" binding:"required,max=100"`
	Description string `json:"description" binding:"max=350"`
	Private     bool   `json:"private"`
	Readme      string `json:"readme"`
}

type PublishRequest struct {
	Name        string `json:"name" binding:"max=100"`
	Description string `json:"description" binding:"max=350"`
	Private     bool   `json:"private"`
	Readme      string `json:"readme"`
}

type CommitRequest struct {
	Message string `json:"message" binding:"max=500"`
}

type InitRequest struct {
	Readme string `json:"readme"`
}

// githubToken reads the caller's GitHub token; it is never stored server side.
func githubToken(c *gin.Context) string {
	if t := strings.TrimSpace(c.GetHeader("X-GitHub-Token")); t != "" {
		return t
	}
	return strings.TrimSpace(c.Query("githubToken"))
}

func (h *Handler) currentUser(c *gin.Context) (*domain.User, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.Error(errors.Unauthorized("Authentication required", nil))
	}
	return user, ok
}

func (h *Handler) target(c *gin.Context) (*domain.User, uint64, bool) {
	user, ok := h.currentUser(c)
	if !ok {
		return nil, 0, false
	}
	id, err := utils.ParseID(c, "folderId")
	if err != nil {
		c.Error(errors.NotFound("Folder not found", err))
		return nil, 0, false
	}
	return user, id, true
}

// bindOptional accepts an empty body.
func bindOptional(c *gin.Context, v any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(v); err != nil {
		c.Error(errors.NewValidationError(err))
		return false
	}
	return true
}

func (h *Handler) Authenticate(c *gin.Context) {
	var req AuthenticateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	result, err := h.service.Authenticate(c.Request.Context(), req.Code)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) VerifyToken(c *gin.Context) {
	user, err := h.service.VerifyToken(c.Request.Context(), githubToken(c))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true, "user": user})
}

func (h *Handler) ListRepos(c *gin.Context) {
	repos, err := h.service.ListRepos(c.Request.Context(), githubToken(c))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, repos)
}

func (h *Handler) CreateRepo(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	var req RepoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	repo, err := h.service.CreateRepository(c.Request.Context(), user, githubToken(c), RepoInput{
		FolderID:    req.FolderID,
		Name:        req.Name,
		Description: req.Description,
		Private:     req.Private,
		Readme:      req.Readme,
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"repository": repo})
}

func (h *Handler) Initialize(c *gin.Context) {
	user, id, ok := h.target(c)
	if !ok {
		return
	}
	var req InitRequest
	if !bindOptional(c, &req) {
		return
	}

	repo, err := h.service.Initialize(c.Request.Context(), user, id, githubToken(c), req.Readme)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"repository": repo})
}

func (h *Handler) LocalInit(c *gin.Context) {
	user, id, ok := h.target(c)
	if !ok {
		return
	}

	status, err := h.service.LocalInit(c.Request.Context(), user, id)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) Status(c *gin.Context) {
	user, id, ok := h.target(c)
	if !ok {
		return
	}

	status, err := h.service.Status(c.Request.Context(), user, id)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) Commit(c *gin.Context) {
	user, id, ok := h.target(c)
	if !ok {
		return
	}
	var req CommitRequest
	if !bindOptional(c, &req) {
		return
	}

	result, err := h.service.CommitAndPush(c.Request.Context(), user, id, githubToken(c), req.Message)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) Sync(c *gin.Context) {
	user, id, ok := h.target(c)
	if !ok {
		return
	}

	result, err := h.service.Sync(c.Request.Context(), user, id, githubToken(c))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) Files(c *gin.Context) {
	user, id, ok := h.target(c)
	if !ok {
		return
	}

	files, err := h.service.Files(c.Request.Context(), user, id)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": files})
}

func (h *Handler) Publish(c *gin.Context) {
	user, id, ok := h.target(c)
	if !ok {
		return
	}
	var req PublishRequest
	if !bindOptional(c, &req) {
		return
	}

	repo, err := h.service.Publish(c.Request.Context(), user, githubToken(c), RepoInput{
		FolderID:    id,
		Name:        req.Name,
		Description: req.Description,
		Private:     req.Private,
		Readme:      req.Readme,
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"repository": repo})
}

// RegisterRoutes mounts the integration under group, which must already be
// behind the auth middleware.
func (h *Handler) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("/authenticate", h.Authenticate)
	group.GET("/verify-token", h.VerifyToken)
	group.GET("/repos", h.ListRepos)
	group.POST("/repos", h.CreateRepo)
	group.POST("/init/:folderId", h.Initialize)
	group.POST("/local-init/:folderId", h.LocalInit)
	group.GET("/status/:folderId", h.Status)
	group.POST("/commit/:folderId", h.Commit)
	group.POST("/sync/:folderId", h.Sync)
	group.GET("/files/:folderId", h.Files)
	group.POST("/publish/:folderId", h.Publish)
}
