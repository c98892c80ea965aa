package folder

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"devunity/internal/domain"
	"devunity/internal/errors"
	"devunity/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) ListFolders(ctx context.Context, userID uint64) ([]domain.Folder, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Folder), args.Error(1)
}

func (m *MockService) CreateFolder(ctx context.Context, userID uint64, input CreateInput) (*domain.Folder, error) {
	args := m.Called(ctx, userID, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Folder), args.Error(1)
}

func (m *MockService) GetFolder(ctx context.Context, folderID, userID uint64) (*FolderResponse, error) {
	args := m.Called(ctx, folderID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*FolderResponse), args.Error(1)
}

func (m *MockService) UpdateFolder(ctx context.Context, folderID, userID uint64, input UpdateInput) (*domain.Folder, error) {
	args := m.Called(ctx, folderID, userID, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Folder), args.Error(1)
}

func (m *MockService) DeleteFolder(ctx context.Context, folderID, userID uint64) error {
	return m.Called(ctx, folderID, userID).Error(0)
}

func (m *MockService) Authorize(ctx context.Context, folderID, userID uint64, required domain.Permission) (*domain.Folder, domain.Permission, error) {
	args := m.Called(ctx, folderID, userID, required)
	if args.Get(0) == nil {
		return nil, args.Get(1).(domain.Permission), args.Error(2)
	}
	return args.Get(0).(*domain.Folder), args.Get(1).(domain.Permission), args.Error(2)
}

func (m *MockService) Tree(ctx context.Context, folderID, userID uint64) (*TreeResponse, error) {
	args := m.Called(ctx, folderID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*TreeResponse), args.Error(1)
}

func (m *MockService) Contents(ctx context.Context, folderID uint64) (*Contents, error) {
	args := m.Called(ctx, folderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Contents), args.Error(1)
}

func (m *MockService) SetGithubRepo(ctx context.Context, folderID uint64, repo *domain.GithubRepo) error {
	return m.Called(ctx, folderID, repo).Error(0)
}

func (m *MockService) ListCollaborators(ctx context.Context, folderID, userID uint64) ([]domain.FolderCollaborator, error) {
	args := m.Called(ctx, folderID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.FolderCollaborator), args.Error(1)
}

func (m *MockService) AddCollaborator(ctx context.Context, folderID, userID uint64, input ShareInput) (*ShareResult, error) {
	args := m.Called(ctx, folderID, userID, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ShareResult), args.Error(1)
}

func (m *MockService) RemoveCollaborator(ctx context.Context, folderID, userID, targetUserID uint64) error {
	return m.Called(ctx, folderID, userID, targetUserID).Error(0)
}

func setupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.ErrorHandler(zap.NewNop(), true))
	router.Use(func(c *gin.Context) {
		c.Set("user_id", uint64(1))
		c.Next()
	})
	return router
}

func jsonRequest(method, target string, payload any) *http.Request {
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(method, target, bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestCreateFolder_Handler(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService)
	router := setupRouter()
	router.POST("/folders", handler.Create)

	parent := uint64(3)
	mockService.On("CreateFolder", mock.Anything, uint64(1), CreateInput{Name: "src", ParentFolderID: &parent}).
		Return(&domain.Folder{ID: 9, Name: "src", OwnerID: 1, ParentFolderID: &parent}, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest("POST", "/folders", map[string]any{"name": "src", "parentFolder": 3}))

	assert.Equal(t, http.StatusCreated, w.Code)
	mockService.AssertExpectations(t)
}

func TestCreateFolder_MissingName(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService)
	router := setupRouter()
	router.POST("/folders", handler.Create)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest("POST", "/folders", map[string]any{}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockService.AssertNotCalled(t, "CreateFolder", mock.Anything, mock.Anything, mock.Anything)
}

func TestTree_Handler(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService)
	router := setupRouter()
	router.GET("/folders/:id/documents", handler.Tree)

	folderID := uint64(5)
	mockService.On("Tree", mock.Anything, uint64(5), uint64(1)).Return(&TreeResponse{
		Folder:    &domain.Folder{ID: 5, Name: "root"},
		Folders:   []domain.Folder{{ID: 6, Name: "sub", ParentFolderID: &folderID}},
		Documents: []domain.Document{{ID: 7, Title: "a.go", FolderID: &folderID}},
	}, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/folders/5/documents", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body, "folder")
	assert.Contains(t, body, "folders")
	assert.Contains(t, body, "documents")
}

func TestUpdateFolder_Cycle(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService)
	router := setupRouter()
	router.PUT("/folders/:id", handler.Update)

	parent := uint64(8)
	mockService.On("UpdateFolder", mock.Anything, uint64(2), uint64(1), UpdateInput{ParentFolderID: &parent}).
		Return(nil, errors.BadRequest("A folder cannot be moved inside itself", nil))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest("PUT", "/folders/2", map[string]any{"parentFolder": 8}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "inside itself")
}

func TestDeleteFolder_Handler(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService)
	router := setupRouter()
	router.DELETE("/folders/:id", handler.DeleteFolder)

	mockService.On("DeleteFolder", mock.Anything, uint64(2), uint64(1)).Return(nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("DELETE", "/folders/2", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestShowFolder_InvalidID(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService)
	router := setupRouter()
	router.GET("/folders/:id", handler.ShowFolder)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/folders/abc", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAddCollaborator_WithSelection(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService)
	router := setupRouter()
	router.POST("/folders/:id/collaborators", handler.AddCollaborator)

	input := ShareInput{Email: "a@example.com", Permission: domain.PermissionRead, SelectedFiles: []uint64{4, 5}}
	mockService.On("AddCollaborator", mock.Anything, uint64(2), uint64(1), input).
		Return(&ShareResult{Collaborator: &domain.FolderCollaborator{FolderID: 2, UserID: 3, Permission: domain.PermissionRead}}, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest("POST", "/folders/2/collaborators", map[string]any{
		"email": "a@example.com", "permission": "read", "selectedFiles": []uint64{4, 5},
	}))

	assert.Equal(t, http.StatusCreated, w.Code)
	mockService.AssertExpectations(t)
}

func TestAddCollaborator_BadPermission(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService)
	router := setupRouter()
	router.POST("/folders/:id/collaborators", handler.AddCollaborator)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest("POST", "/folders/2/collaborators", map[string]any{
		"email": "a@example.com", "permission": "owner",
	}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRemoveCollaborator_Handler(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService)
	router := setupRouter()
	router.DELETE("/folders/:id/collaborators/:userId", handler.RemoveCollaborator)

	mockService.On("RemoveCollaborator", mock.Anything, uint64(2), uint64(1), uint64(3)).Return(nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("DELETE", "/folders/2/collaborators/3", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
}
