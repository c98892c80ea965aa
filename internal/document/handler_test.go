package document

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"devunity/internal/domain"
	"devunity/internal/errors"
	"devunity/internal/middleware"
	"devunity/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mock implementation of the Service interface
type MockService struct {
	mock.Mock
}

func (m *MockService) ListDocuments(ctx context.Context, userID uint64, folderID *uint64, page, pageSize int) (*PaginatedDocuments, error) {
	args := m.Called(ctx, userID, folderID, page, pageSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*PaginatedDocuments), args.Error(1)
}

func (m *MockService) CreateDocument(ctx context.Context, userID uint64, input CreateInput) (*domain.Document, error) {
	args := m.Called(ctx, userID, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockService) GetDocument(ctx context.Context, docID, userID uint64) (*DocumentResponse, error) {
	args := m.Called(ctx, docID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*DocumentResponse), args.Error(1)
}

func (m *MockService) UpdateDocument(ctx context.Context, docID, userID uint64, input UpdateInput) (*domain.Document, error) {
	args := m.Called(ctx, docID, userID, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockService) ReplaceContent(ctx context.Context, docID, userID uint64, content, message string) (*domain.Version, error) {
	args := m.Called(ctx, docID, userID, content, message)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Version), args.Error(1)
}

func (m *MockService) DeleteDocument(ctx context.Context, docID, userID uint64) error {
	return m.Called(ctx, docID, userID).Error(0)
}

func (m *MockService) Authorize(ctx context.Context, docID, userID uint64, required domain.Permission) (*domain.Document, domain.Permission, error) {
	args := m.Called(ctx, docID, userID, required)
	if args.Get(0) == nil {
		return nil, args.Get(1).(domain.Permission), args.Error(2)
	}
	return args.Get(0).(*domain.Document), args.Get(1).(domain.Permission), args.Error(2)
}

func (m *MockService) ListCollaborators(ctx context.Context, docID, userID uint64) ([]domain.DocumentCollaborator, error) {
	args := m.Called(ctx, docID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.DocumentCollaborator), args.Error(1)
}

func (m *MockService) AddCollaborator(ctx context.Context, docID, userID uint64, email string, p domain.Permission) (*ShareResult, error) {
	args := m.Called(ctx, docID, userID, email, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ShareResult), args.Error(1)
}

func (m *MockService) RemoveCollaborator(ctx context.Context, docID, userID, targetUserID uint64) error {
	return m.Called(ctx, docID, userID, targetUserID).Error(0)
}

func (m *MockService) ListVersions(ctx context.Context, docID, userID uint64) ([]domain.Version, error) {
	args := m.Called(ctx, docID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Version), args.Error(1)
}

func (m *MockService) GetVersion(ctx context.Context, docID, versionID, userID uint64) (*domain.Version, error) {
	args := m.Called(ctx, docID, versionID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Version), args.Error(1)
}

func (m *MockService) SaveVersion(ctx context.Context, docID, userID uint64, message string, content *string) (*domain.Version, error) {
	args := m.Called(ctx, docID, userID, message, content)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Version), args.Error(1)
}

func (m *MockService) RestoreVersion(ctx context.Context, docID, versionID, userID uint64) (*RestoreResult, error) {
	args := m.Called(ctx, docID, versionID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*RestoreResult), args.Error(1)
}

func (m *MockService) ListActivity(ctx context.Context, docID, userID uint64) ([]domain.Activity, error) {
	args := m.Called(ctx, docID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Activity), args.Error(1)
}

func (m *MockService) Export(ctx context.Context, docID, userID uint64, format string) (*Export, error) {
	args := m.Called(ctx, docID, userID, format)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Export), args.Error(1)
}

func setupRouter(handler *Handler) *gin.Engine {
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

func TestCreateDocument_Success(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService)
	router := setupRouter(handler)

	mockService.On("CreateDocument", mock.Anything, uint64(1), CreateInput{Title: "a.js", Content: "x", Language: "javascript"}).
		Return(&domain.Document{ID: 10, Title: "a.js", Content: "x", Language: "javascript", OwnerID: 1}, nil)
	router.POST("/documents", handler.Create)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest("POST", "/documents", map[string]string{"title": "a.js", "content": "x", "language": "javascript"}))

	assert.Equal(t, http.StatusCreated, w.Code)
	var doc domain.Document
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, uint64(10), doc.ID)
	mockService.AssertExpectations(t)
}

// TestCreateDocument_InvalidInput tests document creation with invalid input
func TestCreateDocument_InvalidInput(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService)
	router := setupRouter(handler)
	router.POST("/documents", handler.Create)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest("POST", "/documents", struct{}{}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockService.AssertNotCalled(t, "CreateDocument", mock.Anything, mock.Anything, mock.Anything)
}

func TestImport_RequiresContent(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService)
	router := setupRouter(handler)
	router.POST("/documents/import", handler.Import)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest("POST", "/documents/import", map[string]string{"title": "a"}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestImport_EmptyContentAllowed(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService)
	router := setupRouter(handler)

	mockService.On("CreateDocument", mock.Anything, uint64(1), CreateInput{Title: "a", Content: "", Language: "go"}).
		Return(&domain.Document{ID: 2, Title: "a"}, nil)
	router.POST("/documents/import", handler.Import)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest("POST", "/documents/import", map[string]string{"title": "a", "content": "", "language": "go"}))

	assert.Equal(t, http.StatusCreated, w.Code)
	mockService.AssertExpectations(t)
}

func TestListDocuments_WithPaginationAndFolder(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService)
	router := setupRouter(handler)

	result := &PaginatedDocuments{
		Data: []domain.Document{{ID: 1, Title: "Doc 1"}},
		Meta: utils.PageMeta{CurrentPage: 2, TotalPage: 3, Total: 25, PerPage: 15},
	}
	mockService.On("ListDocuments", mock.Anything, uint64(1), mock.MatchedBy(func(id *uint64) bool {
		return id != nil && *id == 4
	}), 2, 15).Return(result, nil)
	router.GET("/documents", handler.ListDocuments)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/documents?page=2&per_page=15&folderId=4", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	mockService.AssertExpectations(t)
}

func TestShowDocument_Success(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService)
	router := setupRouter(handler)

	mockService.On("GetDocument", mock.Anything, uint64(5), uint64(1)).Return(&DocumentResponse{
		Document:   &domain.Document{ID: 5, Title: "Test Doc", CreatedAt: time.Now()},
		Permission: domain.PermissionWrite,
	}, nil)
	router.GET("/documents/:id", handler.ShowDocument)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/documents/5", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, float64(5), response["id"])
	assert.Equal(t, "write", response["permission"])
}

// TestShowDocument_InvalidID tests retrieving document with invalid ID
func TestShowDocument_InvalidID(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService)
	router := setupRouter(handler)
	router.GET("/documents/:id", handler.ShowDocument)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/documents/invalid", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdate_PassesPartialFields(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService)
	router := setupRouter(handler)

	mockService.On("UpdateDocument", mock.Anything, uint64(5), uint64(1), mock.MatchedBy(func(in UpdateInput) bool {
		return in.Title == nil && in.Content != nil && *in.Content == "y" && in.Autosave
	})).Return(&domain.Document{ID: 5, Content: "y"}, nil)
	router.PUT("/documents/:id", handler.Update)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest("PUT", "/documents/5", map[string]any{"content": "y", "autosave": true}))

	assert.Equal(t, http.StatusOK, w.Code)
	mockService.AssertExpectations(t)
}

func TestUpdate_ReadOnlyCollaboratorForbidden(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService)
	router := setupRouter(handler)

	mockService.On("UpdateDocument", mock.Anything, uint64(5), uint64(1), mock.Anything).
		Return(nil, errors.Forbidden("You don't have permission to access this document", nil))
	router.PUT("/documents/:id", handler.Update)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest("PUT", "/documents/5", map[string]any{"content": "y"}))

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestDeleteDocument(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService)
	router := setupRouter(handler)

	mockService.On("DeleteDocument", mock.Anything, uint64(5), uint64(1)).Return(nil)
	router.DELETE("/documents/:id", handler.DeleteDocument)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("DELETE", "/documents/5", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestAddCollaborator_Invitation(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService)
	router := setupRouter(handler)

	inv := domain.NewInvitation(domain.ResourceDocument, 5, 1, "new@example.com", domain.PermissionWrite, time.Now())
	mockService.On("AddCollaborator", mock.Anything, uint64(5), uint64(1), "new@example.com", domain.PermissionWrite).
		Return(&ShareResult{Invitation: inv}, nil)
	router.POST("/documents/:id/collaborators", handler.AddCollaborator)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest("POST", "/documents/5/collaborators", AddCollaboratorRequest{Email: "new@example.com", Permission: "write"}))

	assert.Equal(t, http.StatusCreated, w.Code)
	var response map[string]map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "pending", response["invitation"]["status"])
	assert.NotContains(t, response, "collaborator")
}

func TestAddCollaborator_InvalidPermission(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService)
	router := setupRouter(handler)
	router.POST("/documents/:id/collaborators", handler.AddCollaborator)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest("POST", "/documents/5/collaborators", AddCollaboratorRequest{Email: "a@example.com", Permission: "owner"}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRemoveCollaborator(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService)
	router := setupRouter(handler)

	mockService.On("RemoveCollaborator", mock.Anything, uint64(5), uint64(1), uint64(9)).Return(nil)
	router.DELETE("/documents/:id/collaborators/:userId", handler.RemoveCollaborator)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("DELETE", "/documents/5/collaborators/9", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	mockService.AssertExpectations(t)
}

func TestExport_DefaultFormat(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService)
	router := setupRouter(handler)

	mockService.On("Export", mock.Anything, uint64(5), uint64(1), "").
		Return(&Export{Filename: "a.js.json", ContentType: "application/json", Body: []byte(`{"title":"a.js"}`)}, nil)
	router.GET("/documents/:id/export", handler.Export)
	router.GET("/documents/:id/export/:format", handler.Export)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/documents/5/export", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="a.js.json"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
}

func TestExport_UnsupportedFormat(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService)
	router := setupRouter(handler)

	mockService.On("Export", mock.Anything, uint64(5), uint64(1), "pdf").Return(nil, errors.BadRequest("Unsupported export format", nil))
	router.GET("/documents/:id/export/:format", handler.Export)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/documents/5/export/pdf", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSaveVersion(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService)
	router := setupRouter(handler)

	mockService.On("SaveVersion", mock.Anything, uint64(5), uint64(1), "checkpoint", (*string)(nil)).
		Return(&domain.Version{ID: 3, Message: "checkpoint"}, nil)
	router.POST("/documents/:id/versions", handler.SaveVersion)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest("POST", "/documents/5/versions", map[string]string{"message": "checkpoint"}))

	assert.Equal(t, http.StatusCreated, w.Code)
	mockService.AssertExpectations(t)
}

func TestRestoreVersion(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService)
	router := setupRouter(handler)

	mockService.On("RestoreVersion", mock.Anything, uint64(5), uint64(2), uint64(1)).Return(&RestoreResult{
		Document: &domain.Document{ID: 5, Content: "old"},
		Version:  &domain.Version{ID: 7, Message: "Restored to version 1"},
	}, nil)
	router.POST("/documents/:id/versions/:versionId/restore", handler.RestoreVersion)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/documents/5/versions/2/restore", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Restored to version 1")
}

func TestShowVersion_InvalidID(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService)
	router := setupRouter(handler)
	router.GET("/documents/:id/versions/:versionId", handler.ShowVersion)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/documents/5/versions/abc", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}
