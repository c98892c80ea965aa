package editsession

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"devunity/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_UpdateContentSendsAutosave(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/documents/5", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "tok")
	require.NoError(t, c.UpdateContent(context.Background(), 5, "body"))

	assert.Equal(t, "body", got["content"])
	assert.Equal(t, true, got["autosave"])
}

func TestClient_GetDocumentDecodesPermission(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":5,"title":"main.go","content":"x","permission":"write"}`))
	}))
	defer srv.Close()

	state, err := NewClient(srv.URL, "tok").GetDocument(context.Background(), 5)

	require.NoError(t, err)
	assert.Equal(t, uint64(5), state.ID)
	assert.Equal(t, "x", state.Content)
	assert.Equal(t, domain.PermissionWrite, state.Permission)
}

func TestClient_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message":"Forbidden"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "tok").RestoreVersion(context.Background(), 5, 2)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusForbidden, statusErr.Status)
	assert.Equal(t, "Forbidden", statusErr.Message)
}
