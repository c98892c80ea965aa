package editsession

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"devunity/internal/domain"
)

// API is the slice of the REST surface an edit session needs.
type API interface {
	GetDocument(ctx context.Context, docID uint64) (*DocumentState, error)
	ListVersions(ctx context.Context, docID uint64) ([]domain.Version, error)
	ListMessages(ctx context.Context, docID uint64, limit int) ([]domain.Message, error)
	UpdateContent(ctx context.Context, docID uint64, content string) error
	SaveVersion(ctx context.Context, docID uint64, message string, content *string) (*domain.Version, error)
	RestoreVersion(ctx context.Context, docID, versionID uint64) (*Restored, error)
}

// DocumentState is the document as served to the requester, with the
// requester's effective permission.
type DocumentState struct {
	domain.Document
	Permission domain.Permission `json:"permission"`
}

type Restored struct {
	Document *domain.Document `json:"document"`
	Version  *domain.Version  `json:"version"`
}

// StatusError is a non-2xx answer from the server.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("devunity api error: status=%d message=%s", e.Status, e.Message)
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		var payload struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(b, &payload) != nil || payload.Message == "" {
			payload.Message = string(b)
		}
		return &StatusError{Status: resp.StatusCode, Message: payload.Message}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) GetDocument(ctx context.Context, docID uint64) (*DocumentState, error) {
	var state DocumentState
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/documents/%d", docID), nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (c *Client) ListVersions(ctx context.Context, docID uint64) ([]domain.Version, error) {
	var versions []domain.Version
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/documents/%d/versions", docID), nil, &versions)
	return versions, err
}

func (c *Client) ListMessages(ctx context.Context, docID uint64, limit int) ([]domain.Message, error) {
	var messages []domain.Message
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/documents/%d/messages?limit=%d", docID, limit), nil, &messages)
	return messages, err
}

// UpdateContent is the auto-save call; the server records no version for it
func (c *Client) UpdateContent(ctx context.Context, docID uint64, content string) error {
	payload := map[string]any{"content": content, "autosave": true}
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/api/documents/%d", docID), payload, nil)
}

func (c *Client) SaveVersion(ctx context.Context, docID uint64, message string, content *string) (*domain.Version, error) {
	payload := map[string]any{"message": message}
	if content != nil {
		payload["content"] = *content
	}
	var v domain.Version
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/documents/%d/versions", docID), payload, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *Client) RestoreVersion(ctx context.Context, docID, versionID uint64) (*Restored, error) {
	var restored Restored
	path := fmt.Sprintf("/api/documents/%d/versions/%d/restore", docID, versionID)
	if err := c.do(ctx, http.MethodPost, path, nil, &restored); err != nil {
		return nil, err
	}
	return &restored, nil
}
