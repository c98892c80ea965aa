package realtime

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"time"

	"devunity/internal/domain"
	"devunity/internal/errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const handleTimeout = 10 * time.Second

type DocumentAuthorizer interface {
	Authorize(ctx context.Context, docID, userID uint64, required domain.Permission) (*domain.Document, domain.Permission, error)
}

type FolderAuthorizer interface {
	Authorize(ctx context.Context, folderID, userID uint64, required domain.Permission) (*domain.Folder, domain.Permission, error)
}

// MessagePoster persists chat messages; it is expected to broadcast them.
type MessagePoster interface {
	PostDocumentMessage(ctx context.Context, docID, userID uint64, content string) (*domain.Message, error)
	PostFolderMessage(ctx context.Context, folderID, userID uint64, content string) (*domain.Message, error)
}

// Hub routes socket events to rooms. Presence lives in the Registry and is
// not shared between processes.
type Hub struct {
	registry  *Registry
	documents DocumentAuthorizer
	folders   FolderAuthorizer
	messages  MessagePoster
	validate  *validator.Validate
	log       *zap.Logger
}

func NewHub(registry *Registry, documents DocumentAuthorizer, folders FolderAuthorizer, messages MessagePoster, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		registry:  registry,
		documents: documents,
		folders:   folders,
		messages:  messages,
		validate:  validator.New(),
		log:       log,
	}
}

func (h *Hub) Registry() *Registry {
	return h.registry
}

// decode unmarshals and validates the payload, reporting problems to the client
func (h *Hub) decode(c *Client, raw json.RawMessage, dest any) bool {
	if len(raw) == 0 {
		c.sendError("missing payload")
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		c.sendError("invalid payload")
		return false
	}
	if err := h.validate.Struct(dest); err != nil {
		c.sendError("invalid payload: " + err.Error())
		return false
	}
	return true
}

func (h *Hub) handle(c *Client, env Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	switch env.Event {
	case EventJoinDocument:
		var p DocumentPayload
		if h.decode(c, env.Data, &p) {
			h.joinDocument(ctx, c, p.DocumentID)
		}
	case EventLeaveDocument:
		var p DocumentPayload
		if h.decode(c, env.Data, &p) {
			h.leave(c, domain.DocumentRoom(p.DocumentID))
		}
	case EventJoinFolder:
		var p FolderPayload
		if h.decode(c, env.Data, &p) {
			h.joinFolder(ctx, c, p.FolderID)
		}
	case EventLeaveFolder:
		var p FolderPayload
		if h.decode(c, env.Data, &p) {
			h.leave(c, domain.FolderRoom(p.FolderID))
		}
	case EventDocumentChange, EventCursorPosition, EventDocumentActivity:
		var p RelayPayload
		if h.decode(c, env.Data, &p) {
			h.relay(c, env.Event, p)
		}
	case EventSendMessage:
		var p MessagePayload
		if h.decode(c, env.Data, &p) {
			h.sendMessage(ctx, c, p)
		}
	default:
		c.sendError("unknown event: " + env.Event)
	}
}

func (h *Hub) joinDocument(ctx context.Context, c *Client, docID uint64) {
	if _, _, err := h.documents.Authorize(ctx, docID, c.user.ID, domain.PermissionRead); err != nil {
		c.sendError(messageOf(err))
		return
	}
	h.join(c, domain.DocumentRoom(docID))
}

func (h *Hub) joinFolder(ctx context.Context, c *Client, folderID uint64) {
	if _, _, err := h.folders.Authorize(ctx, folderID, c.user.ID, domain.PermissionRead); err != nil {
		c.sendError(messageOf(err))
		return
	}
	h.join(c, domain.FolderRoom(folderID))
}

func (h *Hub) join(c *Client, room string) {
	if replaced := h.registry.Join(room, c); replaced != nil {
		h.log.Debug("socket replaced in room",
			zap.String("room", room),
			zap.Uint64("user_id", c.user.ID),
			zap.String("replaced", replaced.ID()),
		)
	}
	h.registry.Presence(room)
}

func (h *Hub) leave(c *Client, room string) {
	if h.registry.Leave(room, c) {
		h.registry.Presence(room)
	}
}

// relay forwards the event to the other members, fire and forget
func (h *Hub) relay(c *Client, event string, p RelayPayload) {
	room := domain.DocumentRoom(p.DocumentID)
	if !h.registry.IsMember(room, c) {
		c.sendError("join the document first")
		return
	}
	h.registry.BroadcastExcept(room, c, event, Relayed{
		RelayPayload: p,
		UserID:       c.user.ID,
		Username:     c.user.Username,
	})
}

func (h *Hub) sendMessage(ctx context.Context, c *Client, p MessagePayload) {
	var err error
	if p.DocumentID != 0 {
		_, err = h.messages.PostDocumentMessage(ctx, p.DocumentID, c.user.ID, p.Content)
	} else {
		_, err = h.messages.PostFolderMessage(ctx, p.FolderID, c.user.ID, p.Content)
	}
	if err != nil {
		c.sendError(messageOf(err))
	}
}

func (h *Hub) disconnect(c *Client) {
	for _, room := range h.registry.LeaveAll(c) {
		h.registry.Presence(room)
	}
}

func messageOf(err error) string {
	var apiErr *errors.APIError
	if stdErrors.As(err, &apiErr) {
		return apiErr.Message
	}
	return "internal error"
}
