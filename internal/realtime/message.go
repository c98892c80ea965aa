package realtime

import (
	"encoding/json"

	"devunity/internal/domain"
)

// Events exchanged over the socket.
const (
	EventJoinDocument     = "join-document"
	EventLeaveDocument    = "leave-document"
	EventDocumentChange   = "document-change"
	EventCursorPosition   = "cursor-position"
	EventJoinFolder       = "join-folder"
	EventLeaveFolder      = "leave-folder"
	EventDocumentActivity = "document-activity"
	EventSendMessage      = "send-message"

	EventUserPresence = "user-presence"
	EventNewMessage   = domain.EventNewMessage
	EventError        = "error"
)

// Envelope is the wire frame in both directions.
type Envelope struct {
	Event string          `json:"event" validate:"required"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type DocumentPayload struct {
	DocumentID uint64 `json:"documentId" validate:"required"`
}

type FolderPayload struct {
	FolderID uint64 `json:"folderId" validate:"required"`
}

// RelayPayload covers document-change, cursor-position and document-activity.
// Everything besides the document id is passed through untouched.
type RelayPayload struct {
	DocumentID uint64          `json:"documentId" validate:"required"`
	Content    *string         `json:"content,omitempty"`
	Position   json.RawMessage `json:"position,omitempty"`
	Selection  json.RawMessage `json:"selection,omitempty"`
	Action     string          `json:"action,omitempty" validate:"max=64"`
	Detail     json.RawMessage `json:"detail,omitempty"`
}

type MessagePayload struct {
	DocumentID uint64 `json:"documentId" validate:"required_without=FolderID"`
	FolderID   uint64 `json:"folderId" validate:"required_without=DocumentID"`
	Content    string `json:"content" validate:"required,max=5000"`
}

type Member struct {
	UserID   uint64 `json:"userId"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

type PresencePayload struct {
	Room    string   `json:"room"`
	Members []Member `json:"members"`
}

// Relayed is what the other members of the room receive.
type Relayed struct {
	RelayPayload
	UserID   uint64 `json:"userId"`
	Username string `json:"username"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}
