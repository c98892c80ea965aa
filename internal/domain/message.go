package domain

import (
	"fmt"
	"time"
)

// Message is a chat line posted in a document room or a folder room.
// Exactly one of DocumentID and FolderID is set.
type Message struct {
	ID         uint64    `gorm:"primaryKey" json:"id"`
	DocumentID *uint64   `gorm:"index" json:"document_id,omitempty"`
	FolderID   *uint64   `gorm:"index" json:"folder_id,omitempty"`
	SenderID   uint64    `gorm:"not null" json:"sender_id"`
	Sender     *User     `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

const (
	EventNewMessage = "new-message"
)

// DocumentRoom and FolderRoom name the realtime rooms for a resource.
func DocumentRoom(id uint64) string {
	return fmt.Sprintf("document:%d", id)
}

func FolderRoom(id uint64) string {
	return fmt.Sprintf("folder:%d", id)
}
