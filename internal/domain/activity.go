package domain

import (
	"errors"
	"time"
)

type ActivityAction string

const (
	ActionCreated ActivityAction = "created"
	ActionEdited  ActivityAction = "edited"
	ActionRenamed ActivityAction = "renamed"
	ActionDeleted ActivityAction = "deleted"
	ActionShared  ActivityAction = "shared"
)

var ActivityActions = []ActivityAction{ActionCreated, ActionEdited, ActionRenamed, ActionDeleted, ActionShared}

// Activity is an append-only audit entry. It is for display only.
type Activity struct {
	ID         uint64           `gorm:"primaryKey" json:"id"`
	UserID     uint64           `gorm:"index;not null" json:"user_id"`
	User       *User            `json:"user,omitempty"`
	DocumentID *uint64          `gorm:"index" json:"document_id"`
	Action     ActivityAction   `gorm:"size:16;not null;index" json:"action"`
	Metadata   ActivityMetadata `gorm:"serializer:json" json:"metadata"`
	CreatedAt  time.Time        `gorm:"index" json:"created_at"`
}

// ActivityMetadata carries the action-specific fields. Which fields are set
// depends on Action; Validate enforces the combination.
type ActivityMetadata struct {
	Title      string     `json:"title,omitempty"`
	OldTitle   string     `json:"old_title,omitempty"`
	NewTitle   string     `json:"new_title,omitempty"`
	VersionID  uint64     `json:"version_id,omitempty"`
	Email      string     `json:"email,omitempty"`
	Permission Permission `json:"permission,omitempty"`
	Invited    bool       `json:"invited,omitempty"`
}

var (
	ErrUnknownAction   = errors.New("unknown activity action")
	ErrInvalidMetadata = errors.New("activity metadata does not match action")
)

// Validate checks that the metadata matches the action.
func (a *Activity) Validate() error {
	m := a.Metadata
	switch a.Action {
	case ActionCreated, ActionDeleted:
		if m.Title == "" {
			return ErrInvalidMetadata
		}
	case ActionEdited:
		if m.VersionID == 0 {
			return ErrInvalidMetadata
		}
	case ActionRenamed:
		if m.NewTitle == "" {
			return ErrInvalidMetadata
		}
	case ActionShared:
		if m.Email == "" || !m.Permission.Valid() {
			return ErrInvalidMetadata
		}
	default:
		return ErrUnknownAction
	}
	return nil
}

func NewCreatedActivity(userID uint64, doc *Document) *Activity {
	return &Activity{UserID: userID, DocumentID: &doc.ID, Action: ActionCreated, Metadata: ActivityMetadata{Title: doc.Title}}
}

func NewEditedActivity(userID, docID, versionID uint64) *Activity {
	return &Activity{UserID: userID, DocumentID: &docID, Action: ActionEdited, Metadata: ActivityMetadata{VersionID: versionID}}
}

func NewRenamedActivity(userID, docID uint64, oldTitle, newTitle string) *Activity {
	return &Activity{UserID: userID, DocumentID: &docID, Action: ActionRenamed, Metadata: ActivityMetadata{OldTitle: oldTitle, NewTitle: newTitle}}
}

// NewDeletedActivity is recorded without a document reference since the document is gone.
func NewDeletedActivity(userID uint64, title string) *Activity {
	return &Activity{UserID: userID, Action: ActionDeleted, Metadata: ActivityMetadata{Title: title}}
}

func NewSharedActivity(userID, docID uint64, email string, p Permission, invited bool) *Activity {
	return &Activity{UserID: userID, DocumentID: &docID, Action: ActionShared, Metadata: ActivityMetadata{Email: email, Permission: p, Invited: invited}}
}
