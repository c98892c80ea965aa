package domain

import "time"

type Document struct {
	ID             uint64                 `gorm:"primaryKey" json:"id"`
	Title          string                 `gorm:"size:255;not null" json:"title"`
	Content        string                 `gorm:"type:text" json:"content"`
	Language       string                 `gorm:"size:64" json:"language"`
	OwnerID        uint64                 `gorm:"index;not null" json:"owner_id"`
	Owner          *User                  `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`
	FolderID       *uint64                `gorm:"index" json:"folder_id"`
	IsPublic       bool                   `gorm:"default:false" json:"is_public"`
	LastEditedByID *uint64                `json:"last_edited_by"`
	Collaborators  []DocumentCollaborator `gorm:"constraint:OnDelete:CASCADE" json:"collaborators"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

type DocumentCollaborator struct {
	ID         uint64     `gorm:"primaryKey" json:"-"`
	DocumentID uint64     `gorm:"uniqueIndex:idx_doc_collab;not null" json:"document_id"`
	UserID     uint64     `gorm:"uniqueIndex:idx_doc_collab;not null" json:"user_id"`
	User       *User      `json:"user,omitempty"`
	Permission Permission `gorm:"size:16;not null" json:"permission"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Collaborator returns the collaborator entry for userID, if any.
func (d *Document) Collaborator(userID uint64) (*DocumentCollaborator, bool) {
	for i := range d.Collaborators {
		if d.Collaborators[i].UserID == userID {
			return &d.Collaborators[i], true
		}
	}
	return nil, false
}

// InFolder reports whether the document is stored inside a folder.
func (d *Document) InFolder() bool {
	return d.FolderID != nil && *d.FolderID != 0
}

// Version is an immutable content snapshot.
type Version struct {
	ID          uint64    `gorm:"primaryKey" json:"id"`
	DocumentID  uint64    `gorm:"index;not null" json:"document_id"`
	Content     string    `gorm:"type:text" json:"content"`
	CreatedByID uint64    `gorm:"not null" json:"created_by"`
	CreatedBy   *User     `gorm:"foreignKey:CreatedByID" json:"author,omitempty"`
	Message     string    `json:"message"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
}
