package domain

import (
	"slices"
	"time"
)

type Folder struct {
	ID             uint64               `gorm:"primaryKey" json:"id"`
	Name           string               `gorm:"size:255;not null" json:"name"`
	OwnerID        uint64               `gorm:"index;not null" json:"owner_id"`
	ParentFolderID *uint64              `gorm:"index" json:"parent_folder"`
	Collaborators  []FolderCollaborator `gorm:"constraint:OnDelete:CASCADE" json:"collaborators"`
	GithubRepo     *GithubRepo          `gorm:"serializer:json" json:"github_repo,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

type FolderCollaborator struct {
	ID         uint64     `gorm:"primaryKey" json:"-"`
	FolderID   uint64     `gorm:"uniqueIndex:idx_folder_collab;not null" json:"folder_id"`
	UserID     uint64     `gorm:"uniqueIndex:idx_folder_collab;not null" json:"user_id"`
	User       *User      `json:"user,omitempty"`
	Permission Permission `gorm:"size:16;not null" json:"permission"`
	// SelectedFiles restricts the collaborator to a subset of documents; empty means all.
	SelectedFiles []uint64  `gorm:"serializer:json" json:"selected_files"`
	CreatedAt     time.Time `json:"created_at"`
}

// Restricted reports whether the collaborator only sees an allow-list of documents.
func (c *FolderCollaborator) Restricted() bool {
	return len(c.SelectedFiles) > 0
}

// CanSee reports whether the collaborator's allow-list covers documentID.
func (c *FolderCollaborator) CanSee(documentID uint64) bool {
	return !c.Restricted() || slices.Contains(c.SelectedFiles, documentID)
}

// GithubRepo describes the remote repository mirrored by a folder.
type GithubRepo struct {
	Name          string     `json:"name"`
	FullName      string     `json:"full_name"`
	URL           string     `json:"url"`
	Owner         string     `json:"owner"`
	DefaultBranch string     `json:"default_branch"`
	IsInitialized bool       `json:"is_initialized"`
	LastSynced    *time.Time `json:"last_synced,omitempty"`
}

func (f *Folder) Collaborator(userID uint64) (*FolderCollaborator, bool) {
	for i := range f.Collaborators {
		if f.Collaborators[i].UserID == userID {
			return &f.Collaborators[i], true
		}
	}
	return nil, false
}

func (f *Folder) HasParent() bool {
	return f.ParentFolderID != nil && *f.ParentFolderID != 0
}
