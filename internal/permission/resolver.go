package permission

import (
	"context"
	stdErrors "errors"

	"devunity/internal/domain"
	"devunity/internal/errors"

	"gorm.io/gorm"
)

// FolderSource loads a folder together with its collaborators
type FolderSource interface {
	FindByIDWithCollaborators(ctx context.Context, id uint64) (*domain.Folder, error)
}

// Resolver answers "may user U do X on resource R" for documents and folders.
// Folder grants are inherited by everything below the folder.
type Resolver struct {
	folders FolderSource
}

func NewResolver(folders FolderSource) *Resolver {
	return &Resolver{folders: folders}
}

func OwnsDocument(doc *domain.Document, userID uint64) bool {
	return doc.OwnerID == userID
}

func OwnsFolder(folder *domain.Folder, userID uint64) bool {
	return folder.OwnerID == userID
}

// EffectiveDocument returns the highest permission userID holds on doc, or ""
// when the user has no access at all.
func (r *Resolver) EffectiveDocument(ctx context.Context, doc *domain.Document, userID uint64) (domain.Permission, error) {
	if OwnsDocument(doc, userID) {
		return domain.PermissionAdmin, nil
	}

	var best domain.Permission
	if collab, ok := doc.Collaborator(userID); ok {
		best = higher(best, collab.Permission)
	}
	if doc.IsPublic {
		best = higher(best, domain.PermissionRead)
	}
	if best == domain.PermissionAdmin || !doc.InFolder() {
		return best, nil
	}

	docID := doc.ID
	viaFolder, err := r.effectiveFolder(ctx, *doc.FolderID, userID, &docID)
	if err != nil {
		return "", err
	}
	return higher(best, viaFolder), nil
}

// Document returns the user's effective permission, or 403 when it does not
// satisfy required.
func (r *Resolver) Document(ctx context.Context, doc *domain.Document, userID uint64, required domain.Permission) (domain.Permission, error) {
	p, err := r.EffectiveDocument(ctx, doc, userID)
	if err != nil {
		return "", err
	}
	if !p.Allows(required) {
		return p, errors.Forbidden("You don't have permission to access this document", nil)
	}
	return p, nil
}

// EffectiveFolder returns the highest permission userID holds on folder
// through the folder itself or any of its ancestors.
func (r *Resolver) EffectiveFolder(ctx context.Context, folder *domain.Folder, userID uint64) (domain.Permission, error) {
	return r.walk(ctx, folder, userID, nil)
}

// Folder checks access to folder. When documentID is given, collaborators
// restricted to a selection of files only qualify if the document is selected.
func (r *Resolver) Folder(ctx context.Context, folder *domain.Folder, userID uint64, required domain.Permission, documentID *uint64) (domain.Permission, error) {
	p, err := r.walk(ctx, folder, userID, documentID)
	if err != nil {
		return "", err
	}
	if !p.Allows(required) {
		return p, errors.Forbidden("You don't have permission to access this folder", nil)
	}
	return p, nil
}

func (r *Resolver) effectiveFolder(ctx context.Context, folderID, userID uint64, documentID *uint64) (domain.Permission, error) {
	folder, err := r.folders.FindByIDWithCollaborators(ctx, folderID)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", errors.Internal(err)
	}
	return r.walk(ctx, folder, userID, documentID)
}

func (r *Resolver) walk(ctx context.Context, folder *domain.Folder, userID uint64, documentID *uint64) (domain.Permission, error) {
	var best domain.Permission
	visited := make(map[uint64]struct{})

	for folder != nil {
		if _, seen := visited[folder.ID]; seen {
			break
		}
		visited[folder.ID] = struct{}{}

		if OwnsFolder(folder, userID) {
			return domain.PermissionAdmin, nil
		}
		if collab, ok := folder.Collaborator(userID); ok {
			if documentID == nil || collab.CanSee(*documentID) {
				best = higher(best, collab.Permission)
			}
		}
		if best == domain.PermissionAdmin || !folder.HasParent() {
			break
		}

		parent, err := r.folders.FindByIDWithCollaborators(ctx, *folder.ParentFolderID)
		if err != nil {
			if stdErrors.Is(err, gorm.ErrRecordNotFound) {
				break
			}
			return "", errors.Internal(err)
		}
		folder = parent
	}
	return best, nil
}

func higher(a, b domain.Permission) domain.Permission {
	if b.Allows(a) {
		return b
	}
	return a
}
