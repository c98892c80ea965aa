package folder

import (
	"context"

	"devunity/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type FolderRepository interface {
	Transaction(ctx context.Context, fn func(tx FolderRepository) error) error

	Create(ctx context.Context, folder *domain.Folder) error
	FindByID(ctx context.Context, id uint64) (*domain.Folder, error)
	FindByIDWithCollaborators(ctx context.Context, id uint64) (*domain.Folder, error)
	ListAccessible(ctx context.Context, userID uint64) ([]domain.Folder, error)
	UpdateFields(ctx context.Context, id uint64, fields map[string]any) error
	Delete(ctx context.Context, id uint64) error
	SetGithubRepo(ctx context.Context, id uint64, repo *domain.GithubRepo) error

	CountDocuments(ctx context.Context, folderID uint64) (int64, error)
	CountSubfolders(ctx context.Context, folderID uint64) (int64, error)
	ListChildren(ctx context.Context, parentIDs []uint64) ([]domain.Folder, error)
	ListDocuments(ctx context.Context, folderIDs []uint64) ([]domain.Document, error)

	UpsertCollaborator(ctx context.Context, collab *domain.FolderCollaborator) error
	RemoveCollaborator(ctx context.Context, folderID, userID uint64) (int64, error)
	CreateInvitation(ctx context.Context, inv *domain.Invitation) error
}

type FolderRepositoryImpl struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) FolderRepository {
	return &FolderRepositoryImpl{db: db}
}

func (r *FolderRepositoryImpl) Transaction(ctx context.Context, fn func(tx FolderRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&FolderRepositoryImpl{db: tx})
	})
}

func (r *FolderRepositoryImpl) Create(ctx context.Context, folder *domain.Folder) error {
	return r.db.WithContext(ctx).Omit("Collaborators").Create(folder).Error
}

func (r *FolderRepositoryImpl) FindByID(ctx context.Context, id uint64) (*domain.Folder, error) {
	var folder domain.Folder
	err := r.db.WithContext(ctx).
		Preload("Collaborators").
		Preload("Collaborators.User").
		First(&folder, id).Error
	if err != nil {
		return nil, err
	}
	return &folder, nil
}

// FindByIDWithCollaborators is the lighter lookup used by permission checks
func (r *FolderRepositoryImpl) FindByIDWithCollaborators(ctx context.Context, id uint64) (*domain.Folder, error) {
	var folder domain.Folder
	if err := r.db.WithContext(ctx).Preload("Collaborators").First(&folder, id).Error; err != nil {
		return nil, err
	}
	return &folder, nil
}

func (r *FolderRepositoryImpl) ListAccessible(ctx context.Context, userID uint64) ([]domain.Folder, error) {
	var folders []domain.Folder
	shared := r.db.Model(&domain.FolderCollaborator{}).Select("folder_id").Where("user_id = ?", userID)
	err := r.db.WithContext(ctx).
		Preload("Collaborators").
		Where("owner_id = ? OR id IN (?)", userID, shared).
		Order("updated_at DESC").
		Find(&folders).Error
	return folders, err
}

func (r *FolderRepositoryImpl) UpdateFields(ctx context.Context, id uint64, fields map[string]any) error {
	return r.db.WithContext(ctx).Model(&domain.Folder{}).Where("id = ?", id).Updates(fields).Error
}

// SetGithubRepo goes through the struct so the json serializer applies
func (r *FolderRepositoryImpl) SetGithubRepo(ctx context.Context, id uint64, repo *domain.GithubRepo) error {
	return r.db.WithContext(ctx).
		Model(&domain.Folder{ID: id}).
		Select("GithubRepo").
		Updates(&domain.Folder{GithubRepo: repo}).Error
}

// Delete removes an empty folder with its collaborators, invitations and chat
func (r *FolderRepositoryImpl) Delete(ctx context.Context, id uint64) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("folder_id = ?", id).Delete(&domain.FolderCollaborator{}).Error; err != nil {
		return err
	}
	if err := db.Where("resource_type = ? AND resource_id = ?", domain.ResourceFolder, id).Delete(&domain.Invitation{}).Error; err != nil {
		return err
	}
	if err := db.Where("folder_id = ?", id).Delete(&domain.Message{}).Error; err != nil {
		return err
	}
	return db.Delete(&domain.Folder{}, id).Error
}

func (r *FolderRepositoryImpl) CountDocuments(ctx context.Context, folderID uint64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.Document{}).Where("folder_id = ?", folderID).Count(&n).Error
	return n, err
}

func (r *FolderRepositoryImpl) CountSubfolders(ctx context.Context, folderID uint64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.Folder{}).Where("parent_folder_id = ?", folderID).Count(&n).Error
	return n, err
}

func (r *FolderRepositoryImpl) ListChildren(ctx context.Context, parentIDs []uint64) ([]domain.Folder, error) {
	var folders []domain.Folder
	if len(parentIDs) == 0 {
		return folders, nil
	}
	err := r.db.WithContext(ctx).
		Where("parent_folder_id IN ?", parentIDs).
		Order("name ASC").
		Find(&folders).Error
	return folders, err
}

func (r *FolderRepositoryImpl) ListDocuments(ctx context.Context, folderIDs []uint64) ([]domain.Document, error) {
	var documents []domain.Document
	if len(folderIDs) == 0 {
		return documents, nil
	}
	err := r.db.WithContext(ctx).
		Preload("Collaborators").
		Where("folder_id IN ?", folderIDs).
		Order("title ASC").
		Find(&documents).Error
	return documents, err
}

func (r *FolderRepositoryImpl) UpsertCollaborator(ctx context.Context, collab *domain.FolderCollaborator) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "folder_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"permission", "selected_files"}),
	}).Omit("User").Create(collab).Error
}

func (r *FolderRepositoryImpl) RemoveCollaborator(ctx context.Context, folderID, userID uint64) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("folder_id = ? AND user_id = ?", folderID, userID).
		Delete(&domain.FolderCollaborator{})
	return res.RowsAffected, res.Error
}

func (r *FolderRepositoryImpl) CreateInvitation(ctx context.Context, inv *domain.Invitation) error {
	return r.db.WithContext(ctx).Create(inv).Error
}
