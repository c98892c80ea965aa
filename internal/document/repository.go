package document

import (
	"context"

	"devunity/internal/domain"
	"devunity/internal/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DocumentRepository interface {
	// Transaction runs fn against a repository bound to a single database transaction
	Transaction(ctx context.Context, fn func(tx DocumentRepository) error) error

	Create(ctx context.Context, doc *domain.Document) error
	FindByID(ctx context.Context, id uint64) (*domain.Document, error)
	ListAccessible(ctx context.Context, userID uint64, page, pageSize int) ([]domain.Document, utils.PageMeta, error)
	ListByFolder(ctx context.Context, folderID uint64, page, pageSize int) ([]domain.Document, utils.PageMeta, error)
	UpdateFields(ctx context.Context, id uint64, fields map[string]any) error
	Delete(ctx context.Context, id uint64) error

	UpsertCollaborator(ctx context.Context, collab *domain.DocumentCollaborator) error
	RemoveCollaborator(ctx context.Context, docID, userID uint64) (int64, error)
	CreateInvitation(ctx context.Context, inv *domain.Invitation) error

	CreateVersion(ctx context.Context, v *domain.Version) error
	ListVersions(ctx context.Context, docID uint64) ([]domain.Version, error)
	FindVersion(ctx context.Context, docID, versionID uint64) (*domain.Version, error)

	CreateActivity(ctx context.Context, a *domain.Activity) error
	ListActivity(ctx context.Context, docID uint64, limit int) ([]domain.Activity, error)
}

type DocumentRepositoryImpl struct {
	db *gorm.DB
}

// NewRepository creates a new document repository
func NewRepository(db *gorm.DB) DocumentRepository {
	return &DocumentRepositoryImpl{db: db}
}

func (r *DocumentRepositoryImpl) Transaction(ctx context.Context, fn func(tx DocumentRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&DocumentRepositoryImpl{db: tx})
	})
}

func (r *DocumentRepositoryImpl) Create(ctx context.Context, doc *domain.Document) error {
	return r.db.WithContext(ctx).Omit("Collaborators").Create(doc).Error
}

func (r *DocumentRepositoryImpl) FindByID(ctx context.Context, id uint64) (*domain.Document, error) {
	var doc domain.Document
	err := r.db.WithContext(ctx).
		Preload("Owner").
		Preload("Collaborators").
		Preload("Collaborators.User").
		First(&doc, id).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *DocumentRepositoryImpl) accessibleScope(userID uint64) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		shared := r.db.Model(&domain.DocumentCollaborator{}).Select("document_id").Where("user_id = ?", userID)
		return db.Where("owner_id = ? OR id IN (?)", userID, shared)
	}
}

// ListAccessible lists documents the user owns or collaborates on, most recently updated first
func (r *DocumentRepositoryImpl) ListAccessible(ctx context.Context, userID uint64, page, pageSize int) ([]domain.Document, utils.PageMeta, error) {
	return r.paginate(ctx, r.accessibleScope(userID), page, pageSize)
}

func (r *DocumentRepositoryImpl) ListByFolder(ctx context.Context, folderID uint64, page, pageSize int) ([]domain.Document, utils.PageMeta, error) {
	return r.paginate(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where("folder_id = ?", folderID)
	}, page, pageSize)
}

func (r *DocumentRepositoryImpl) paginate(ctx context.Context, scope func(*gorm.DB) *gorm.DB, page, pageSize int) ([]domain.Document, utils.PageMeta, error) {
	var documents []domain.Document
	var totalRecords int64

	// Count total records
	if err := r.db.WithContext(ctx).Model(&domain.Document{}).Scopes(scope).Count(&totalRecords).Error; err != nil {
		return nil, utils.PageMeta{}, err
	}

	err := r.db.WithContext(ctx).
		Scopes(scope).
		Preload("Owner").
		Order("updated_at DESC").
		Offset(utils.Offset(page, pageSize)).
		Limit(pageSize).
		Find(&documents).Error

	return documents, utils.NewPageMeta(totalRecords, page, pageSize), err
}

func (r *DocumentRepositoryImpl) UpdateFields(ctx context.Context, id uint64, fields map[string]any) error {
	return r.db.WithContext(ctx).Model(&domain.Document{}).Where("id = ?", id).Updates(fields).Error
}

// Delete removes the document and everything hanging off it
func (r *DocumentRepositoryImpl) Delete(ctx context.Context, id uint64) error {
	db := r.db.WithContext(ctx)
	steps := []func() error{
		func() error { return db.Where("document_id = ?", id).Delete(&domain.Version{}).Error },
		func() error { return db.Where("document_id = ?", id).Delete(&domain.Activity{}).Error },
		func() error { return db.Where("document_id = ?", id).Delete(&domain.Message{}).Error },
		func() error { return db.Where("document_id = ?", id).Delete(&domain.DocumentCollaborator{}).Error },
		func() error {
			return db.Where("resource_type = ? AND resource_id = ?", domain.ResourceDocument, id).Delete(&domain.Invitation{}).Error
		},
		func() error { return db.Delete(&domain.Document{}, id).Error },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

// UpsertCollaborator inserts the collaborator or updates the permission in place
func (r *DocumentRepositoryImpl) UpsertCollaborator(ctx context.Context, collab *domain.DocumentCollaborator) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "document_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"permission"}),
	}).Omit("User").Create(collab).Error
}

func (r *DocumentRepositoryImpl) RemoveCollaborator(ctx context.Context, docID, userID uint64) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("document_id = ? AND user_id = ?", docID, userID).
		Delete(&domain.DocumentCollaborator{})
	return res.RowsAffected, res.Error
}

func (r *DocumentRepositoryImpl) CreateInvitation(ctx context.Context, inv *domain.Invitation) error {
	return r.db.WithContext(ctx).Create(inv).Error
}

func (r *DocumentRepositoryImpl) CreateVersion(ctx context.Context, v *domain.Version) error {
	return r.db.WithContext(ctx).Omit("CreatedBy").Create(v).Error
}

func (r *DocumentRepositoryImpl) ListVersions(ctx context.Context, docID uint64) ([]domain.Version, error) {
	var versions []domain.Version
	err := r.db.WithContext(ctx).
		Preload("CreatedBy").
		Where("document_id = ?", docID).
		Order("created_at DESC, id DESC").
		Find(&versions).Error
	return versions, err
}

func (r *DocumentRepositoryImpl) FindVersion(ctx context.Context, docID, versionID uint64) (*domain.Version, error) {
	var v domain.Version
	err := r.db.WithContext(ctx).
		Preload("CreatedBy").
		Where("document_id = ? AND id = ?", docID, versionID).
		First(&v).Error
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *DocumentRepositoryImpl) CreateActivity(ctx context.Context, a *domain.Activity) error {
	if err := a.Validate(); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Omit("User").Create(a).Error
}

func (r *DocumentRepositoryImpl) ListActivity(ctx context.Context, docID uint64, limit int) ([]domain.Activity, error) {
	var activities []domain.Activity
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("document_id = ?", docID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&activities).Error
	return activities, err
}
