package invitation

import (
	"context"
	"time"

	"devunity/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type InvitationRepository interface {
	Transaction(ctx context.Context, fn func(tx InvitationRepository) error) error

	ListPending(ctx context.Context, email string, now time.Time) ([]domain.Invitation, error)
	FindByID(ctx context.Context, id uint64) (*domain.Invitation, error)
	UpdateStatus(ctx context.Context, id uint64, status domain.InvitationStatus) error

	UpsertDocumentCollaborator(ctx context.Context, collab *domain.DocumentCollaborator) error
	UpsertFolderCollaborator(ctx context.Context, collab *domain.FolderCollaborator) error
}

type InvitationRepositoryImpl struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) InvitationRepository {
	return &InvitationRepositoryImpl{db: db}
}

func (r *InvitationRepositoryImpl) Transaction(ctx context.Context, fn func(tx InvitationRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&InvitationRepositoryImpl{db: tx})
	})
}

// ListPending returns the unexpired pending invitations sent to email, newest first
func (r *InvitationRepositoryImpl) ListPending(ctx context.Context, email string, now time.Time) ([]domain.Invitation, error) {
	var invitations []domain.Invitation
	err := r.db.WithContext(ctx).
		Where("LOWER(recipient_email) = LOWER(?)", email).
		Where("status = ? AND expires_at > ?", domain.InvitationPending, now).
		Order("created_at DESC").
		Find(&invitations).Error
	return invitations, err
}

func (r *InvitationRepositoryImpl) FindByID(ctx context.Context, id uint64) (*domain.Invitation, error) {
	var inv domain.Invitation
	if err := r.db.WithContext(ctx).First(&inv, id).Error; err != nil {
		return nil, err
	}
	return &inv, nil
}

// UpdateStatus only moves pending invitations
func (r *InvitationRepositoryImpl) UpdateStatus(ctx context.Context, id uint64, status domain.InvitationStatus) error {
	res := r.db.WithContext(ctx).
		Model(&domain.Invitation{}).
		Where("id = ? AND status = ?", id, domain.InvitationPending).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *InvitationRepositoryImpl) UpsertDocumentCollaborator(ctx context.Context, collab *domain.DocumentCollaborator) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "document_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"permission"}),
	}).Omit("User").Create(collab).Error
}

func (r *InvitationRepositoryImpl) UpsertFolderCollaborator(ctx context.Context, collab *domain.FolderCollaborator) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "folder_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"permission", "selected_files"}),
	}).Omit("User").Create(collab).Error
}
