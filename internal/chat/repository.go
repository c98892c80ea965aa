package chat

import (
	"context"
	"slices"

	"devunity/internal/domain"

	"gorm.io/gorm"
)

type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	FindByID(ctx context.Context, id uint64) (*domain.Message, error)
	ListByDocument(ctx context.Context, docID uint64, limit int) ([]domain.Message, error)
	ListByFolder(ctx context.Context, folderID uint64, limit int) ([]domain.Message, error)
}

type MessageRepositoryImpl struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) MessageRepository {
	return &MessageRepositoryImpl{db: db}
}

func (r *MessageRepositoryImpl) Create(ctx context.Context, msg *domain.Message) error {
	return r.db.WithContext(ctx).Omit("Sender").Create(msg).Error
}

func (r *MessageRepositoryImpl) FindByID(ctx context.Context, id uint64) (*domain.Message, error) {
	var msg domain.Message
	if err := r.db.WithContext(ctx).Preload("Sender").First(&msg, id).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *MessageRepositoryImpl) ListByDocument(ctx context.Context, docID uint64, limit int) ([]domain.Message, error) {
	return r.latest(ctx, "document_id = ?", docID, limit)
}

func (r *MessageRepositoryImpl) ListByFolder(ctx context.Context, folderID uint64, limit int) ([]domain.Message, error) {
	return r.latest(ctx, "folder_id = ?", folderID, limit)
}

// latest fetches the newest limit messages and returns them oldest first
func (r *MessageRepositoryImpl) latest(ctx context.Context, where string, id uint64, limit int) ([]domain.Message, error) {
	var messages []domain.Message
	err := r.db.WithContext(ctx).
		Preload("Sender").
		Where(where, id).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	slices.Reverse(messages)
	return messages, nil
}
