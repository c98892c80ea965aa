package analytics

import (
	"context"
	"time"

	"devunity/internal/domain"

	"gorm.io/gorm"
)

type Totals struct {
	OwnedDocuments   int64
	OwnedFolders     int64
	VersionsAuthored int64
	MessagesSent     int64
}

type ActionCount struct {
	Action domain.ActivityAction
	Count  int64
}

type DayCount struct {
	Day   time.Time
	Count int64
}

type UsageRepository interface {
	Totals(ctx context.Context, userID uint64, since time.Time) (*Totals, error)
	ActivityByAction(ctx context.Context, userID uint64, since time.Time) ([]ActionCount, error)
	EditsPerDay(ctx context.Context, userID uint64, since time.Time) ([]DayCount, error)
}

type UsageRepositoryImpl struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) UsageRepository {
	return &UsageRepositoryImpl{db: db}
}

// Totals counts owned resources overall and authored rows inside the window
func (r *UsageRepositoryImpl) Totals(ctx context.Context, userID uint64, since time.Time) (*Totals, error) {
	db := r.db.WithContext(ctx)
	var t Totals

	if err := db.Model(&domain.Document{}).Where("owner_id = ?", userID).Count(&t.OwnedDocuments).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&domain.Folder{}).Where("owner_id = ?", userID).Count(&t.OwnedFolders).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&domain.Version{}).
		Where("created_by_id = ? AND created_at >= ?", userID, since).
		Count(&t.VersionsAuthored).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&domain.Message{}).
		Where("sender_id = ? AND created_at >= ?", userID, since).
		Count(&t.MessagesSent).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *UsageRepositoryImpl) ActivityByAction(ctx context.Context, userID uint64, since time.Time) ([]ActionCount, error) {
	var rows []ActionCount
	err := r.db.WithContext(ctx).
		Model(&domain.Activity{}).
		Select("action, COUNT(*) AS count").
		Where("user_id = ? AND created_at >= ?", userID, since).
		Group("action").
		Scan(&rows).Error
	return rows, err
}

func (r *UsageRepositoryImpl) EditsPerDay(ctx context.Context, userID uint64, since time.Time) ([]DayCount, error) {
	var rows []DayCount
	err := r.db.WithContext(ctx).
		Model(&domain.Activity{}).
		Select("DATE(created_at) AS day, COUNT(*) AS count").
		Where("user_id = ? AND action = ? AND created_at >= ?", userID, domain.ActionEdited, since).
		Group("DATE(created_at)").
		Order("day ASC").
		Scan(&rows).Error
	return rows, err
}
