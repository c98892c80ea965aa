package db

import (
	"context"
	"errors"
	"fmt"

	"devunity/internal/domain"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Migrate runs database migrations
func Migrate(db *gorm.DB, log *zap.Logger) error {
	err := db.AutoMigrate(
		&domain.User{},
		&domain.Session{},
		&domain.Folder{},
		&domain.FolderCollaborator{},
		&domain.Document{},
		&domain.DocumentCollaborator{},
		&domain.Version{},
		&domain.Activity{},
		&domain.Invitation{},
		&domain.Message{},
	)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	log.Info("Database schema migrated successfully")
	return nil
}

// SeedData creates a test account (for development only)
func SeedData(ctx context.Context, db *gorm.DB, log *zap.Logger) error {
	const email = "test@example.com"

	var existing domain.User
	err := db.WithContext(ctx).Where("email = ?", email).First(&existing).Error
	if err == nil {
		log.Info("Test user already exists", zap.String("email", email))
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	user := &domain.User{Username: "test", Email: email, PasswordHash: string(hash)}
	if err := db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("creating test user: %w", err)
	}
	log.Info("Created test user", zap.String("email", email))
	return nil
}
