package chat

import (
	"context"
	"strings"
	"unicode/utf8"

	"devunity/internal/domain"
	"devunity/internal/errors"

	"go.uber.org/zap"
)

const (
	DefaultLimit   = 50
	MaxLimit       = 200
	maxMessageSize = 5000
)

type Service interface {
	ListDocumentMessages(ctx context.Context, docID, userID uint64, limit int) ([]domain.Message, error)
	PostDocumentMessage(ctx context.Context, docID, userID uint64, content string) (*domain.Message, error)
	ListFolderMessages(ctx context.Context, folderID, userID uint64, limit int) ([]domain.Message, error)
	PostFolderMessage(ctx context.Context, folderID, userID uint64, content string) (*domain.Message, error)
}

type DocumentAuthorizer interface {
	Authorize(ctx context.Context, docID, userID uint64, required domain.Permission) (*domain.Document, domain.Permission, error)
}

type FolderAuthorizer interface {
	Authorize(ctx context.Context, folderID, userID uint64, required domain.Permission) (*domain.Folder, domain.Permission, error)
}

// Broadcaster pushes an event to every socket in a room
type Broadcaster interface {
	Broadcast(room, event string, payload any)
}

type DefaultService struct {
	repository  MessageRepository
	documents   DocumentAuthorizer
	folders     FolderAuthorizer
	broadcaster Broadcaster
	log         *zap.Logger
}

func NewService(repository MessageRepository, documents DocumentAuthorizer, folders FolderAuthorizer, broadcaster Broadcaster, log *zap.Logger) Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &DefaultService{
		repository:  repository,
		documents:   documents,
		folders:     folders,
		broadcaster: broadcaster,
		log:         log,
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return min(limit, MaxLimit)
}

func validContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", errors.BadRequest("Message cannot be empty", nil)
	}
	if utf8.RuneCountInString(content) > maxMessageSize {
		return "", errors.BadRequest("Message is too long", nil)
	}
	return content, nil
}

func (s *DefaultService) ListDocumentMessages(ctx context.Context, docID, userID uint64, limit int) ([]domain.Message, error) {
	if _, _, err := s.documents.Authorize(ctx, docID, userID, domain.PermissionRead); err != nil {
		return nil, err
	}
	messages, err := s.repository.ListByDocument(ctx, docID, clampLimit(limit))
	if err != nil {
		return nil, errors.Internal(err)
	}
	return nonNil(messages), nil
}

func (s *DefaultService) PostDocumentMessage(ctx context.Context, docID, userID uint64, content string) (*domain.Message, error) {
	content, err := validContent(content)
	if err != nil {
		return nil, err
	}
	if _, _, err := s.documents.Authorize(ctx, docID, userID, domain.PermissionRead); err != nil {
		return nil, err
	}
	return s.post(ctx, &domain.Message{DocumentID: &docID, SenderID: userID, Content: content}, domain.DocumentRoom(docID))
}

func (s *DefaultService) ListFolderMessages(ctx context.Context, folderID, userID uint64, limit int) ([]domain.Message, error) {
	if _, _, err := s.folders.Authorize(ctx, folderID, userID, domain.PermissionRead); err != nil {
		return nil, err
	}
	messages, err := s.repository.ListByFolder(ctx, folderID, clampLimit(limit))
	if err != nil {
		return nil, errors.Internal(err)
	}
	return nonNil(messages), nil
}

func (s *DefaultService) PostFolderMessage(ctx context.Context, folderID, userID uint64, content string) (*domain.Message, error) {
	content, err := validContent(content)
	if err != nil {
		return nil, err
	}
	if _, _, err := s.folders.Authorize(ctx, folderID, userID, domain.PermissionRead); err != nil {
		return nil, err
	}
	return s.post(ctx, &domain.Message{FolderID: &folderID, SenderID: userID, Content: content}, domain.FolderRoom(folderID))
}

// post persists the message and fans it out to the room
func (s *DefaultService) post(ctx context.Context, msg *domain.Message, room string) (*domain.Message, error) {
	if err := s.repository.Create(ctx, msg); err != nil {
		return nil, errors.Internal(err)
	}

	saved, err := s.repository.FindByID(ctx, msg.ID)
	if err != nil {
		s.log.Warn("failed to reload message", zap.Uint64("message_id", msg.ID), zap.Error(err))
		saved = msg
	}

	if s.broadcaster != nil {
		s.broadcaster.Broadcast(room, domain.EventNewMessage, saved)
	}
	return saved, nil
}

func nonNil(messages []domain.Message) []domain.Message {
	if messages == nil {
		return []domain.Message{}
	}
	return messages
}
