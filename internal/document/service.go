package document

import (
	"context"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	"devunity/internal/domain"
	"devunity/internal/errors"
	"devunity/internal/utils"
	"devunity/redis"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service interface {
	ListDocuments(ctx context.Context, userID uint64, folderID *uint64, page, pageSize int) (*PaginatedDocuments, error)
	CreateDocument(ctx context.Context, userID uint64, input CreateInput) (*domain.Document, error)
	GetDocument(ctx context.Context, docID, userID uint64) (*DocumentResponse, error)
	UpdateDocument(ctx context.Context, docID, userID uint64, input UpdateInput) (*domain.Document, error)
	ReplaceContent(ctx context.Context, docID, userID uint64, content, message string) (*domain.Version, error)
	DeleteDocument(ctx context.Context, docID, userID uint64) error
	Authorize(ctx context.Context, docID, userID uint64, required domain.Permission) (*domain.Document, domain.Permission, error)

	ListCollaborators(ctx context.Context, docID, userID uint64) ([]domain.DocumentCollaborator, error)
	AddCollaborator(ctx context.Context, docID, userID uint64, email string, p domain.Permission) (*ShareResult, error)
	RemoveCollaborator(ctx context.Context, docID, userID, targetUserID uint64) error

	ListVersions(ctx context.Context, docID, userID uint64) ([]domain.Version, error)
	GetVersion(ctx context.Context, docID, versionID, userID uint64) (*domain.Version, error)
	SaveVersion(ctx context.Context, docID, userID uint64, message string, content *string) (*domain.Version, error)
	RestoreVersion(ctx context.Context, docID, versionID, userID uint64) (*RestoreResult, error)

	ListActivity(ctx context.Context, docID, userID uint64) ([]domain.Activity, error)
	Export(ctx context.Context, docID, userID uint64, format string) (*Export, error)
}

// Access resolves effective permissions
type Access interface {
	Document(ctx context.Context, doc *domain.Document, userID uint64, required domain.Permission) (domain.Permission, error)
	Folder(ctx context.Context, folder *domain.Folder, userID uint64, required domain.Permission, documentID *uint64) (domain.Permission, error)
}

type FolderFinder interface {
	FindByIDWithCollaborators(ctx context.Context, id uint64) (*domain.Folder, error)
}

// UserFinder looks users up by email; a missing user is gorm.ErrRecordNotFound
type UserFinder interface {
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
}

type CreateInput struct {
	Title    string
	Content  string
	Language string
	FolderID *uint64
}

// UpdateInput is a partial update; nil fields are left untouched.
// FolderID 0 moves the document out of its folder.
type UpdateInput struct {
	Title    *string
	Content  *string
	Language *string
	IsPublic *bool
	FolderID *uint64
	Autosave bool
	Message  string
}

type PaginatedDocuments struct {
	Data []domain.Document `json:"data"`
	Meta utils.PageMeta    `json:"meta"`
}

type DocumentResponse struct {
	*domain.Document
	Permission domain.Permission `json:"permission"`
}

// ShareResult holds either the collaborator or, for unknown emails, the invitation
type ShareResult struct {
	Collaborator *domain.DocumentCollaborator `json:"collaborator,omitempty"`
	Invitation   *domain.Invitation           `json:"invitation,omitempty"`
}

type RestoreResult struct {
	Document *domain.Document `json:"document"`
	Version  *domain.Version  `json:"version"`
}

const (
	defaultLanguage       = "plaintext"
	initialVersionMessage = "Initial version"
	updateVersionMessage  = "Updated content"
	manualVersionMessage  = "Manual save"
	activityLimit         = 50
	listCacheTTL          = 24 * time.Hour
)

type DefaultService struct {
	repository DocumentRepository
	access     Access
	folders    FolderFinder
	users      UserFinder
	cache      *redis.Cache
	log        *zap.Logger
	now        func() time.Time
}

func NewService(
	repository DocumentRepository,
	access Access,
	folders FolderFinder,
	users UserFinder,
	cache *redis.Cache,
	log *zap.Logger,
) Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &DefaultService{
		repository: repository,
		access:     access,
		folders:    folders,
		users:      users,
		cache:      cache,
		log:        log,
		now:        time.Now,
	}
}

func ListVersionKey(userID uint64) string {
	return fmt.Sprintf("user:%d:docs:version", userID)
}

// increase cache key, so any new fetch will get new version
func (s *DefaultService) invalidate(ctx context.Context, doc *domain.Document, extra ...uint64) {
	s.cache.IncrementVersion(ctx, ListVersionKey(doc.OwnerID))
	for _, c := range doc.Collaborators {
		s.cache.IncrementVersion(ctx, ListVersionKey(c.UserID))
	}
	for _, id := range extra {
		s.cache.IncrementVersion(ctx, ListVersionKey(id))
	}
}

func (s *DefaultService) load(ctx context.Context, docID uint64) (*domain.Document, error) {
	doc, err := s.repository.FindByID(ctx, docID)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("Document not found", err)
		}
		return nil, errors.Internal(err)
	}
	return doc, nil
}

// Authorize loads the document and checks the user holds at least required on it
func (s *DefaultService) Authorize(ctx context.Context, docID, userID uint64, required domain.Permission) (*domain.Document, domain.Permission, error) {
	doc, err := s.load(ctx, docID)
	if err != nil {
		return nil, "", err
	}
	p, err := s.access.Document(ctx, doc, userID, required)
	if err != nil {
		return nil, p, err
	}
	return doc, p, nil
}

func (s *DefaultService) requireFolderWrite(ctx context.Context, folderID, userID uint64) error {
	folder, err := s.folders.FindByIDWithCollaborators(ctx, folderID)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return errors.NotFound("Folder not found", err)
		}
		return errors.Internal(err)
	}
	_, err = s.access.Folder(ctx, folder, userID, domain.PermissionWrite, nil)
	return err
}

func (s *DefaultService) ListDocuments(ctx context.Context, userID uint64, folderID *uint64, page, pageSize int) (*PaginatedDocuments, error) {
	if folderID != nil {
		return s.listFolderDocuments(ctx, userID, *folderID, page, pageSize)
	}

	// Get the current data version for this user's documents
	v := s.cache.GetVersion(ctx, ListVersionKey(userID))
	cacheKey := fmt.Sprintf("docs:u:%d:v:%d:p:%d:ps:%d", userID, v, page, pageSize)

	var result PaginatedDocuments
	if found, _ := s.cache.Get(ctx, cacheKey, &result); found {
		return &result, nil
	}

	documents, meta, err := s.repository.ListAccessible(ctx, userID, page, pageSize)
	if err != nil {
		return nil, errors.Internal(err)
	}
	if documents == nil {
		documents = []domain.Document{}
	}
	result = PaginatedDocuments{Data: documents, Meta: meta}

	if err := s.cache.Set(ctx, cacheKey, result, listCacheTTL); err != nil {
		s.log.Debug("failed to cache document list", zap.Uint64("user_id", userID), zap.Error(err))
	}
	return &result, nil
}

func (s *DefaultService) listFolderDocuments(ctx context.Context, userID, folderID uint64, page, pageSize int) (*PaginatedDocuments, error) {
	folder, err := s.folders.FindByIDWithCollaborators(ctx, folderID)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("Folder not found", err)
		}
		return nil, errors.Internal(err)
	}
	if _, err := s.access.Folder(ctx, folder, userID, domain.PermissionRead, nil); err != nil {
		return nil, err
	}

	documents, meta, err := s.repository.ListByFolder(ctx, folderID, page, pageSize)
	if err != nil {
		return nil, errors.Internal(err)
	}

	// drop what a restricted collaborator may not see
	visible := make([]domain.Document, 0, len(documents))
	for i := range documents {
		if _, err := s.access.Document(ctx, &documents[i], userID, domain.PermissionRead); err == nil {
			visible = append(visible, documents[i])
		}
	}
	return &PaginatedDocuments{Data: visible, Meta: meta}, nil
}

func (s *DefaultService) CreateDocument(ctx context.Context, userID uint64, input CreateInput) (*domain.Document, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, errors.BadRequest("Title cannot be empty", nil)
	}

	doc := &domain.Document{
		Title:    title,
		Content:  input.Content,
		Language: input.Language,
		OwnerID:  userID,
	}
	if doc.Language == "" {
		doc.Language = defaultLanguage
	}
	if input.FolderID != nil && *input.FolderID != 0 {
		if err := s.requireFolderWrite(ctx, *input.FolderID, userID); err != nil {
			return nil, err
		}
		doc.FolderID = input.FolderID
	}

	err := s.repository.Transaction(ctx, func(tx DocumentRepository) error {
		if err := tx.Create(ctx, doc); err != nil {
			return err
		}
		if err := tx.CreateVersion(ctx, &domain.Version{
			DocumentID:  doc.ID,
			Content:     doc.Content,
			CreatedByID: userID,
			Message:     initialVersionMessage,
		}); err != nil {
			return err
		}
		return tx.CreateActivity(ctx, domain.NewCreatedActivity(userID, doc))
	})
	if err != nil {
		return nil, errors.Internal(err)
	}

	s.invalidate(ctx, doc)
	return doc, nil
}

func (s *DefaultService) GetDocument(ctx context.Context, docID, userID uint64) (*DocumentResponse, error) {
	doc, p, err := s.Authorize(ctx, docID, userID, domain.PermissionRead)
	if err != nil {
		return nil, err
	}
	return &DocumentResponse{Document: doc, Permission: p}, nil
}

func (s *DefaultService) UpdateDocument(ctx context.Context, docID, userID uint64, input UpdateInput) (*domain.Document, error) {
	doc, _, err := s.Authorize(ctx, docID, userID, domain.PermissionWrite)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{"last_edited_by_id": userID}
	var activities []*domain.Activity

	if input.IsPublic != nil && *input.IsPublic != doc.IsPublic {
		if doc.OwnerID != userID {
			return nil, errors.Forbidden("Only the owner can change document visibility", nil)
		}
		fields["is_public"] = *input.IsPublic
	}

	if input.FolderID != nil && !sameFolder(doc.FolderID, *input.FolderID) {
		if *input.FolderID == 0 {
			fields["folder_id"] = nil
		} else {
			if err := s.requireFolderWrite(ctx, *input.FolderID, userID); err != nil {
				return nil, err
			}
			fields["folder_id"] = *input.FolderID
		}
	}

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, errors.BadRequest("Title cannot be empty", nil)
		}
		if title != doc.Title {
			fields["title"] = title
			activities = append(activities, domain.NewRenamedActivity(userID, doc.ID, doc.Title, title))
		}
	}

	if input.Language != nil && *input.Language != doc.Language {
		fields["language"] = *input.Language
	}

	contentChanged := input.Content != nil && *input.Content != doc.Content
	if contentChanged {
		fields["content"] = *input.Content
	}

	err = s.repository.Transaction(ctx, func(tx DocumentRepository) error {
		if err := tx.UpdateFields(ctx, doc.ID, fields); err != nil {
			return err
		}
		// auto-save keeps the live copy only; versions are for explicit edits
		if contentChanged && !input.Autosave {
			message := input.Message
			if message == "" {
				message = updateVersionMessage
			}
			if _, err := recordVersion(ctx, tx, doc.ID, userID, *input.Content, message); err != nil {
				return err
			}
		}
		for _, a := range activities {
			if err := tx.CreateActivity(ctx, a); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Internal(err)
	}

	s.invalidate(ctx, doc)
	return s.load(ctx, doc.ID)
}

// ReplaceContent overwrites the content on behalf of userID and records a
// Version when it changed. It returns nil when the content was identical.
func (s *DefaultService) ReplaceContent(ctx context.Context, docID, userID uint64, content, message string) (*domain.Version, error) {
	doc, _, err := s.Authorize(ctx, docID, userID, domain.PermissionWrite)
	if err != nil {
		return nil, err
	}
	if doc.Content == content {
		return nil, nil
	}

	var version *domain.Version
	err = s.repository.Transaction(ctx, func(tx DocumentRepository) error {
		if err := tx.UpdateFields(ctx, doc.ID, map[string]any{"content": content, "last_edited_by_id": userID}); err != nil {
			return err
		}
		version, err = recordVersion(ctx, tx, doc.ID, userID, content, message)
		return err
	})
	if err != nil {
		return nil, errors.Internal(err)
	}

	s.invalidate(ctx, doc)
	return version, nil
}

func recordVersion(ctx context.Context, tx DocumentRepository, docID, userID uint64, content, message string) (*domain.Version, error) {
	v := &domain.Version{
		DocumentID:  docID,
		Content:     content,
		CreatedByID: userID,
		Message:     message,
	}
	if err := tx.CreateVersion(ctx, v); err != nil {
		return nil, err
	}
	if err := tx.CreateActivity(ctx, domain.NewEditedActivity(userID, docID, v.ID)); err != nil {
		return nil, err
	}
	return v, nil
}

func sameFolder(current *uint64, target uint64) bool {
	if current == nil || *current == 0 {
		return target == 0
	}
	return *current == target
}

func (s *DefaultService) DeleteDocument(ctx context.Context, docID, userID uint64) error {
	doc, err := s.load(ctx, docID)
	if err != nil {
		return err
	}
	if doc.OwnerID != userID {
		return errors.Forbidden("Only owner can delete document", nil)
	}

	err = s.repository.Transaction(ctx, func(tx DocumentRepository) error {
		if err := tx.Delete(ctx, doc.ID); err != nil {
			return err
		}
		return tx.CreateActivity(ctx, domain.NewDeletedActivity(userID, doc.Title))
	})
	if err != nil {
		return errors.Internal(err)
	}

	s.invalidate(ctx, doc)
	return nil
}

func (s *DefaultService) ListCollaborators(ctx context.Context, docID, userID uint64) ([]domain.DocumentCollaborator, error) {
	doc, _, err := s.Authorize(ctx, docID, userID, domain.PermissionRead)
	if err != nil {
		return nil, err
	}
	if doc.Collaborators == nil {
		return []domain.DocumentCollaborator{}, nil
	}
	return doc.Collaborators, nil
}

func (s *DefaultService) AddCollaborator(ctx context.Context, docID, userID uint64, email string, p domain.Permission) (*ShareResult, error) {
	if !p.Valid() {
		return nil, errors.BadRequest("Invalid permission", nil)
	}
	email = strings.ToLower(strings.TrimSpace(email))

	doc, err := s.load(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc.OwnerID != userID {
		return nil, errors.Forbidden("Only owner can add collaborators", nil)
	}

	target, err := s.users.GetUserByEmail(ctx, email)
	if err != nil && !stdErrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Internal(err)
	}

	// nobody registered with that email yet: invite them
	if target == nil {
		inv := domain.NewInvitation(domain.ResourceDocument, doc.ID, userID, email, p, s.now().UTC())
		err := s.repository.Transaction(ctx, func(tx DocumentRepository) error {
			if err := tx.CreateInvitation(ctx, inv); err != nil {
				return err
			}
			return tx.CreateActivity(ctx, domain.NewSharedActivity(userID, doc.ID, email, p, true))
		})
		if err != nil {
			return nil, errors.Internal(err)
		}
		return &ShareResult{Invitation: inv}, nil
	}

	if target.ID == doc.OwnerID {
		return nil, errors.BadRequest("Owner cannot be added as a collaborator", nil)
	}

	collab := &domain.DocumentCollaborator{DocumentID: doc.ID, UserID: target.ID, Permission: p}
	err = s.repository.Transaction(ctx, func(tx DocumentRepository) error {
		if err := tx.UpsertCollaborator(ctx, collab); err != nil {
			return err
		}
		return tx.CreateActivity(ctx, domain.NewSharedActivity(userID, doc.ID, email, p, false))
	})
	if err != nil {
		return nil, errors.Internal(err)
	}

	s.invalidate(ctx, doc, target.ID)
	collab.User = target
	return &ShareResult{Collaborator: collab}, nil
}

func (s *DefaultService) RemoveCollaborator(ctx context.Context, docID, userID, targetUserID uint64) error {
	doc, err := s.load(ctx, docID)
	if err != nil {
		return err
	}
	if doc.OwnerID != userID {
		return errors.Forbidden("Only owner can remove collaborators", nil)
	}

	n, err := s.repository.RemoveCollaborator(ctx, doc.ID, targetUserID)
	if err != nil {
		return errors.Internal(err)
	}
	if n == 0 {
		return errors.NotFound("Collaborator not found", nil)
	}

	s.invalidate(ctx, doc)
	return nil
}

func (s *DefaultService) ListVersions(ctx context.Context, docID, userID uint64) ([]domain.Version, error) {
	if _, _, err := s.Authorize(ctx, docID, userID, domain.PermissionRead); err != nil {
		return nil, err
	}
	versions, err := s.repository.ListVersions(ctx, docID)
	if err != nil {
		return nil, errors.Internal(err)
	}
	if versions == nil {
		versions = []domain.Version{}
	}
	return versions, nil
}

func (s *DefaultService) GetVersion(ctx context.Context, docID, versionID, userID uint64) (*domain.Version, error) {
	if _, _, err := s.Authorize(ctx, docID, userID, domain.PermissionRead); err != nil {
		return nil, err
	}
	v, err := s.repository.FindVersion(ctx, docID, versionID)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("Version not found", err)
		}
		return nil, errors.Internal(err)
	}
	return v, nil
}

// SaveVersion is the explicit save: it always records a Version, persisting
// content first when given.
func (s *DefaultService) SaveVersion(ctx context.Context, docID, userID uint64, message string, content *string) (*domain.Version, error) {
	doc, _, err := s.Authorize(ctx, docID, userID, domain.PermissionWrite)
	if err != nil {
		return nil, err
	}
	if message == "" {
		message = manualVersionMessage
	}

	snapshot := doc.Content
	if content != nil {
		snapshot = *content
	}

	var version *domain.Version
	err = s.repository.Transaction(ctx, func(tx DocumentRepository) error {
		if content != nil && *content != doc.Content {
			if err := tx.UpdateFields(ctx, doc.ID, map[string]any{"content": *content, "last_edited_by_id": userID}); err != nil {
				return err
			}
		}
		version, err = recordVersion(ctx, tx, doc.ID, userID, snapshot, message)
		return err
	})
	if err != nil {
		return nil, errors.Internal(err)
	}

	s.invalidate(ctx, doc)
	return version, nil
}

// RestoreVersion copies an older version back into the document as a new
// Version. History is never rewritten.
func (s *DefaultService) RestoreVersion(ctx context.Context, docID, versionID, userID uint64) (*RestoreResult, error) {
	doc, _, err := s.Authorize(ctx, docID, userID, domain.PermissionWrite)
	if err != nil {
		return nil, err
	}

	versions, err := s.repository.ListVersions(ctx, doc.ID)
	if err != nil {
		return nil, errors.Internal(err)
	}
	// versions are newest first; number them oldest first starting at 1
	var target *domain.Version
	number := 0
	for i := range versions {
		if versions[i].ID == versionID {
			target = &versions[i]
			number = len(versions) - i
			break
		}
	}
	if target == nil {
		return nil, errors.NotFound("Version not found", nil)
	}

	var restored *domain.Version
	err = s.repository.Transaction(ctx, func(tx DocumentRepository) error {
		if err := tx.UpdateFields(ctx, doc.ID, map[string]any{"content": target.Content, "last_edited_by_id": userID}); err != nil {
			return err
		}
		restored, err = recordVersion(ctx, tx, doc.ID, userID, target.Content, fmt.Sprintf("Restored to version %d", number))
		return err
	})
	if err != nil {
		return nil, errors.Internal(err)
	}

	s.invalidate(ctx, doc)
	updated, err := s.load(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	return &RestoreResult{Document: updated, Version: restored}, nil
}

func (s *DefaultService) ListActivity(ctx context.Context, docID, userID uint64) ([]domain.Activity, error) {
	if _, _, err := s.Authorize(ctx, docID, userID, domain.PermissionRead); err != nil {
		return nil, err
	}
	activities, err := s.repository.ListActivity(ctx, docID, activityLimit)
	if err != nil {
		return nil, errors.Internal(err)
	}
	if activities == nil {
		activities = []domain.Activity{}
	}
	return activities, nil
}

func (s *DefaultService) Export(ctx context.Context, docID, userID uint64, format string) (*Export, error) {
	doc, _, err := s.Authorize(ctx, docID, userID, domain.PermissionRead)
	if err != nil {
		return nil, err
	}
	return Render(doc, format)
}
