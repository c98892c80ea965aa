package folder

import (
	"context"
	stdErrors "errors"
	"strings"
	"time"

	"devunity/internal/domain"
	"devunity/internal/errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service interface {
	ListFolders(ctx context.Context, userID uint64) ([]domain.Folder, error)
	CreateFolder(ctx context.Context, userID uint64, input CreateInput) (*domain.Folder, error)
	GetFolder(ctx context.Context, folderID, userID uint64) (*FolderResponse, error)
	UpdateFolder(ctx context.Context, folderID, userID uint64, input UpdateInput) (*domain.Folder, error)
	DeleteFolder(ctx context.Context, folderID, userID uint64) error
	Authorize(ctx context.Context, folderID, userID uint64, required domain.Permission) (*domain.Folder, domain.Permission, error)

	Tree(ctx context.Context, folderID, userID uint64) (*TreeResponse, error)
	Contents(ctx context.Context, folderID uint64) (*Contents, error)
	SetGithubRepo(ctx context.Context, folderID uint64, repo *domain.GithubRepo) error

	ListCollaborators(ctx context.Context, folderID, userID uint64) ([]domain.FolderCollaborator, error)
	AddCollaborator(ctx context.Context, folderID, userID uint64, input ShareInput) (*ShareResult, error)
	RemoveCollaborator(ctx context.Context, folderID, userID, targetUserID uint64) error
}

// Access resolves effective permissions
type Access interface {
	Folder(ctx context.Context, folder *domain.Folder, userID uint64, required domain.Permission, documentID *uint64) (domain.Permission, error)
	Document(ctx context.Context, doc *domain.Document, userID uint64, required domain.Permission) (domain.Permission, error)
}

// UserFinder looks users up by email; a missing user is gorm.ErrRecordNotFound
type UserFinder interface {
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
}

type CreateInput struct {
	Name           string
	ParentFolderID *uint64
}

// UpdateInput is a partial update. ParentFolderID 0 moves the folder to the root.
type UpdateInput struct {
	Name           *string
	ParentFolderID *uint64
}

type ShareInput struct {
	Email         string
	Permission    domain.Permission
	SelectedFiles []uint64
}

type FolderResponse struct {
	*domain.Folder
	Permission domain.Permission `json:"permission"`
}

type ShareResult struct {
	Collaborator *domain.FolderCollaborator `json:"collaborator,omitempty"`
	Invitation   *domain.Invitation         `json:"invitation,omitempty"`
}

// Contents is every folder and document below a folder, the folder itself excluded
type Contents struct {
	Folders   []domain.Folder
	Documents []domain.Document
}

type TreeResponse struct {
	Folder    *domain.Folder    `json:"folder"`
	Folders   []domain.Folder   `json:"folders"`
	Documents []domain.Document `json:"documents"`
}

type DefaultService struct {
	repository FolderRepository
	access     Access
	users      UserFinder
	log        *zap.Logger
	now        func() time.Time
}

func NewService(repository FolderRepository, access Access, users UserFinder, log *zap.Logger) Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &DefaultService{
		repository: repository,
		access:     access,
		users:      users,
		log:        log,
		now:        time.Now,
	}
}

func (s *DefaultService) load(ctx context.Context, folderID uint64) (*domain.Folder, error) {
	folder, err := s.repository.FindByID(ctx, folderID)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("Folder not found", err)
		}
		return nil, errors.Internal(err)
	}
	return folder, nil
}

func (s *DefaultService) Authorize(ctx context.Context, folderID, userID uint64, required domain.Permission) (*domain.Folder, domain.Permission, error) {
	folder, err := s.load(ctx, folderID)
	if err != nil {
		return nil, "", err
	}
	p, err := s.access.Folder(ctx, folder, userID, required, nil)
	if err != nil {
		return nil, p, err
	}
	return folder, p, nil
}

func (s *DefaultService) ListFolders(ctx context.Context, userID uint64) ([]domain.Folder, error) {
	folders, err := s.repository.ListAccessible(ctx, userID)
	if err != nil {
		return nil, errors.Internal(err)
	}
	if folders == nil {
		folders = []domain.Folder{}
	}
	return folders, nil
}

func (s *DefaultService) CreateFolder(ctx context.Context, userID uint64, input CreateInput) (*domain.Folder, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, errors.BadRequest("Folder name cannot be empty", nil)
	}

	folder := &domain.Folder{Name: name, OwnerID: userID}
	if input.ParentFolderID != nil && *input.ParentFolderID != 0 {
		if _, _, err := s.Authorize(ctx, *input.ParentFolderID, userID, domain.PermissionWrite); err != nil {
			return nil, err
		}
		folder.ParentFolderID = input.ParentFolderID
	}

	if err := s.repository.Create(ctx, folder); err != nil {
		return nil, errors.Internal(err)
	}
	folder.Collaborators = []domain.FolderCollaborator{}
	return folder, nil
}

func (s *DefaultService) GetFolder(ctx context.Context, folderID, userID uint64) (*FolderResponse, error) {
	folder, p, err := s.Authorize(ctx, folderID, userID, domain.PermissionRead)
	if err != nil {
		return nil, err
	}
	return &FolderResponse{Folder: folder, Permission: p}, nil
}

func (s *DefaultService) UpdateFolder(ctx context.Context, folderID, userID uint64, input UpdateInput) (*domain.Folder, error) {
	folder, _, err := s.Authorize(ctx, folderID, userID, domain.PermissionAdmin)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, errors.BadRequest("Folder name cannot be empty", nil)
		}
		if name != folder.Name {
			fields["name"] = name
		}
	}

	if input.ParentFolderID != nil && !sameParent(folder.ParentFolderID, *input.ParentFolderID) {
		if folder.OwnerID != userID {
			return nil, errors.Forbidden("Only the owner can move a folder", nil)
		}
		target := *input.ParentFolderID
		if target == 0 {
			fields["parent_folder_id"] = nil
		} else {
			if _, _, err := s.Authorize(ctx, target, userID, domain.PermissionWrite); err != nil {
				return nil, err
			}
			if err := s.checkCycle(ctx, folder.ID, target); err != nil {
				return nil, err
			}
			fields["parent_folder_id"] = target
		}
	}

	if len(fields) > 0 {
		if err := s.repository.UpdateFields(ctx, folder.ID, fields); err != nil {
			return nil, errors.Internal(err)
		}
	}
	return s.load(ctx, folder.ID)
}

// checkCycle rejects a move of folderID under target when folderID is target
// itself or one of its ancestors.
func (s *DefaultService) checkCycle(ctx context.Context, folderID, target uint64) error {
	visited := map[uint64]bool{}
	current := target
	for current != 0 && !visited[current] {
		if current == folderID {
			return errors.BadRequest("A folder cannot be moved inside itself", nil)
		}
		visited[current] = true

		f, err := s.repository.FindByIDWithCollaborators(ctx, current)
		if err != nil {
			if stdErrors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return errors.Internal(err)
		}
		if !f.HasParent() {
			return nil
		}
		current = *f.ParentFolderID
	}
	return nil
}

func sameParent(current *uint64, target uint64) bool {
	if current == nil || *current == 0 {
		return target == 0
	}
	return *current == target
}

func (s *DefaultService) DeleteFolder(ctx context.Context, folderID, userID uint64) error {
	folder, err := s.load(ctx, folderID)
	if err != nil {
		return err
	}
	if folder.OwnerID != userID {
		return errors.Forbidden("Only owner can delete folder", nil)
	}

	docs, err := s.repository.CountDocuments(ctx, folder.ID)
	if err != nil {
		return errors.Internal(err)
	}
	subfolders, err := s.repository.CountSubfolders(ctx, folder.ID)
	if err != nil {
		return errors.Internal(err)
	}
	if docs > 0 || subfolders > 0 {
		return errors.BadRequest("Folder is not empty", nil)
	}

	err = s.repository.Transaction(ctx, func(tx FolderRepository) error {
		return tx.Delete(ctx, folder.ID)
	})
	if err != nil {
		return errors.Internal(err)
	}
	return nil
}

// Contents walks the subtree breadth first. Folder ids already seen are
// skipped, so corrupted parent links cannot loop forever.
func (s *DefaultService) Contents(ctx context.Context, folderID uint64) (*Contents, error) {
	seen := map[uint64]bool{folderID: true}
	ids := []uint64{folderID}
	frontier := []uint64{folderID}
	var folders []domain.Folder

	for len(frontier) > 0 {
		children, err := s.repository.ListChildren(ctx, frontier)
		if err != nil {
			return nil, errors.Internal(err)
		}
		frontier = frontier[:0]
		for _, child := range children {
			if seen[child.ID] {
				continue
			}
			seen[child.ID] = true
			folders = append(folders, child)
			ids = append(ids, child.ID)
			frontier = append(frontier, child.ID)
		}
	}

	documents, err := s.repository.ListDocuments(ctx, ids)
	if err != nil {
		return nil, errors.Internal(err)
	}
	if folders == nil {
		folders = []domain.Folder{}
	}
	if documents == nil {
		documents = []domain.Document{}
	}
	return &Contents{Folders: folders, Documents: documents}, nil
}

// Tree returns the folder, its subfolders and documents as the user may see
// them. Collaborators limited to selected files only get those documents and
// the folders leading to them.
func (s *DefaultService) Tree(ctx context.Context, folderID, userID uint64) (*TreeResponse, error) {
	folder, _, err := s.Authorize(ctx, folderID, userID, domain.PermissionRead)
	if err != nil {
		return nil, err
	}
	contents, err := s.Contents(ctx, folder.ID)
	if err != nil {
		return nil, err
	}

	restricted, err := s.restricted(ctx, folder, userID)
	if err != nil {
		return nil, err
	}
	if !restricted {
		return &TreeResponse{Folder: folder, Folders: contents.Folders, Documents: contents.Documents}, nil
	}

	documents := make([]domain.Document, 0, len(contents.Documents))
	for i := range contents.Documents {
		if _, err := s.access.Document(ctx, &contents.Documents[i], userID, domain.PermissionRead); err == nil {
			documents = append(documents, contents.Documents[i])
		}
	}
	return &TreeResponse{
		Folder:    folder,
		Folders:   pruneFolders(folder.ID, contents.Folders, documents),
		Documents: documents,
	}, nil
}

// restricted reports whether the user reaches folder only through
// collaborator entries limited to selected files.
func (s *DefaultService) restricted(ctx context.Context, folder *domain.Folder, userID uint64) (bool, error) {
	limited := false
	visited := map[uint64]bool{}
	for current := folder; current != nil && !visited[current.ID]; {
		visited[current.ID] = true
		if current.OwnerID == userID {
			return false, nil
		}
		if collab, ok := current.Collaborator(userID); ok {
			if !collab.Restricted() {
				return false, nil
			}
			limited = true
		}
		if !current.HasParent() {
			break
		}
		parent, err := s.repository.FindByIDWithCollaborators(ctx, *current.ParentFolderID)
		if err != nil {
			if stdErrors.Is(err, gorm.ErrRecordNotFound) {
				break
			}
			return false, errors.Internal(err)
		}
		current = parent
	}
	return limited, nil
}

// pruneFolders keeps the folders on the path from root to any kept document
func pruneFolders(rootID uint64, folders []domain.Folder, documents []domain.Document) []domain.Folder {
	byID := make(map[uint64]*domain.Folder, len(folders))
	for i := range folders {
		byID[folders[i].ID] = &folders[i]
	}

	keep := map[uint64]bool{}
	for _, doc := range documents {
		if !doc.InFolder() {
			continue
		}
		for id := *doc.FolderID; id != rootID && !keep[id]; {
			f, ok := byID[id]
			if !ok {
				break
			}
			keep[id] = true
			if !f.HasParent() {
				break
			}
			id = *f.ParentFolderID
		}
	}

	pruned := make([]domain.Folder, 0, len(keep))
	for _, f := range folders {
		if keep[f.ID] {
			pruned = append(pruned, f)
		}
	}
	return pruned
}

func (s *DefaultService) SetGithubRepo(ctx context.Context, folderID uint64, repo *domain.GithubRepo) error {
	if err := s.repository.SetGithubRepo(ctx, folderID, repo); err != nil {
		return errors.Internal(err)
	}
	return nil
}

func (s *DefaultService) ListCollaborators(ctx context.Context, folderID, userID uint64) ([]domain.FolderCollaborator, error) {
	folder, _, err := s.Authorize(ctx, folderID, userID, domain.PermissionRead)
	if err != nil {
		return nil, err
	}
	if folder.Collaborators == nil {
		return []domain.FolderCollaborator{}, nil
	}
	return folder.Collaborators, nil
}

func (s *DefaultService) AddCollaborator(ctx context.Context, folderID, userID uint64, input ShareInput) (*ShareResult, error) {
	if !input.Permission.Valid() {
		return nil, errors.BadRequest("Invalid permission", nil)
	}
	email := strings.ToLower(strings.TrimSpace(input.Email))

	folder, err := s.load(ctx, folderID)
	if err != nil {
		return nil, err
	}
	if folder.OwnerID != userID {
		return nil, errors.Forbidden("Only owner can add collaborators", nil)
	}
	if err := s.checkSelection(ctx, folder.ID, input.SelectedFiles); err != nil {
		return nil, err
	}

	target, err := s.users.GetUserByEmail(ctx, email)
	if err != nil && !stdErrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Internal(err)
	}

	if target == nil {
		inv := domain.NewInvitation(domain.ResourceFolder, folder.ID, userID, email, input.Permission, s.now().UTC())
		inv.SelectedFiles = input.SelectedFiles
		if err := s.repository.CreateInvitation(ctx, inv); err != nil {
			return nil, errors.Internal(err)
		}
		return &ShareResult{Invitation: inv}, nil
	}

	if target.ID == folder.OwnerID {
		return nil, errors.BadRequest("Owner cannot be added as a collaborator", nil)
	}

	collab := &domain.FolderCollaborator{
		FolderID:      folder.ID,
		UserID:        target.ID,
		Permission:    input.Permission,
		SelectedFiles: input.SelectedFiles,
	}
	if err := s.repository.UpsertCollaborator(ctx, collab); err != nil {
		return nil, errors.Internal(err)
	}
	collab.User = target
	return &ShareResult{Collaborator: collab}, nil
}

// checkSelection makes sure every selected document lives in the folder tree
func (s *DefaultService) checkSelection(ctx context.Context, folderID uint64, selected []uint64) error {
	if len(selected) == 0 {
		return nil
	}
	contents, err := s.Contents(ctx, folderID)
	if err != nil {
		return err
	}
	inTree := make(map[uint64]bool, len(contents.Documents))
	for _, doc := range contents.Documents {
		inTree[doc.ID] = true
	}
	for _, id := range selected {
		if !inTree[id] {
			return errors.BadRequest("Selected files must belong to the folder", nil)
		}
	}
	return nil
}

func (s *DefaultService) RemoveCollaborator(ctx context.Context, folderID, userID, targetUserID uint64) error {
	folder, err := s.load(ctx, folderID)
	if err != nil {
		return err
	}
	if folder.OwnerID != userID {
		return errors.Forbidden("Only owner can remove collaborators", nil)
	}

	n, err := s.repository.RemoveCollaborator(ctx, folder.ID, targetUserID)
	if err != nil {
		return errors.Internal(err)
	}
	if n == 0 {
		return errors.NotFound("Collaborator not found", nil)
	}
	return nil
}
