package invitation

import (
	"context"
	stdErrors "errors"
	"strings"
	"time"

	"devunity/internal/document"
	"devunity/internal/domain"
	"devunity/internal/errors"
	"devunity/redis"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service interface {
	ListPending(ctx context.Context, user *domain.User) ([]domain.Invitation, error)
	Accept(ctx context.Context, invitationID uint64, user *domain.User) (*domain.Invitation, error)
	Reject(ctx context.Context, invitationID uint64, user *domain.User) (*domain.Invitation, error)
}

type DefaultService struct {
	repository InvitationRepository
	cache      *redis.Cache
	log        *zap.Logger
	now        func() time.Time
}

func NewService(repository InvitationRepository, cache *redis.Cache, log *zap.Logger) Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &DefaultService{
		repository: repository,
		cache:      cache,
		log:        log,
		now:        time.Now,
	}
}

func (s *DefaultService) ListPending(ctx context.Context, user *domain.User) ([]domain.Invitation, error) {
	invitations, err := s.repository.ListPending(ctx, user.Email, s.now().UTC())
	if err != nil {
		return nil, errors.Internal(err)
	}
	if invitations == nil {
		invitations = []domain.Invitation{}
	}
	return invitations, nil
}

// resolvable loads the invitation and checks it is addressed to user and still open
func (s *DefaultService) resolvable(ctx context.Context, invitationID uint64, user *domain.User) (*domain.Invitation, error) {
	inv, err := s.repository.FindByID(ctx, invitationID)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("Invitation not found", err)
		}
		return nil, errors.Internal(err)
	}
	if !strings.EqualFold(inv.RecipientEmail, user.Email) {
		return nil, errors.Forbidden("This invitation is not addressed to you", nil)
	}
	if !inv.Pending() {
		return nil, errors.Conflict("Invitation has already been "+string(inv.Status), nil)
	}
	if inv.Expired(s.now()) {
		return nil, errors.BadRequest("Invitation has expired", nil)
	}
	return inv, nil
}

// Accept turns the invitation into a collaborator entry. An existing entry for
// the user is updated in place.
func (s *DefaultService) Accept(ctx context.Context, invitationID uint64, user *domain.User) (*domain.Invitation, error) {
	inv, err := s.resolvable(ctx, invitationID, user)
	if err != nil {
		return nil, err
	}

	err = s.repository.Transaction(ctx, func(tx InvitationRepository) error {
		switch inv.ResourceType {
		case domain.ResourceDocument:
			err := tx.UpsertDocumentCollaborator(ctx, &domain.DocumentCollaborator{
				DocumentID: inv.ResourceID,
				UserID:     user.ID,
				Permission: inv.Permission,
			})
			if err != nil {
				return err
			}
		case domain.ResourceFolder:
			err := tx.UpsertFolderCollaborator(ctx, &domain.FolderCollaborator{
				FolderID:      inv.ResourceID,
				UserID:        user.ID,
				Permission:    inv.Permission,
				SelectedFiles: inv.SelectedFiles,
			})
			if err != nil {
				return err
			}
		default:
			return errors.UnprocessableEntity("Unknown invitation resource", nil)
		}
		return tx.UpdateStatus(ctx, inv.ID, domain.InvitationAccepted)
	})
	if err != nil {
		return nil, s.mapResolveError(err)
	}

	if inv.ResourceType == domain.ResourceDocument {
		s.cache.IncrementVersion(ctx, document.ListVersionKey(user.ID))
	}
	s.log.Info("invitation accepted",
		zap.Uint64("invitation_id", inv.ID),
		zap.String("resource_type", string(inv.ResourceType)),
		zap.Uint64("resource_id", inv.ResourceID),
		zap.Uint64("user_id", user.ID),
	)

	inv.Status = domain.InvitationAccepted
	return inv, nil
}

func (s *DefaultService) Reject(ctx context.Context, invitationID uint64, user *domain.User) (*domain.Invitation, error) {
	inv, err := s.resolvable(ctx, invitationID, user)
	if err != nil {
		return nil, err
	}
	if err := s.repository.UpdateStatus(ctx, inv.ID, domain.InvitationRejected); err != nil {
		return nil, s.mapResolveError(err)
	}
	inv.Status = domain.InvitationRejected
	return inv, nil
}

// a pending row that vanished under us was resolved concurrently
func (s *DefaultService) mapResolveError(err error) error {
	var apiErr *errors.APIError
	if stdErrors.As(err, &apiErr) {
		return apiErr
	}
	if stdErrors.Is(err, gorm.ErrRecordNotFound) {
		return errors.Conflict("Invitation has already been resolved", err)
	}
	return errors.Internal(err)
}
