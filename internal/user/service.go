package user

import (
	"context"
	stdErrors "errors"
	"io"
	"strings"
	"time"

	"devunity/auth"
	"devunity/internal/domain"
	"devunity/internal/errors"
	"devunity/internal/storage"
	"devunity/internal/worker"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Service defines the interface for user business logic
type Service interface {
	Register(ctx context.Context, input RegisterInput) (*AuthResult, error)
	Login(ctx context.Context, email, password, deviceInfo string) (*AuthResult, error)
	Logout(ctx context.Context, token string) error
	Authenticate(ctx context.Context, token string) (*domain.User, error)
	GetUserByID(ctx context.Context, id uint64) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	SearchUsers(ctx context.Context, query string) ([]domain.SafeUser, error)
	UploadAvatar(ctx context.Context, userID uint64, r io.Reader, size int64, contentType string) (*domain.User, error)
	PurgeExpiredSessions(ctx context.Context) (int64, error)
}

// AvatarStore persists avatar images and returns their URL
type AvatarStore interface {
	PutAvatar(ctx context.Context, userID uint64, r io.Reader, size int64, contentType string) (string, error)
	RemoveAvatar(ctx context.Context, avatarURL string) error
}

type RegisterInput struct {
	Username   string
	Email      string
	Password   string
	DeviceInfo string
}

// AuthResult is returned by register and login
type AuthResult struct {
	Token string          `json:"token"`
	User  domain.SafeUser `json:"user"`
}

const (
	searchLimit = 20
	// last_active is refreshed at most this often per user
	lastActiveGranularity = 5 * time.Minute
)

// DefaultService implements Service
type DefaultService struct {
	repository UserRepository
	tokens     *auth.TokenManager
	avatars    AvatarStore
	pool       worker.Submitter
	log        *zap.Logger
	now        func() time.Time
}

// NewService creates a new user service. avatars may be nil when storage is not configured.
func NewService(repository UserRepository, tokens *auth.TokenManager, avatars AvatarStore, pool worker.Submitter, log *zap.Logger) Service {
	if log == nil {
		log = zap.NewNop()
	}
	if pool == nil {
		pool = worker.Inline{}
	}
	return &DefaultService{
		repository: repository,
		tokens:     tokens,
		avatars:    avatars,
		pool:       pool,
		log:        log,
		now:        time.Now,
	}
}

// Register registers a new user and opens a session for them
func (s *DefaultService) Register(ctx context.Context, input RegisterInput) (*AuthResult, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	username := strings.TrimSpace(input.Username)

	// Check if user with email already exists
	_, err := s.repository.FindByEmail(ctx, email)
	if err != nil && !stdErrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Internal(err)
	}
	if err == nil {
		return nil, errors.Conflict("User already exists", nil)
	}

	_, err = s.repository.FindByUsername(ctx, username)
	if err != nil && !stdErrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Internal(err)
	}
	if err == nil {
		return nil, errors.Conflict("Username already taken", nil)
	}

	// Hash the password before saving
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.UnprocessableEntity("Invalid password", err)
	}

	user := &domain.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hashedPassword),
		LastActive:   s.now().UTC(),
	}
	if err := s.repository.Create(ctx, user); err != nil {
		return nil, errors.Internal(err)
	}

	return s.openSession(ctx, user, input.DeviceInfo)
}

// Login authenticates a user by email and password
func (s *DefaultService) Login(ctx context.Context, email, password, deviceInfo string) (*AuthResult, error) {
	user, err := s.repository.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Unauthorized("Invalid credentials", err)
		}
		return nil, errors.Internal(err)
	}

	// Check password
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, errors.Unauthorized("Invalid credentials", err)
	}

	now := s.now().UTC()
	if err := s.repository.TouchLastActive(ctx, user.ID, now); err != nil {
		s.log.Warn("failed to update last active", zap.Uint64("user_id", user.ID), zap.Error(err))
	} else {
		user.LastActive = now
	}

	return s.openSession(ctx, user, deviceInfo)
}

func (s *DefaultService) openSession(ctx context.Context, user *domain.User, deviceInfo string) (*AuthResult, error) {
	token, expiresAt, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, errors.Internal(err)
	}

	session := &domain.Session{
		UserID:     user.ID,
		Token:      token,
		DeviceInfo: deviceInfo,
		ExpiresAt:  expiresAt,
	}
	if err := s.repository.CreateSession(ctx, session); err != nil {
		return nil, errors.Internal(err)
	}

	return &AuthResult{Token: token, User: user.ToSafeUser()}, nil
}

// Logout ends the session identified by token
func (s *DefaultService) Logout(ctx context.Context, token string) error {
	if err := s.repository.DeleteSession(ctx, token); err != nil {
		return errors.Internal(err)
	}
	return nil
}

// Authenticate resolves a bearer token into its user. Expired sessions are
// deleted when presented.
func (s *DefaultService) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, errors.Unauthorized("Authentication required", nil)
	}

	claims, err := s.tokens.Verify(token)
	if err != nil && !stdErrors.Is(err, jwt.ErrTokenExpired) {
		return nil, errors.Unauthorized("Invalid token", err)
	}

	session, findErr := s.repository.FindSessionByToken(ctx, token)
	if findErr != nil {
		if stdErrors.Is(findErr, gorm.ErrRecordNotFound) {
			return nil, errors.Unauthorized("Session not found", findErr)
		}
		return nil, errors.Internal(findErr)
	}

	now := s.now()
	if err != nil || session.Expired(now) {
		if delErr := s.repository.DeleteSession(ctx, token); delErr != nil {
			s.log.Warn("failed to delete expired session", zap.Uint64("session_id", session.ID), zap.Error(delErr))
		}
		return nil, errors.Unauthorized("Session expired", err)
	}

	if claims.UserID != session.UserID {
		return nil, errors.Unauthorized("Invalid token", nil)
	}

	user, err := s.repository.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, errors.Unauthorized("User not found", err)
	}

	if now.Sub(user.LastActive) > lastActiveGranularity {
		userID := user.ID
		s.pool.Submit("touch-last-active", func(ctx context.Context) error {
			return s.repository.TouchLastActive(ctx, userID, now.UTC())
		})
	}

	return user, nil
}

// GetUserByID gets a user by ID
func (s *DefaultService) GetUserByID(ctx context.Context, id uint64) (*domain.User, error) {
	user, err := s.repository.FindByID(ctx, id)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("User not found", err)
		}
		return nil, errors.Internal(err)
	}
	return user, nil
}

// GetUserByEmail returns gorm.ErrRecordNotFound unwrapped when nobody has
// registered the address; callers turn that into an invitation.
func (s *DefaultService) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.repository.FindByEmail(ctx, strings.TrimSpace(email))
}

func (s *DefaultService) SearchUsers(ctx context.Context, query string) ([]domain.SafeUser, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.SafeUser{}, nil
	}

	users, err := s.repository.Search(ctx, query, searchLimit)
	if err != nil {
		return nil, errors.Internal(err)
	}

	result := make([]domain.SafeUser, 0, len(users))
	for i := range users {
		result = append(result, users[i].ToSafeUser())
	}
	return result, nil
}

// UploadAvatar stores a new avatar and points the user at it
func (s *DefaultService) UploadAvatar(ctx context.Context, userID uint64, r io.Reader, size int64, contentType string) (*domain.User, error) {
	if s.avatars == nil {
		return nil, errors.ServiceUnavailable("Avatar storage is not configured", nil)
	}

	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	url, err := s.avatars.PutAvatar(ctx, userID, r, size, contentType)
	if err != nil {
		if stdErrors.Is(err, storage.ErrUnsupportedType) {
			return nil, errors.BadRequest("Avatar must be a png, jpeg, gif or webp image", err)
		}
		return nil, errors.Internal(err)
	}

	if err := s.repository.UpdateAvatar(ctx, userID, url); err != nil {
		return nil, errors.Internal(err)
	}

	if previous := user.Avatar; previous != "" {
		s.pool.Submit("remove-old-avatar", func(ctx context.Context) error {
			return s.avatars.RemoveAvatar(ctx, previous)
		})
	}

	user.Avatar = url
	return user, nil
}

// PurgeExpiredSessions removes sessions nobody presented before they expired
func (s *DefaultService) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	n, err := s.repository.DeleteExpiredSessions(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("purged expired sessions", zap.Int64("count", n))
	}
	return n, nil
}
