package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/videotube-api/internal/models"
	"github.com/noah-isme/videotube-api/internal/repository"
	appErrors "github.com/noah-isme/videotube-api/pkg/errors"
)

type userRepository interface {
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
}

// PasswordHasher hashes new passwords and verifies existing ones.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	PasswordVerifier
}

// UserService handles account registration and password changes. Passwords
// are hashed only here, when the plaintext actually changes; stores persist
// the hash as given.
type UserService struct {
	repo      userRepository
	hasher    PasswordHasher
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewUserService constructs a UserService.
func NewUserService(repo userRepository, hasher PasswordHasher, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, hasher: hasher, validator: validate, metrics: metrics, logger: logger}
}

// Register creates a principal with a hashed password.
func (s *UserService) Register(ctx context.Context, req models.RegisterRequest) (*models.UserProfile, error) {
	req.Username = normalizeIdentifier(req.Username)
	req.Email = normalizeIdentifier(req.Email)
	req.FullName = normalizeIdentifier(req.FullName)
	req.Avatar = strings.TrimSpace(req.Avatar)
	req.CoverImage = strings.TrimSpace(req.CoverImage)
	if strings.TrimSpace(req.Password) == "" {
		req.Password = ""
	}

	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "all fields are required")
	}

	exists, err := s.repo.ExistsByUsernameOrEmail(ctx, req.Username, req.Email)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to check existing user")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, repository.ErrDuplicate.Error())
	}

	hashed, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to hash password")
	}

	user := &models.User{
		Username:     req.Username,
		Email:        req.Email,
		FullName:     req.FullName,
		Avatar:       req.Avatar,
		CoverImage:   req.CoverImage,
		PasswordHash: hashed,
		RefreshToken: models.NoRefresh(),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, repository.ErrDuplicate.Error())
		}
		return nil, appErrors.Internal(err, "failed to register user")
	}

	s.metrics.RecordAuthEvent(AuthEventRegister, OutcomeSuccess)
	s.logger.Info("user registered", zap.String("user_id", user.ID))
	return user.Profile(), nil
}

// ChangePassword replaces the password of userID after checking the old one.
func (s *UserService) ChangePassword(ctx context.Context, userID string, req models.ChangePasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid change password payload")
	}

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return appErrors.ErrUnauthorized
		}
		return appErrors.Internal(err, "failed to load user")
	}

	if !s.hasher.Verify(req.OldPassword, user.PasswordHash) {
		return appErrors.Clone(appErrors.ErrValidation, "invalid old password")
	}

	hashed, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return appErrors.Internal(err, "failed to hash password")
	}

	if err := s.repo.UpdatePassword(ctx, userID, hashed, time.Now().UTC()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return appErrors.ErrUnauthorized
		}
		return appErrors.Internal(err, "failed to update password")
	}

	s.logger.Info("password changed", zap.String("user_id", userID))
	return nil
}
