package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/videotube-api/internal/auth"
	"github.com/noah-isme/videotube-api/internal/models"
	"github.com/noah-isme/videotube-api/internal/repository"
	appErrors "github.com/noah-isme/videotube-api/pkg/errors"
)

const msgRefreshExpiredOrUsed = "refresh token is expired or used"

type authUserRepository interface {
	FindByUsernameOrEmail(ctx context.Context, username, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindProfileByID(ctx context.Context, id string) (*models.UserProfile, error)
	UpdateRefreshToken(ctx context.Context, id string, slot models.RefreshSlot) error
}

// TokenIssuer issues and verifies session tokens.
type TokenIssuer interface {
	IssuePair(user *models.User) (*models.TokenPair, error)
	Verify(token string, kind auth.TokenKind) (*auth.Claims, error)
}

// PasswordVerifier checks a plaintext password against a stored hash.
type PasswordVerifier interface {
	Verify(plaintext, stored string) bool
}

// AuthService drives the session lifecycle: login, refresh-token rotation,
// logout and access-token authentication.
//
// Each principal holds at most one refresh token. Login and Refresh overwrite
// it without locking, so concurrent calls for the same principal resolve
// last-write-wins at the store and the loser's refresh token stops matching.
type AuthService struct {
	repo      authUserRepository
	tokens    TokenIssuer
	passwords PasswordVerifier
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(repo authUserRepository, tokens TokenIssuer, passwords PasswordVerifier, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AuthService{repo: repo, tokens: tokens, passwords: passwords, validator: validate, metrics: metrics, logger: logger}
}

// Login authenticates by username or email and starts a new session,
// replacing any session the principal already had.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	req.Username = normalizeIdentifier(req.Username)
	req.Email = normalizeIdentifier(req.Email)
	if req.Username == "" && req.Email == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "username or email is required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	user, err := s.repo.FindByUsernameOrEmail(ctx, req.Username, req.Email)
	if err != nil {
		s.metrics.RecordAuthEvent(AuthEventLogin, OutcomeFailure)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Internal(err, "failed to fetch user")
	}

	if !s.passwords.Verify(req.Password, user.PasswordHash) {
		s.metrics.RecordAuthEvent(AuthEventLogin, OutcomeFailure)
		return nil, appErrors.ErrInvalidCredentials
	}

	pair, err := s.startSession(ctx, user)
	if err != nil {
		s.metrics.RecordAuthEvent(AuthEventLogin, OutcomeFailure)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, appErrors.ErrNotFound
		}
		return nil, err
	}

	s.metrics.RecordAuthEvent(AuthEventLogin, OutcomeSuccess)
	s.logger.Info("user logged in", zap.String("user_id", user.ID))

	return &models.LoginResponse{User: user.Profile(), TokenPair: *pair}, nil
}

// Refresh exchanges the current refresh token for a new pair. A token that
// verifies but no longer equals the stored one has already been used.
func (s *AuthService) Refresh(ctx context.Context, presented string) (*models.TokenPair, error) {
	if presented == "" {
		return nil, s.rejectRefresh("refresh token missing", nil)
	}

	claims, err := s.tokens.Verify(presented, auth.RefreshToken)
	if err != nil {
		return nil, s.rejectRefresh("refresh token failed verification", err)
	}

	user, err := s.repo.FindByID(ctx, claims.SubjectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, s.rejectRefresh("refresh token subject no longer exists", err)
		}
		return nil, appErrors.Internal(err, "failed to load user")
	}

	switch user.RefreshToken.Match(presented) {
	case models.RefreshCurrent:
	case models.RefreshAbsent:
		return nil, s.rejectRefresh("no active session", nil)
	case models.RefreshRotated:
		s.metrics.RecordAuthEvent(AuthEventRefresh, OutcomeReused)
		s.logger.Warn("refresh token reuse detected", zap.String("user_id", user.ID))
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, msgRefreshExpiredOrUsed)
	}

	pair, err := s.startSession(ctx, user)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, s.rejectRefresh("refresh token subject no longer exists", err)
		}
		return nil, err
	}

	s.metrics.RecordAuthEvent(AuthEventRefresh, OutcomeSuccess)
	return pair, nil
}

// Logout clears the stored refresh token. Repeated calls are harmless.
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	if err := s.repo.UpdateRefreshToken(ctx, userID, models.NoRefresh()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return appErrors.Internal(err, "failed to clear refresh token")
	}
	s.metrics.RecordAuthEvent(AuthEventLogout, OutcomeSuccess)
	return nil
}

// Authenticate verifies an access token and resolves its principal. Every
// failure is reported as the same unauthorized error; the cause is logged.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*models.UserProfile, error) {
	if token == "" {
		return nil, s.rejectGate("access token missing", nil)
	}

	claims, err := s.tokens.Verify(token, auth.AccessToken)
	if err != nil {
		return nil, s.rejectGate("access token failed verification", err)
	}

	profile, err := s.repo.FindProfileByID(ctx, claims.SubjectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, s.rejectGate("access token subject no longer exists", err)
		}
		s.logger.Error("failed to load principal", zap.Error(err))
		return nil, s.rejectGate("principal lookup failed", err)
	}

	return profile, nil
}

// startSession issues a pair and stores its refresh token on the principal.
func (s *AuthService) startSession(ctx context.Context, user *models.User) (*models.TokenPair, error) {
	pair, err := s.tokens.IssuePair(user)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to issue tokens")
	}

	if err := s.repo.UpdateRefreshToken(ctx, user.ID, models.ActiveRefresh(pair.RefreshToken)); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, appErrors.Internal(err, "failed to persist refresh token")
	}
	user.RefreshToken = models.ActiveRefresh(pair.RefreshToken)
	return pair, nil
}

func (s *AuthService) rejectRefresh(reason string, cause error) error {
	s.metrics.RecordAuthEvent(AuthEventRefresh, OutcomeRejected)
	s.logger.Debug("refresh rejected", zap.String("reason", reason), zap.NamedError("cause", cause))
	return appErrors.Wrap(cause, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, msgRefreshExpiredOrUsed)
}

func (s *AuthService) rejectGate(reason string, cause error) error {
	s.metrics.RecordAuthEvent(AuthEventGate, OutcomeRejected)
	s.logger.Debug("access rejected", zap.String("reason", reason), zap.NamedError("cause", cause))
	return appErrors.Wrap(cause, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, appErrors.ErrUnauthorized.Message)
}

func normalizeIdentifier(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
