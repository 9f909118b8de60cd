package service

import (
	"context"
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/videotube-api/internal/auth"
	"github.com/noah-isme/videotube-api/internal/models"
	"github.com/noah-isme/videotube-api/internal/repository"
	appErrors "github.com/noah-isme/videotube-api/pkg/errors"
)

func newUserService(repo *mockUserRepo) *UserService {
	return NewUserService(repo, auth.NewPasswordHasher(testAuthConfig), validator.New(), nil, zap.NewNop())
}

func validRegistration() models.RegisterRequest {
	return models.RegisterRequest{
		Username: "  Alice ",
		Email:    "Alice@Example.com",
		FullName: "Alice Liddell",
		Password: "secret123",
	}
}

func TestRegisterHashesAndNormalizes(t *testing.T) {
	repo := newMockUserRepo()
	svc := newUserService(repo)

	profile, err := svc.Register(context.Background(), validRegistration())
	require.NoError(t, err)
	assert.Equal(t, "alice", profile.Username)
	assert.Equal(t, "alice@example.com", profile.Email)
	assert.Equal(t, "alice liddell", profile.FullName)

	stored := repo.users[profile.ID]
	require.NotNil(t, stored)
	assert.NotEqual(t, "secret123", stored.PasswordHash)
	assert.True(t, auth.NewPasswordHasher(testAuthConfig).Verify("secret123", stored.PasswordHash))
	assert.False(t, stored.RefreshToken.Active())
}

func TestRegisterThenLogin(t *testing.T) {
	repo := newMockUserRepo()
	_, err := newUserService(repo).Register(context.Background(), validRegistration())
	require.NoError(t, err)

	codec := auth.NewTokenCodec(testAuthConfig)
	authSvc := NewAuthService(repo, codec, auth.NewPasswordHasher(testAuthConfig), nil, nil, nil)
	res, err := authSvc.Login(context.Background(), models.LoginRequest{Username: "alice", Password: "secret123"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.RefreshToken)
}

func TestRegisterValidation(t *testing.T) {
	svc := newUserService(newMockUserRepo())

	blankName := validRegistration()
	blankName.FullName = "   "
	_, err := svc.Register(context.Background(), blankName)
	requireCode(t, err, appErrors.ErrValidation)

	blankPassword := validRegistration()
	blankPassword.Password = "      "
	_, err = svc.Register(context.Background(), blankPassword)
	requireCode(t, err, appErrors.ErrValidation)

	badEmail := validRegistration()
	badEmail.Email = "not-an-email"
	_, err = svc.Register(context.Background(), badEmail)
	requireCode(t, err, appErrors.ErrValidation)
}

func TestRegisterConflict(t *testing.T) {
	repo := newMockUserRepo()
	repo.add(&models.User{ID: "u1", Username: "someone", Email: "alice@example.com"})
	svc := newUserService(repo)

	_, err := svc.Register(context.Background(), validRegistration())
	requireCode(t, err, appErrors.ErrConflict)
}

func TestRegisterConflictOnInsertRace(t *testing.T) {
	repo := newMockUserRepo()
	repo.createErr = repository.ErrDuplicate
	svc := newUserService(repo)

	_, err := svc.Register(context.Background(), validRegistration())
	requireCode(t, err, appErrors.ErrConflict)
}

func TestRegisterStoreFailure(t *testing.T) {
	repo := newMockUserRepo()
	repo.createErr = errors.New("disk full")
	svc := newUserService(repo)

	_, err := svc.Register(context.Background(), validRegistration())
	requireCode(t, err, appErrors.ErrInternal)
}

func TestChangePassword(t *testing.T) {
	repo := newMockUserRepo()
	svc := newUserService(repo)
	profile, err := svc.Register(context.Background(), validRegistration())
	require.NoError(t, err)
	oldHash := repo.users[profile.ID].PasswordHash

	err = svc.ChangePassword(context.Background(), profile.ID, models.ChangePasswordRequest{OldPassword: "wrong", NewPassword: "newsecret"})
	requireCode(t, err, appErrors.ErrValidation)
	assert.Equal(t, oldHash, repo.users[profile.ID].PasswordHash)

	require.NoError(t, svc.ChangePassword(context.Background(), profile.ID, models.ChangePasswordRequest{OldPassword: "secret123", NewPassword: "newsecret"}))
	newHash := repo.users[profile.ID].PasswordHash
	assert.NotEqual(t, oldHash, newHash)
	assert.True(t, auth.NewPasswordHasher(testAuthConfig).Verify("newsecret", newHash))
}

func TestChangePasswordUnknownUser(t *testing.T) {
	svc := newUserService(newMockUserRepo())

	err := svc.ChangePassword(context.Background(), "ghost", models.ChangePasswordRequest{OldPassword: "a", NewPassword: "newsecret"})
	requireCode(t, err, appErrors.ErrUnauthorized)
}
