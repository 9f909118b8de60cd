package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/videotube-api/internal/auth"
	"github.com/noah-isme/videotube-api/internal/models"
	"github.com/noah-isme/videotube-api/internal/repository"
	"github.com/noah-isme/videotube-api/pkg/config"
	appErrors "github.com/noah-isme/videotube-api/pkg/errors"
)

var testAuthConfig = config.AuthConfig{
	AccessTokenSecret:  "access-secret",
	AccessTokenExpiry:  15 * time.Minute,
	RefreshTokenSecret: "refresh-secret",
	RefreshTokenExpiry: 240 * time.Hour,
	Issuer:             "videotube-api",
	BcryptCost:         4,
}

type mockUserRepo struct {
	users       map[string]*models.User
	findErr     error
	updateErr   error
	createErr   error
	updateCalls int
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*models.User)}
}

func (m *mockUserRepo) add(user *models.User) {
	clone := *user
	m.users[user.ID] = &clone
}

func (m *mockUserRepo) FindByUsernameOrEmail(ctx context.Context, username, email string) (*models.User, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, u := range m.users {
		if (username != "" && u.Username == username) || (email != "" && u.Email == email) {
			clone := *u
			return &clone, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (m *mockUserRepo) FindProfileByID(ctx context.Context, id string) (*models.UserProfile, error) {
	u, err := m.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return u.Profile(), nil
}

func (m *mockUserRepo) UpdateRefreshToken(ctx context.Context, id string, slot models.RefreshSlot) error {
	m.updateCalls++
	if m.updateErr != nil {
		return m.updateErr
	}
	u, ok := m.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.RefreshToken = slot
	return nil
}

func (m *mockUserRepo) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	if m.findErr != nil {
		return false, m.findErr
	}
	for _, u := range m.users {
		if u.Username == username || u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	if m.createErr != nil {
		return m.createErr
	}
	if user.ID == "" {
		user.ID = "u-" + user.Username
	}
	m.add(user)
	return nil
}

func (m *mockUserRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	u, ok := m.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = updatedAt
	return nil
}

func (m *mockUserRepo) storedToken(t *testing.T, id string) (string, bool) {
	t.Helper()
	u, ok := m.users[id]
	require.True(t, ok)
	return u.RefreshToken.Token()
}

type authFixture struct {
	repo   *mockUserRepo
	svc    *AuthService
	codec  *auth.TokenCodec
	hasher *auth.PasswordHasher
	now    time.Time
	alice  *models.User
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	f := &authFixture{repo: newMockUserRepo(), now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	f.codec = auth.NewTokenCodec(testAuthConfig, auth.WithClock(func() time.Time { return f.now }))
	f.hasher = auth.NewPasswordHasher(testAuthConfig)

	hashed, err := f.hasher.Hash("secret123")
	require.NoError(t, err)
	f.alice = &models.User{ID: "u-alice", Username: "alice", Email: "alice@example.com", FullName: "alice liddell", PasswordHash: hashed}
	f.repo.add(f.alice)

	f.svc = NewAuthService(f.repo, f.codec, f.hasher, validator.New(), NewMetricsService(), zap.NewNop())
	return f
}

func (f *authFixture) login(t *testing.T) *models.LoginResponse {
	t.Helper()
	res, err := f.svc.Login(context.Background(), models.LoginRequest{Username: "alice", Password: "secret123"})
	require.NoError(t, err)
	return res
}

func requireCode(t *testing.T, err error, want *appErrors.Error) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, want.Code, appErrors.FromError(err).Code)
}

func TestLoginSuccessStoresRefreshToken(t *testing.T) {
	f := newAuthFixture(t)

	res := f.login(t)

	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, "alice", res.User.Username)
	stored, ok := f.repo.storedToken(t, "u-alice")
	require.True(t, ok)
	assert.Equal(t, res.RefreshToken, stored)

	claims, err := f.codec.Verify(res.AccessToken, auth.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u-alice", claims.SubjectID)
}

func TestLoginByEmailIsCaseInsensitive(t *testing.T) {
	f := newAuthFixture(t)

	res, err := f.svc.Login(context.Background(), models.LoginRequest{Email: "  Alice@Example.com ", Password: "secret123"})
	require.NoError(t, err)
	assert.Equal(t, "u-alice", res.User.ID)
}

func TestLoginEitherIdentifierSuffices(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.svc.Login(context.Background(), models.LoginRequest{Username: "nobody", Email: "alice@example.com", Password: "secret123"})
	require.NoError(t, err)
}

func TestLoginRequiresIdentifier(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.svc.Login(context.Background(), models.LoginRequest{Password: "secret123"})
	requireCode(t, err, appErrors.ErrValidation)

	_, err = f.svc.Login(context.Background(), models.LoginRequest{Username: "alice"})
	requireCode(t, err, appErrors.ErrValidation)
}

func TestLoginUnknownUser(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.svc.Login(context.Background(), models.LoginRequest{Username: "bob", Password: "secret123"})
	requireCode(t, err, appErrors.ErrNotFound)
}

func TestLoginWrongPassword(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.svc.Login(context.Background(), models.LoginRequest{Username: "alice", Password: "wrong"})
	requireCode(t, err, appErrors.ErrInvalidCredentials)
	_, ok := f.repo.storedToken(t, "u-alice")
	assert.False(t, ok)
}

func TestLoginStoreFailureIsInternal(t *testing.T) {
	f := newAuthFixture(t)
	f.repo.findErr = errors.New("connection refused")

	_, err := f.svc.Login(context.Background(), models.LoginRequest{Username: "alice", Password: "secret123"})
	requireCode(t, err, appErrors.ErrInternal)
}

func TestLoginPersistFailureIsInternal(t *testing.T) {
	f := newAuthFixture(t)
	f.repo.updateErr = errors.New("write timeout")

	_, err := f.svc.Login(context.Background(), models.LoginRequest{Username: "alice", Password: "secret123"})
	requireCode(t, err, appErrors.ErrInternal)
}

func TestSecondLoginInvalidatesFirstSession(t *testing.T) {
	f := newAuthFixture(t)
	first := f.login(t)
	second := f.login(t)

	_, err := f.svc.Refresh(context.Background(), first.RefreshToken)
	requireCode(t, err, appErrors.ErrUnauthorized)

	_, err = f.svc.Refresh(context.Background(), second.RefreshToken)
	require.NoError(t, err)
}

func TestRefreshRotatesAndRejectsReplay(t *testing.T) {
	f := newAuthFixture(t)
	rt1 := f.login(t).RefreshToken

	pair, err := f.svc.Refresh(context.Background(), rt1)
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEqual(t, rt1, pair.RefreshToken)
	stored, _ := f.repo.storedToken(t, "u-alice")
	assert.Equal(t, pair.RefreshToken, stored)

	_, err = f.svc.Refresh(context.Background(), rt1)
	requireCode(t, err, appErrors.ErrUnauthorized)
	assert.Equal(t, msgRefreshExpiredOrUsed, appErrors.FromError(err).Message)

	stored, _ = f.repo.storedToken(t, "u-alice")
	assert.Equal(t, pair.RefreshToken, stored)
}

func TestRefreshAfterLogout(t *testing.T) {
	f := newAuthFixture(t)
	rt := f.login(t).RefreshToken

	require.NoError(t, f.svc.Logout(context.Background(), "u-alice"))

	_, err := f.svc.Refresh(context.Background(), rt)
	requireCode(t, err, appErrors.ErrUnauthorized)
}

func TestRefreshMissingToken(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.svc.Refresh(context.Background(), "")
	requireCode(t, err, appErrors.ErrUnauthorized)
	assert.Zero(t, f.repo.updateCalls)
}

func TestRefreshExpiredToken(t *testing.T) {
	f := newAuthFixture(t)
	rt := f.login(t).RefreshToken

	f.now = f.now.Add(241 * time.Hour)
	_, err := f.svc.Refresh(context.Background(), rt)
	requireCode(t, err, appErrors.ErrUnauthorized)
	assert.ErrorIs(t, err, auth.ErrTokenExpired)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	f := newAuthFixture(t)
	at := f.login(t).AccessToken

	_, err := f.svc.Refresh(context.Background(), at)
	requireCode(t, err, appErrors.ErrUnauthorized)
}

func TestRefreshDeletedPrincipal(t *testing.T) {
	f := newAuthFixture(t)
	rt := f.login(t).RefreshToken
	delete(f.repo.users, "u-alice")

	_, err := f.svc.Refresh(context.Background(), rt)
	requireCode(t, err, appErrors.ErrUnauthorized)
}

func TestRefreshStoreFailureIsInternal(t *testing.T) {
	f := newAuthFixture(t)
	rt := f.login(t).RefreshToken
	f.repo.findErr = errors.New("connection refused")

	_, err := f.svc.Refresh(context.Background(), rt)
	requireCode(t, err, appErrors.ErrInternal)
}

func TestLogoutIsIdempotent(t *testing.T) {
	f := newAuthFixture(t)
	f.login(t)

	require.NoError(t, f.svc.Logout(context.Background(), "u-alice"))
	require.NoError(t, f.svc.Logout(context.Background(), "u-alice"))

	_, ok := f.repo.storedToken(t, "u-alice")
	assert.False(t, ok)
	require.NoError(t, f.svc.Logout(context.Background(), "u-ghost"))
}

func TestLogoutStoreFailure(t *testing.T) {
	f := newAuthFixture(t)
	f.repo.updateErr = errors.New("write timeout")

	err := f.svc.Logout(context.Background(), "u-alice")
	requireCode(t, err, appErrors.ErrInternal)
}

func TestAuthenticate(t *testing.T) {
	f := newAuthFixture(t)
	at := f.login(t).AccessToken

	profile, err := f.svc.Authenticate(context.Background(), at)
	require.NoError(t, err)
	assert.Equal(t, "u-alice", profile.ID)
	assert.Equal(t, "alice@example.com", profile.Email)
}

func TestAuthenticateFailuresAreUniform(t *testing.T) {
	f := newAuthFixture(t)
	at := f.login(t).AccessToken

	forger := auth.NewTokenCodec(config.AuthConfig{
		AccessTokenSecret:  "wrong-secret",
		AccessTokenExpiry:  time.Minute,
		RefreshTokenSecret: "x",
		RefreshTokenExpiry: time.Minute,
		Issuer:             testAuthConfig.Issuer,
	})
	forged, _, err := forger.IssueAccess(f.alice)
	require.NoError(t, err)

	var messages []string
	collect := func(err error) {
		require.Error(t, err)
		appErr := appErrors.FromError(err)
		assert.Equal(t, appErrors.ErrUnauthorized.Code, appErr.Code)
		assert.Equal(t, appErrors.ErrUnauthorized.Status, appErr.Status)
		messages = append(messages, appErr.Message)
	}

	_, err = f.svc.Authenticate(context.Background(), "")
	collect(err)
	_, err = f.svc.Authenticate(context.Background(), forged)
	collect(err)
	_, err = f.svc.Authenticate(context.Background(), "garbage")
	collect(err)

	f.now = f.now.Add(16 * time.Minute)
	_, err = f.svc.Authenticate(context.Background(), at)
	collect(err)

	f.now = f.now.Add(-16 * time.Minute)
	delete(f.repo.users, "u-alice")
	_, err = f.svc.Authenticate(context.Background(), at)
	collect(err)

	for _, msg := range messages {
		assert.Equal(t, messages[0], msg)
	}
}
