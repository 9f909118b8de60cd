package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/videotube-api/internal/models"
	"github.com/noah-isme/videotube-api/pkg/config"
)

// TokenKind selects the secret and lifetime used for a token.
type TokenKind int

const (
	AccessToken TokenKind = iota
	RefreshToken
)

func (k TokenKind) String() string {
	if k == RefreshToken {
		return "refresh"
	}
	return "access"
}

// Verification failures. Callers compare with errors.Is.
var (
	ErrTokenMalformed        = errors.New("token is malformed")
	ErrTokenSignatureInvalid = errors.New("token signature is invalid")
	ErrTokenExpired          = errors.New("token is expired")
)

// AccessClaims is the payload of an access token.
type AccessClaims struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	FullName string `json:"fullName"`
	jwt.RegisteredClaims
}

// RefreshClaims is the payload of a refresh token. The ID (jti) makes every
// issued refresh token distinct even within the same second.
type RefreshClaims struct {
	jwt.RegisteredClaims
}

// Claims is the verified content of either token kind. Profile fields are
// empty for refresh tokens.
type Claims struct {
	SubjectID string
	Email     string
	Username  string
	FullName  string
	ExpiresAt time.Time
}

// TokenCodec signs and verifies access and refresh tokens with independent
// HS256 secrets and lifetimes.
type TokenCodec struct {
	accessSecret  []byte
	accessTTL     time.Duration
	refreshSecret []byte
	refreshTTL    time.Duration
	issuer        string
	now           func() time.Time
}

// Option customises a TokenCodec.
type Option func(*TokenCodec)

// WithClock overrides the time source used for issuance and verification.
func WithClock(now func() time.Time) Option {
	return func(c *TokenCodec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewTokenCodec constructs a codec from the auth configuration.
func NewTokenCodec(cfg config.AuthConfig, opts ...Option) *TokenCodec {
	c := &TokenCodec{
		accessSecret:  []byte(cfg.AccessTokenSecret),
		accessTTL:     cfg.AccessTokenExpiry,
		refreshSecret: []byte(cfg.RefreshTokenSecret),
		refreshTTL:    cfg.RefreshTokenExpiry,
		issuer:        cfg.Issuer,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IssueAccess signs an access token for user.
func (c *TokenCodec) IssueAccess(user *models.User) (string, time.Time, error) {
	issuedAt := c.now().UTC()
	expiresAt := issuedAt.Add(c.accessTTL)
	claims := AccessClaims{
		Email:    user.Email,
		Username: user.Username,
		FullName: user.FullName,
	}
	claims.RegisteredClaims = c.registered(user.ID, issuedAt, expiresAt)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.accessSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// IssueRefresh signs a refresh token carrying only the subject.
func (c *TokenCodec) IssueRefresh(user *models.User) (string, time.Time, error) {
	issuedAt := c.now().UTC()
	expiresAt := issuedAt.Add(c.refreshTTL)
	claims := RefreshClaims{RegisteredClaims: c.registered(user.ID, issuedAt, expiresAt)}
	claims.ID = uuid.NewString()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.refreshSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// IssuePair issues an access token and a refresh token for user.
func (c *TokenCodec) IssuePair(user *models.User) (*models.TokenPair, error) {
	access, accessExp, err := c.IssueAccess(user)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := c.IssueRefresh(user)
	if err != nil {
		return nil, err
	}
	return &models.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Verify checks the signature and expiry of a token of the given kind. It
// returns ErrTokenMalformed, ErrTokenSignatureInvalid or ErrTokenExpired.
func (c *TokenCodec) Verify(tokenString string, kind TokenKind) (*Claims, error) {
	secret := c.accessSecret
	var claims jwt.Claims = &AccessClaims{}
	if kind == RefreshToken {
		secret = c.refreshSecret
		claims = &RefreshClaims{}
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	}, opts...)
	if err != nil {
		return nil, c.classify(tokenString, err)
	}
	if !token.Valid {
		return nil, ErrTokenMalformed
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return nil, ErrTokenMalformed
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, ErrTokenMalformed
	}

	out := &Claims{SubjectID: subject, ExpiresAt: exp.Time}
	if ac, ok := claims.(*AccessClaims); ok {
		out.Email = ac.Email
		out.Username = ac.Username
		out.FullName = ac.FullName
	}
	return out, nil
}

func (c *TokenCodec) registered(subject string, issuedAt, expiresAt time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    c.issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
}

// classify maps parser errors onto the codec's failures. A token past its
// expiry reports ErrTokenExpired even when its signature does not verify.
func (c *TokenCodec) classify(tokenString string, err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		if c.expiredUnverified(tokenString) {
			return ErrTokenExpired
		}
		return ErrTokenSignatureInvalid
	default:
		return ErrTokenMalformed
	}
}

func (c *TokenCodec) expiredUnverified(tokenString string) bool {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !c.now().Before(claims.ExpiresAt.Time)
}
