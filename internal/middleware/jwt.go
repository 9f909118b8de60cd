package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/videotube-api/internal/models"
	"github.com/noah-isme/videotube-api/pkg/response"
)

// ContextUserKey is the gin context key storing the authenticated principal.
const ContextUserKey = "currentUser"

// Session cookie names.
const (
	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"
)

type principalKey struct{}

// Authenticator resolves the principal behind an access token.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.UserProfile, error)
}

// JWT protects routes by requiring a valid access token taken from the
// accessToken cookie or, failing that, the Authorization bearer header.
// Every rejection produces the same 401 body.
func JWT(authenticator Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		profile, err := authenticator.Authenticate(c.Request.Context(), bearerToken(c))
		if err != nil {
			response.Unauthorized(c)
			return
		}

		c.Set(ContextUserKey, profile)
		c.Request = c.Request.WithContext(WithPrincipal(c.Request.Context(), profile))
		c.Next()
	}
}

// CurrentUser returns the principal attached by JWT.
func CurrentUser(c *gin.Context) (*models.UserProfile, bool) {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil, false
	}
	profile, ok := value.(*models.UserProfile)
	return profile, ok && profile != nil
}

// WithPrincipal stores profile in ctx.
func WithPrincipal(ctx context.Context, profile *models.UserProfile) context.Context {
	return context.WithValue(ctx, principalKey{}, profile)
}

// PrincipalFromContext returns the principal stored by WithPrincipal.
func PrincipalFromContext(ctx context.Context) (*models.UserProfile, bool) {
	profile, ok := ctx.Value(principalKey{}).(*models.UserProfile)
	return profile, ok && profile != nil
}

func bearerToken(c *gin.Context) string {
	if cookie, err := c.Cookie(AccessTokenCookie); err == nil && cookie != "" {
		return cookie
	}

	header := c.GetHeader("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
