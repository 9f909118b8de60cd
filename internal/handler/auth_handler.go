package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/videotube-api/internal/middleware"
	"github.com/noah-isme/videotube-api/internal/models"
	"github.com/noah-isme/videotube-api/pkg/config"
	appErrors "github.com/noah-isme/videotube-api/pkg/errors"
	"github.com/noah-isme/videotube-api/pkg/response"
)

type authService interface {
	Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error)
	Refresh(ctx context.Context, presented string) (*models.TokenPair, error)
	Logout(ctx context.Context, userID string) error
}

// AuthHandler wires HTTP endpoints to the auth service.
type AuthHandler struct {
	service authService
	cookies config.CookieConfig
	now     func() time.Time
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(svc authService, cookies config.CookieConfig) *AuthHandler {
	if cookies.Path == "" {
		cookies.Path = "/"
	}
	return &AuthHandler{service: svc, cookies: cookies, now: time.Now}
}

// Login godoc
// @Summary Authenticate user
// @Description Authenticate by username or email and password. Sets the accessToken and refreshToken cookies.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.LoginRequest true "Login payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /users/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid login payload"))
		return
	}

	res, err := h.service.Login(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.setSessionCookies(c, &res.TokenPair)
	response.JSON(c, http.StatusOK, res, "user logged in successfully")
}

// Refresh godoc
// @Summary Refresh session
// @Description Exchange the current refresh token (cookie or body) for a new token pair
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.RefreshTokenRequest false "Refresh payload"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /users/refresh-token [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	presented, err := c.Cookie(middleware.RefreshTokenCookie)
	if err != nil || presented == "" {
		var req models.RefreshTokenRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid refresh payload"))
			return
		}
		presented = req.RefreshToken
	}

	pair, err := h.service.Refresh(c.Request.Context(), presented)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.setSessionCookies(c, pair)
	response.JSON(c, http.StatusOK, pair, "access token refreshed")
}

// Logout godoc
// @Summary Logout current session
// @Description Clear the stored refresh token and the session cookies
// @Tags Authentication
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /users/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	profile, ok := middleware.CurrentUser(c)
	if !ok {
		response.Unauthorized(c)
		return
	}

	if err := h.service.Logout(c.Request.Context(), profile.ID); err != nil {
		response.Error(c, err)
		return
	}

	h.clearSessionCookies(c)
	response.JSON(c, http.StatusOK, gin.H{}, "user logged out")
}

func (h *AuthHandler) setSessionCookies(c *gin.Context, pair *models.TokenPair) {
	now := h.now()
	h.writeCookie(c, middleware.AccessTokenCookie, pair.AccessToken, pair.AccessExpiresAt, int(pair.AccessExpiresAt.Sub(now).Seconds()))
	h.writeCookie(c, middleware.RefreshTokenCookie, pair.RefreshToken, pair.RefreshExpiresAt, int(pair.RefreshExpiresAt.Sub(now).Seconds()))
}

func (h *AuthHandler) clearSessionCookies(c *gin.Context) {
	h.writeCookie(c, middleware.AccessTokenCookie, "", time.Unix(0, 0), -1)
	h.writeCookie(c, middleware.RefreshTokenCookie, "", time.Unix(0, 0), -1)
}

func (h *AuthHandler) writeCookie(c *gin.Context, name, value string, expires time.Time, maxAge int) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     h.cookies.Path,
		Domain:   h.cookies.Domain,
		Expires:  expires,
		MaxAge:   maxAge,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}
