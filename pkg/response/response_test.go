package response

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/videotube-api/pkg/errors"
)

func TestErrorHidesInternalCause(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Error(c, errors.New("pq: password authentication failed for user postgres"))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "pq:")
	assert.Contains(t, w.Body.String(), appErrors.ErrInternal.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestErrorRendersTypedError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Error(c, appErrors.Clone(appErrors.ErrConflict, "user with email or username already exists"))

	require.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"error":{"code":"CONFLICT","message":"user with email or username already exists","status":409}}`, w.Body.String())
}

func TestUnauthorizedIsUniform(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Unauthorized(c)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.True(t, c.IsAborted())
	assert.JSONEq(t, `{"error":{"code":"UNAUTHORIZED","message":"unauthorized request","status":401}}`, w.Body.String())
}

func TestErrorCollapsesUnauthorizedVariants(t *testing.T) {
	gin.SetMode(gin.TestMode)

	variants := []error{
		appErrors.ErrInvalidCredentials,
		appErrors.Clone(appErrors.ErrUnauthorized, "refresh token is expired or used"),
		appErrors.Wrap(errors.New("token is expired"), "UNAUTHORIZED", http.StatusUnauthorized, "access token expired"),
	}
	for _, err := range variants {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)

		Error(c, err)

		require.Equal(t, http.StatusUnauthorized, w.Code)
		assert.JSONEq(t, `{"error":{"code":"UNAUTHORIZED","message":"unauthorized request","status":401}}`, w.Body.String())
	}
}
