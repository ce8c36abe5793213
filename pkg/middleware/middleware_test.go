package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/auth"
)

func setupRouter(t *testing.T) (*gin.Engine, *auth.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	service := auth.NewService("test-secret")
	service.RegisterAPICredentials("trader", "s1", "acc-1")
	service.RegisterAPICredentials("venue", "s2", "venue", auth.PermissionTrade, auth.PermissionInternal)

	r := gin.New()
	r.GET("/private", JWTAuth(service), func(c *gin.Context) {
		c.String(http.StatusOK, auth.GetAccountID(c))
	})
	r.GET("/internal", InternalAuth(service), func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	return r, service
}

func tokenFor(t *testing.T, service *auth.Service, key, secret string) string {
	t.Helper()
	tok, err := service.GenerateToken(auth.Credentials{APIKey: key, APISecret: secret})
	require.NoError(t, err)
	return tok.Token
}

func do(r *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAuthSetsAccount(t *testing.T) {
	r, service := setupRouter(t)

	w := do(r, "/private", tokenFor(t, service, "trader", "s1"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "acc-1", w.Body.String())
}

func TestJWTAuthRejectsMissingAndForeignTokens(t *testing.T) {
	r, _ := setupRouter(t)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/private", "").Code)

	other := auth.NewService("other-secret")
	other.RegisterAPICredentials("trader", "s1", "acc-1")
	assert.Equal(t, http.StatusUnauthorized, do(r, "/private", tokenFor(t, other, "trader", "s1")).Code)
}

func TestInternalAuthRequiresPermission(t *testing.T) {
	r, service := setupRouter(t)

	assert.Equal(t, http.StatusForbidden, do(r, "/internal", tokenFor(t, service, "trader", "s1")).Code)
	assert.Equal(t, http.StatusOK, do(r, "/internal", tokenFor(t, service, "venue", "s2")).Code)
}

func TestRateLimitRejectsBurst(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimit())
	r.POST("/api/v1/auth/token", func(c *gin.Context) { c.Status(http.StatusOK) })

	first := httptest.NewRecorder()
	r.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", nil))
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	r.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestRateLimitKeysOnAccountAfterAuth(t *testing.T) {
	r, service := setupRouter(t)
	r.GET("/api/v1/auth/session", JWTAuth(service), RateLimit(), func(c *gin.Context) { c.Status(http.StatusOK) })

	trader := tokenFor(t, service, "trader", "s1")
	assert.Equal(t, http.StatusOK, do(r, "/api/v1/auth/session", trader).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(r, "/api/v1/auth/session", trader).Code)

	// Same client IP, different account.
	assert.Equal(t, http.StatusOK, do(r, "/api/v1/auth/session", tokenFor(t, service, "venue", "s2")).Code)
}
