package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	iauth "github.com/charlesng35/bitebell/internal/auth"
	"github.com/charlesng35/bitebell/internal/authctx"
)

func newJWT(t *testing.T) *iauth.JWTService {
	t.Helper()
	svc, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "test-secret", Issuer: "bitebell", AccessTokenTTL: time.Hour})
	require.NoError(t, err)
	return svc
}

func authRouter(jwt *iauth.JWTService, guards ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers := append([]gin.HandlerFunc{Auth(jwt)}, guards...)
	handlers = append(handlers, func(c *gin.Context) {
		p, _ := authctx.FromContext(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"user": p.UserID, "role": p.Role, "anon": p.Anonymous})
	})
	r.GET("/who", handlers...)
	return r
}

func call(r *gin.Engine, header, value string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/who", nil)
	if header != "" {
		req.Header.Set(header, value)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestAuthRejectsMissingToken(t *testing.T) {
	r := authRouter(newJWT(t))

	w := call(r, "", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))

	w = call(r, "Authorization", "Bearer not-a-token")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthStoresPrincipal(t *testing.T) {
	jwt := newJWT(t)
	token, err := jwt.GenerateAccessToken(iauth.AccessTokenInput{UserID: "user-7", Role: iauth.RoleCustomer})
	require.NoError(t, err)

	w := call(authRouter(jwt), "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"user":"user-7","role":"customer","anon":false}`, w.Body.String())
}

func TestPublishableKeyViaAPIKeyHeader(t *testing.T) {
	jwt := newJWT(t)
	key, err := jwt.GeneratePublishableKey()
	require.NoError(t, err)

	w := call(authRouter(jwt), "apikey", key)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"user":"","role":"anon","anon":true}`, w.Body.String())

	w = call(authRouter(jwt, RequireUser()), "apikey", key)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAdmin(t *testing.T) {
	jwt := newJWT(t)
	customer, err := jwt.GenerateAccessToken(iauth.AccessTokenInput{UserID: "c-1", Role: iauth.RoleCustomer})
	require.NoError(t, err)
	admin, err := jwt.GenerateAccessToken(iauth.AccessTokenInput{UserID: "a-1", Role: iauth.RoleAdmin})
	require.NoError(t, err)

	r := authRouter(jwt, RequireAdmin())
	require.Equal(t, http.StatusForbidden, call(r, "Authorization", "Bearer "+customer).Code)
	require.Equal(t, http.StatusOK, call(r, "Authorization", "Bearer "+admin).Code)
}
