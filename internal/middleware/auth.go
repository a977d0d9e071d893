package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/bitebell/internal/auth"
	"github.com/charlesng35/bitebell/internal/authctx"
	"github.com/charlesng35/bitebell/pkg/errors"
	"github.com/charlesng35/bitebell/pkg/response"
)

const (
	CtxClaimsKey = "authClaims"
	CtxUserIDKey = "userID"
	CtxRoleKey   = "role"
)

// Auth validates the bearer token (a user token or the publishable key) and stores the
// caller both in gin keys and, as an authctx.Principal, in the request context so
// services see who is acting.
func Auth(jwt *iauth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		claims, err := jwt.ValidateAccessToken(token)
		if err != nil {
			// Normalise all validation failures to 401
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Set(CtxRoleKey, claims.Role)
		if !claims.Anonymous() {
			c.Set(CtxUserIDKey, claims.UserID)
		}

		principal := authctx.Principal{
			UserID:    claims.UserID,
			Role:      claims.Role,
			IPAddress: c.ClientIP(),
			Anonymous: claims.Anonymous(),
		}
		c.Request = c.Request.WithContext(authctx.WithPrincipal(c.Request.Context(), principal))

		c.Next()
	}
}

// bearerToken reads the Authorization header, falling back to the apikey header used by
// storefront clients that only hold the publishable key.
func bearerToken(c *gin.Context) (string, bool) {
	authz := c.GetHeader("Authorization")
	if len(authz) >= 8 && strings.EqualFold(authz[:7], "Bearer ") {
		token := strings.TrimSpace(authz[7:])
		return token, token != ""
	}
	if key := strings.TrimSpace(c.GetHeader("apikey")); key != "" {
		return key, true
	}
	return "", false
}

// RequireUser rejects callers holding only the publishable key.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := authctx.FromContext(c.Request.Context())
		if !ok || principal.Anonymous || principal.UserID == "" {
			response.Error(c, errors.ErrUnauthorized.WithMessage("user token required"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireAdmin restricts a route to admin and service principals.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := authctx.FromContext(c.Request.Context())
		if !ok {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}
		if !principal.IsAdmin() {
			response.Error(c, errors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
