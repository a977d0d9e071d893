package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/bitebell/internal/authctx"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// principal returns the caller attached by the auth middleware.
func principal(c *gin.Context) authctx.Principal {
	p, _ := authctx.FromContext(requestContext(c))
	return p
}

// scopedUserID resolves whose notifications a request concerns. Customers only ever see
// their own; admins and publishable-key callers may name any user through the query.
func scopedUserID(c *gin.Context) string {
	p := principal(c)
	requested := strings.TrimSpace(c.Query("user_id"))
	if !p.Anonymous && !p.IsAdmin() && p.UserID != "" {
		return p.UserID
	}
	return requested
}

func param(c *gin.Context, key string) string {
	return strings.TrimSpace(c.Param(key))
}
