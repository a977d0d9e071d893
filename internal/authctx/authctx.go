// Package authctx carries the authenticated caller through service calls.
package authctx

import "context"

// Principal describes who issued the current request.
type Principal struct {
	UserID    string
	Role      string
	IPAddress string
	// Anonymous is set for requests authenticated with the publishable key only.
	Anonymous bool
}

// IsAdmin reports whether the principal may use the admin API.
func (p Principal) IsAdmin() bool {
	return p.Role == "admin" || p.Role == "service"
}

type principalContextKey struct{}

// WithPrincipal returns a derived context carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, principalContextKey{}, p)
}

// FromContext extracts the principal stored by WithPrincipal.
func FromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}

// UserID returns the authenticated user id, or "" for anonymous callers.
func UserID(ctx context.Context) string {
	p, ok := FromContext(ctx)
	if !ok || p.Anonymous {
		return ""
	}
	return p.UserID
}
