package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultAccessTokenTTL defines the fallback validity period for user tokens.
const DefaultAccessTokenTTL = time.Hour

// Roles carried in the role claim.
const (
	RoleAnon     = "anon"
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
	RoleService  = "service"
)

// JWTConfig bundles the configuration required to build a JWTService.
type JWTConfig struct {
	Secret         string
	Issuer         string
	AccessTokenTTL time.Duration
	Clock          func() time.Time
}

// Claims represents the custom claims embedded in issued tokens. Publishable keys carry
// RoleAnon and no user id.
type Claims struct {
	UserID string `json:"uid,omitempty"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Anonymous reports whether the token only identifies the application.
func (c *Claims) Anonymous() bool {
	return c.Role == RoleAnon
}

// AccessTokenInput holds the parameters used when generating a new token.
type AccessTokenInput struct {
	UserID   string
	Role     string
	Audience []string
	// TTL overrides the configured lifetime; a negative value issues a token without expiry.
	TTL time.Duration
}

// JWTService issues and validates the HS256 tokens accepted by the API.
type JWTService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTService constructs a JWTService instance when provided with the required configuration.
func NewJWTService(cfg JWTConfig) (*JWTService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt: secret must be provided")
	}

	ttl := cfg.AccessTokenTTL
	if ttl <= 0 {
		ttl = DefaultAccessTokenTTL
	}

	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}

	return &JWTService{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    ttl,
		now:    now,
	}, nil
}

// GenerateAccessToken issues a signed token for a user or, with RoleAnon, a publishable key.
func (s *JWTService) GenerateAccessToken(input AccessTokenInput) (string, error) {
	role := input.Role
	if role == "" {
		role = RoleCustomer
	}
	if input.UserID == "" && role != RoleAnon {
		return "", errors.New("jwt: user id is required")
	}

	now := s.now()
	claims := &Claims{
		UserID: input.UserID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   input.UserID,
			Issuer:    s.issuer,
			Audience:  input.Audience,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	ttl := s.ttl
	if input.TTL != 0 {
		ttl = input.TTL
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}
	return signed, nil
}

// GeneratePublishableKey issues a non-expiring anonymous key for storefront clients.
func (s *JWTService) GeneratePublishableKey() (string, error) {
	return s.GenerateAccessToken(AccessTokenInput{Role: RoleAnon, TTL: -1})
}

// ValidateAccessToken parses and validates a signed token, returning its claims.
func (s *JWTService) ValidateAccessToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, errors.New("jwt: token string is empty")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)

	var claims Claims
	_, err := parser.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("jwt: parse token: %w", err)
	}

	if s.issuer != "" && claims.Issuer != s.issuer {
		return nil, errors.New("jwt: invalid issuer")
	}
	if claims.Role == "" {
		return nil, errors.New("jwt: missing role claim")
	}
	if claims.UserID == "" && !claims.Anonymous() {
		return nil, errors.New("jwt: missing user id claim")
	}
	return &claims, nil
}
