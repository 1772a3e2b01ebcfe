// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 halcyon contributors
// https://github.com/halcyonrmm/halcyon

package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/halcyonrmm/halcyon/internal/access"
	apierrors "github.com/halcyonrmm/halcyon/internal/api/errors"
)

// Context keys for auth middleware.
const (
	// UserContextKey is the context key for user claims.
	UserContextKey contextKey = "user"

	// TokenContextKey is the context key for the raw JWT token.
	TokenContextKey contextKey = "token"
)

// HTTP headers and query params for auth.
const (
	AuthorizationHeader = "Authorization"
	BearerPrefix        = "Bearer "
	APIKeyHeader        = "X-API-KEY"
	TokenQueryParam     = "token"
)

// RoleAdmin marks platform operators whose scope spans every organization.
const RoleAdmin = "admin"

// UserClaims contains the claims extracted from a JWT token.
type UserClaims struct {
	UserID    string   `json:"user_id"`
	Username  string   `json:"username"`
	Email     string   `json:"email,omitempty"`
	Role      string   `json:"role"`
	OrgIDs    []string `json:"org_ids,omitempty"`
	SessionID string   `json:"session_id,omitempty"`
	jwt.RegisteredClaims
}

// Scope converts the claims into an organization access scope. Admins are
// unrestricted; everyone else is limited to the org_ids claim. Malformed
// ids are dropped silently, so a token with only garbage org ids resolves
// to a scope that can see nothing.
func (c *UserClaims) Scope() access.Scope {
	if c.Role == RoleAdmin {
		return access.Unrestricted()
	}
	orgs := make([]uuid.UUID, 0, len(c.OrgIDs))
	for _, raw := range c.OrgIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		orgs = append(orgs, id)
	}
	return access.NewOrgScope(orgs)
}

// APIKeyAuthenticator validates an API key and returns user claims.
type APIKeyAuthenticator func(ctx context.Context, apiKey string) (*UserClaims, error)

// TokenValidatorFunc is a function that performs additional token validation
// (e.g., checking if a token has been revoked).
type TokenValidatorFunc func(ctx context.Context, token string, claims *UserClaims) error

// AuthConfig contains configuration for the auth middleware.
type AuthConfig struct {
	// Secret is the JWT signing secret (required)
	Secret string

	// AdditionalSecrets contains previous signing secrets for key rotation support.
	// Tokens signed with any of these keys will be accepted for validation.
	// The primary Secret is always tried first, then AdditionalSecrets in order.
	AdditionalSecrets []string

	// TokenLookup defines how to extract the token from the request.
	// Format: "<source>:<name>", e.g., "header:Authorization", "query:token", "cookie:auth"
	// Multiple lookups can be specified, separated by comma.
	// Default: "header:Authorization,query:token"
	TokenLookup string

	// AuthScheme is the authorization scheme in the header (default: "Bearer")
	AuthScheme string

	// ContextKey is the key used to store claims in context (default: UserContextKey)
	ContextKey contextKey

	// ErrorHandler is called when authentication fails
	ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

	// TokenValidator is an optional function to perform additional token validation
	// (e.g., check if token is revoked). Receives the request context for store lookups.
	TokenValidator func(ctx context.Context, token string, claims *UserClaims) error

	// SuccessHandler is called after successful authentication (optional)
	SuccessHandler func(w http.ResponseWriter, r *http.Request, claims *UserClaims)

	// APIKeyAuth is an optional authenticator for API key-based auth via X-API-KEY header.
	APIKeyAuth APIKeyAuthenticator
}

// DefaultAuthConfig returns a default auth configuration.
// Tokens are only accepted from the Authorization header with Bearer prefix.
// Query parameter tokens are intentionally NOT supported as they appear in
// server logs, browser history, Referer headers, and proxy logs.
func DefaultAuthConfig(secret string) AuthConfig {
	return AuthConfig{
		Secret:       secret,
		TokenLookup:  "header:Authorization",
		AuthScheme:   "Bearer",
		ContextKey:   UserContextKey,
		ErrorHandler: defaultAuthErrorHandler,
	}
}

// Auth returns an authentication middleware that validates JWT tokens.
func Auth(config AuthConfig) func(http.Handler) http.Handler {
	if config.Secret == "" {
		panic("auth middleware: secret is required")
	}

	if config.TokenLookup == "" {
		config.TokenLookup = "header:Authorization,query:token"
	}

	if config.AuthScheme == "" {
		config.AuthScheme = "Bearer"
	}

	if config.ContextKey == "" {
		config.ContextKey = UserContextKey
	}

	if config.ErrorHandler == nil {
		config.ErrorHandler = defaultAuthErrorHandler
	}

	extractors := parseTokenLookup(config.TokenLookup, config.AuthScheme)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Check for API key authentication first
			if config.APIKeyAuth != nil {
				if apiKey := r.Header.Get(APIKeyHeader); apiKey != "" {
					claims, err := config.APIKeyAuth(r.Context(), apiKey)
					if err != nil {
						config.ErrorHandler(w, r, apierrors.Unauthorized("invalid API key"))
						return
					}
					ctx := context.WithValue(r.Context(), config.ContextKey, claims)
					if config.SuccessHandler != nil {
						config.SuccessHandler(w, r, claims)
					}
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			// Try to extract token from configured sources
			var tokenString string
			for _, extractor := range extractors {
				if token := extractor(r); token != "" {
					tokenString = token
					break
				}
			}

			if tokenString == "" {
				config.ErrorHandler(w, r, apierrors.Unauthorized(""))
				return
			}

			// Build list of secrets to try (primary + rotation keys)
			secrets := []string{config.Secret}
			secrets = append(secrets, config.AdditionalSecrets...)

			// Parse and validate token, trying each secret for key rotation support
			var token *jwt.Token
			var lastErr error
			for _, secret := range secrets {
				if secret == "" {
					continue
				}
				s := secret // capture for closure
				token, lastErr = jwt.ParseWithClaims(tokenString, &UserClaims{}, func(token *jwt.Token) (any, error) {
					if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
						return nil, jwt.ErrSignatureInvalid
					}
					return []byte(s), nil
				})
				if lastErr == nil && token.Valid {
					break
				}
			}

			if lastErr != nil || token == nil || !token.Valid {
				if lastErr != nil {
					switch {
					case strings.Contains(lastErr.Error(), "expired"):
						config.ErrorHandler(w, r, apierrors.ExpiredToken())
					default:
						config.ErrorHandler(w, r, apierrors.InvalidToken(lastErr.Error()))
					}
				} else {
					config.ErrorHandler(w, r, apierrors.InvalidToken(""))
				}
				return
			}

			claims, ok := token.Claims.(*UserClaims)
			if !ok {
				config.ErrorHandler(w, r, apierrors.InvalidToken("invalid claims"))
				return
			}

			// Optional: Additional token validation (e.g., check revocation)
			if config.TokenValidator != nil {
				if err := config.TokenValidator(r.Context(), tokenString, claims); err != nil {
					config.ErrorHandler(w, r, apierrors.RevokedToken())
					return
				}
			}

			// Optional: Success callback
			if config.SuccessHandler != nil {
				config.SuccessHandler(w, r, claims)
			}

			// Add claims to context
			ctx := context.WithValue(r.Context(), config.ContextKey, claims)
			ctx = context.WithValue(ctx, TokenContextKey, tokenString)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AuthSimple returns a simplified auth middleware using defaults.
func AuthSimple(secret string) func(http.Handler) http.Handler {
	return Auth(DefaultAuthConfig(secret))
}

// RequireAuth is a middleware that requires authentication.
// It uses a default secret from environment or a placeholder.
// In production, this should be configured properly.
var RequireAuth = func(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := GetUserFromContext(r.Context())
		if claims == nil {
			apierrors.WriteError(w, apierrors.Unauthorized(""))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ============================================================================
// Token extraction functions
// ============================================================================

type tokenExtractor func(*http.Request) string

func parseTokenLookup(lookup, authScheme string) []tokenExtractor {
	parts := strings.Split(lookup, ",")
	extractors := make([]tokenExtractor, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		kv := strings.SplitN(part, ":", 2)
		if len(kv) != 2 {
			continue
		}

		source := strings.ToLower(kv[0])
		name := kv[1]

		switch source {
		case "header":
			extractors = append(extractors, headerExtractor(name, authScheme))
		case "query":
			extractors = append(extractors, queryExtractor(name))
		case "cookie":
			extractors = append(extractors, cookieExtractor(name))
		}
	}

	return extractors
}

func headerExtractor(name, authScheme string) tokenExtractor {
	return func(r *http.Request) string {
		header := r.Header.Get(name)
		if header == "" {
			return ""
		}

		// Require auth scheme prefix (e.g. "Bearer ") per RFC 6750.
		// Accepting tokens without a scheme prefix can cause token confusion
		// with other auth schemes (Basic, Digest, etc.)
		if authScheme != "" {
			prefix := authScheme + " "
			if strings.HasPrefix(header, prefix) {
				return strings.TrimPrefix(header, prefix)
			}
			// No valid scheme prefix found — reject
			return ""
		}

		return header
	}
}

func queryExtractor(name string) tokenExtractor {
	return func(r *http.Request) string {
		return r.URL.Query().Get(name)
	}
}

func cookieExtractor(name string) tokenExtractor {
	return func(r *http.Request) string {
		cookie, err := r.Cookie(name)
		if err != nil {
			return ""
		}
		return cookie.Value
	}
}

// ============================================================================
// Error handler
// ============================================================================

func defaultAuthErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	requestID := GetRequestID(r.Context())
	if apiErr, ok := err.(*apierrors.APIError); ok {
		apierrors.WriteErrorWithRequestID(w, apiErr, requestID)
	} else {
		apierrors.WriteErrorWithRequestID(w, apierrors.Unauthorized(err.Error()), requestID)
	}
}

// ============================================================================
// Context helpers
// ============================================================================

// GetUserFromContext retrieves user claims from the context.
// Returns nil if no user is found.
func GetUserFromContext(ctx context.Context) *UserClaims {
	if claims, ok := ctx.Value(UserContextKey).(*UserClaims); ok {
		return claims
	}
	return nil
}

// GetUserFromRequest is a convenience function to get user from http.Request.
func GetUserFromRequest(r *http.Request) *UserClaims {
	return GetUserFromContext(r.Context())
}

// ScopeFromContext builds the caller's organization scope from the claims
// in the context. Returns nil when the request is unauthenticated; callers
// decide whether nil means "reject" or "unrestricted".
func ScopeFromContext(ctx context.Context) access.Scope {
	claims := GetUserFromContext(ctx)
	if claims == nil {
		return nil
	}
	return claims.Scope()
}

// GetTokenFromContext retrieves the raw JWT token from the context.
func GetTokenFromContext(ctx context.Context) string {
	if token, ok := ctx.Value(TokenContextKey).(string); ok {
		return token
	}
	return ""
}

// MustGetUser retrieves user claims from context and panics if not found.
// Use only in handlers where authentication is guaranteed.
func MustGetUser(ctx context.Context) *UserClaims {
	claims := GetUserFromContext(ctx)
	if claims == nil {
		panic("auth: user claims not found in context")
	}
	return claims
}

// ============================================================================
// Token revocation (in-memory)
// ============================================================================

// TokenRevocationStore manages revoked JWT tokens.
type TokenRevocationStore struct {
	mu      sync.RWMutex
	revoked map[string]time.Time // jti -> expiration time
}

// NewTokenRevocationStore creates a new revocation store.
func NewTokenRevocationStore() *TokenRevocationStore {
	store := &TokenRevocationStore{
		revoked: make(map[string]time.Time),
	}
	go store.cleanupExpired()
	return store
}

// Revoke marks a token as revoked.
func (s *TokenRevocationStore) Revoke(jti string, exp time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[jti] = exp
}

// IsRevoked checks if a token is revoked.
func (s *TokenRevocationStore) IsRevoked(jti string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.revoked[jti]
	return ok
}

// cleanupExpired removes expired tokens from the store periodically.
func (s *TokenRevocationStore) cleanupExpired() {
	ticker := time.NewTicker(time.Hour)
	for range ticker.C {
		s.mu.Lock()
		now := time.Now()
		for jti, exp := range s.revoked {
			if now.After(exp) {
				delete(s.revoked, jti)
			}
		}
		s.mu.Unlock()
	}
}

// ValidatorWithRevocation returns a token validator that checks revocation.
func (s *TokenRevocationStore) ValidatorWithRevocation() func(context.Context, string, *UserClaims) error {
	return func(_ context.Context, _ string, claims *UserClaims) error {
		if claims.ID != "" && s.IsRevoked(claims.ID) {
			return apierrors.RevokedToken()
		}
		return nil
	}
}

// ============================================================================
// Optional authentication (for endpoints that work with or without auth)
// ============================================================================

// OptionalAuth is like Auth but doesn't reject unauthenticated requests.
// The user claims will be nil in context if not authenticated.
func OptionalAuth(config AuthConfig) func(http.Handler) http.Handler {
	if config.Secret == "" {
		panic("auth middleware: secret is required")
	}

	if config.TokenLookup == "" {
		config.TokenLookup = "header:Authorization,query:token"
	}

	if config.AuthScheme == "" {
		config.AuthScheme = "Bearer"
	}

	if config.ContextKey == "" {
		config.ContextKey = UserContextKey
	}

	extractors := parseTokenLookup(config.TokenLookup, config.AuthScheme)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Try to extract token
			var tokenString string
			for _, extractor := range extractors {
				if token := extractor(r); token != "" {
					tokenString = token
					break
				}
			}

			// If no token, continue without authentication
			if tokenString == "" {
				next.ServeHTTP(w, r)
				return
			}

			// Try to parse token
			token, err := jwt.ParseWithClaims(tokenString, &UserClaims{}, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(config.Secret), nil
			})

			if err != nil || !token.Valid {
				// Invalid token, continue without authentication
				next.ServeHTTP(w, r)
				return
			}

			claims, ok := token.Claims.(*UserClaims)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			// Add claims to context
			ctx := context.WithValue(r.Context(), config.ContextKey, claims)
			ctx = context.WithValue(ctx, TokenContextKey, tokenString)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
