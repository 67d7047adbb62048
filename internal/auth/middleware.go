package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// Middleware resolves bearer tokens into claims
type Middleware struct {
	jwtManager *JWTManager
	logger     *slog.Logger
	required   bool
}

// NewMiddleware creates a new authentication middleware. When required is
// false, requests without a token pass through anonymously.
func NewMiddleware(jwtManager *JWTManager, logger *slog.Logger, required bool) *Middleware {
	return &Middleware{
		jwtManager: jwtManager,
		logger:     logger,
		required:   required,
	}
}

// Context keys for storing user information
type authContextKey string

const (
	ContextKeyClaims authContextKey = "auth_claims"
)

// Authenticate attaches the claims of a valid bearer token to the request
// context. Invalid or expired tokens are rejected; missing ones only when
// tokens are required.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ExtractBearerToken(r)
		if token == "" {
			if m.required {
				m.respondUnauthorized(w, "Authentication required")
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		claims, err := m.jwtManager.ValidateToken(token)
		if err != nil {
			m.logger.Debug("Rejected bearer token", "path", r.URL.Path, "error", err)
			message := "Invalid token"
			if err == ErrExpiredToken {
				message = "Session expired"
			}
			m.respondUnauthorized(w, message)
			return
		}

		ctx := context.WithValue(r.Context(), ContextKeyClaims, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// respondUnauthorized sends a 401 Unauthorized response
func (m *Middleware) respondUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	if err := json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	}); err != nil {
		m.logger.Error("Failed to encode unauthorized response", "error", err)
	}
}

// GetClaimsFromContext retrieves the JWT claims from request context
func GetClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ContextKeyClaims).(*Claims)
	return claims, ok
}

// ExtractBearerToken extracts a bearer token from the Authorization header
func ExtractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}

	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
