// Package auth issues and checks the session tokens returned by login.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/kuhlman-labs/migration-accelerator/internal/models"
)

var (
	// ErrInvalidToken is returned when token validation fails
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when token has expired
	ErrExpiredToken = errors.New("token has expired")
)

const issuer = "migration-accelerator"

// Claims represents JWT token claims
type Claims struct {
	UserID      int64    `json:"user_id"`
	Email       string   `json:"email"`
	Name        string   `json:"name"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

// HasPermission reports whether the token grants permission
func (c *Claims) HasPermission(permission string) bool {
	u := models.User{Role: c.Role, Permissions: c.Permissions}
	return u.HasPermission(permission)
}

// JWTManager handles JWT token generation and validation
type JWTManager struct {
	secretKey       []byte
	sessionDuration time.Duration
	now             func() time.Time
}

// NewJWTManager creates a new JWT manager. An empty secret gets a random
// one, which invalidates issued tokens on restart.
func NewJWTManager(secretKey string, sessionDurationHours int) (*JWTManager, error) {
	if secretKey == "" {
		random := make([]byte, 32)
		if _, err := rand.Read(random); err != nil {
			return nil, fmt.Errorf("failed to generate session secret: %w", err)
		}
		secretKey = hex.EncodeToString(random)
	}
	if sessionDurationHours <= 0 {
		sessionDurationHours = 24
	}

	return &JWTManager{
		secretKey:       []byte(secretKey),
		sessionDuration: time.Duration(sessionDurationHours) * time.Hour,
		now:             time.Now,
	}, nil
}

// GenerateToken creates a new JWT token for the user
func (m *JWTManager) GenerateToken(user *models.User) (string, error) {
	now := m.now()
	claims := &Claims{
		UserID:      user.ID,
		Email:       user.Email,
		Name:        user.Name,
		Role:        user.Role,
		Permissions: user.EffectivePermissions(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.sessionDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   strconv.FormatInt(user.ID, 10),
		},
	}

	return m.sign(claims)
}

// ValidateToken validates and parses a JWT token
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secretKey, nil
	})

	if err != nil {
		var validationErr *jwt.ValidationError
		if errors.As(err, &validationErr) && validationErr.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// RefreshToken creates a new token with extended expiration
func (m *JWTManager) RefreshToken(claims *Claims) (string, error) {
	now := m.now()
	newClaims := &Claims{
		UserID:      claims.UserID,
		Email:       claims.Email,
		Name:        claims.Name,
		Role:        claims.Role,
		Permissions: claims.Permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.sessionDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   claims.Subject,
		},
	}

	return m.sign(newClaims)
}

func (m *JWTManager) sign(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(m.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}
