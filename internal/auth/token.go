package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labforge/trackd/internal/models"
)

// TokenManager handles bearer credential generation and validation. A
// credential binds an identity, its role and one session id; the session
// authority decides validity independently of the signature.
type TokenManager struct {
	secret   string
	lifetime time.Duration
}

// NewTokenManager creates a new TokenManager
func NewTokenManager(secret string, lifetime time.Duration) *TokenManager {
	return &TokenManager{
		secret:   secret,
		lifetime: lifetime,
	}
}

// GenerateToken creates a signed bearer credential for one session
func (tm *TokenManager) GenerateToken(user *models.User, sessionID string) (string, error) {
	claims := &models.TokenClaims{
		UserID:    user.ID,
		Email:     user.Email,
		Role:      user.Role,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tm.lifetime)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString([]byte(tm.secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateToken verifies a credential's signature and returns its claims.
// A structurally valid credential still needs its session checked before
// it grants anything.
func (tm *TokenManager) ValidateToken(tokenString string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(tm.secret), nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, models.ErrUnauthorized
	}

	if claims.SessionID == "" {
		return nil, fmt.Errorf("invalid token: missing session id")
	}

	if _, err := models.ParseRole(string(claims.Role)); err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	return claims, nil
}
