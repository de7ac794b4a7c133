package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"meditrack-backend/internal/models"
)

// RefreshWindow is how close to expiry a token must be before it can be refreshed
const RefreshWindow = time.Hour

// AuthService issues and verifies session tokens
type AuthService struct {
	jwtSecret     string
	jwtExpiration time.Duration
	adminDomain   string
	tokens        TokenStore
}

// NewAuthService creates a new auth service
func NewAuthService(jwtSecret string, jwtExpirationSeconds int, adminDomain string, tokens TokenStore) *AuthService {
	if tokens == nil {
		tokens = NewMemoryTokenStore()
	}
	return &AuthService{
		jwtSecret:     jwtSecret,
		jwtExpiration: time.Duration(jwtExpirationSeconds) * time.Second,
		adminDomain:   strings.ToLower(adminDomain),
		tokens:        tokens,
	}
}

// JWTClaims represents JWT token claims
type JWTClaims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// IsAdminEmail reports whether email belongs to the admin domain
func IsAdminEmail(email, adminDomain string) bool {
	if adminDomain == "" {
		return false
	}
	return strings.HasSuffix(strings.ToLower(strings.TrimSpace(email)), strings.ToLower(adminDomain))
}

// IsAdmin reports whether the email belongs to an administrator
func (s *AuthService) IsAdmin(email string) bool {
	return IsAdminEmail(email, s.adminDomain)
}

// GenerateToken generates a JWT token for a user
func (s *AuthService) GenerateToken(user *models.User) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.jwtExpiration)
	claims := &JWTClaims{
		UserID: user.ID,
		Email:  user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "meditrack",
			Subject:   user.ID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// ValidateToken validates a JWT token and returns the claims
func (s *AuthService) ValidateToken(ctx context.Context, tokenString string) (*JWTClaims, error) {
	revoked, err := s.tokens.IsRevoked(ctx, tokenString)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrTokenRevoked
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, fmt.Errorf("%w: invalid token claims", ErrUnauthorized)
	}

	return claims, nil
}

// RefreshToken issues a new token when the current one is within the refresh window, revoking the old one
func (s *AuthService) RefreshToken(ctx context.Context, tokenString string) (string, time.Time, error) {
	claims, err := s.ValidateToken(ctx, tokenString)
	if err != nil {
		return "", time.Time{}, err
	}

	if time.Until(claims.ExpiresAt.Time) > RefreshWindow {
		return "", time.Time{}, fmt.Errorf("%w: token is not close to expiry", ErrInvalidInput)
	}

	newToken, expiresAt, err := s.GenerateToken(&models.User{ID: claims.UserID, Email: claims.Email})
	if err != nil {
		return "", time.Time{}, err
	}

	if err := s.tokens.Revoke(ctx, tokenString, claims.ExpiresAt.Time); err != nil {
		return "", time.Time{}, err
	}

	return newToken, expiresAt, nil
}

// RevokeToken signs a token out until it would have expired
func (s *AuthService) RevokeToken(ctx context.Context, tokenString string) error {
	claims, err := s.ValidateToken(ctx, tokenString)
	if err != nil {
		return err
	}
	return s.tokens.Revoke(ctx, tokenString, claims.ExpiresAt.Time)
}
