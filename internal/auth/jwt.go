package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// JWT error definitions
var (
	ErrInvalidToken         = errors.New("invalid token")
	ErrExpiredToken         = errors.New("token has expired")
	ErrInvalidSigningMethod = errors.New("invalid signing method")
	ErrInvalidClaims        = errors.New("invalid token claims")
	ErrMissingKey           = errors.New("signing key is missing")
	ErrInvalidIssuer        = errors.New("invalid token issuer")
	ErrRevokedToken         = errors.New("token has been revoked")
)

// JWTConfig contains configuration for session token generation and validation
type JWTConfig struct {
	// Secret key used for signing tokens
	Secret string

	// TokenExpiry defines the lifetime of a session token
	TokenExpiry time.Duration

	// Issuer identifies the principal that issued the JWT
	Issuer string
}

// DefaultJWTConfig returns the default JWT configuration
func DefaultJWTConfig() JWTConfig {
	return JWTConfig{
		TokenExpiry: 30 * time.Minute,
		Issuer:      "scangate-simulator",
	}
}

// SessionClaims defines the claims carried by a session token
type SessionClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenDetails holds the validated contents of a session token
type TokenDetails struct {
	TokenID   string
	Username  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// JWTService issues and validates HS256 session tokens
type JWTService struct {
	Config  JWTConfig
	revoked *RevocationStore
	log     *logrus.Logger
}

// NewJWTService creates a new JWT service with the provided configuration
func NewJWTService(config JWTConfig, revoked *RevocationStore, log *logrus.Logger) *JWTService {
	if log == nil {
		log = logrus.New()
	}
	if revoked == nil {
		revoked = NewRevocationStore()
	}
	return &JWTService{
		Config:  config,
		revoked: revoked,
		log:     log,
	}
}

// Issue signs a new session token for username
func (s *JWTService) Issue(username string) (string, *TokenDetails, error) {
	if s.Config.Secret == "" {
		return "", nil, ErrMissingKey
	}

	now := time.Now()
	details := &TokenDetails{
		TokenID:   uuid.New().String(),
		Username:  username,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.Config.TokenExpiry),
	}

	claims := SessionClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(details.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    s.Config.Issuer,
			ID:        details.TokenID,
			Subject:   username,
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.Config.Secret))
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, details, nil
}

// Verify validates a token and rejects revoked ones
func (s *JWTService) Verify(tokenString string) (*TokenDetails, error) {
	if s.Config.Secret == "" {
		return nil, ErrMissingKey
	}

	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSigningMethod
		}
		return []byte(s.Config.Secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		s.log.WithError(err).Debug("Token parsing/validation failed")
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.ID == "" {
		return nil, ErrInvalidClaims
	}
	if claims.Issuer != s.Config.Issuer {
		return nil, ErrInvalidIssuer
	}
	if s.revoked.IsRevoked(claims.ID) {
		return nil, ErrRevokedToken
	}

	details := &TokenDetails{
		TokenID:  claims.ID,
		Username: claims.Username,
	}
	if claims.IssuedAt != nil {
		details.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		details.ExpiresAt = claims.ExpiresAt.Time
	}
	return details, nil
}

// Revoke invalidates a previously issued token
func (s *JWTService) Revoke(details *TokenDetails) {
	if n := s.revoked.DeleteExpired(); n > 0 {
		s.log.WithField("count", n).Debug("Pruned expired revocations")
	}
	s.revoked.Revoke(details.TokenID, details.ExpiresAt)
}
