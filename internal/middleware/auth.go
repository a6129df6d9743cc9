package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/threatflux/scangate/internal/auth"
)

// TokenHeader carries the session token
const TokenHeader = "X-Auth-Token"

const tokenDetailsKey = "tokenDetails"

// Error codes reported in the structured error body
const (
	CodeInvalidRequest = 1
	CodeUnauthorized   = 2
	CodeNotReady       = 3
	CodeInternal       = 4
)

// Authentication errors
var (
	ErrTokenMissing      = errors.New("session token is required")
	ErrTokenVerification = errors.New("failed to verify token")
)

// TokenVerifier validates session tokens
type TokenVerifier interface {
	Verify(token string) (*auth.TokenDetails, error)
}

// AuthMiddleware checks the session token of every protected route
type AuthMiddleware struct {
	verifier TokenVerifier
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(verifier TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
	}
}

// RequireToken rejects requests without a valid, unrevoked session token
func (m *AuthMiddleware) RequireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader(TokenHeader)
		if token == "" {
			AbortWithError(c, http.StatusUnauthorized, CodeUnauthorized, "Authentication failed", ErrTokenMissing.Error())
			return
		}

		details, err := m.verifier.Verify(token)
		if err != nil {
			AbortWithError(c, http.StatusUnauthorized, CodeUnauthorized, "Authentication failed", ErrTokenVerification.Error()+": "+err.Error())
			return
		}

		c.Set(tokenDetailsKey, details)
		c.Next()
	}
}

// GetTokenDetails extracts the token details from the request context
func GetTokenDetails(c *gin.Context) (*auth.TokenDetails, error) {
	value, exists := c.Get(tokenDetailsKey)
	if !exists {
		return nil, errors.New("token details not found in context")
	}

	details, ok := value.(*auth.TokenDetails)
	if !ok {
		return nil, errors.New("token details in context have invalid type")
	}
	return details, nil
}
