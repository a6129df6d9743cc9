package auth

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testPasswords() *PasswordService {
	return NewPasswordService(PasswordConfig{MaxLength: 72, HashCost: bcrypt.MinCost})
}

func TestPasswordService(t *testing.T) {
	service := testPasswords()

	hash, err := service.HashPassword("admin")
	require.NoError(t, err)
	assert.NotEqual(t, "admin", hash)
	assert.True(t, service.CheckPassword("admin", hash))
	assert.False(t, service.CheckPassword("wrong", hash))
	assert.False(t, service.CheckPassword("", hash))

	_, err = service.HashPassword("")
	assert.ErrorIs(t, err, ErrEmptyPassword)

	_, err = service.HashPassword(strings.Repeat("a", 73))
	assert.ErrorIs(t, err, ErrPasswordTooLong)
}

func TestDefaultPasswordConfig(t *testing.T) {
	config := DefaultPasswordConfig()
	assert.Equal(t, 72, config.MaxLength)
	assert.Equal(t, bcrypt.DefaultCost, config.HashCost)
}

func TestUserStore(t *testing.T) {
	store := NewUserStore(testPasswords())
	require.NoError(t, store.Add("admin", "admin"))

	assert.NoError(t, store.Authenticate("admin", "admin"))
	assert.ErrorIs(t, store.Authenticate("admin", "nope"), ErrInvalidCredentials)
	assert.ErrorIs(t, store.Authenticate("ghost", "admin"), ErrInvalidCredentials)
	assert.ErrorIs(t, store.Add("", "x"), ErrEmptyUsername)
}

func newTestJWTService() *JWTService {
	config := DefaultJWTConfig()
	config.Secret = "test-secret"
	return NewJWTService(config, NewRevocationStore(), testLogger())
}

func TestJWTIssueAndVerify(t *testing.T) {
	service := newTestJWTService()

	token, issued, err := service.Issue("admin")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.NotEmpty(t, issued.TokenID)

	details, err := service.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, issued.TokenID, details.TokenID)
	assert.Equal(t, "admin", details.Username)
	assert.WithinDuration(t, issued.ExpiresAt, details.ExpiresAt, time.Second)
}

func TestJWTRevoke(t *testing.T) {
	service := newTestJWTService()

	token, issued, err := service.Issue("admin")
	require.NoError(t, err)

	service.Revoke(issued)
	_, err = service.Verify(token)
	assert.ErrorIs(t, err, ErrRevokedToken)
}

func TestJWTVerifyFailures(t *testing.T) {
	service := newTestJWTService()

	_, err := service.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := newTestJWTService()
	other.Config.Secret = "other-secret"
	token, _, err := other.Issue("admin")
	require.NoError(t, err)
	_, err = service.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	foreign := newTestJWTService()
	foreign.Config.Issuer = "someone-else"
	token, _, err = foreign.Issue("admin")
	require.NoError(t, err)
	_, err = service.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidIssuer)

	expired := newTestJWTService()
	expired.Config.TokenExpiry = -time.Minute
	token, _, err = expired.Issue("admin")
	require.NoError(t, err)
	_, err = service.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, SessionClaims{Username: "admin"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = service.Verify(unsigned)
	assert.Error(t, err)
}

func TestJWTMissingKey(t *testing.T) {
	service := NewJWTService(DefaultJWTConfig(), nil, nil)

	_, _, err := service.Issue("admin")
	assert.ErrorIs(t, err, ErrMissingKey)
	_, err = service.Verify("token")
	assert.ErrorIs(t, err, ErrMissingKey)
}

func TestRevocationStore(t *testing.T) {
	store := NewRevocationStore()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	store.Revoke("old", now.Add(-time.Minute))
	store.Revoke("fresh", now.Add(time.Minute))
	assert.True(t, store.IsRevoked("old"))
	assert.False(t, store.IsRevoked("unknown"))

	assert.Equal(t, 1, store.DeleteExpired())
	assert.Equal(t, 1, store.Len())
	assert.True(t, store.IsRevoked("fresh"))
}
