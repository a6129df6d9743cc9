package auth

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Password-related errors
var (
	ErrHashingFailed      = errors.New("failed to hash password")
	ErrEmptyPassword      = errors.New("password cannot be empty")
	ErrPasswordTooLong    = errors.New("password is too long")
	ErrEmptyUsername      = errors.New("username cannot be empty")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// PasswordConfig contains configuration for password handling
type PasswordConfig struct {
	// MaxLength specifies the maximum allowed length for passwords
	MaxLength int

	// HashCost specifies the cost parameter for bcrypt.
	// bcrypt.MinCost keeps tests fast.
	HashCost int
}

// DefaultPasswordConfig returns the default password configuration
func DefaultPasswordConfig() PasswordConfig {
	return PasswordConfig{
		MaxLength: 72, // bcrypt limit
		HashCost:  bcrypt.DefaultCost,
	}
}

// PasswordService handles password operations
type PasswordService struct {
	Config PasswordConfig
}

// NewPasswordService creates a new password service with the provided configuration
func NewPasswordService(config PasswordConfig) *PasswordService {
	return &PasswordService{
		Config: config,
	}
}

// HashPassword hashes a password using bcrypt
func (s *PasswordService) HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	if len(password) > s.Config.MaxLength {
		return "", fmt.Errorf("%w: maximum length is %d", ErrPasswordTooLong, s.Config.MaxLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.Config.HashCost)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrHashingFailed, err)
	}
	return string(hash), nil
}

// CheckPassword verifies if a password matches a hash
func (s *PasswordService) CheckPassword(password, hash string) bool {
	if password == "" || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// UserStore keeps bcrypt hashes of the accounts allowed to open a session
type UserStore struct {
	mu        sync.RWMutex
	passwords *PasswordService
	hashes    map[string]string
}

// NewUserStore creates an empty user store
func NewUserStore(passwords *PasswordService) *UserStore {
	return &UserStore{
		passwords: passwords,
		hashes:    make(map[string]string),
	}
}

// Add registers or replaces an account
func (s *UserStore) Add(username, password string) error {
	if username == "" {
		return ErrEmptyUsername
	}

	hash, err := s.passwords.HashPassword(password)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.hashes[username] = hash
	return nil
}

// Authenticate checks the username and password against the stored hash
func (s *UserStore) Authenticate(username, password string) error {
	s.mu.RLock()
	hash, ok := s.hashes[username]
	s.mu.RUnlock()

	if !ok || !s.passwords.CheckPassword(password, hash) {
		return ErrInvalidCredentials
	}
	return nil
}
