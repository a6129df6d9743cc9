package auth

import (
	"sync"
	"time"
)

// RevocationStore remembers revoked token IDs until they would have expired anyway
type RevocationStore struct {
	mu     sync.Mutex
	tokens map[string]time.Time
	now    func() time.Time
}

// NewRevocationStore creates an empty in-memory store
func NewRevocationStore() *RevocationStore {
	return &RevocationStore{
		tokens: make(map[string]time.Time),
		now:    time.Now,
	}
}

// Revoke marks tokenID as revoked until expiresAt
func (s *RevocationStore) Revoke(tokenID string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[tokenID] = expiresAt
}

// IsRevoked reports whether tokenID was revoked
func (s *RevocationStore) IsRevoked(tokenID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tokens[tokenID]
	return ok
}

// DeleteExpired drops entries whose tokens have expired and returns how many were removed
func (s *RevocationStore) DeleteExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	count := 0
	for id, expiresAt := range s.tokens {
		if expiresAt.Before(now) {
			delete(s.tokens, id)
			count++
		}
	}
	return count
}

// Len returns the number of revoked tokens currently tracked
func (s *RevocationStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}
