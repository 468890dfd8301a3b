package auth

import (
	"sync"
	"time"
)

const revocationSweepInterval = 5 * time.Minute

// TokenRevocationStore remembers credentials that were logged out before
// their natural expiry. Entries drop out once the token would have expired
// anyway. Safe for concurrent use.
type TokenRevocationStore struct {
	mu      sync.RWMutex
	entries map[string]RevocationInfo // JTI -> entry
	now     func() time.Time
	done    chan struct{}
	once    sync.Once
}

// RevocationInfo is a single revoked credential.
type RevocationInfo struct {
	JTI       string    `json:"jti"`
	UserID    string    `json:"user_id,omitempty"`
	RevokedAt time.Time `json:"revoked_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewTokenRevocationStore creates a store and starts its background sweeper.
func NewTokenRevocationStore() *TokenRevocationStore {
	s := &TokenRevocationStore{
		entries: make(map[string]RevocationInfo),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go s.sweepLoop(revocationSweepInterval)
	return s
}

// RevokeClaims revokes the credential described by claims. Revoking the
// same JTI twice keeps the first entry.
func (s *TokenRevocationStore) RevokeClaims(claims *Claims) {
	if claims == nil || claims.ID == "" {
		return
	}
	expiresAt := s.now().Add(time.Hour)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[claims.ID]; exists {
		return
	}
	s.entries[claims.ID] = RevocationInfo{
		JTI:       claims.ID,
		UserID:    claims.Subject,
		RevokedAt: s.now(),
		ExpiresAt: expiresAt,
	}
}

// IsRevoked checks if a token JTI has been revoked.
func (s *TokenRevocationStore) IsRevoked(jti string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.entries[jti]
	return ok
}

// Count returns the number of currently revoked tokens.
func (s *TokenRevocationStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Entries returns a snapshot of all current revocation entries.
func (s *TokenRevocationStore) Entries() []RevocationInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]RevocationInfo, 0, len(s.entries))
	for _, entry := range s.entries {
		result = append(result, entry)
	}
	return result
}

// Close stops the sweeper. Safe to call more than once.
func (s *TokenRevocationStore) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *TokenRevocationStore) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep removes entries whose tokens are past their expiry.
func (s *TokenRevocationStore) sweep() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	for jti, entry := range s.entries {
		if now.After(entry.ExpiresAt) {
			delete(s.entries, jti)
		}
	}
}
