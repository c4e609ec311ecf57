package auth

import (
	"context"
	"sync"
	"time"
)

// TokenRevocationStore tracks revoked token ids (JWT "jti") until the token
// would have expired on its own. It also keeps per-subject cutoffs: every
// token of a subject issued at or before the cutoff is refused. Safe for
// concurrent use.
type TokenRevocationStore struct {
	mu       sync.RWMutex
	entries  map[string]time.Time // jti -> token expiry
	subjects map[string]subjectCutoff
	now      func() time.Time
}

type subjectCutoff struct {
	before time.Time
	until  time.Time
}

func NewTokenRevocationStore() *TokenRevocationStore {
	return &TokenRevocationStore{
		entries:  make(map[string]time.Time),
		subjects: make(map[string]subjectCutoff),
		now:      time.Now,
	}
}

// Revoke adds a token id to the revocation list.
func (s *TokenRevocationStore) Revoke(jti string, expiresAt time.Time) {
	if jti == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[jti] = expiresAt
}

// IsRevoked checks if a token id has been revoked.
func (s *TokenRevocationStore) IsRevoked(jti string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[jti]
	return ok
}

// RevokeSubject refuses every token of subject issued at or before cutoff.
// The entry is kept until keepUntil, which callers set to cutoff plus the
// token lifetime. A later cutoff replaces an earlier one.
func (s *TokenRevocationStore) RevokeSubject(subject string, cutoff, keepUntil time.Time) {
	if subject == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.subjects[subject]; ok && cur.before.After(cutoff) {
		return
	}
	s.subjects[subject] = subjectCutoff{before: cutoff, until: keepUntil}
}

// IsSubjectRevoked reports whether a token of subject issued at issuedAt
// falls before the subject's cutoff. Token timestamps have second
// precision, so a token from the same second as the cutoff is refused.
func (s *TokenRevocationStore) IsSubjectRevoked(subject string, issuedAt time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cut, ok := s.subjects[subject]
	if !ok {
		return false
	}
	return !issuedAt.After(cut.before.Truncate(time.Second))
}

// Count returns the number of tracked revocations.
func (s *TokenRevocationStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries) + len(s.subjects)
}

// StartCleanup drops expired entries every interval until ctx is done.
func (s *TokenRevocationStore) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.cleanup()
			}
		}
	}()
}

func (s *TokenRevocationStore) cleanup() {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for jti, expiresAt := range s.entries {
		if now.After(expiresAt) {
			delete(s.entries, jti)
		}
	}
	for sub, cut := range s.subjects {
		if now.After(cut.until) {
			delete(s.subjects, sub)
		}
	}
}
