package auth

import (
	"testing"
	"time"
)

func TestTokenRevocationStore_RevokeAndCheck(t *testing.T) {
	s := NewTokenRevocationStore()
	s.Revoke("jti-1", time.Now().Add(time.Hour))

	if !s.IsRevoked("jti-1") {
		t.Error("expected jti-1 to be revoked")
	}
	if s.IsRevoked("jti-2") {
		t.Error("expected jti-2 not to be revoked")
	}
}

func TestTokenRevocationStore_IgnoresEmptyID(t *testing.T) {
	s := NewTokenRevocationStore()
	s.Revoke("", time.Now().Add(time.Hour))
	if s.Count() != 0 {
		t.Errorf("expected no entries, got %d", s.Count())
	}
}

func TestTokenRevocationStore_CleanupDropsExpired(t *testing.T) {
	s := NewTokenRevocationStore()
	s.Revoke("old", time.Now().Add(-time.Minute))
	s.Revoke("fresh", time.Now().Add(time.Hour))

	s.cleanup()

	if s.IsRevoked("old") {
		t.Error("expected expired entry to be dropped")
	}
	if !s.IsRevoked("fresh") {
		t.Error("expected unexpired entry to remain")
	}
}

func TestTokenRevocationStore_RevokeSubject(t *testing.T) {
	s := NewTokenRevocationStore()
	cutoff := time.Date(2026, 3, 1, 12, 0, 0, 500_000_000, time.UTC)
	s.RevokeSubject("doc-1", cutoff, cutoff.Add(time.Hour))

	tests := []struct {
		name     string
		subject  string
		issuedAt time.Time
		want     bool
	}{
		{"issued before cutoff", "doc-1", cutoff.Add(-time.Minute), true},
		{"issued in cutoff second", "doc-1", cutoff.Truncate(time.Second), true},
		{"issued after cutoff", "doc-1", cutoff.Add(2 * time.Second).Truncate(time.Second), false},
		{"other subject", "doc-2", cutoff.Add(-time.Minute), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.IsSubjectRevoked(tt.subject, tt.issuedAt); got != tt.want {
				t.Errorf("IsSubjectRevoked = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTokenRevocationStore_RevokeSubjectKeepsLatestCutoff(t *testing.T) {
	s := NewTokenRevocationStore()
	later := time.Now()
	earlier := later.Add(-time.Hour)
	s.RevokeSubject("doc-1", later, later.Add(time.Hour))
	s.RevokeSubject("doc-1", earlier, earlier.Add(time.Hour))

	if !s.IsSubjectRevoked("doc-1", later.Add(-time.Minute)) {
		t.Error("expected the later cutoff to stay in force")
	}
}

func TestTokenRevocationStore_CleanupDropsExpiredSubjects(t *testing.T) {
	s := NewTokenRevocationStore()
	now := time.Now()
	s.RevokeSubject("gone", now.Add(-2*time.Hour), now.Add(-time.Hour))
	s.RevokeSubject("kept", now, now.Add(time.Hour))

	s.cleanup()

	if s.IsSubjectRevoked("gone", now.Add(-3*time.Hour)) {
		t.Error("expected expired subject cutoff to be dropped")
	}
	if !s.IsSubjectRevoked("kept", now.Add(-time.Minute)) {
		t.Error("expected live subject cutoff to remain")
	}
	if s.Count() != 1 {
		t.Errorf("expected 1 entry, got %d", s.Count())
	}
}
