package session

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/remarket/remarket/internal/errs"
)

// signToken issues a test JWT with the given subject and expiry.
func signToken(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": exp.Unix(),
	})
	signed, err := tok.SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return signed
}

func TestLoadMissingFile(t *testing.T) {
	s, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s.Active() {
		t.Error("Fresh session must be logged out")
	}
	if _, err := s.Token(); !errors.Is(err, errs.ErrNoSession) {
		t.Errorf("Expected ErrNoSession, got %v", err)
	}
}

func TestSetPersistsAcrossLoad(t *testing.T) {
	dir := t.TempDir()
	token := signToken(t, "user-42", time.Now().Add(time.Hour))

	s, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := s.Set(token, "user-42"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// File must not be world readable.
	info, err := os.Stat(filepath.Join(dir, "session.json"))
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("Session file mode = %o, want 600", perm)
	}

	reloaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	got, err := reloaded.Token()
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if got != token {
		t.Error("Token did not survive reload")
	}
	if reloaded.UserID() != "user-42" {
		t.Errorf("UserID = %q, want user-42", reloaded.UserID())
	}
}

func TestSubjectFallback(t *testing.T) {
	s := &Session{}
	token := signToken(t, "user-7", time.Now().Add(time.Hour))

	if err := s.Set(token, ""); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if s.UserID() != "user-7" {
		t.Errorf("UserID = %q, want user-7 from token subject", s.UserID())
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	s := &Session{}
	token := signToken(t, "user-1", time.Now().Add(-time.Minute))

	if err := s.Set(token, "user-1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, err := s.Token(); !errors.Is(err, errs.ErrNoSession) {
		t.Errorf("Expected ErrNoSession for expired token, got %v", err)
	}
	if s.Active() {
		t.Error("Expired session must not report active")
	}
}

func TestOpaqueTokenAccepted(t *testing.T) {
	// Not a JWT at all; the session keeps it and lets the server judge.
	s := &Session{}
	if err := s.Set("opaque-api-key", "user-1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := s.Token()
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if got != "opaque-api-key" {
		t.Errorf("Token = %q", got)
	}
}

func TestClear(t *testing.T) {
	dir := t.TempDir()
	s, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	token := signToken(t, "user-1", time.Now().Add(time.Hour))
	if err := s.Set(token, "user-1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if s.Active() {
		t.Error("Cleared session must be logged out")
	}
	if _, err := os.Stat(filepath.Join(dir, "session.json")); !errors.Is(err, os.ErrNotExist) {
		t.Error("Persisted session file must be removed")
	}

	// Clearing twice is fine.
	if err := s.Clear(); err != nil {
		t.Errorf("Second Clear failed: %v", err)
	}
}
