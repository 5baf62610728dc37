// Package session holds the authenticated session passed to the remote
// gateway's call sites. The session has an explicit lifecycle, set on
// login and cleared on logout, instead of living in ambient global state.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/remarket/remarket/internal/errs"
)

// Session carries the bearer token and the identity it was issued for.
// Safe for concurrent use; the gateway reads it on every request while the
// CLI may set or clear it.
type Session struct {
	mu       sync.RWMutex
	token    string
	userID   string
	expires  time.Time
	filePath string
}

type persisted struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}

// Load reads a previously saved session from dir, if any. A missing file
// yields an empty (logged-out) session, not an error.
func Load(dir string) (*Session, error) {
	s := &Session{filePath: filepath.Join(dir, "session.json")}

	data, err := os.ReadFile(s.filePath)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}

	var p persisted
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse session file: %w", err)
	}
	s.apply(p.Token, p.UserID)
	return s, nil
}

// Set installs a new token, persisting it for later runs. The token's expiry
// is taken from its claims without signature verification; the server stays
// the authority on token validity.
func (s *Session) Set(token, userID string) error {
	s.apply(token, userID)

	if s.filePath == "" {
		return nil
	}
	data, err := json.Marshal(persisted{Token: token, UserID: userID})
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	if err := os.WriteFile(s.filePath, data, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}

func (s *Session) apply(token, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = token
	s.userID = userID
	s.expires = time.Time{}

	if token == "" {
		return
	}
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			s.expires = exp.Time
		}
		if userID == "" {
			if sub, err := claims.GetSubject(); err == nil {
				s.userID = sub
			}
		}
	}
}

// Clear forgets the session and removes the persisted file.
func (s *Session) Clear() error {
	s.mu.Lock()
	s.token = ""
	s.userID = ""
	s.expires = time.Time{}
	s.mu.Unlock()

	if s.filePath == "" {
		return nil
	}
	if err := os.Remove(s.filePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

// Token returns the bearer token, or errs.ErrNoSession when logged out or
// the token is known to be expired.
func (s *Session) Token() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.token == "" {
		return "", errs.ErrNoSession
	}
	if !s.expires.IsZero() && time.Now().After(s.expires) {
		return "", errs.ErrNoSession
	}
	return s.token, nil
}

// UserID returns the identity the session was issued for, or "".
func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// Active reports whether a usable session is present.
func (s *Session) Active() bool {
	_, err := s.Token()
	return err == nil
}
