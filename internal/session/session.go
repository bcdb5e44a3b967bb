// Package session holds the bearer credential and operator identity the login
// flow hands over, persisted to a small JSON file so a restart does not force
// a new login.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"offlinepos/client/internal/domain"
	"offlinepos/client/internal/syncerr"
)

var ErrNoSession = errors.New("no active session")

type Session struct {
	Token     string      `json:"token"`
	User      domain.User `json:"user"`
	ExpiresAt *time.Time  `json:"expires_at,omitempty"`
	StartedAt time.Time   `json:"started_at"`
}

type Manager struct {
	mu      sync.RWMutex
	path    string
	current *Session
	now     func() time.Time
}

// NewManager loads a persisted session from path if one exists. An empty path
// keeps the session in memory only.
func NewManager(path string) (*Manager, error) {
	m := &Manager{path: strings.TrimSpace(path), now: time.Now}
	if m.path == "" {
		return m, nil
	}

	raw, err := os.ReadFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session file: %w", err)
	}
	if s.Token != "" {
		m.current = &s
	}
	return m, nil
}

// Set replaces the current session. The token is inspected for an exp claim
// without verifying its signature; the backend remains the authority.
func (m *Manager) Set(token string, user domain.User) (Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Session{}, syncerr.New(syncerr.Validation, "session.set", "token is required")
	}
	if user.UserID <= 0 || user.CompanyID <= 0 {
		return Session{}, syncerr.New(syncerr.Validation, "session.set", "user id and company id are required")
	}

	s := Session{
		Token:     token,
		User:      user,
		ExpiresAt: tokenExpiry(token),
		StartedAt: m.now().UTC(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.persist(&s); err != nil {
		return Session{}, err
	}
	m.current = &s
	return s, nil
}

func (m *Manager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = nil
	if m.path == "" {
		return nil
	}
	if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

// Current returns the active session, or a Precondition error when none is
// present. An expired token still counts as a session: local sales keep
// working offline and the backend's 401 asks for a new login.
func (m *Manager) Current() (Session, error) {
	m.mu.RLock()
	s := m.current
	m.mu.RUnlock()

	if s == nil {
		return Session{}, syncerr.Wrap(syncerr.Precondition, "session", ErrNoSession)
	}
	return *s, nil
}

// Expired reports whether the token carries an exp claim that has passed.
func (m *Manager) Expired() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current != nil && m.current.ExpiresAt != nil && !m.now().Before(*m.current.ExpiresAt)
}

// Token implements gateway.TokenSource.
func (m *Manager) Token(_ context.Context) (string, error) {
	s, err := m.Current()
	if err != nil {
		return "", err
	}
	return s.Token, nil
}

func (m *Manager) User() (domain.User, error) {
	s, err := m.Current()
	if err != nil {
		return domain.User{}, err
	}
	return s.User, nil
}

func (m *Manager) persist(s *Session) error {
	if m.path == "" {
		return nil
	}
	payload, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}

// tokenExpiry returns the exp claim of a JWT, or nil for opaque tokens and
// tokens without one.
func tokenExpiry(token string) *time.Time {
	claims := jwtlib.MapClaims{}
	if _, _, err := jwtlib.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	t := exp.Time.UTC()
	return &t
}
