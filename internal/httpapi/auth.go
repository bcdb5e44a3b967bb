package httpapi

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// ManagerPIN guards operator interventions on the pending queue. Only the
// bcrypt hash is kept in memory.
type ManagerPIN struct {
	hash []byte
}

// NewManagerPIN hashes pin. An empty pin yields a guard that rejects every
// attempt, so discarding pending sales is disabled.
func NewManagerPIN(pin string) (*ManagerPIN, error) {
	pin = strings.TrimSpace(pin)
	if pin == "" {
		return &ManagerPIN{}, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash manager pin: %w", err)
	}
	return &ManagerPIN{hash: hash}, nil
}

func (p *ManagerPIN) Enabled() bool {
	return p != nil && len(p.hash) > 0
}

func (p *ManagerPIN) Validate(pin string) bool {
	input := strings.TrimSpace(pin)
	if input == "" || !p.Enabled() {
		return false
	}
	return bcrypt.CompareHashAndPassword(p.hash, []byte(input)) == nil
}

// csrfGuard issues stateless tokens bound to an hour bucket. A token is
// accepted during its own hour and the next one.
type csrfGuard struct {
	secret []byte
	now    func() time.Time
}

func newCSRFGuard() *csrfGuard {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic(fmt.Sprintf("csrf secret: %v", err))
	}
	return &csrfGuard{secret: secret, now: time.Now}
}

func (g *csrfGuard) tokenFor(bucket int64) string {
	h := hmac.New(sha256.New, g.secret)
	fmt.Fprintf(h, "%d", bucket)
	return hex.EncodeToString(h.Sum(nil))
}

func (g *csrfGuard) Issue() string {
	return g.tokenFor(g.now().UTC().Truncate(time.Hour).Unix())
}

func (g *csrfGuard) Valid(token string) bool {
	if token == "" {
		return false
	}
	current := g.now().UTC().Truncate(time.Hour).Unix()
	return hmac.Equal([]byte(token), []byte(g.tokenFor(current))) ||
		hmac.Equal([]byte(token), []byte(g.tokenFor(current-3600)))
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.entries[key][:0:0]
	for _, ts := range l.entries[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

var errLoginRequired = errors.New("login_required")
