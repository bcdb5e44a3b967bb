package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offlinepos/client/internal/domain"
	"offlinepos/client/internal/syncerr"
)

var operator = domain.User{UserID: 3, CompanyID: 8, CompanyName: "Corner Shop"}

func signedToken(t *testing.T, expiresAt time.Time) string {
	t.Helper()
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.RegisteredClaims{
		Subject:   "cashier",
		ExpiresAt: jwtlib.NewNumericDate(expiresAt),
	})
	signed, err := token.SignedString([]byte("backend-secret"))
	require.NoError(t, err)
	return signed
}

func TestNoSessionIsPrecondition(t *testing.T) {
	m, err := NewManager("")
	require.NoError(t, err)

	_, err = m.Token(context.Background())
	assert.True(t, syncerr.IsPrecondition(err))
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestSetPersistsAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "session.json")
	m, err := NewManager(path)
	require.NoError(t, err)

	_, err = m.Set("opaque-token", operator)
	require.NoError(t, err)

	reloaded, err := NewManager(path)
	require.NoError(t, err)
	s, err := reloaded.Current()
	require.NoError(t, err)
	assert.Equal(t, "opaque-token", s.Token)
	assert.Equal(t, operator, s.User)
	assert.Nil(t, s.ExpiresAt)

	require.NoError(t, reloaded.Clear())
	afterClear, err := NewManager(path)
	require.NoError(t, err)
	_, err = afterClear.Current()
	assert.True(t, syncerr.IsPrecondition(err))
}

func TestExpiredJWTKeepsSession(t *testing.T) {
	m, err := NewManager("")
	require.NoError(t, err)

	token := signedToken(t, time.Now().Add(time.Hour))
	s, err := m.Set(token, operator)
	require.NoError(t, err)
	require.NotNil(t, s.ExpiresAt)
	assert.False(t, m.Expired())

	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	assert.True(t, m.Expired())

	user, err := m.User()
	require.NoError(t, err)
	assert.Equal(t, operator, user)

	got, err := m.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, token, got)
}

func TestSetRejectsIncompleteIdentity(t *testing.T) {
	m, err := NewManager("")
	require.NoError(t, err)

	_, err = m.Set("", operator)
	assert.True(t, syncerr.IsValidation(err))

	_, err = m.Set("tok", domain.User{UserID: 1})
	assert.True(t, syncerr.IsValidation(err))
}
