package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visionpanel/internal/store"
)

// memUserStore is an in-memory UserStore for tests.
type memUserStore struct {
	users map[string]*store.User
}

func (m *memUserStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	return m.users[username], nil
}

func newTestAuthenticator(t *testing.T, ttl time.Duration) (*Authenticator, *memUserStore) {
	t.Helper()
	hash, err := HashPassword("secret123")
	require.NoError(t, err)

	users := &memUserStore{users: map[string]*store.User{
		"alice": {ID: "u1", Username: "alice", Password: hash},
	}}
	return NewAuthenticator("test-secret", ttl, users), users
}

func TestAuthenticate(t *testing.T) {
	a, _ := newTestAuthenticator(t, time.Minute)

	user, err := a.Authenticate(context.Background(), "alice", "secret123")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
}

func TestAuthenticateWrongPassword(t *testing.T) {
	a, _ := newTestAuthenticator(t, time.Minute)

	_, err := a.Authenticate(context.Background(), "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticateUnknownUser(t *testing.T) {
	a, _ := newTestAuthenticator(t, time.Minute)

	_, err := a.Authenticate(context.Background(), "ghost", "whatever")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestTokenRoundTrip(t *testing.T) {
	a, _ := newTestAuthenticator(t, time.Minute)

	token, expiresAt, err := a.GenerateToken("alice")
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := a.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	a, _ := newTestAuthenticator(t, time.Minute)

	_, err := a.ValidateToken("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	a, users := newTestAuthenticator(t, time.Minute)
	other := NewAuthenticator("different-secret", time.Minute, users)

	token, _, err := other.GenerateToken("alice")
	require.NoError(t, err)

	_, err = a.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenExpired(t *testing.T) {
	a, _ := newTestAuthenticator(t, -time.Minute)

	token, _, err := a.GenerateToken("alice")
	require.NoError(t, err)

	_, err = a.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestCurrentUser(t *testing.T) {
	a, _ := newTestAuthenticator(t, time.Minute)

	token, _, err := a.GenerateToken("alice")
	require.NoError(t, err)

	user, err := a.CurrentUser(context.Background(), token)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "alice", user.Username)
}

func TestCurrentUserInvalidToken(t *testing.T) {
	a, _ := newTestAuthenticator(t, time.Minute)

	user, err := a.CurrentUser(context.Background(), "bogus")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestHashPasswordNotPlaintext(t *testing.T) {
	hash, err := HashPassword("secret123")
	require.NoError(t, err)
	assert.NotEqual(t, "secret123", hash)
	assert.NotEmpty(t, hash)
}
