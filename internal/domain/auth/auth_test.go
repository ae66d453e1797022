package auth

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memTokens struct {
	byHash map[string]*TokenInfo
}

func (m *memTokens) FindByTokenHash(_ context.Context, hash string) (*TokenInfo, error) {
	if info, ok := m.byHash[hash]; ok {
		return info, nil
	}
	return nil, errors.New("not found")
}

func newTokens(pepper []byte, raw map[string]TokenInfo) *memTokens {
	m := &memTokens{byHash: make(map[string]*TokenInfo)}
	for token, info := range raw {
		info.TokenHash = HashToken(pepper, token)
		stored := info
		m.byHash[stored.TokenHash] = &stored
	}
	return m
}

func TestHashTokenDeterministic(t *testing.T) {
	pepper := []byte("pepper")

	assert.Equal(t, HashToken(pepper, "secret"), HashToken(pepper, "secret"))
	assert.NotEqual(t, HashToken(pepper, "secret"), HashToken(pepper, "other"))
	assert.NotEqual(t, HashToken(pepper, "secret"), HashToken([]byte("different"), "secret"))
}

func TestAuthenticate(t *testing.T) {
	pepper := []byte("test-pepper")
	a := NewAuthenticator(newTokens(pepper, map[string]TokenInfo{
		"alice-token": {UserID: "alice", Role: RoleUser},
		"root-token":  {UserID: "root", Role: RoleAdmin},
	}), pepper)

	ident, err := a.Authenticate(context.Background(), "alice-token")
	require.NoError(t, err)
	assert.Equal(t, "alice", ident.UserID)
	assert.Equal(t, RoleUser, ident.Role)
	assert.False(t, ident.IsAdmin())
	assert.False(t, ident.IsGuest())

	admin, err := a.Authenticate(context.Background(), "root-token")
	require.NoError(t, err)
	assert.True(t, admin.IsAdmin())
}

func TestAuthenticateUnknownToken(t *testing.T) {
	pepper := []byte("test-pepper")
	a := NewAuthenticator(newTokens(pepper, nil), pepper)

	_, err := a.Authenticate(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthenticateWrongPepper(t *testing.T) {
	seedPepper := []byte("seed-pepper")
	a := NewAuthenticator(newTokens(seedPepper, map[string]TokenInfo{
		"alice-token": {UserID: "alice", Role: RoleUser},
	}), []byte("runtime-pepper"))

	// Hashes computed under a different pepper never match stored rows.
	_, err := a.Authenticate(context.Background(), "alice-token")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestIdentityKey(t *testing.T) {
	assert.Equal(t, "alice", Identity{UserID: "alice", Role: RoleUser}.Key())

	guest := Identity{GuestID: NewGuestID(), Role: RoleUser}
	assert.Equal(t, guest.GuestID, guest.Key())
	assert.True(t, guest.IsGuest())
}

func TestValidGuestID(t *testing.T) {
	assert.True(t, ValidGuestID(NewGuestID()))

	for _, id := range []string{
		"",
		"guest_",
		"guest_not-a-uuid",
		"user_0193e276-5a35-7c8e-b4a5-fb6b9f9a9c11",
		"0193e276-5a35-7c8e-b4a5-fb6b9f9a9c11",
	} {
		assert.False(t, ValidGuestID(id), "id %q should be rejected", id)
	}
}
