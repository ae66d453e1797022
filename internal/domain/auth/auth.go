// Package auth defines the identity model consumed by the rest of the
// service. Token issuance is out of scope: tokens are provisioned by the
// seed tool and verified here via an HMAC-SHA256 hash lookup, so raw
// tokens are never stored.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// ErrUnauthorized is returned for missing, malformed or unknown tokens.
var ErrUnauthorized = errors.New("unauthorized")

// Role distinguishes regular customers from administrators.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Identity is the authenticated (or guest) actor attached to a request.
// Exactly one of UserID and GuestID is set.
type Identity struct {
	UserID  string
	GuestID string
	Role    Role
}

// IsAdmin reports whether the identity has the admin role.
func (id Identity) IsAdmin() bool {
	return id.Role == RoleAdmin
}

// IsGuest reports whether the identity is an unauthenticated guest.
func (id Identity) IsGuest() bool {
	return id.UserID == ""
}

// Key returns the opaque owner key used for cart and order ownership:
// the user ID for authenticated users, the guest token otherwise.
func (id Identity) Key() string {
	if id.UserID != "" {
		return id.UserID
	}
	return id.GuestID
}

// TokenInfo is a stored token record: the hash, the user it belongs to,
// and that user's role.
type TokenInfo struct {
	UserID    string
	TokenHash string
	Role      Role
}

// Repository provides lookup of auth tokens by their HMAC hash.
type Repository interface {
	FindByTokenHash(ctx context.Context, hash string) (*TokenInfo, error)
}

// HashToken computes the hex HMAC-SHA256 of a raw token under the server
// pepper. Both the seed tool and the authenticator use this, so hashes
// stay comparable.
func HashToken(pepper []byte, token string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

// Authenticator resolves bearer tokens to identities.
type Authenticator struct {
	tokens Repository
	pepper []byte
}

// NewAuthenticator creates an Authenticator with the given token
// repository and HMAC pepper.
func NewAuthenticator(tokens Repository, pepper []byte) *Authenticator {
	return &Authenticator{tokens: tokens, pepper: pepper}
}

// Authenticate verifies a raw bearer token: it computes the HMAC hash,
// looks it up, and compares the stored hash in constant time before
// trusting the row.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (Identity, error) {
	hash := HashToken(a.pepper, token)

	info, err := a.tokens.FindByTokenHash(ctx, hash)
	if err != nil {
		return Identity{}, ErrUnauthorized
	}

	stored, err := hex.DecodeString(info.TokenHash)
	if err != nil {
		return Identity{}, ErrUnauthorized
	}
	computed, err := hex.DecodeString(hash)
	if err != nil {
		return Identity{}, ErrUnauthorized
	}
	if subtle.ConstantTimeCompare(computed, stored) != 1 {
		return Identity{}, ErrUnauthorized
	}

	return Identity{UserID: info.UserID, Role: info.Role}, nil
}

const guestPrefix = "guest_"

// NewGuestID generates a fresh opaque guest identity token.
func NewGuestID() string {
	return guestPrefix + uuid.New().String()
}

// ValidGuestID reports whether a client-supplied guest token has the
// expected shape. Guest tokens carry no privileges beyond owning their
// own cart, so shape validation is all that is needed.
func ValidGuestID(id string) bool {
	if !strings.HasPrefix(id, guestPrefix) {
		return false
	}
	_, err := uuid.Parse(strings.TrimPrefix(id, guestPrefix))
	return err == nil
}
