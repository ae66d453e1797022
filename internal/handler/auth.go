package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/souq-labs/souq-api/internal/domain/auth"
)

type identityKey struct{}

// identityFrom returns the request identity, if any was resolved.
func identityFrom(ctx context.Context) (auth.Identity, bool) {
	ident, ok := ctx.Value(identityKey{}).(auth.Identity)
	return ident, ok
}

// GuestIDHeader carries the opaque guest token for unauthenticated carts
// and guest checkouts.
const GuestIDHeader = "X-Guest-ID"

// withIdentity resolves the caller's identity and stores it on the request
// context. A bearer token wins over a guest header; an invalid bearer token
// is rejected outright rather than silently downgraded to guest.
func (h *Handler) withIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if header := r.Header.Get("Authorization"); header != "" {
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				h.fail(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			ident, err := h.authenticator.Authenticate(ctx, token)
			if err != nil {
				h.fail(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, identityKey{}, ident)))
			return
		}

		if guestID := r.Header.Get(GuestIDHeader); auth.ValidGuestID(guestID) {
			ident := auth.Identity{GuestID: guestID, Role: auth.RoleUser}
			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, identityKey{}, ident)))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requireIdentity admits authenticated users and guests alike.
func (h *Handler) requireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := identityFrom(r.Context()); !ok {
			h.fail(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireUser admits only authenticated (non-guest) users.
func (h *Handler) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident, ok := identityFrom(r.Context())
		if !ok || ident.IsGuest() {
			h.fail(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAdmin admits only administrators.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident, ok := identityFrom(r.Context())
		if !ok {
			h.fail(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		if !ident.IsAdmin() {
			h.fail(w, http.StatusForbidden, "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
