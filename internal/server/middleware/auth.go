// Package middleware provides HTTP middleware for request identity.
package middleware

import (
	"context"
	"net/http"
	"strings"
)

// ContextKey is a typed key for context values to avoid collisions.
type ContextKey string

// identityKey is the context key for the authenticated caller.
const identityKey ContextKey = "identity"

// Identity is the verified caller of a request.
type Identity struct {
	Subject string `json:"subject"`
	Role    string `json:"role,omitempty"`
}

// TokenValidator verifies a bearer token and returns the caller it names.
type TokenValidator interface {
	ValidateToken(tokenString string) (*Identity, error)
}

// AuthMiddleware creates middleware that validates bearer tokens and adds the
// caller's Identity to the request context. Paths in public skip verification.
func AuthMiddleware(validator TokenValidator, public ...string) func(http.Handler) http.Handler {
	open := make(map[string]bool, len(public))
	for _, p := range public {
		open[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if open[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			tokenString, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w)
				return
			}

			identity, err := validator.ValidateToken(tokenString)
			if err != nil || identity == nil || identity.Subject == "" {
				unauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// bearerToken parses "Bearer <token>" with a case-insensitive scheme.
func bearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="talent-match"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}

// WithIdentity returns a copy of ctx carrying identity.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFrom returns the caller attached by AuthMiddleware, if any.
func IdentityFrom(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityKey).(*Identity)
	return identity, ok && identity != nil
}
