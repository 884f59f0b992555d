package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
)

type contextKey string

const (
	userIDKey  contextKey = "user_id"
	storeIDKey contextKey = "store_id"
)

// Middleware verifies the bearer token once per request and puts the
// caller's identity and store scope into the request context. Handlers
// never re-implement the check.
func Middleware(issuer string) func(http.Handler) http.Handler {
	if issuer == "" {
		panic("OIDC issuer not configured")
	}

	provider, err := oidc.NewProvider(context.Background(), issuer)
	if err != nil {
		panic(fmt.Sprintf("Failed to create OIDC provider: %v", err))
	}

	verifier := provider.Verifier(&oidc.Config{
		SkipClientIDCheck: true,
	})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawToken, err := ExtractTokenFromRequest(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			idToken, err := verifier.Verify(r.Context(), rawToken)
			if err != nil {
				http.Error(w, fmt.Sprintf("invalid token: %v", err), http.StatusUnauthorized)
				return
			}

			var claims struct {
				Sub     string `json:"sub"`
				StoreID string `json:"store_id"`
			}
			if err := idToken.Claims(&claims); err != nil {
				http.Error(w, "failed to parse claims", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims.Sub, claims.StoreID)))
		})
	}
}

// WithClaims attaches a verified identity and store scope to a context.
func WithClaims(ctx context.Context, userID, storeID string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, storeIDKey, storeID)
}

// UserID returns the authenticated caller's subject, or "".
func UserID(ctx context.Context) string {
	if uid, ok := ctx.Value(userIDKey).(string); ok {
		return uid
	}
	return ""
}

// StoreID returns the store scope from the caller's token, or "".
func StoreID(ctx context.Context) string {
	if sid, ok := ctx.Value(storeIDKey).(string); ok {
		return sid
	}
	return ""
}

// AuthorizedForStore reports whether the caller may act on the given
// store. An empty claim means an unscoped (owner/admin) token.
func AuthorizedForStore(ctx context.Context, storeID string) bool {
	claim := StoreID(ctx)
	return claim == "" || strings.EqualFold(claim, storeID)
}
