package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const userContextKey contextKey = "mcp-gateway-auth-user"

// WithUser returns a context carrying u, so downstream handlers can read it
// without re-parsing the token.
func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, userContextKey, u)
}

// UserFromContext retrieves the AuthUser placed by the middleware.
func UserFromContext(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(userContextKey).(User)
	return u, ok
}

// RequireAuth wraps next with bearer-token authentication for any request
// under mcpPrefix. Non-MCP routes pass through untouched. A request that is
// not an MCP streaming client (missing "text/event-stream" in Accept) is
// 307-redirected to "/", mirroring RequireAuthMiddlewareCustom in the
// original's src/auth/auth.py.
func RequireAuth(router *Router, mcpPrefix string, adminEmailDomain string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, mcpPrefix) {
			next.ServeHTTP(w, r)
			return
		}

		if !strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
			http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
			return
		}

		user, err := router.Authenticate(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		user = user.WithAdminEmailDomain(adminEmailDomain)
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}
