package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/joao-fontenele/shopflow/internal/domain"
	"github.com/joao-fontenele/shopflow/internal/httpx"
)

type contextKey struct{}

func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, contextKey{}, claims)
}

func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(contextKey{}).(*Claims)
	return claims, ok && claims != nil
}

// Authenticate requires a valid "Authorization: Bearer <token>" header and
// stores the token's claims in the request context.
func Authenticate(issuer *TokenIssuer, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, found := strings.CutPrefix(header, "Bearer ")
			if !found || strings.TrimSpace(token) == "" {
				_ = httpx.WriteJSON(w, http.StatusUnauthorized, httpx.Failure("Unauthorized", "missing token"))
				return
			}

			claims, err := issuer.Parse(strings.TrimSpace(token))
			if err != nil {
				logger.Info("rejected token", "error", err)
				_ = httpx.WriteJSON(w, http.StatusUnauthorized, httpx.Failure("Invalid token", "invalid or expired token"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// RequireRole must run after Authenticate.
func RequireRole(role domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				_ = httpx.WriteJSON(w, http.StatusUnauthorized, httpx.Failure("Unauthorized", "missing token"))
				return
			}
			if claims.Role != role {
				_ = httpx.WriteJSON(w, http.StatusForbidden, httpx.Failure("Forbidden", "insufficient permissions"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
