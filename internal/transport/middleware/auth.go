package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/sourcehub/sourcehub/internal/usecase"
)

type principalKey struct{}

// Principal returns the authenticated user id stored by Auth, or "".
func Principal(ctx context.Context) string {
	principal, _ := ctx.Value(principalKey{}).(string)
	return principal
}

func WithPrincipal(ctx context.Context, userId string) context.Context {
	return context.WithValue(ctx, principalKey{}, userId)
}

// Auth requires a Bearer token on every request it wraps.
func Auth(auth *usecase.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeUnauthorized(w)
				return
			}

			principal, err := auth.Authenticate(r.Context(), usecase.Credentials{Token: token})
			if err != nil {
				writeUnauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"code":"AUTHENTICATION_REQUIRED","message":"authentication required"}`))
}
