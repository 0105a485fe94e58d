package auth

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

type ctxKey struct{}

// TokenParser resolves a bearer token to a user id.
type TokenParser interface {
	Parse(token string) (string, error)
}

// WithUserID returns a copy of ctx carrying the authenticated user id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserIDFromContext returns the user id stored by RequireUser.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

// RequireUser rejects requests without a valid bearer token. A missing token
// is 401, a bad or expired one is 403.
func RequireUser(tokens TokenParser, logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "access token required"})
				return
			}
			token := strings.TrimSpace(header[len("bearer "):])
			if token == "" {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "access token required"})
				return
			}
			userID, err := tokens.Parse(token)
			if err != nil {
				logger.Debugw("rejected bearer token", "err", err)
				writeJSON(w, http.StatusForbidden, errorBody{Error: "invalid or expired token"})
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}
