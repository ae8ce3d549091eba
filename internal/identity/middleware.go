package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/fjod/cartflow/internal/domain"
	"go.uber.org/zap"
)

var ErrUnauthenticated = errors.New("no authenticated user")

type userContextKey struct{}

func WithUser(ctx context.Context, user domain.UserIdentity) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

func UserFromContext(ctx context.Context) (domain.UserIdentity, bool) {
	user, ok := ctx.Value(userContextKey{}).(domain.UserIdentity)
	return user, ok
}

// ContextProvider resolves the current user from the request context filled
// in by Middleware.
type ContextProvider struct{}

func (ContextProvider) CurrentUser(ctx context.Context) (domain.UserIdentity, error) {
	user, ok := UserFromContext(ctx)
	if !ok {
		return domain.UserIdentity{}, domain.Wrap(domain.ErrAuth, ErrUnauthenticated)
	}
	return user, nil
}

// Middleware rejects requests without a valid bearer token. Browsers cannot
// set headers on EventSource, so the token is also accepted from the
// access_token query parameter.
func Middleware(v *Verifier, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := v.Verify(extractToken(r))
			if err != nil {
				logger.Debug("authentication failed", zap.String("path", r.URL.Path), zap.Error(err))
				respondAuthError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

func extractToken(r *http.Request) string {
	if authz := r.Header.Get("Authorization"); authz != "" {
		if scheme, token, ok := strings.Cut(authz, " "); ok && strings.EqualFold(scheme, "bearer") {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("access_token")
}

func respondAuthError(w http.ResponseWriter, err error) {
	message := "invalid token"
	if errors.Is(err, ErrTokenMissing) {
		message = "token missing"
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="cartflow"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
