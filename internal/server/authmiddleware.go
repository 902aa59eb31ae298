package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/tjfontaine/behavior-verify-gateway/internal/api"
	"github.com/tjfontaine/behavior-verify-gateway/internal/core/domain"
	"github.com/tjfontaine/behavior-verify-gateway/internal/core/ports"
)

type authContextKey struct{}

// AdminAuth guards the admin console routes. The key is read from
// "Authorization: Bearer <key>". When the provider is nil or has no keys
// configured the routes are open.
func AdminAuth(provider ports.AuthProvider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if provider == nil || !provider.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			token := bearerToken(r.Header.Get("Authorization"))
			if token == "" {
				api.WriteError(w, domain.ErrAuthentication("missing Authorization header"))
				return
			}

			authCtx, err := provider.Authenticate(r.Context(), token)
			if err != nil {
				AddError(r.Context(), err)
				api.WriteError(w, domain.ErrAuthentication("invalid API key"))
				return
			}

			AddLogField(r.Context(), "admin_key_id", authCtx.KeyID)
			ctx := context.WithValue(r.Context(), authContextKey{}, authCtx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAuthContext returns the authenticated admin caller, or nil.
func GetAuthContext(ctx context.Context) *ports.AuthContext {
	if a, ok := ctx.Value(authContextKey{}).(*ports.AuthContext); ok {
		return a
	}
	return nil
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return strings.TrimSpace(header)
}
