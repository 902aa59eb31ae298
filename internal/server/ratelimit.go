package server

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/tjfontaine/behavior-verify-gateway/internal/api"
	"github.com/tjfontaine/behavior-verify-gateway/internal/core/domain"
)

// RateLimitMiddleware caps requests per client IP over a sliding window.
// Mount it after chi's RealIP so proxied clients are keyed correctly.
// A non-positive limit disables it.
func RateLimitMiddleware(requests int, window time.Duration) func(http.Handler) http.Handler {
	if requests <= 0 || window <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		requests,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			AddLogField(r.Context(), "rate_limited", "true")
			api.WriteError(w, domain.ErrRateLimit("too many verification attempts, retry later"))
		}),
	)
}
