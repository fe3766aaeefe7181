// Package ratelimit throttles API callers per IP and per authenticated user.
package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pos/internal/common"
)

// Decision is the outcome of one limiter check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// Allower is implemented by Fixed and Sliding.
type Allower interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// ByIP keys requests by client address.
func ByIP(r *http.Request) string {
	return "ip:" + common.ClientIP(r)
}

// ByUser keys requests by the authenticated user, falling back to the client
// address for anonymous calls.
func ByUser(r *http.Request) string {
	if id, ok := common.UserID(r.Context()); ok && id != "" {
		return "user:" + id
	}
	return ByIP(r)
}

// Handler enforces a limit before delegating to the next handler. Limiter
// failures let the request through.
type Handler struct {
	Limiter Allower
	Key     func(*http.Request) string
	Scope   string
}

// Middleware implements the chi middleware signature.
func (h Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Limiter == nil || h.Key == nil {
			next.ServeHTTP(w, r)
			return
		}
		key := h.Key(r)
		if h.Scope != "" {
			key = h.Scope + ":" + key
		}
		d, err := h.Limiter.Allow(r.Context(), key)
		if err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Str("scope", h.Scope).Msg("rate limiter unavailable")
			next.ServeHTTP(w, r)
			return
		}

		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		headers.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))

		if !d.Allowed {
			retryAfter := max(int(time.Until(d.Reset).Seconds()), 0)
			headers.Set("Retry-After", strconv.Itoa(retryAfter))
			common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
