package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/acme/petadoption/internal/auth"
	"github.com/acme/petadoption/internal/core/domain"
	"github.com/acme/petadoption/internal/core/ports"
	"github.com/acme/petadoption/internal/telemetry"
)

// Rate limit response headers.
const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
	HeaderRetryAfter         = "Retry-After"
	HeaderForwardedFor       = "X-Forwarded-For"
)

// MsgRateLimitFailure is returned when the counter store fails.
const MsgRateLimitFailure = "Falha ao verificar o limite de requisições."

// ipFallback identifies requests with neither an API key nor a forwarded
// address. They are not limited.
const ipFallback = "IP_FALLBACK"

// rateLimitContextKey is the context key for rate limit info
type rateLimitContextKey struct{}

// SetRateLimits stores the rate limit result in context.
func SetRateLimits(ctx context.Context, rl *domain.RateLimitResult) context.Context {
	return context.WithValue(ctx, rateLimitContextKey{}, rl)
}

// RateLimitFromContext returns the result of the request's rate limit
// check, or nil when the request was not limited.
func RateLimitFromContext(ctx context.Context) *domain.RateLimitResult {
	if rl, ok := ctx.Value(rateLimitContextKey{}).(*domain.RateLimitResult); ok {
		return rl
	}
	return nil
}

// ClientKey derives the rate limit identity of a request. The API key
// wins over the first X-Forwarded-For address. ok is false when neither
// is present.
func ClientKey(r *http.Request) (key string, ok bool) {
	if apiKey, present := auth.ExtractAPIKey(r); present {
		return "API_KEY:" + apiKey, true
	}

	if xff := r.Header.Get(HeaderForwardedFor); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first, true
		}
	}

	return ipFallback, false
}

// RateLimit applies the fixed-window limit per client. Rate limit headers
// are set on every limited response, including the 429.
func RateLimit(limiter ports.RateLimiter, metrics *telemetry.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientKey, ok := ClientKey(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			result, err := limiter.Check(r.Context(), clientKey)
			if err != nil {
				AddError(r.Context(), err)
				http.Error(w, MsgRateLimitFailure, http.StatusInternalServerError)
				return
			}

			h := w.Header()
			h.Set(HeaderRateLimitLimit, strconv.Itoa(result.Limit))
			h.Set(HeaderRateLimitRemaining, strconv.FormatInt(result.Remaining, 10))
			h.Set(HeaderRateLimitReset, strconv.Itoa(result.WindowSeconds))

			if result.Exceeded {
				metrics.RateLimited()
				AddLogField(r.Context(), "rate_limited", clientKeyLabel(clientKey))
				h.Set(HeaderRetryAfter, strconv.Itoa(result.WindowSeconds))
				http.Error(w, fmt.Sprintf("Limite de requisições excedido. Tente novamente em %d segundos.", result.WindowSeconds),
					http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r.WithContext(SetRateLimits(r.Context(), &result)))
		})
	}
}

// clientKeyLabel keeps key values out of logs.
func clientKeyLabel(clientKey string) string {
	if strings.HasPrefix(clientKey, "API_KEY:") {
		return "api_key"
	}
	return clientKey
}
