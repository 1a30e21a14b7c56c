package middleware

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/acme/petadoption/internal/core/domain"
	"github.com/acme/petadoption/internal/core/ports"
	"github.com/acme/petadoption/internal/idempotency"
	"github.com/acme/petadoption/internal/telemetry"
)

// Messages returned by the idempotency filter.
const (
	MsgIdempotencyKeyRequired = "O cabeçalho X-Idempotency-Key é obrigatório para esta operação"
	MsgIdempotencyFailure     = "Falha ao acessar o cache de idempotência."
)

// unreplayedHeaders are produced per request and never stored with a record.
var unreplayedHeaders = map[string]bool{
	"Content-Length":        true,
	"Date":                  true,
	"Retry-After":           true,
	"Traceparent":           true,
	"X-Idempotency-Status":  true,
	"X-Ratelimit-Limit":     true,
	"X-Ratelimit-Remaining": true,
	"X-Ratelimit-Reset":     true,
	"X-Request-Id":          true,
}

// IdempotentContext is the state the pre-phase hands to the post-phase.
type IdempotentContext struct {
	CacheKey string
	TTL      time.Duration
}

type idempotentContextKey struct{}

// IdempotentContextFrom returns the idempotency state of the request, or
// nil when the route is not idempotent.
func IdempotentContextFrom(ctx context.Context) *IdempotentContext {
	ic, _ := ctx.Value(idempotentContextKey{}).(*IdempotentContext)
	return ic
}

// IdempotencyConfig configures the idempotency filter.
type IdempotencyConfig struct {
	Registry *idempotency.Registry
	Store    ports.IdempotencyStore
	// Routes resolves request paths to route patterns for registry lookups.
	Routes chi.Routes
	// Locker, when set, holds a per-key lock from the cache read until
	// the response is stored.
	Locker  ports.Locker
	Metrics *telemetry.Metrics
	Logger  *slog.Logger
	Now     func() time.Time
}

// Idempotency replays the stored response of a repeated idempotency key
// and stores successful responses of idempotent routes.
func Idempotency(cfg IdempotencyConfig) func(http.Handler) http.Handler {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			policy, ok := cfg.Registry.Lookup(r.Method, routePattern(cfg.Routes, r))
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			key := strings.TrimSpace(r.Header.Get(idempotency.HeaderKey))
			if key == "" {
				cfg.Metrics.Idempotency(telemetry.IdempotencyMissingKey)
				http.Error(w, MsgIdempotencyKeyRequired, http.StatusBadRequest)
				return
			}

			cacheKey := idempotency.CacheKey(r.Method, r.URL.Path, key)

			if cfg.Locker != nil {
				unlock, err := cfg.Locker.Lock(ctx, cacheKey)
				if err != nil {
					cfg.Metrics.Idempotency(telemetry.IdempotencyError)
					AddError(ctx, err)
					http.Error(w, MsgIdempotencyFailure, http.StatusInternalServerError)
					return
				}
				defer unlock()
			}

			rec, err := cfg.Store.Get(ctx, cacheKey)
			if err != nil {
				cfg.Metrics.Idempotency(telemetry.IdempotencyError)
				AddError(ctx, err)
				http.Error(w, MsgIdempotencyFailure, http.StatusInternalServerError)
				return
			}
			if rec != nil && !rec.Expired(cfg.Now()) {
				cfg.Metrics.Idempotency(telemetry.IdempotencyReplay)
				AddLogField(ctx, "idempotency", telemetry.IdempotencyReplay)
				replay(w, rec)
				return
			}

			ic := &IdempotentContext{CacheKey: cacheKey, TTL: policy.TTL}
			cw := &captureWriter{ResponseWriter: w}
			next.ServeHTTP(cw, r.WithContext(context.WithValue(ctx, idempotentContextKey{}, ic)))

			if !cw.wrote || ctx.Err() != nil || cw.status < 200 || cw.status > 299 {
				cfg.Metrics.Idempotency(telemetry.IdempotencyNotStored)
				return
			}

			stored := &domain.IdempotencyRecord{
				Status: cw.status,
				Body:   cw.body.Bytes(),
				Header: cw.header,
				Expiry: cfg.Now().Add(ic.TTL),
			}
			if err := cfg.Store.Put(ctx, ic.CacheKey, stored); err != nil {
				cfg.Metrics.Idempotency(telemetry.IdempotencyError)
				AddError(ctx, err)
				cfg.Logger.Error("failed to store idempotent response",
					slog.String("request_id", GetRequestID(ctx)),
					slog.String("error", err.Error()))
				return
			}
			cfg.Metrics.Idempotency(telemetry.IdempotencyStored)
			AddLogField(ctx, "idempotency", telemetry.IdempotencyStored)
		})
	}
}

// routePattern resolves the chi pattern the request will be routed to.
// Global middlewares run before routing, so the pattern is matched here.
func routePattern(routes chi.Routes, r *http.Request) string {
	if routes == nil {
		return ""
	}
	rctx := chi.NewRouteContext()
	if !routes.Match(rctx, r.Method, r.URL.Path) {
		return ""
	}
	return rctx.RoutePattern()
}

func replay(w http.ResponseWriter, rec *domain.IdempotencyRecord) {
	h := w.Header()
	for k, v := range rec.Header {
		h[k] = append([]string(nil), v...)
	}
	h.Set(idempotency.HeaderStatus, idempotency.StatusReplay)
	w.WriteHeader(rec.Status)
	w.Write(rec.Body)
}

// captureWriter passes the response through while keeping a copy of its
// status, replayable headers and body.
type captureWriter struct {
	http.ResponseWriter
	status int
	header http.Header
	body   bytes.Buffer
	wrote  bool
}

func (cw *captureWriter) WriteHeader(code int) {
	if !cw.wrote {
		cw.wrote = true
		cw.status = code
		cw.header = replayableHeaders(cw.ResponseWriter.Header())
	}
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *captureWriter) Write(b []byte) (int, error) {
	if !cw.wrote {
		cw.WriteHeader(http.StatusOK)
	}
	cw.body.Write(b)
	return cw.ResponseWriter.Write(b)
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (cw *captureWriter) Unwrap() http.ResponseWriter {
	return cw.ResponseWriter
}

func replayableHeaders(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for k, v := range h {
		if unreplayedHeaders[http.CanonicalHeaderKey(k)] {
			continue
		}
		out[k] = append([]string(nil), v...)
	}
	return out
}
