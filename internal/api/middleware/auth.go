package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/acme/petadoption/internal/auth"
	"github.com/acme/petadoption/internal/core/domain"
	"github.com/acme/petadoption/internal/core/ports"
	"github.com/acme/petadoption/internal/telemetry"
)

// Messages returned by the auth filter.
const (
	MsgUnauthorized = "Acesso negado. Chave de API ausente ou inválida."
	MsgForbidden    = "Acesso negado. Sua chave de API não possui permissão para esta operação."
	MsgAuthFailure  = "Falha ao validar a chave de API."
)

// APIKeyOwnerKey is the context key of the authenticated key's owner name.
const APIKeyOwnerKey contextKey = "currentApiKeyOwner"

type apiKeyContextKey struct{}

// AuthConfig configures the auth filter.
type AuthConfig struct {
	Keys ports.KeyAuthenticator
	// EnforceExpiry rejects keys whose ExpiresAt has passed.
	EnforceExpiry bool
	Metrics       *telemetry.Metrics
	Now           func() time.Time
}

// Auth validates the X-API-Key header and checks the key's access level
// against the request method. GET requests and API docs pass without a key.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			method := strings.ToUpper(r.Method)
			if auth.Bypass(method, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			keyValue, ok := auth.ExtractAPIKey(r)
			if !ok {
				cfg.Metrics.AuthRejected(http.StatusUnauthorized)
				AddLogField(r.Context(), "auth", "missing_key")
				http.Error(w, MsgUnauthorized, http.StatusUnauthorized)
				return
			}

			key, err := cfg.Keys.FindByKeyValue(r.Context(), keyValue)
			if errors.Is(err, domain.ErrNotFound) {
				cfg.Metrics.AuthRejected(http.StatusUnauthorized)
				AddLogField(r.Context(), "auth", "unknown_key")
				http.Error(w, MsgUnauthorized, http.StatusUnauthorized)
				return
			}
			if err != nil {
				cfg.Metrics.AuthRejected(http.StatusInternalServerError)
				AddError(r.Context(), err)
				http.Error(w, MsgAuthFailure, http.StatusInternalServerError)
				return
			}

			if cfg.EnforceExpiry && key.Expired(cfg.Now()) {
				cfg.Metrics.AuthRejected(http.StatusUnauthorized)
				AddLogField(r.Context(), "auth", "expired_key")
				http.Error(w, MsgUnauthorized, http.StatusUnauthorized)
				return
			}

			if !key.AccessLevel.Covers(auth.RequiredLevel(method)) {
				cfg.Metrics.AuthRejected(http.StatusForbidden)
				AddLogField(r.Context(), "api_key_owner", key.OwnerName)
				http.Error(w, MsgForbidden, http.StatusForbidden)
				return
			}

			AddLogField(r.Context(), "api_key_owner", key.OwnerName)
			ctx := context.WithValue(r.Context(), APIKeyOwnerKey, key.OwnerName)
			ctx = context.WithValue(ctx, apiKeyContextKey{}, key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CurrentAPIKeyOwner returns the owner of the authenticated key, or "".
func CurrentAPIKeyOwner(ctx context.Context) string {
	owner, _ := ctx.Value(APIKeyOwnerKey).(string)
	return owner
}

// CurrentAPIKey returns the authenticated key, or nil when the request
// bypassed authentication.
func CurrentAPIKey(ctx context.Context) *domain.APIKey {
	key, _ := ctx.Value(apiKeyContextKey{}).(*domain.APIKey)
	return key
}
