// Package auth holds the API key rules shared by the HTTP filters, the
// key provider and the keygen CLI.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/acme/petadoption/internal/core/domain"
)

// HeaderAPIKey carries the client's key.
const HeaderAPIKey = "X-API-Key"

// GenerateKeyValue returns a new 64-character key value: the hex SHA-256
// of a random UUID and the creation time in milliseconds.
func GenerateKeyValue(now time.Time) string {
	seed := uuid.NewString() + "-" + strconv.FormatInt(now.UnixMilli(), 10)
	hash := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(hash[:])
}

// ExtractAPIKey returns the trimmed X-API-Key header and whether it is non-blank.
func ExtractAPIKey(r *http.Request) (string, bool) {
	key := strings.TrimSpace(r.Header.Get(HeaderAPIKey))
	return key, key != ""
}

// RequiredLevel maps an HTTP method to the access level it needs.
func RequiredLevel(method string) domain.AccessLevel {
	switch strings.ToUpper(method) {
	case http.MethodPost, http.MethodPut, http.MethodDelete:
		return domain.AccessReadWrite
	default:
		return domain.AccessReadOnly
	}
}

// Bypass reports whether a request skips authentication: API docs and
// every GET.
func Bypass(method, path string) bool {
	if strings.Contains(path, "openapi") || strings.Contains(path, "swagger-ui") {
		return true
	}
	return strings.ToUpper(method) == http.MethodGet
}
