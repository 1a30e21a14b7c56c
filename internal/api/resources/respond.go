package resources

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/acme/petadoption/internal/api/middleware"
	"github.com/acme/petadoption/internal/core/domain"
)

// HeaderFallback marks a degraded response served by a fallback path.
const HeaderFallback = "X-Fallback"

const msgInvalidBody = "Corpo da requisição inválido."

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError renders err as JSON. Validation failures use the
// {title, details} body; API errors carry their own status; anything else
// is a 500 whose cause only goes to the request log.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, verr.Response())
		return
	}

	var apiErr *domain.APIError
	if errors.As(err, &apiErr) {
		writeJSON(w, apiErr.HTTPStatusCode(), apiErr)
		return
	}

	middleware.AddError(r.Context(), err)
	logger.ErrorContext(r.Context(), "resource handler failed",
		slog.String("request_id", middleware.GetRequestID(r.Context())),
		slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, domain.ErrServer("Erro interno do servidor."))
}

func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domain.ErrInvalidRequest(msgInvalidBody)
	}
	return nil
}

// pathID parses the {id} URL parameter. Malformed ids are reported as not found.
func pathID(r *http.Request, notFound string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, domain.ErrResourceNotFound(notFound)
	}
	return id, nil
}
