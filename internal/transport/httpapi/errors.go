package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/petrijr/pathways/internal/learningcontext"
	"github.com/petrijr/pathways/pkg/api"
	"github.com/petrijr/pathways/pkg/keys"
)

const (
	detailNotFound         = "Not found."
	detailPermissionDenied = "You do not have permission to perform this action."
	detailServerError      = "A server error occurred."
)

type detailJSON struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, detailJSON{Detail: detail})
}

// statusFor maps a service error to an HTTP status and client message.
func statusFor(err error) (int, string) {
	var verr *api.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, verr.Error()
	case errors.Is(err, api.ErrConflict):
		return http.StatusBadRequest, detailOr(err, api.ErrConflict.Error())
	case errors.Is(err, api.ErrPermissionDenied):
		return http.StatusForbidden, detailOr(err, detailPermissionDenied)
	case errors.Is(err, api.ErrNotFound),
		errors.Is(err, keys.ErrInvalidKey),
		errors.Is(err, learningcontext.ErrBlockNotFound):
		return http.StatusNotFound, detailNotFound
	default:
		return http.StatusInternalServerError, detailServerError
	}
}

func detailOr(err error, fallback string) string {
	if d, ok := api.Detail(err); ok {
		return d
	}
	return fallback
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, detail := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed",
			slog.String("request_id", RequestIDFrom(r.Context())),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
	}
	writeDetail(w, status, detail)
}
