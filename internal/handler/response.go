package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/pavelanni/coursegen/internal/apperr"
	"github.com/pavelanni/coursegen/internal/i18n"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// writeError writes {"error": "..."} with the status of the error kind. Unclassified
// errors are logged and shown as a generic internal error.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var e *apperr.Error
	if !errors.As(err, &e) {
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": i18n.T(r.Context(), "ErrInternal")})
		return
	}

	status := e.Kind.Status()
	if status >= http.StatusInternalServerError {
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"code", e.Code,
			"error", err,
		)
	}

	msg := e.Message
	if e.Code != "" {
		msg = i18n.Reason(r.Context(), e.Code, e.Message)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}
