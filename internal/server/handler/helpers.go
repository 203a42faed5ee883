package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/jwkoh/campustrade/internal/domain"
)

// writeJSON marshals v and writes it with the given status code. Marshal
// failures fall back to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError maps an engine error onto an HTTP status via its kind and
// writes a JSON error body. Internal errors are logged and masked.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	kind := domain.Kind(err)
	status := http.StatusInternalServerError
	msg := err.Error()

	switch kind {
	case domain.KindValidation:
		status = http.StatusBadRequest
	case domain.KindAuthorization:
		status = http.StatusForbidden
	case domain.KindConflict:
		status = http.StatusConflict
	case domain.KindNotFound:
		status = http.StatusNotFound
	case domain.KindRateLimited:
		status = http.StatusTooManyRequests
	case domain.KindUnavailable:
		status = http.StatusServiceUnavailable
	default:
		logger.ErrorContext(r.Context(), "handler: request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		msg = "internal server error"
	}

	writeJSON(w, status, map[string]string{
		"error": msg,
		"kind":  string(kind),
	})
}

// decodeBody unmarshals the request body into v, answering 400 on failure.
// The bool reports whether decoding succeeded.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid request body: " + err.Error(),
			"kind":  string(domain.KindValidation),
		})
		return false
	}
	return true
}

// requireUser answers 401 when the request carries no identity. The bool
// reports whether a user ID was present.
func requireUser(w http.ResponseWriter, userID string) bool {
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"error": "X-User-ID header required",
		})
		return false
	}
	return true
}

// parseListOpts extracts pagination from the query string. Defaults:
// limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{Limit: limit, Offset: offset}
}
