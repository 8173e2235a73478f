package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	TraceID string `json:"traceId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// statusFor maps an error code to its HTTP status.
func statusFor(code string) int {
	switch code {
	case "INVALID_INPUT":
		return http.StatusBadRequest
	case "NOT_FOUND":
		return http.StatusNotFound
	case "CONFLICT":
		return http.StatusConflict
	case "DEPENDENCY_FAILURE":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError classifies err and writes the matching status and body.
// Server-side failures are logged in full and answered with a generic
// message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := domain.ErrorCode(err)
	status := statusFor(code)
	traceID := GetTraceID(r.Context())

	msg := err.Error()
	if status >= http.StatusInternalServerError {
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"code", code,
			"trace_id", traceID,
			"error", err,
		)
		msg = http.StatusText(status)
	}

	writeJSON(w, status, ErrorResponse{
		Error:   msg,
		Code:    code,
		TraceID: traceID,
	})
}
