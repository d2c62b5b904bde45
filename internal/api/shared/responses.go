package shared

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/medvextract/medvextract-api/internal/platform/logger"
	"github.com/medvextract/medvextract-api/internal/redact"
)

// ErrorResponse is the body of every non-2xx reply. Code is kept for logs.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"-"`
	TraceID string `json:"trace_id,omitempty"`
}

// RespondWithJSON encodes data as the response body.
func RespondWithJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.FromContext(r.Context()).Error("failed to encode JSON response", "error", redact.Error(err))
	}
}

// RespondWithError replies with a client-facing message. Used for request
// problems that need no server-side investigation.
func RespondWithError(w http.ResponseWriter, r *http.Request, status int, message string) {
	logger.FromContext(r.Context()).Debug("rejected request",
		"path", r.URL.Path,
		"method", r.Method,
		"status_code", status,
		"reason", message)
	writeError(w, r, status, message)
}

// RespondWithErrorAndLog replies with userMessage and logs err after
// redaction. The level follows errorLogLevel.
func RespondWithErrorAndLog(w http.ResponseWriter, r *http.Request, status int, userMessage string, err error) {
	ctx := r.Context()
	attrs := []slog.Attr{
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status_code", status),
		slog.String("reply", userMessage),
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("error", redact.Error(err)),
			slog.String("error_type", fmt.Sprintf("%T", err)))
	}
	logger.FromContext(ctx).LogAttrs(ctx, errorLogLevel(status), "request failed", attrs...)
	writeError(w, r, status, userMessage)
}

// errorLogLevel: 503 and 429 are load shedding and log at WARN, other 5xx
// at ERROR, everything else at DEBUG.
func errorLogLevel(status int) slog.Level {
	switch {
	case status == http.StatusServiceUnavailable, status == http.StatusTooManyRequests:
		return slog.LevelWarn
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	RespondWithJSON(w, r, status, ErrorResponse{
		Error:   message,
		Code:    status,
		TraceID: GetTraceID(r.Context()),
	})
}
