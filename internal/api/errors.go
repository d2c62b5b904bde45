package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/medvextract/medvextract-api/internal/api/shared"
	"github.com/medvextract/medvextract-api/internal/auth"
	"github.com/medvextract/medvextract-api/internal/domain"
	"github.com/medvextract/medvextract-api/internal/pipeline"
	"github.com/medvextract/medvextract-api/internal/resilience"
	"github.com/medvextract/medvextract-api/internal/store"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes without
// leaking internal error types to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken):
		return http.StatusUnauthorized

	case errors.Is(err, pipeline.ErrJobNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, domain.ErrInvalidWorkRequest),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidJobStatus),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	case errors.Is(err, shared.ErrBodyTooLarge):
		return http.StatusRequestEntityTooLarge

	case errors.Is(err, pipeline.ErrQueueFull),
		errors.Is(err, pipeline.ErrStoreUnavailable),
		errors.Is(err, pipeline.ErrNoRunner),
		errors.Is(err, resilience.ErrCircuitOpen),
		errors.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a user-facing message for err. Validation
// messages are passed through because they name fields, never values.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"
	case errors.Is(err, auth.ErrMissingToken):
		return "Authorization header required"
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenNotYetValid):
		return "Invalid token"

	case errors.Is(err, pipeline.ErrJobNotFound),
		errors.Is(err, store.ErrNotFound):
		return "Task not found"

	case errors.Is(err, domain.ErrInvalidWorkRequest):
		return validationMessage(err)
	case errors.Is(err, domain.ErrInvalidJobStatus):
		return "Invalid status filter"
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity):
		return "Invalid request"

	case errors.Is(err, shared.ErrBodyTooLarge):
		return "Request body too large"

	case errors.Is(err, pipeline.ErrQueueFull):
		return "Extraction queue is full, retry later"
	case errors.Is(err, pipeline.ErrStoreUnavailable),
		errors.Is(err, pipeline.ErrNoRunner),
		errors.Is(err, resilience.ErrCircuitOpen),
		errors.Is(err, store.ErrUnavailable):
		return "Service temporarily unavailable"

	default:
		return "An unexpected error occurred"
	}
}

// validationMessage extracts the field-level reason from a rejected work
// request, e.g. "Invalid request: transcript is required".
func validationMessage(err error) string {
	prefix := domain.ErrInvalidWorkRequest.Error() + ": "
	msg := err.Error()
	if i := strings.Index(msg, prefix); i >= 0 {
		return "Invalid request: " + msg[i+len(prefix):]
	}
	return "Invalid request"
}
