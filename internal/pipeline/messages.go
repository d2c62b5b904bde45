package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/medvextract/medvextract-api/internal/extraction"
	"github.com/medvextract/medvextract-api/internal/resilience"
)

// Messages stored on FAILED jobs. They are built from the error class only so
// that no submitted text can leak into storage or API responses.
const (
	MessageCircuitOpen     = "extraction service temporarily unavailable (circuit open)"
	MessageQueueFull       = "queue full: job could not be scheduled"
	MessageSchemaMismatch  = "extraction output did not match the expected schema"
	MessageContentBlocked  = "extraction service refused the content"
	MessageInvalidResponse = "extraction service returned an unusable response"
	MessageRejected        = "extraction service rejected the request"
	MessageMisconfigured   = "extraction is misconfigured"
	MessageCancelled       = "extraction was cancelled"
	MessageUnknown         = "extraction failed"
)

// FailureMessage returns the PHI-free message recorded for err.
func FailureMessage(err error) string {
	if err == nil {
		return ""
	}

	attempts := 0
	var ae *resilience.AttemptsError
	if errors.As(err, &ae) {
		attempts = ae.Attempts
	}

	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		return MessageCircuitOpen
	case errors.Is(err, extraction.ErrSchemaMismatch):
		return MessageSchemaMismatch
	case errors.Is(err, extraction.ErrContentBlocked):
		return MessageContentBlocked
	case errors.Is(err, extraction.ErrInvalidResponse):
		return MessageInvalidResponse
	case errors.Is(err, extraction.ErrRequestRejected):
		return MessageRejected
	case errors.Is(err, extraction.ErrInvalidConfig):
		return MessageMisconfigured
	case errors.Is(err, context.Canceled):
		return MessageCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return withAttempts("extraction timed out", attempts)
	case errors.Is(err, extraction.ErrTransientFailure):
		return withAttempts("extraction service unavailable", attempts)
	case attempts > 0:
		return withAttempts(MessageUnknown, attempts)
	default:
		return MessageUnknown
	}
}

func withAttempts(msg string, attempts int) string {
	switch {
	case attempts == 1:
		return msg + " after 1 attempt"
	case attempts > 1:
		return fmt.Sprintf("%s after %d attempts", msg, attempts)
	default:
		return msg
	}
}
