package extraction

import "errors"

// Common errors returned by extraction providers.
var (
	// ErrTransientFailure is returned for failures that may resolve on retry:
	// rate limits, server errors, timeouts and network failures.
	ErrTransientFailure = errors.New("transient extraction failure")

	// ErrInvalidResponse is returned when the provider answered with output
	// that cannot be used, such as empty or malformed JSON.
	ErrInvalidResponse = errors.New("invalid response from extraction service")

	// ErrContentBlocked is returned when the provider refused the content.
	ErrContentBlocked = errors.New("content blocked by extraction service")

	// ErrRequestRejected is returned when the provider rejected the request
	// itself (a 4xx other than rate limiting).
	ErrRequestRejected = errors.New("request rejected by extraction service")

	// ErrSchemaMismatch is returned when sanitized output does not match the
	// configured JSON schema.
	ErrSchemaMismatch = errors.New("extraction output does not match schema")

	// ErrInvalidConfig is returned when a provider is misconfigured.
	ErrInvalidConfig = errors.New("invalid extraction configuration")
)
