package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/medvextract/medvextract-api/internal/extraction"
	"github.com/medvextract/medvextract-api/internal/resilience"
)

func TestFailureMessage(t *testing.T) {
	t.Parallel()

	attempts := func(n int, err error) error {
		return &resilience.AttemptsError{CallSite: "extraction", Attempts: n, Err: err}
	}

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"circuit open", fmt.Errorf("extraction: %w", resilience.ErrCircuitOpen), MessageCircuitOpen},
		{"schema", fmt.Errorf("%w: invalid at /tasks", extraction.ErrSchemaMismatch), MessageSchemaMismatch},
		{"blocked", attempts(1, extraction.ErrContentBlocked), MessageContentBlocked},
		{"invalid response", attempts(1, extraction.ErrInvalidResponse), MessageInvalidResponse},
		{"rejected", attempts(1, extraction.ErrRequestRejected), MessageRejected},
		{"misconfigured", extraction.ErrInvalidConfig, MessageMisconfigured},
		{"cancelled", attempts(1, context.Canceled), MessageCancelled},
		{"timeout", attempts(3, context.DeadlineExceeded), "extraction timed out after 3 attempts"},
		{"transient", attempts(3, extraction.ErrTransientFailure), "extraction service unavailable after 3 attempts"},
		{"transient single", attempts(1, extraction.ErrTransientFailure), "extraction service unavailable after 1 attempt"},
		{"unknown with attempts", attempts(2, errors.New("boom")), "extraction failed after 2 attempts"},
		{"unknown", errors.New("Biscuit the dog"), MessageUnknown},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, FailureMessage(tc.err))
		})
	}
}
